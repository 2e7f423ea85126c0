package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"grid-bot-dashboard/internal/models"
	"grid-bot-dashboard/internal/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockConnectionRepository is a mock implementation of the ConnectionRepository interface for testing.
type mockConnectionRepository struct {
	sync.Mutex
	stored    []models.BotConnection
	saved     [][]models.BotConnection
	loadError error
	saveError error
}

func (m *mockConnectionRepository) SaveConnections(conns []models.BotConnection) error {
	m.Lock()
	defer m.Unlock()
	m.saved = append(m.saved, append([]models.BotConnection(nil), conns...))
	return m.saveError
}

func (m *mockConnectionRepository) GetStoredConnections() ([]models.BotConnection, error) {
	m.Lock()
	defer m.Unlock()
	return m.stored, m.loadError
}

func (m *mockConnectionRepository) Close() error {
	return nil
}

func (m *mockConnectionRepository) lastSaved() []models.BotConnection {
	m.Lock()
	defer m.Unlock()
	if len(m.saved) == 0 {
		return nil
	}
	return m.saved[len(m.saved)-1]
}

func (m *mockConnectionRepository) saveCount() int {
	m.Lock()
	defer m.Unlock()
	return len(m.saved)
}

var _ persistence.ConnectionRepository = (*mockConnectionRepository)(nil)

func newTestRegistry(t *testing.T, repo *mockConnectionRepository) *Registry {
	t.Helper()
	r, err := New(repo, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestNewLoadsStoredConnections(t *testing.T) {
	repo := &mockConnectionRepository{stored: []models.BotConnection{
		{ID: "a", Name: "one", Address: "ws://one"},
		{ID: "b", Name: "two", Address: "ws://two"},
	}}
	r := newTestRegistry(t, repo)
	assert.Equal(t, repo.stored, r.List())
}

func TestNewLoadError(t *testing.T) {
	repo := &mockConnectionRepository{loadError: errors.New("disk gone")}
	_, err := New(repo, zap.NewNop())
	assert.ErrorIs(t, err, models.ErrPersistence)
}

func TestAddPersistsAndAssignsUniqueIDs(t *testing.T) {
	repo := &mockConnectionRepository{}
	r := newTestRegistry(t, repo)

	a, err := r.Add("Local", "ws://localhost:8080/ws")
	require.NoError(t, err)
	b, err := r.Add("Local", "ws://localhost:8080/ws")
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID, "same address still gets a distinct entry")
	assert.Equal(t, []models.BotConnection{a, b}, r.List())
	assert.Equal(t, r.List(), repo.lastSaved())
}

func TestAddValidation(t *testing.T) {
	repo := &mockConnectionRepository{}
	r := newTestRegistry(t, repo)

	for _, tc := range []struct{ name, address string }{
		{"", "ws://x"},
		{"x", ""},
		{"   ", "ws://x"},
		{"", ""},
	} {
		_, err := r.Add(tc.name, tc.address)
		assert.ErrorIs(t, err, models.ErrValidation, "%q/%q", tc.name, tc.address)
	}
	assert.Empty(t, r.List())
	assert.Equal(t, 0, repo.saveCount(), "invalid adds never reach storage")
}

func TestAddPersistenceFailureKeepsInMemoryState(t *testing.T) {
	repo := &mockConnectionRepository{saveError: errors.New("read-only")}
	r := newTestRegistry(t, repo)

	conn, err := r.Add("VPS", "wss://bot.example.com/ws")
	require.ErrorIs(t, err, models.ErrPersistence)
	assert.Equal(t, "VPS", conn.Name)
	assert.Equal(t, []models.BotConnection{conn}, r.List())
}

func TestRemove(t *testing.T) {
	repo := &mockConnectionRepository{}
	r := newTestRegistry(t, repo)
	a, _ := r.Add("a", "ws://a")
	b, _ := r.Add("b", "ws://b")
	c, _ := r.Add("c", "ws://c")

	require.NoError(t, r.Remove(b.ID))
	assert.Equal(t, []models.BotConnection{a, c}, r.List())
	assert.Equal(t, []models.BotConnection{a, c}, repo.lastSaved())

	saves := repo.saveCount()
	require.NoError(t, r.Remove(b.ID), "removing twice is a no-op")
	require.NoError(t, r.Remove("missing"))
	assert.Equal(t, saves, repo.saveCount())

	_, ok := r.Get(b.ID)
	assert.False(t, ok)
	got, ok := r.Get(c.ID)
	assert.True(t, ok)
	assert.Equal(t, c, got)
}

func TestListReturnsCopy(t *testing.T) {
	r := newTestRegistry(t, &mockConnectionRepository{})
	_, _ = r.Add("a", "ws://a")
	list := r.List()
	list[0].Name = "mutated"
	assert.Equal(t, "a", r.List()[0].Name)
}

func TestObserversSeeConsistentLists(t *testing.T) {
	r := newTestRegistry(t, &mockConnectionRepository{})

	var mu sync.Mutex
	var changes []Change
	cancel := r.Observe(func(c Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Add(fmt.Sprintf("bot-%d", i), "ws://x")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	mu.Lock()
	require.Len(t, changes, 20)
	for i, c := range changes {
		assert.Equal(t, Added, c.Kind)
		assert.Len(t, c.Connections, i+1, "no mutation is observed half-applied")
		assert.Equal(t, c.Connection, c.Connections[i])
	}
	mu.Unlock()

	cancel()
	cancel()
	_, _ = r.Add("late", "ws://late")
	mu.Lock()
	assert.Len(t, changes, 20)
	mu.Unlock()
}

func TestNewIDIsOpaqueAndUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewID()
		require.NotEmpty(t, id)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}
