// Package registry keeps the operator's saved bot endpoints and persists every
// change through a persistence.ConnectionRepository.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"grid-bot-dashboard/internal/models"
	"grid-bot-dashboard/internal/persistence"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"go.uber.org/zap"
)

// ChangeKind identifies a registry mutation.
type ChangeKind string

const (
	Added   ChangeKind = "added"
	Removed ChangeKind = "removed"
)

// Change is delivered to observers after a mutation. Connections is the full
// list as it stood right after the mutation.
type Change struct {
	Kind        ChangeKind
	Connection  models.BotConnection
	Connections []models.BotConnection
}

// Observer receives registry changes, in mutation order.
type Observer func(Change)

type observer struct {
	fn     Observer
	active atomic.Bool
}

// Registry is safe for concurrent use. Add and Remove never interleave, and
// observers only ever see a fully applied list.
type Registry struct {
	repo     persistence.ConnectionRepository
	logger   *zap.Logger
	validate *validator.Validate
	newID    func() string

	opMu      sync.Mutex
	mu        sync.RWMutex
	conns     []models.BotConnection
	observers []*observer
}

// New loads the stored connections from repo.
func New(repo persistence.ConnectionRepository, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	stored, err := repo.GetStoredConnections()
	if err != nil {
		return nil, fmt.Errorf("%w: load connections: %v", models.ErrPersistence, err)
	}
	r := &Registry{
		repo:     repo,
		logger:   logger,
		validate: validator.New(),
		newID:    NewID,
		conns:    append([]models.BotConnection(nil), stored...),
	}
	logger.Sugar().Infof("Loaded %d saved connections", len(r.conns))
	return r, nil
}

// NewID returns a fresh opaque connection id: a random UUID in base62.
func NewID() string {
	u := uuid.New()
	return base62.EncodeToString(u[:])
}

// Add validates and appends a new connection, then persists the list.
//
// A validation failure changes nothing. A persistence failure is returned
// wrapped in models.ErrPersistence together with the connection, which stays
// in the in-memory list.
func (r *Registry) Add(name, address string) (models.BotConnection, error) {
	conn := models.BotConnection{
		Name:    strings.TrimSpace(name),
		Address: strings.TrimSpace(address),
	}
	if err := r.validate.Struct(conn); err != nil {
		return models.BotConnection{}, validationError(err)
	}

	r.opMu.Lock()
	defer r.opMu.Unlock()

	conn.ID = r.newID()
	r.mu.Lock()
	r.conns = append(r.conns[:len(r.conns):len(r.conns)], conn)
	list := r.snapshotLocked()
	r.mu.Unlock()

	err := r.persist(list)
	r.notify(Change{Kind: Added, Connection: conn, Connections: list})
	return conn, err
}

// Remove deletes the connection with the given id. Unknown ids are a no-op.
func (r *Registry) Remove(id string) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	idx := r.indexLocked(id)
	if idx < 0 {
		r.mu.Unlock()
		return nil
	}
	removed := r.conns[idx]
	kept := make([]models.BotConnection, 0, len(r.conns)-1)
	kept = append(kept, r.conns[:idx]...)
	kept = append(kept, r.conns[idx+1:]...)
	r.conns = kept
	list := r.snapshotLocked()
	r.mu.Unlock()

	err := r.persist(list)
	r.notify(Change{Kind: Removed, Connection: removed, Connections: list})
	return err
}

// List returns a copy of the connections in insertion order.
func (r *Registry) List() []models.BotConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Get looks up a connection by id.
func (r *Registry) Get(id string) (models.BotConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx := r.indexLocked(id); idx >= 0 {
		return r.conns[idx], true
	}
	return models.BotConnection{}, false
}

// Observe registers fn for future changes and returns an idempotent cancel.
// Observers run synchronously while mutations are held off, so they must not
// call Add or Remove.
func (r *Registry) Observe(fn Observer) (cancel func()) {
	o := &observer{fn: fn}
	o.active.Store(true)

	r.mu.Lock()
	r.observers = append(r.observers[:len(r.observers):len(r.observers)], o)
	r.mu.Unlock()

	return func() {
		if !o.active.Swap(false) {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		kept := make([]*observer, 0, len(r.observers))
		for _, other := range r.observers {
			if other != o {
				kept = append(kept, other)
			}
		}
		r.observers = kept
	}
}

func (r *Registry) persist(list []models.BotConnection) error {
	if err := r.repo.SaveConnections(list); err != nil {
		r.logger.Sugar().Errorf("Failed to save connections: %v", err)
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return nil
}

func (r *Registry) notify(c Change) {
	r.mu.RLock()
	obs := r.observers
	r.mu.RUnlock()
	for _, o := range obs {
		if o.active.Load() {
			o.fn(c)
		}
	}
}

func (r *Registry) indexLocked(id string) int {
	for i, c := range r.conns {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) snapshotLocked() []models.BotConnection {
	out := make([]models.BotConnection, len(r.conns))
	copy(out, r.conns)
	return out
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		if fe.Tag() == "required" {
			msgs = append(msgs, field+" is required")
		} else {
			msgs = append(msgs, field+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", models.ErrValidation, strings.Join(msgs, "; "))
}
