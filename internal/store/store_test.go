package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"grid-bot-dashboard/internal/models"
	"grid-bot-dashboard/internal/normalizer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func perpConfig() normalizer.ConfigMsg {
	return normalizer.ConfigMsg{Config: models.Config{
		Variant:       models.PerpGrid,
		Symbol:        "LIT/USDC",
		LowerPrice:    0.5,
		UpperPrice:    1.5,
		GridCount:     10,
		PriceDecimals: 4,
		SizeDecimals:  1,
		Perp:          &models.PerpConfig{Leverage: 5, MarginMode: models.MarginCross, Bias: models.BiasLong},
	}}
}

func perpSummary(side string) normalizer.SummaryMsg {
	return normalizer.SummaryMsg{Summary: models.Summary{
		Variant: models.PerpGrid,
		Symbol:  "LIT/USDC",
		Price:   1.01,
		Perp:    &models.PerpSummary{PositionSide: side, Leverage: 5},
	}}
}

func spotSummary() normalizer.SummaryMsg {
	return normalizer.SummaryMsg{Summary: models.Summary{
		Variant: models.SpotGrid,
		Symbol:  "LIT/USDC",
		Spot:    &models.SpotSummary{BaseBalance: 1, QuoteBalance: 2},
	}}
}

func order(n int) normalizer.OrderEventMsg {
	return normalizer.OrderEventMsg{Order: models.OrderEvent{
		ClientID:   fmt.Sprintf("cloid-%d", n),
		Side:       models.Buy,
		Status:     models.OrderFilled,
		Price:      float64(n),
		Size:       1,
		ReceivedAt: time.Unix(int64(n), 0),
	}}
}

// TestNewStore verifies that an empty store is initialized correctly.
func TestNewStore(t *testing.T) {
	s := New("bot-1", 0, zap.NewNop())
	require.NotNil(t, s)

	assert.Equal(t, "bot-1", s.ConnectionID())
	assert.Equal(t, models.StatusDisconnected, s.Status())
	assert.Nil(t, s.Config())
	assert.Nil(t, s.Summary())
	assert.Nil(t, s.GridState())
	assert.Nil(t, s.LastPrice())
	assert.Nil(t, s.SystemInfo())
	assert.Empty(t, s.OrderHistory())
	assert.Len(t, s.orders.buf, DefaultHistoryCap)
}

// TestPerpScenario follows a perp config and summary with a spot summary that must be rejected.
func TestPerpScenario(t *testing.T) {
	s := New("bot-1", 200, zap.NewNop())

	require.NoError(t, s.Apply(perpConfig()))
	require.NoError(t, s.Apply(perpSummary("Long")))

	assert.Equal(t, models.PerpGrid, s.Config().Variant)
	assert.Equal(t, 5.0, s.Config().Perp.Leverage)
	require.NotNil(t, s.Summary().Perp)
	assert.Equal(t, "Long", s.Summary().Perp.PositionSide)

	err := s.Apply(spotSummary())
	require.ErrorIs(t, err, models.ErrSchema)
	assert.Equal(t, models.PerpGrid, s.Summary().Variant)
	assert.Equal(t, "Long", s.Summary().Perp.PositionSide)

	// Rejection is idempotent.
	require.ErrorIs(t, s.Apply(spotSummary()), models.ErrSchema)
	assert.Equal(t, "Long", s.Summary().Perp.PositionSide)
	assert.Equal(t, uint64(2), s.Stats().Rejected)
}

func TestSummaryAcceptedBeforeConfig(t *testing.T) {
	s := New("bot-1", 10, zap.NewNop())
	require.NoError(t, s.Apply(spotSummary()))
	assert.Equal(t, models.SpotGrid, s.Summary().Variant)

	// A config of the other variant drops the summary it can no longer describe.
	require.NoError(t, s.Apply(perpConfig()))
	assert.Nil(t, s.Summary())
}

func TestConfigReplacedWholesale(t *testing.T) {
	s := New("bot-1", 10, zap.NewNop())
	require.NoError(t, s.Apply(perpConfig()))

	next := normalizer.ConfigMsg{Config: models.Config{
		Variant: models.PerpGrid, Symbol: "ETH/USDC", LowerPrice: 1, UpperPrice: 2, GridCount: 3,
		Perp: &models.PerpConfig{Leverage: 2, MarginMode: models.MarginIsolated, Bias: models.BiasShort},
	}}
	require.NoError(t, s.Apply(next))

	cfg := s.Config()
	assert.Equal(t, "ETH/USDC", cfg.Symbol)
	assert.Equal(t, 0, cfg.PriceDecimals, "no partial merge with the previous config")
	assert.Equal(t, models.BiasShort, cfg.Perp.Bias)
}

// TestOrderHistoryCap delivers 250 order events into a store capped at 200.
func TestOrderHistoryCap(t *testing.T) {
	s := New("bot-1", 200, zap.NewNop())
	for i := 1; i <= 250; i++ {
		require.NoError(t, s.Apply(order(i)))
	}

	hist := s.OrderHistory()
	require.Len(t, hist, 200)
	assert.Equal(t, "cloid-250", hist[0].ClientID)
	assert.Equal(t, "cloid-51", hist[199].ClientID)
	assert.Equal(t, uint64(50), s.Stats().Evicted)
	assert.Equal(t, 200, s.orders.len())

	for i := 1; i < len(hist); i++ {
		assert.True(t, hist[i-1].ReceivedAt.After(hist[i].ReceivedAt), "history must be newest first")
	}
}

func TestOrderHistoryBelowCap(t *testing.T) {
	for _, n := range []int{0, 1, 7, 10, 11, 33} {
		s := New("bot-1", 10, zap.NewNop())
		for i := 1; i <= n; i++ {
			require.NoError(t, s.Apply(order(i)))
		}
		hist := s.OrderHistory()
		want := n
		if want > 10 {
			want = 10
		}
		require.Len(t, hist, want)
		if n > 0 {
			assert.Equal(t, fmt.Sprintf("cloid-%d", n), hist[0].ClientID)
		}
		evicted := 0
		if n > 10 {
			evicted = n - 10
		}
		assert.Equal(t, uint64(evicted), s.Stats().Evicted)
	}
}

func TestGridStateReplacedWholesale(t *testing.T) {
	s := New("bot-1", 10, zap.NewNop())
	first := normalizer.GridStateMsg{Grid: models.GridState{Zones: []models.Zone{
		{Index: 0, LowerPrice: 1, UpperPrice: 2, PendingSide: models.Buy, Size: 1},
		{Index: 1, LowerPrice: 2, UpperPrice: 3, PendingSide: models.Sell, Size: 1},
		{Index: 2, LowerPrice: 3, UpperPrice: 4, PendingSide: models.Sell, Size: 1},
	}}}
	second := normalizer.GridStateMsg{Grid: models.GridState{Zones: []models.Zone{
		{Index: 5, LowerPrice: 10, UpperPrice: 11, PendingSide: models.Buy, Size: 2, HasOpenOrder: true, RoundtripCount: 4},
	}}}

	require.NoError(t, s.Apply(first))
	require.Len(t, s.GridState().Zones, 3)

	require.NoError(t, s.Apply(second))
	grid := s.GridState()
	require.Len(t, grid.Zones, 1)
	assert.Equal(t, second.Grid.Zones[0], grid.Zones[0])

	// Mutating the returned copy must not leak into the store.
	grid.Zones[0].Size = 99
	assert.Equal(t, 2.0, s.GridState().Zones[0].Size)
}

func TestGridStateVariantMismatchRejected(t *testing.T) {
	s := New("bot-1", 10, zap.NewNop())
	require.NoError(t, s.Apply(perpConfig()))
	err := s.Apply(normalizer.GridStateMsg{Grid: models.GridState{Variant: models.SpotGrid}})
	assert.ErrorIs(t, err, models.ErrSchema)
	assert.Nil(t, s.GridState())
}

func TestResetKeepsConfigAndPrice(t *testing.T) {
	s := New("bot-1", 10, zap.NewNop())
	require.NoError(t, s.Apply(perpConfig()))
	require.NoError(t, s.Apply(perpSummary("Short")))
	require.NoError(t, s.Apply(normalizer.GridStateMsg{Grid: models.GridState{}}))
	require.NoError(t, s.Apply(normalizer.PriceTickMsg{Tick: models.PriceTick{Price: 1.2}}))
	require.NoError(t, s.Apply(order(1)))

	require.NoError(t, s.Reset())

	assert.Nil(t, s.Summary())
	assert.Nil(t, s.GridState())
	assert.NotNil(t, s.Config())
	assert.Equal(t, 1.2, s.LastPrice().Price)
	assert.Len(t, s.OrderHistory(), 1)
}

func TestStatusDoesNotBlankData(t *testing.T) {
	s := New("bot-1", 10, zap.NewNop())
	require.NoError(t, s.SetStatus(models.StatusConnected))
	require.NoError(t, s.Apply(perpConfig()))
	require.NoError(t, s.SetStatus(models.StatusDisconnected))

	assert.Equal(t, models.StatusDisconnected, s.Status())
	assert.NotNil(t, s.Config(), "stale data stays visible")
}

func TestListenersObserveOrderedUpdates(t *testing.T) {
	s := New("bot-1", 10, zap.NewNop())

	var a, b []Change
	s.Subscribe(func(u Update) { a = append(a, u.Change) })
	s.Subscribe(func(u Update) { b = append(b, u.Change) })

	require.NoError(t, s.SetStatus(models.StatusConnected))
	require.NoError(t, s.Apply(perpConfig()))
	require.NoError(t, s.Apply(normalizer.PriceTickMsg{Tick: models.PriceTick{Price: 1}}))
	// Identical tick and status are not visible changes.
	require.NoError(t, s.Apply(normalizer.PriceTickMsg{Tick: models.PriceTick{Price: 1}}))
	require.NoError(t, s.SetStatus(models.StatusConnected))
	// Rejected messages do not notify.
	require.Error(t, s.Apply(spotSummary()))
	require.NoError(t, s.Apply(order(1)))

	want := []Change{ChangeStatus, ChangeConfig, ChangePriceTick, ChangeOrderEvent}
	assert.Equal(t, want, a)
	assert.Equal(t, want, b)
}

func TestUnsubscribeFromWithinListener(t *testing.T) {
	s := New("bot-1", 10, zap.NewNop())

	var first, second, third int
	var unsubSecond func()
	s.Subscribe(func(Update) { first++ })
	unsubSecond = s.Subscribe(func(Update) {
		second++
		unsubSecond()
		unsubSecond() // idempotent
	})
	s.Subscribe(func(Update) { third++ })

	require.NoError(t, s.Apply(order(1)))
	require.NoError(t, s.Apply(order(2)))

	assert.Equal(t, 2, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 2, third, "remaining listeners are neither skipped nor double-notified")
}

func TestListenerUnsubscribesAnotherDuringNotify(t *testing.T) {
	s := New("bot-1", 10, zap.NewNop())

	var calls []string
	var unsubLater func()
	s.Subscribe(func(Update) {
		calls = append(calls, "a")
		unsubLater()
	})
	unsubLater = s.Subscribe(func(Update) { calls = append(calls, "b") })
	s.Subscribe(func(Update) { calls = append(calls, "c") })

	require.NoError(t, s.Apply(order(1)))
	assert.Equal(t, []string{"a", "c"}, calls)
}

func TestReleaseStopsMutationAndNotification(t *testing.T) {
	s := New("bot-1", 10, zap.NewNop())
	var n int
	s.Subscribe(func(Update) { n++ })
	require.NoError(t, s.Apply(perpConfig()))

	s.Release()
	assert.True(t, s.Released())
	assert.ErrorIs(t, s.Apply(order(1)), models.ErrReleased)
	assert.ErrorIs(t, s.Reset(), models.ErrReleased)
	assert.Equal(t, 1, n)
	assert.Empty(t, s.OrderHistory())

	unsub := s.Subscribe(func(Update) { n++ })
	unsub()
}

func TestSnapshotIsConsistentUnderConcurrentWrites(t *testing.T) {
	s := New("bot-1", 50, zap.NewNop())
	require.NoError(t, s.Apply(perpConfig()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			_ = s.Apply(order(i))
		}
	}()
	for i := 0; i < 100; i++ {
		snap := s.Snapshot()
		assert.LessOrEqual(t, len(snap.Orders), 50)
		assert.Equal(t, models.PerpGrid, snap.Config.Variant)
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Len(t, snap.Orders, 50)
	assert.Equal(t, "cloid-500", snap.Orders[0].ClientID)
	assert.Equal(t, uint64(450), snap.Stats.Evicted)
}
