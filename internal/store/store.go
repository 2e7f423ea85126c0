package store

import (
	"fmt"
	"sync"
	"sync/atomic"

	"grid-bot-dashboard/internal/models"
	"grid-bot-dashboard/internal/normalizer"

	"go.uber.org/zap"
)

// DefaultHistoryCap is the number of order events retained when no cap is given.
const DefaultHistoryCap = 200

// Change names the part of the view model an update touched.
type Change string

const (
	ChangeConfig     Change = "config"
	ChangeSummary    Change = "summary"
	ChangeGridState  Change = "grid_state"
	ChangeOrderEvent Change = "order_event"
	ChangePriceTick  Change = "price_tick"
	ChangeSystemInfo Change = "system_info"
	ChangeStatus     Change = "status"
	ChangeReset      Change = "reset"
)

// Update is delivered to listeners once per applied change, in application order.
type Update struct {
	ConnectionID string
	Change       Change
	Seq          uint64
}

// Listener observes store updates. It runs synchronously on the goroutine that
// applied the change and may read the store or unsubscribe itself.
type Listener func(Update)

// Stats counts what the store did with the messages handed to it.
type Stats struct {
	Applied  uint64 `json:"applied"`
	Rejected uint64 `json:"rejected"`
	Evicted  uint64 `json:"evicted"`
}

// Snapshot is a deep copy of the store for safe, concurrent reading.
type Snapshot struct {
	ConnectionID string
	Status       models.ConnectionStatus
	Config       *models.Config
	Summary      *models.Summary
	Grid         *models.GridState
	Orders       []models.OrderEvent
	Price        *models.PriceTick
	System       *models.SystemInfo
	Stats        Stats
}

type subscription struct {
	fn     Listener
	active atomic.Bool
}

// Store is the authoritative view model of one session. Mutations are applied
// one message at a time; each is atomic from a reader's point of view.
type Store struct {
	connectionID string
	logger       *zap.Logger

	// notifyMu serializes apply+notify so listeners observe updates in
	// application order. mu guards the fields below and is never held while
	// a listener runs.
	notifyMu sync.Mutex
	mu       sync.RWMutex

	config    *models.Config
	summary   *models.Summary
	grid      *models.GridState
	orders    *history
	price     *models.PriceTick
	system    *models.SystemInfo
	status    models.ConnectionStatus
	released  bool
	seq       uint64
	stats     Stats
	listeners []*subscription
}

// New creates an empty store for the given connection.
func New(connectionID string, historyCap int, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		connectionID: connectionID,
		logger:       logger,
		orders:       newHistory(historyCap),
		status:       models.StatusDisconnected,
	}
}

// ConnectionID returns the id of the connection this store belongs to.
func (s *Store) ConnectionID() string {
	return s.connectionID
}

// Apply dispatches a normalized message to the matching apply method.
func (s *Store) Apply(msg normalizer.Message) error {
	switch m := msg.(type) {
	case normalizer.ConfigMsg:
		return s.ApplyConfig(m)
	case normalizer.SummaryMsg:
		return s.ApplySummary(m)
	case normalizer.GridStateMsg:
		return s.ApplyGridState(m)
	case normalizer.OrderEventMsg:
		return s.ApplyOrderEvent(m)
	case normalizer.PriceTickMsg:
		return s.ApplyPriceTick(m)
	case normalizer.SystemInfoMsg:
		return s.ApplySystemInfo(m)
	}
	return fmt.Errorf("%w: unsupported message %T", models.ErrSchema, msg)
}

// ApplyConfig replaces the config wholesale. A variant switch drops the summary
// and grid held for the previous variant.
func (s *Store) ApplyConfig(m normalizer.ConfigMsg) error {
	return s.mutate(func() (Change, error) {
		cfg := m.Config.Clone()
		if s.summary != nil && s.summary.Variant != cfg.Variant {
			s.summary = nil
		}
		if s.grid != nil && s.grid.Variant != "" && s.grid.Variant != cfg.Variant {
			s.grid = nil
		}
		s.config = cfg
		return ChangeConfig, nil
	})
}

// ApplySummary replaces the summary, unless its variant contradicts the config.
func (s *Store) ApplySummary(m normalizer.SummaryMsg) error {
	return s.mutate(func() (Change, error) {
		if s.config != nil && m.Summary.Variant != s.config.Variant {
			return "", fmt.Errorf("%w: summary variant %s does not match config variant %s",
				models.ErrSchema, m.Summary.Variant, s.config.Variant)
		}
		s.summary = m.Summary.Clone()
		return ChangeSummary, nil
	})
}

// ApplyGridState replaces the zone set wholesale.
func (s *Store) ApplyGridState(m normalizer.GridStateMsg) error {
	return s.mutate(func() (Change, error) {
		if s.config != nil && m.Grid.Variant != "" && m.Grid.Variant != s.config.Variant {
			return "", fmt.Errorf("%w: grid_state variant %s does not match config variant %s",
				models.ErrSchema, m.Grid.Variant, s.config.Variant)
		}
		s.grid = m.Grid.Clone()
		return ChangeGridState, nil
	})
}

// ApplyOrderEvent prepends to the bounded order history.
func (s *Store) ApplyOrderEvent(m normalizer.OrderEventMsg) error {
	return s.mutate(func() (Change, error) {
		s.orders.push(m.Order)
		s.stats.Evicted = s.orders.evicted
		return ChangeOrderEvent, nil
	})
}

// ApplyPriceTick replaces the latest price.
func (s *Store) ApplyPriceTick(m normalizer.PriceTickMsg) error {
	return s.mutate(func() (Change, error) {
		if s.price != nil && *s.price == m.Tick {
			return "", nil
		}
		tick := m.Tick
		s.price = &tick
		return ChangePriceTick, nil
	})
}

// ApplySystemInfo replaces the system info.
func (s *Store) ApplySystemInfo(m normalizer.SystemInfoMsg) error {
	return s.mutate(func() (Change, error) {
		if s.system != nil && *s.system == m.Info {
			return "", nil
		}
		info := m.Info
		s.system = &info
		return ChangeSystemInfo, nil
	})
}

// Reset clears the summary and grid carried over from a previous connection
// attempt. Config, price and order history remain as last known values.
func (s *Store) Reset() error {
	return s.mutate(func() (Change, error) {
		if s.summary == nil && s.grid == nil {
			return "", nil
		}
		s.summary = nil
		s.grid = nil
		return ChangeReset, nil
	})
}

// SetStatus records the owning session's connection status. Data fields are
// left as they are; consumers decide how to show stale values.
func (s *Store) SetStatus(status models.ConnectionStatus) error {
	return s.mutate(func() (Change, error) {
		if s.status == status {
			return "", nil
		}
		s.status = status
		return ChangeStatus, nil
	})
}

// Release detaches every listener and rejects all further mutation.
func (s *Store) Release() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.status = models.StatusDisconnected
	for _, sub := range s.listeners {
		sub.active.Store(false)
	}
	s.listeners = nil
}

// Released reports whether Release has been called.
func (s *Store) Released() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.released
}

// mutate runs fn under the write lock and notifies listeners when it reports a
// change. A returned error counts as a rejection and leaves state untouched.
func (s *Store) mutate(fn func() (Change, error)) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return models.ErrReleased
	}
	change, err := fn()
	if err != nil {
		s.stats.Rejected++
		s.mu.Unlock()
		s.logger.Sugar().Warnf("Rejected message for %s: %v", s.connectionID, err)
		return err
	}
	if change == "" {
		s.mu.Unlock()
		return nil
	}
	s.stats.Applied++
	s.seq++
	update := Update{ConnectionID: s.connectionID, Change: change, Seq: s.seq}
	subs := s.listeners
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.fn(update)
		}
	}
	return nil
}

// Subscribe registers a listener and returns its unsubscribe handle. The handle
// is idempotent and safe to call from inside any listener.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	sub := &subscription{fn: fn}
	sub.active.Store(true)

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return func() {}
	}
	// Full slice expression forces a copy so an in-flight notification keeps
	// iterating its own view of the listeners.
	s.listeners = append(s.listeners[:len(s.listeners):len(s.listeners)], sub)
	s.mu.Unlock()

	return func() {
		if !sub.active.Swap(false) {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		kept := make([]*subscription, 0, len(s.listeners))
		for _, other := range s.listeners {
			if other != sub {
				kept = append(kept, other)
			}
		}
		s.listeners = kept
	}
}

// Config returns a copy of the latest config, or nil if none was received.
func (s *Store) Config() *models.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Clone()
}

// Summary returns a copy of the latest summary.
func (s *Store) Summary() *models.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary.Clone()
}

// GridState returns a copy of the latest zone set.
func (s *Store) GridState() *models.GridState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid.Clone()
}

// OrderHistory returns the retained order events, newest first.
func (s *Store) OrderHistory() []models.OrderEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orders.newestFirst()
}

// LastPrice returns the latest price tick.
func (s *Store) LastPrice() *models.PriceTick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.price == nil {
		return nil
	}
	tick := *s.price
	return &tick
}

// SystemInfo returns the latest system info.
func (s *Store) SystemInfo() *models.SystemInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.system == nil {
		return nil
	}
	info := *s.system
	return &info
}

// Status returns the owning session's connection status.
func (s *Store) Status() models.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Stats returns the store counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Snapshot returns a deep copy of the whole view model taken under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ConnectionID: s.connectionID,
		Status:       s.status,
		Config:       s.config.Clone(),
		Summary:      s.summary.Clone(),
		Grid:         s.grid.Clone(),
		Orders:       s.orders.newestFirst(),
		Stats:        s.stats,
	}
	if s.price != nil {
		tick := *s.price
		snap.Price = &tick
	}
	if s.system != nil {
		info := *s.system
		snap.System = &info
	}
	return snap
}
