// Package switchboard binds at most one live session to "the active bot" and
// exposes its store to rendering code.
package switchboard

import (
	"fmt"
	"sync"
	"sync/atomic"

	"grid-bot-dashboard/internal/models"
	"grid-bot-dashboard/internal/registry"
	"grid-bot-dashboard/internal/session"
	"grid-bot-dashboard/internal/store"

	"go.uber.org/zap"
)

// Directory is the part of the connection registry the switchboard needs.
type Directory interface {
	List() []models.BotConnection
	Get(id string) (models.BotConnection, bool)
	Observe(fn registry.Observer) (cancel func())
}

// EventKind tells listeners what an Event carries.
type EventKind string

const (
	Activated   EventKind = "activated"
	Deactivated EventKind = "deactivated"
	StoreChange EventKind = "store"
)

// Event is delivered to switchboard listeners. Change is set for StoreChange.
type Event struct {
	Kind         EventKind
	ConnectionID string
	Change       store.Update
}

// Listener observes the active bot. It must not call Activate, Deactivate or
// Close.
type Listener func(Event)

type subscription struct {
	fn     Listener
	active atomic.Bool
}

// Switchboard owns the single active session.
type Switchboard struct {
	dir    Directory
	opts   session.Options
	logger *zap.Logger

	// mu serializes Activate, Deactivate and Close.
	mu            sync.Mutex
	stateMu       sync.RWMutex
	active        *session.Session
	unsubStore    func()
	listeners     []*subscription
	stopObserving func()
	closed        bool
}

// New creates a switchboard over dir. Sessions it opens are built with opts.
// Removing the active connection from dir deactivates it.
func New(dir Directory, opts session.Options, logger *zap.Logger) *Switchboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	sb := &Switchboard{dir: dir, opts: opts, logger: logger}
	sb.stopObserving = dir.Observe(sb.onRegistryChange)
	return sb
}

// Connections lists the saved endpoints.
func (sb *Switchboard) Connections() []models.BotConnection {
	return sb.dir.List()
}

// Activate makes id the active bot. The previous session, if any, is fully
// closed before the new one is opened. Activating the already active id is a
// no-op.
func (sb *Switchboard) Activate(id string) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.closed {
		return models.ErrSessionClosed
	}

	if cur := sb.current(); cur != nil && cur.Connection().ID == id {
		return nil
	}
	conn, ok := sb.dir.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}

	sb.teardownLocked()

	sess := session.New(conn, sb.opts)
	unsub := sess.Store().Subscribe(func(u store.Update) {
		if sb.current() != sess {
			return
		}
		sb.emit(Event{Kind: StoreChange, ConnectionID: u.ConnectionID, Change: u})
	})

	sb.stateMu.Lock()
	sb.active = sess
	sb.unsubStore = unsub
	sb.stateMu.Unlock()

	sb.logger.Sugar().Infof("Activated connection %s (%s)", conn.Name, conn.Address)
	sb.emit(Event{Kind: Activated, ConnectionID: id})
	return sess.Open()
}

// Deactivate closes the active session, if any.
func (sb *Switchboard) Deactivate() error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.teardownLocked()
	return nil
}

// Close deactivates and stops following the registry.
func (sb *Switchboard) Close() error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.closed {
		return nil
	}
	sb.closed = true
	sb.stopObserving()
	sb.teardownLocked()
	return nil
}

func (sb *Switchboard) teardownLocked() {
	sb.stateMu.Lock()
	prev, unsub := sb.active, sb.unsubStore
	sb.active, sb.unsubStore = nil, nil
	sb.stateMu.Unlock()
	if prev == nil {
		return
	}

	unsub()
	_ = prev.Close()
	sb.logger.Sugar().Infof("Deactivated connection %s", prev.Connection().ID)
	sb.emit(Event{Kind: Deactivated, ConnectionID: prev.Connection().ID})
}

func (sb *Switchboard) onRegistryChange(c registry.Change) {
	if c.Kind != registry.Removed || sb.ActiveID() != c.Connection.ID {
		return
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()
	// Re-check under mu: another Activate may have won the race.
	if cur := sb.current(); cur != nil && cur.Connection().ID == c.Connection.ID {
		sb.teardownLocked()
	}
}

func (sb *Switchboard) current() *session.Session {
	sb.stateMu.RLock()
	defer sb.stateMu.RUnlock()
	return sb.active
}

// ActiveID returns the id of the active connection, or "" if none.
func (sb *Switchboard) ActiveID() string {
	if cur := sb.current(); cur != nil {
		return cur.Connection().ID
	}
	return ""
}

// ActiveStore returns the active session's store, or nil when no bot is active.
func (sb *Switchboard) ActiveStore() *store.Store {
	if cur := sb.current(); cur != nil {
		return cur.Store()
	}
	return nil
}

// SessionStats returns the active session's counters.
func (sb *Switchboard) SessionStats() (session.Stats, bool) {
	if cur := sb.current(); cur != nil {
		return cur.Stats(), true
	}
	return session.Stats{}, false
}

// Snapshot copies the active store. ok is false when no bot is active.
func (sb *Switchboard) Snapshot() (snap store.Snapshot, ok bool) {
	st := sb.ActiveStore()
	if st == nil {
		return store.Snapshot{Status: models.StatusDisconnected}, false
	}
	return st.Snapshot(), true
}

// Status is the active session's status; disconnected when none is active.
func (sb *Switchboard) Status() models.ConnectionStatus {
	if st := sb.ActiveStore(); st != nil {
		return st.Status()
	}
	return models.StatusDisconnected
}

func (sb *Switchboard) Config() *models.Config {
	if st := sb.ActiveStore(); st != nil {
		return st.Config()
	}
	return nil
}

func (sb *Switchboard) Summary() *models.Summary {
	if st := sb.ActiveStore(); st != nil {
		return st.Summary()
	}
	return nil
}

func (sb *Switchboard) GridState() *models.GridState {
	if st := sb.ActiveStore(); st != nil {
		return st.GridState()
	}
	return nil
}

func (sb *Switchboard) OrderHistory() []models.OrderEvent {
	if st := sb.ActiveStore(); st != nil {
		return st.OrderHistory()
	}
	return nil
}

func (sb *Switchboard) LastPrice() *models.PriceTick {
	if st := sb.ActiveStore(); st != nil {
		return st.LastPrice()
	}
	return nil
}

func (sb *Switchboard) SystemInfo() *models.SystemInfo {
	if st := sb.ActiveStore(); st != nil {
		return st.SystemInfo()
	}
	return nil
}

// Subscribe registers fn for activation changes and for every change of
// whichever store is active. The returned cancel is idempotent.
func (sb *Switchboard) Subscribe(fn Listener) (cancel func()) {
	sub := &subscription{fn: fn}
	sub.active.Store(true)

	sb.stateMu.Lock()
	sb.listeners = append(sb.listeners[:len(sb.listeners):len(sb.listeners)], sub)
	sb.stateMu.Unlock()

	return func() {
		if !sub.active.Swap(false) {
			return
		}
		sb.stateMu.Lock()
		defer sb.stateMu.Unlock()
		kept := make([]*subscription, 0, len(sb.listeners))
		for _, other := range sb.listeners {
			if other != sub {
				kept = append(kept, other)
			}
		}
		sb.listeners = kept
	}
}

func (sb *Switchboard) emit(ev Event) {
	sb.stateMu.RLock()
	subs := sb.listeners
	sb.stateMu.RUnlock()
	for _, sub := range subs {
		if sub.active.Load() {
			sub.fn(ev)
		}
	}
}
