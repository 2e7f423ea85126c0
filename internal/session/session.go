// Package session maintains one WebSocket connection to one bot endpoint and
// feeds every decoded message into the store it owns.
//
// A session reconnects on its own with exponential backoff until Close is
// called. Frames from the socket, status transitions, and resets all pass
// through a single dispatch goroutine, so the store sees them in arrival order.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"grid-bot-dashboard/internal/models"
	"grid-bot-dashboard/internal/normalizer"
	"grid-bot-dashboard/internal/store"
	"grid-bot-dashboard/internal/transport"

	"go.uber.org/zap"
)

// DefaultFrameBuffer is the number of frames queued between the socket reader
// and the dispatcher before reads are held back.
const DefaultFrameBuffer = 1024

// Options configures a session. Zero values select the defaults.
type Options struct {
	Dialer      transport.Dialer
	Policy      Policy
	Clock       Clock
	Rand        func() float64
	HistoryCap  int
	FrameBuffer int
	Logger      *zap.Logger
}

// Stats counts what the session did with the frames it read.
type Stats struct {
	Attempts     uint64 `json:"attempts"`
	Connects     uint64 `json:"connects"`
	Frames       uint64 `json:"frames"`
	Dropped      uint64 `json:"dropped"`
	Unrecognized uint64 `json:"unrecognized"`
	Invalid      uint64 `json:"invalid"`
}

type eventKind int

const (
	eventFrame eventKind = iota
	eventStatus
	eventReset
)

type event struct {
	kind   eventKind
	frame  []byte
	at     time.Time
	status models.ConnectionStatus
}

// Session is one physical connection, with reconnects, to one endpoint.
type Session struct {
	conn    models.BotConnection
	dialer  transport.Dialer
	clock   Clock
	backoff *reconnectBackoff
	store   *store.Store
	events  chan event
	logger  *zap.SugaredLogger

	mu      sync.Mutex
	opened  bool
	closed  bool
	cancel  context.CancelFunc
	current transport.Conn
	wg      sync.WaitGroup

	attempts     atomic.Uint64
	connects     atomic.Uint64
	frames       atomic.Uint64
	dropped      atomic.Uint64
	unrecognized atomic.Uint64
	invalid      atomic.Uint64
}

// New creates a session for conn. Nothing happens until Open.
func New(conn models.BotConnection, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("connection", conn.ID))
	if opts.Dialer == nil {
		opts.Dialer = transport.NewWebSocketDialer(transport.DefaultOptions(), logger)
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.FrameBuffer <= 0 {
		opts.FrameBuffer = DefaultFrameBuffer
	}
	return &Session{
		conn:    conn,
		dialer:  opts.Dialer,
		clock:   opts.Clock,
		backoff: newReconnectBackoff(opts.Policy, opts.Rand),
		store:   store.New(conn.ID, opts.HistoryCap, logger),
		events:  make(chan event, opts.FrameBuffer),
		logger:  logger.Sugar(),
	}
}

// Connection returns the endpoint this session is bound to.
func (s *Session) Connection() models.BotConnection { return s.conn }

// Store returns the store this session populates. It is released on Close.
func (s *Session) Store() *store.Store { return s.store }

// Status returns the current connection status.
func (s *Session) Status() models.ConnectionStatus { return s.store.Status() }

// Stats returns the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		Attempts:     s.attempts.Load(),
		Connects:     s.connects.Load(),
		Frames:       s.frames.Load(),
		Dropped:      s.dropped.Load(),
		Unrecognized: s.unrecognized.Load(),
		Invalid:      s.invalid.Load(),
	}
}

// Open starts connecting in the background. Calling it again is a no-op;
// calling it after Close returns models.ErrSessionClosed.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.ErrSessionClosed
	}
	if s.opened {
		return nil
	}
	s.opened = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(2)
	go s.run(ctx)
	go s.dispatch(ctx)
	return nil
}

// Close stops the session. Once it returns no reconnect is pending, no
// goroutine of the session is running, and the store is released.
//
// Close must not be called from a store listener of this session.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	cur := s.current
	s.current = nil
	s.mu.Unlock()

	if cur != nil {
		_ = cur.Close()
	}
	s.wg.Wait()
	s.store.Release()
	s.logger.Infof("Session to %s closed", s.conn.Address)
	return nil
}

// run is the connection state machine:
// connecting -> connected -> disconnected -> (wait) -> connecting ...
func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()

	for ctx.Err() == nil {
		s.emit(ctx, event{kind: eventStatus, status: models.StatusConnecting})
		s.attempts.Add(1)

		conn, err := s.dialer.Dial(ctx, s.conn.Address)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.emit(ctx, event{kind: eventStatus, status: models.StatusDisconnected})
			delay := s.backoff.Next()
			s.logger.Warnf("Connect to %s failed (attempt %d): %v. Retrying in %s",
				s.conn.Address, s.backoff.Attempt(), err, delay)
			if !s.wait(ctx, delay) {
				return
			}
			continue
		}
		if !s.attach(conn) {
			_ = conn.Close()
			return
		}

		s.backoff.Reset()
		s.connects.Add(1)
		s.logger.Infof("Connected to %s", s.conn.Address)
		s.emit(ctx, event{kind: eventReset})
		s.emit(ctx, event{kind: eventStatus, status: models.StatusConnected})

		err = s.read(ctx, conn)
		s.detach(conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}

		s.emit(ctx, event{kind: eventStatus, status: models.StatusDisconnected})
		delay := s.backoff.Next()
		s.logger.Warnf("Connection to %s lost: %v. Reconnecting in %s", s.conn.Address, err, delay)
		if !s.wait(ctx, delay) {
			return
		}
	}
}

// read pumps frames into the dispatch queue until the connection fails.
func (s *Session) read(ctx context.Context, conn transport.Conn) error {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return err
		}
		s.frames.Add(1)
		if !s.emit(ctx, event{kind: eventFrame, frame: frame, at: s.clock.Now()}) {
			return ctx.Err()
		}
	}
}

// wait blocks for d or until ctx is cancelled. It reports whether d elapsed.
func (s *Session) wait(ctx context.Context, d time.Duration) bool {
	t := s.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C():
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) emit(ctx context.Context, ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// attach records conn as current so Close can interrupt a blocked read. It
// fails if the session was closed while dialing.
func (s *Session) attach(conn transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.current = conn
	return true
}

func (s *Session) detach(conn transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == conn {
		s.current = nil
	}
}

// dispatch applies queued events to the store one at a time.
func (s *Session) dispatch(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			if ctx.Err() != nil {
				return
			}
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev event) {
	switch ev.kind {
	case eventStatus:
		_ = s.store.SetStatus(ev.status)
	case eventReset:
		_ = s.store.Reset()
	case eventFrame:
		msg, err := normalizer.Normalize(ev.frame, ev.at)
		switch {
		case errors.Is(err, models.ErrDecode):
			s.dropped.Add(1)
			s.logger.Warnf("Dropped malformed frame: %v", err)
			return
		case errors.Is(err, models.ErrUnknownMessage):
			s.unrecognized.Add(1)
			s.logger.Debugf("Ignored frame: %v", err)
			return
		case err != nil:
			s.invalid.Add(1)
			s.logger.Warnf("Rejected frame: %v", err)
			return
		}
		_ = s.store.Apply(msg)
	}
}
