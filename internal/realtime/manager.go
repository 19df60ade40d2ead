// Package realtime maintains the client's durable multiplexed session to
// the real-time gateway: one connection per principal, group membership
// bookkeeping, and a single reconnect state machine so retry policy
// lives in exactly one place.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/studysync/coordination-platform/internal/wire"
	"github.com/studysync/coordination-platform/pkg/logger"
	"github.com/studysync/coordination-platform/pkg/metrics"
)

// Connection errors surfaced to callers.
var (
	// ErrNotConnected is returned by Send while the session is down.
	// Outbound payloads are never queued across a disconnect.
	ErrNotConnected = errors.New("not connected to gateway")

	// ErrAttemptsExhausted is surfaced through the state listener after
	// the attempt ceiling is hit.
	ErrAttemptsExhausted = errors.New("connection attempts exhausted")
)

// State is the connection manager's lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateNegotiating  State = "negotiating"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// StateListener observes connection state transitions. err is non-nil
// only for terminal failures (attempt ceiling reached, context
// cancelled).
type StateListener func(state State, err error)

// ManagerConfig holds reconnect policy.
type ManagerConfig struct {
	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxAttempts int
}

func (c *ManagerConfig) withDefaults() {
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 16 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
}

// Manager owns the single gateway session for one principal. It is the
// sole writer of connection state; all mutations are serialized behind
// one mutex, so a transport loss cannot race an in-flight join.
type Manager struct {
	cfg        ManagerConfig
	negotiator Negotiator
	dialer     Dialer
	logger     *logger.Logger

	mu           sync.Mutex
	state        State
	gen          uint64 // bumped on every ownership change; stale callbacks check it
	transport    Transport
	memberships  *MembershipRegistry
	listeners    map[uint64]StateListener
	nextListener uint64
	onMessage    func(wire.Message)
}

// NewManager creates a connection manager in the disconnected state.
func NewManager(negotiator Negotiator, dialer Dialer, cfg ManagerConfig, log *logger.Logger) *Manager {
	cfg.withDefaults()
	return &Manager{
		cfg:         cfg,
		negotiator:  negotiator,
		dialer:      dialer,
		logger:      log,
		state:       StateDisconnected,
		memberships: NewMembershipRegistry(),
		listeners:   make(map[uint64]StateListener),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Groups returns the remembered group memberships.
func (m *Manager) Groups() []string {
	return m.memberships.Names()
}

// OnStateChange registers a connection-event listener and returns its
// unregister function.
func (m *Manager) OnStateChange(l StateListener) func() {
	m.mu.Lock()
	m.nextListener++
	id := m.nextListener
	m.listeners[id] = l
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// OnMessage sets the consumer for inbound wire messages. Typically the
// refresh dispatcher's OnWireMessage.
func (m *Manager) OnMessage(fn func(wire.Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = fn
}

// Start begins establishing the session. Idempotent: calling it while
// already negotiating, connecting, or connected is a no-op, so multiple
// UI components may request a connection independently. Establishment
// runs in the background; observe progress through OnStateChange.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	notify := m.setStateLocked(StateNegotiating, nil)
	m.mu.Unlock()
	notify()

	go m.connect(ctx, gen, false)
}

// Stop tears down the session, clears remembered memberships, and leaves
// the manager deterministically disconnected. Safe to call from any
// state, including mid-negotiation.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.gen++ // abandon any in-flight connect loop
	old := m.transport
	m.transport = nil
	m.memberships.Clear()
	notify := m.setStateLocked(StateDisconnected, nil)
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	notify()
}

// JoinGroup requests membership in a group. While the session is down
// the membership is remembered and replayed once connected, never
// dropped. Two callers joining the same group share one underlying join.
func (m *Manager) JoinGroup(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	added := m.memberships.Add(name)
	if !added || m.state != StateConnected || m.transport == nil {
		return nil
	}
	return m.transport.Join(name, m.handleInbound)
}

// LeaveGroup withdraws membership in a group.
func (m *Manager) LeaveGroup(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.memberships.Remove(name)
	if !removed || m.state != StateConnected || m.transport == nil {
		return nil
	}
	return m.transport.Leave(name)
}

// Send publishes a payload to a group. Fails with ErrNotConnected unless
// the session is fully connected; losing an outbound chat message is
// user-visible, so the error is never swallowed here.
func (m *Manager) Send(group string, msg wire.Message) error {
	m.mu.Lock()
	if m.state != StateConnected || m.transport == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	tr := m.transport
	m.mu.Unlock()

	return tr.Send(group, msg)
}

// connect negotiates a fresh grant and opens a transport, retrying with
// capped exponential backoff up to the attempt ceiling. Exactly one
// connect loop runs per generation.
func (m *Manager) connect(ctx context.Context, gen uint64, reconnecting bool) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.BackoffBase
	bo.MaxInterval = m.cfg.BackoffCap
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		if m.staleGen(gen) {
			return
		}
		metrics.ReconnectAttempts.Inc()

		if m.attempt(ctx, gen, reconnecting, attempt) {
			return
		}

		wait := bo.NextBackOff()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			m.settleDisconnected(gen, ctx.Err())
			return
		}
	}

	m.logger.Warn("giving up on gateway connection",
		zap.Int("attempts", m.cfg.MaxAttempts),
	)
	m.settleDisconnected(gen, ErrAttemptsExhausted)
}

// attempt performs one negotiate+dial cycle. Returns true when the loop
// should stop, either because the session is up or the generation went
// stale.
func (m *Manager) attempt(ctx context.Context, gen uint64, reconnecting bool, attempt int) bool {
	grant, err := m.negotiator.Negotiate(ctx)
	if err != nil {
		m.logger.Warn("negotiation failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return false
	}

	if !reconnecting && !m.advance(gen, StateConnecting) {
		return true
	}

	tr, err := m.dialer.Dial(ctx, grant, func(cause error) {
		m.transportLost(gen, cause)
	})
	if err != nil {
		m.logger.Warn("transport open failed",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if !reconnecting {
			// Back to negotiating; the next attempt needs a fresh grant.
			if !m.advance(gen, StateNegotiating) {
				return true
			}
		}
		return false
	}

	if !m.finishConnect(gen, tr) {
		// Stop raced the dial; the new transport is ours to discard.
		tr.Close()
		return true
	}
	return true
}

// finishConnect installs the transport and re-asserts every remembered
// membership before signaling connected, so no message class is missed
// due to a membership gap.
func (m *Manager) finishConnect(gen uint64, tr Transport) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}

	m.transport = tr
	for _, name := range m.memberships.Names() {
		if err := tr.Join(name, m.handleInbound); err != nil {
			m.logger.Warn("failed to rejoin group",
				zap.String("group", name),
				zap.Error(err),
			)
		}
	}

	notify := m.setStateLocked(StateConnected, nil)
	m.mu.Unlock()
	notify()
	return true
}

// transportLost reacts to an unexpected session drop. Memberships are
// preserved; a new connect loop takes over under a fresh generation.
func (m *Manager) transportLost(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}

	m.gen++
	newGen := m.gen
	old := m.transport
	m.transport = nil
	notify := m.setStateLocked(StateReconnecting, nil)
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	m.logger.Warn("gateway session lost", zap.Error(cause))
	notify()

	go m.connect(context.Background(), newGen, true)
}

func (m *Manager) handleInbound(msg wire.Message) {
	m.mu.Lock()
	fn := m.onMessage
	m.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// advance moves to a non-terminal state if the generation is still
// current. Returns false when the loop should abandon.
func (m *Manager) advance(gen uint64, s State) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	notify := m.setStateLocked(s, nil)
	m.mu.Unlock()
	notify()
	return true
}

func (m *Manager) settleDisconnected(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	notify := m.setStateLocked(StateDisconnected, err)
	m.mu.Unlock()
	notify()
}

// setStateLocked updates the state and returns the listener notification
// to run after the mutex is released. Listeners may call back into the
// manager.
func (m *Manager) setStateLocked(s State, err error) func() {
	if m.state == s && err == nil {
		return func() {}
	}
	m.state = s

	listeners := make([]StateListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	return func() {
		for _, l := range listeners {
			l(s, err)
		}
	}
}

func (m *Manager) staleGen(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen != m.gen
}
