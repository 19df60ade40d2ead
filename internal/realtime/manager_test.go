package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studysync/coordination-platform/internal/wire"
	"github.com/studysync/coordination-platform/pkg/logger"
)

type fakeNegotiator struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{} // when set, Negotiate waits on it before returning
}

func (n *fakeNegotiator) Negotiate(context.Context) (Grant, error) {
	n.mu.Lock()
	n.calls++
	block := n.block
	err := n.err
	n.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return Grant{}, err
	}
	return Grant{
		URL:         "nats://gateway.test:4222",
		AccessToken: "grant-token",
		ExpiresAt:   time.Now().Add(15 * time.Minute),
	}, nil
}

func (n *fakeNegotiator) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type sentMessage struct {
	group string
	msg   wire.Message
}

type fakeTransport struct {
	mu     sync.Mutex
	joins  []string
	leaves []string
	sends  []sentMessage
	closed bool
	onLost func(error)
}

func (t *fakeTransport) Join(group string, _ func(wire.Message)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.joins = append(t.joins, group)
	return nil
}

func (t *fakeTransport) Leave(group string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaves = append(t.leaves, group)
	return nil
}

func (t *fakeTransport) Send(group string, msg wire.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sends = append(t.sends, sentMessage{group: group, msg: msg})
	return nil
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func (t *fakeTransport) joinedGroups() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.joins...)
}

func (t *fakeTransport) sentMessages() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentMessage(nil), t.sends...)
}

// lose simulates an unexpected transport drop.
func (t *fakeTransport) lose(err error) {
	t.onLost(err)
}

type fakeDialer struct {
	mu         sync.Mutex
	dials      int
	failAlways bool
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(_ context.Context, _ Grant, onLost func(error)) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failAlways {
		return nil, errors.New("transport refused")
	}
	tr := &fakeTransport{onLost: onLost}
	d.transports = append(d.transports, tr)
	return tr, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[i]
}

type transition struct {
	state State
	err   error
}

func newTestManager(neg Negotiator, dialer Dialer) (*Manager, chan transition) {
	m := NewManager(neg, dialer, ManagerConfig{
		BackoffBase: time.Millisecond,
		BackoffCap:  4 * time.Millisecond,
		MaxAttempts: 3,
	}, logger.NewNop())

	transitions := make(chan transition, 32)
	m.OnStateChange(func(s State, err error) {
		transitions <- transition{state: s, err: err}
	})
	return m, transitions
}

func waitFor(t *testing.T, transitions chan transition, want State) transition {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case tr := <-transitions:
			if tr.state == want {
				return tr
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %q", want)
		}
	}
}

func TestManager_Start_Connects(t *testing.T) {
	req := require.New(t)
	neg := &fakeNegotiator{}
	dialer := &fakeDialer{}
	m, transitions := newTestManager(neg, dialer)

	m.Start(context.Background())

	waitFor(t, transitions, StateConnected)
	req.Equal(StateConnected, m.State())
	req.Equal(1, neg.callCount())
	req.Equal(1, dialer.dialCount())
}

func TestManager_Start_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	neg := &fakeNegotiator{block: make(chan struct{})}
	dialer := &fakeDialer{}
	m, transitions := newTestManager(neg, dialer)

	m.Start(context.Background())
	waitFor(t, transitions, StateNegotiating)

	// A second start while negotiation is in flight must not open a
	// second session.
	m.Start(context.Background())
	close(neg.block)

	waitFor(t, transitions, StateConnected)
	req.Equal(1, neg.callCount())
	req.Equal(1, dialer.dialCount())
}

func TestManager_Send_While_Disconnected_Fails(t *testing.T) {
	req := require.New(t)
	m, _ := newTestManager(&fakeNegotiator{}, &fakeDialer{})

	err := m.Send("user-u1", wire.Message{Type: wire.TypeChatMessage})
	req.ErrorIs(err, ErrNotConnected)
}

func TestManager_Send_While_Reconnecting_Fails_And_Writes_Nothing(t *testing.T) {
	req := require.New(t)
	neg := &fakeNegotiator{}
	dialer := &fakeDialer{}
	m, transitions := newTestManager(neg, dialer)

	m.Start(context.Background())
	waitFor(t, transitions, StateConnected)

	// Hold the replacement negotiation so the manager stays reconnecting.
	neg.mu.Lock()
	neg.block = make(chan struct{})
	neg.mu.Unlock()

	dialer.transport(0).lose(errors.New("socket dropped"))
	waitFor(t, transitions, StateReconnecting)

	err := m.Send("user-u1", wire.Message{Type: wire.TypeChatMessage})
	req.ErrorIs(err, ErrNotConnected)
	req.Empty(dialer.transport(0).sentMessages())

	neg.mu.Lock()
	close(neg.block)
	neg.block = nil
	neg.mu.Unlock()
	waitFor(t, transitions, StateConnected)
}

func TestManager_Join_Before_Start_Is_Replayed_On_Connect(t *testing.T) {
	req := require.New(t)
	neg := &fakeNegotiator{}
	dialer := &fakeDialer{}
	m, transitions := newTestManager(neg, dialer)

	req.NoError(m.JoinGroup("user-u1"))
	req.NoError(m.JoinGroup("conv-42"))

	m.Start(context.Background())
	waitFor(t, transitions, StateConnected)

	req.Equal([]string{"user-u1", "conv-42"}, dialer.transport(0).joinedGroups())
}

func TestManager_Memberships_Are_Rejoined_Before_Connected_Signal(t *testing.T) {
	req := require.New(t)
	neg := &fakeNegotiator{}
	dialer := &fakeDialer{}
	m, transitions := newTestManager(neg, dialer)

	// Capture what the active transport had joined at the instant each
	// connected signal fired.
	joinsAtConnected := make(chan []string, 4)
	m.OnStateChange(func(s State, _ error) {
		if s == StateConnected {
			dialer.mu.Lock()
			tr := dialer.transports[len(dialer.transports)-1]
			dialer.mu.Unlock()
			joinsAtConnected <- tr.joinedGroups()
		}
	})

	m.Start(context.Background())
	waitFor(t, transitions, StateConnected)
	req.NoError(m.JoinGroup("conv-42"))
	<-joinsAtConnected

	dialer.transport(0).lose(errors.New("socket dropped"))
	waitFor(t, transitions, StateReconnecting)
	waitFor(t, transitions, StateConnected)

	req.Equal([]string{"conv-42"}, <-joinsAtConnected)
	req.Equal(2, neg.callCount(), "reconnect must request a fresh grant")
}

func TestManager_Join_While_Reconnecting_Is_Queued(t *testing.T) {
	req := require.New(t)
	neg := &fakeNegotiator{}
	dialer := &fakeDialer{}
	m, transitions := newTestManager(neg, dialer)

	m.Start(context.Background())
	waitFor(t, transitions, StateConnected)

	neg.mu.Lock()
	neg.block = make(chan struct{})
	neg.mu.Unlock()

	dialer.transport(0).lose(errors.New("socket dropped"))
	waitFor(t, transitions, StateReconnecting)

	req.NoError(m.JoinGroup("partner_7_42"))

	neg.mu.Lock()
	close(neg.block)
	neg.block = nil
	neg.mu.Unlock()

	waitFor(t, transitions, StateConnected)
	req.Contains(dialer.transport(1).joinedGroups(), "partner_7_42")
}

func TestManager_Bounded_Reconnect_Attempts(t *testing.T) {
	req := require.New(t)
	neg := &fakeNegotiator{err: errors.New("issuer unreachable")}
	dialer := &fakeDialer{}
	m, transitions := newTestManager(neg, dialer)

	m.Start(context.Background())

	tr := waitFor(t, transitions, StateDisconnected)
	req.ErrorIs(tr.err, ErrAttemptsExhausted)
	req.Equal(3, neg.callCount(), "exactly MaxAttempts negotiations")
	req.Equal(0, dialer.dialCount())
}

func TestManager_Bounded_Attempts_On_Transport_Failure(t *testing.T) {
	req := require.New(t)
	neg := &fakeNegotiator{}
	dialer := &fakeDialer{failAlways: true}
	m, transitions := newTestManager(neg, dialer)

	m.Start(context.Background())

	tr := waitFor(t, transitions, StateDisconnected)
	req.ErrorIs(tr.err, ErrAttemptsExhausted)
	req.Equal(3, dialer.dialCount())
}

func TestManager_Stop_Clears_Memberships(t *testing.T) {
	req := require.New(t)
	neg := &fakeNegotiator{}
	dialer := &fakeDialer{}
	m, transitions := newTestManager(neg, dialer)

	m.Start(context.Background())
	waitFor(t, transitions, StateConnected)
	req.NoError(m.JoinGroup("conv-42"))

	m.Stop()
	req.Equal(StateDisconnected, m.State())
	req.Empty(m.Groups())

	// A fresh start must not replay pre-stop memberships.
	m.Start(context.Background())
	waitFor(t, transitions, StateConnected)
	req.Empty(dialer.transport(1).joinedGroups())
}

func TestManager_Stop_During_Negotiation_Is_Safe(t *testing.T) {
	req := require.New(t)
	neg := &fakeNegotiator{block: make(chan struct{})}
	dialer := &fakeDialer{}
	m, transitions := newTestManager(neg, dialer)

	m.Start(context.Background())
	waitFor(t, transitions, StateNegotiating)

	m.Stop()
	waitFor(t, transitions, StateDisconnected)
	close(neg.block)

	// The abandoned negotiation must not open a session.
	time.Sleep(50 * time.Millisecond)
	req.Equal(StateDisconnected, m.State())
	req.Equal(0, dialer.dialCount())
}

func TestManager_Shared_Join_Is_A_Set(t *testing.T) {
	req := require.New(t)
	neg := &fakeNegotiator{}
	dialer := &fakeDialer{}
	m, transitions := newTestManager(neg, dialer)

	m.Start(context.Background())
	waitFor(t, transitions, StateConnected)

	// Two UI components both wanting the per-user channel share one join.
	req.NoError(m.JoinGroup("user-u1"))
	req.NoError(m.JoinGroup("user-u1"))

	req.Equal([]string{"user-u1"}, dialer.transport(0).joinedGroups())
}

func TestManager_Send_When_Connected_Writes_To_Transport(t *testing.T) {
	req := require.New(t)
	neg := &fakeNegotiator{}
	dialer := &fakeDialer{}
	m, transitions := newTestManager(neg, dialer)

	m.Start(context.Background())
	waitFor(t, transitions, StateConnected)

	msg := wire.Message{Type: wire.TypeChatMessage, Payload: map[string]any{"content": "hi"}}
	req.NoError(m.Send("conv-42", msg))

	sends := dialer.transport(0).sentMessages()
	req.Len(sends, 1)
	req.Equal("conv-42", sends[0].group)
	req.Equal(wire.TypeChatMessage, sends[0].msg.Type)
}
