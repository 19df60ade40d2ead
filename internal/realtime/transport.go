package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/studysync/coordination-platform/internal/wire"
	"github.com/studysync/coordination-platform/pkg/logger"
)

// Transport is one multiplexed session to the real-time gateway. The
// connection manager is its sole owner.
type Transport interface {
	Join(group string, handler func(wire.Message)) error
	Leave(group string) error
	Send(group string, msg wire.Message) error
	Close()
}

// Dialer opens a transport session using a negotiation grant. onLost is
// called at most once when the session drops for any reason other than
// an explicit Close.
type Dialer interface {
	Dial(ctx context.Context, grant Grant, onLost func(error)) (Transport, error)
}

// NATSDialer opens sessions against a NATS gateway. Reconnection is
// deliberately disabled on the underlying connection; the connection
// manager owns all retry policy.
type NATSDialer struct {
	logger *logger.Logger
}

// NewNATSDialer creates a dialer.
func NewNATSDialer(log *logger.Logger) *NATSDialer {
	return &NATSDialer{logger: log}
}

// Dial opens a session using the grant's endpoint and access token.
func (d *NATSDialer) Dial(ctx context.Context, grant Grant, onLost func(error)) (Transport, error) {
	var once sync.Once
	opts := []nats.Option{
		nats.Token(grant.AccessToken),
		nats.NoReconnect(),
		nats.ClosedHandler(func(nc *nats.Conn) {
			once.Do(func() { onLost(nc.LastError()) })
		}),
	}

	nc, err := nats.Connect(grant.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open gateway session: %w", err)
	}

	return &natsTransport{
		conn:   nc,
		subs:   make(map[string]*nats.Subscription),
		logger: d.logger,
	}, nil
}

type natsTransport struct {
	conn   *nats.Conn
	mu     sync.Mutex
	subs   map[string]*nats.Subscription
	logger *logger.Logger
}

func (t *natsTransport) Join(group string, handler func(wire.Message)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, joined := t.subs[group]; joined {
		return nil
	}

	sub, err := t.conn.Subscribe(group, func(m *nats.Msg) {
		var msg wire.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			t.logger.Warn("dropping malformed wire message",
				zap.String("group", group),
				zap.Error(err),
			)
			return
		}
		handler(msg)
	})
	if err != nil {
		return fmt.Errorf("failed to join group %s: %w", group, err)
	}

	t.subs[group] = sub
	return nil
}

func (t *natsTransport) Leave(group string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, joined := t.subs[group]
	if !joined {
		return nil
	}
	delete(t.subs, group)

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to leave group %s: %w", group, err)
	}
	return nil
}

func (t *natsTransport) Send(group string, msg wire.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal wire message: %w", err)
	}
	if err := t.conn.Publish(group, data); err != nil {
		return fmt.Errorf("failed to send to group %s: %w", group, err)
	}
	return nil
}

func (t *natsTransport) Close() {
	t.conn.Close()
}
