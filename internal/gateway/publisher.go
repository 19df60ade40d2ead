package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/studysync/coordination-platform/internal/wire"
	"github.com/studysync/coordination-platform/pkg/metrics"
)

// Publisher pushes wire messages onto gateway group channels.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher over an established gateway connection.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends a wire message to every connection joined to the group.
func (p *Publisher) Publish(group string, msg wire.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal wire message: %w", err)
	}

	if err := p.client.Conn().Publish(group, data); err != nil {
		return fmt.Errorf("failed to publish to group %s: %w", group, err)
	}

	metrics.GatewayPublishes.WithLabelValues(msg.Type).Inc()
	return nil
}
