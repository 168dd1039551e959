package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NatsPublisher publishes order events to a NATS server.
type NatsPublisher struct {
	conn *nats.Conn
}

// Compile-time check that NatsPublisher implements Publisher.
var _ Publisher = (*NatsPublisher)(nil)

// NewNatsPublisher connects to the NATS server at url.
func NewNatsPublisher(url string) (*NatsPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("vanir-orders"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &NatsPublisher{conn: conn}, nil
}

// Publish marshals the event and publishes it on subject.
func (p *NatsPublisher) Publish(ctx context.Context, subject string, event OrderEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NatsPublisher) Close() error {
	if err := p.conn.Flush(); err != nil {
		return err
	}
	p.conn.Close()
	return nil
}
