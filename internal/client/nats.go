package client

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSClient wraps a NATS connection with a JetStream publishing context.
type NATSClient struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// ConnectNATS connects to the NATS server at url and initializes JetStream.
func ConnectNATS(url, name string) (*NATSClient, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &NATSClient{conn: conn, js: js}, nil
}

// Publish publishes data to a JetStream subject and waits for the ack.
func (c *NATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(ctx, subject, data)
	return err
}

// Close drains the connection, flushing buffered messages before closing.
func (c *NATSClient) Close() {
	if c.conn != nil {
		_ = c.conn.Drain()
	}
}
