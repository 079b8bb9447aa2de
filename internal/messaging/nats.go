package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/stocksync/pkg/config"
	"github.com/stocksync/pkg/models"
)

// NATSClient publishes sync lifecycle events so downstream consumers
// (dashboards, alerting) can follow runs without polling the database.
type NATSClient struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logrus.Entry
	cfg    *config.NATSConfig
}

// SessionEventMessage is the wire shape for session lifecycle events.
type SessionEventMessage struct {
	Event     string              `json:"event"`
	Session   *models.SyncSession `json:"session"`
	Timestamp time.Time           `json:"timestamp"`
}

// SymbolEventMessage is the wire shape for per-symbol events.
type SymbolEventMessage struct {
	Event     string           `json:"event"`
	Symbol    string           `json:"symbol"`
	Watermark models.Watermark `json:"watermark"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewNATSClient creates a new NATS client and ensures the SYNC stream
// exists.
func NewNATSClient(cfg *config.NATSConfig, logger *logrus.Logger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	nc := &NATSClient{
		conn:   conn,
		js:     js,
		logger: logger.WithField("component", "nats"),
		cfg:    cfg,
	}

	if err := nc.initializeStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to initialize stream: %w", err)
	}

	return nc, nil
}

// Close closes the NATS connection.
func (nc *NATSClient) Close() error {
	nc.conn.Close()
	return nil
}

// IsConnected checks if NATS is connected.
func (nc *NATSClient) IsConnected() bool {
	return nc.conn.IsConnected()
}

// initializeStream creates the JetStream stream carrying sync events.
func (nc *NATSClient) initializeStream() error {
	_, err := nc.js.AddStream(&nats.StreamConfig{
		Name:     "SYNC",
		Subjects: []string{"sync.>"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
		MaxMsgs:  100000,
		Replicas: 1,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("failed to create SYNC stream: %w", err)
	}
	return nil
}

// SessionEvent publishes a session lifecycle event on
// sync.session.<event>.
func (nc *NATSClient) SessionEvent(ctx context.Context, event string, s *models.SyncSession) error {
	msg := SessionEventMessage{Event: event, Session: s, Timestamp: time.Now()}
	return nc.publish(ctx, fmt.Sprintf("sync.session.%s", event), msg)
}

// SymbolEvent publishes a per-symbol event on sync.symbol.<event>.<symbol>.
func (nc *NATSClient) SymbolEvent(ctx context.Context, event, symbol string, w models.Watermark) error {
	msg := SymbolEventMessage{Event: event, Symbol: symbol, Watermark: w, Timestamp: time.Now()}
	return nc.publish(ctx, fmt.Sprintf("sync.symbol.%s.%s", event, symbol), msg)
}

func (nc *NATSClient) publish(ctx context.Context, subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := nc.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	nc.logger.WithField("subject", subject).Debug("Event published")
	return nil
}
