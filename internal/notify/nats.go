package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wolfman30/booking-assistant/pkg/logging"
)

// natsConn is the part of *nats.Conn the relay uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSRelay forwards events to NATS as "<type>.<tenant>" subjects, for
// example booking.created.t1.
type NATSRelay struct {
	conn   natsConn
	logger *logging.Logger
}

// ConnectNATS dials url and returns a relay with reconnect handling.
func ConnectNATS(url, token string, logger *logging.Logger) (*NATSRelay, error) {
	if logger == nil {
		logger = logging.Default()
	}
	opts := []nats.Option{
		nats.Name("booking-assistant"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: nats connect: %w", err)
	}
	return newNATSRelay(nc, logger), nil
}

func newNATSRelay(conn natsConn, logger *logging.Logger) *NATSRelay {
	if logger == nil {
		logger = logging.Default()
	}
	return &NATSRelay{conn: conn, logger: logger}
}

// Subject returns the NATS subject for ev.
func Subject(ev Event) string {
	return fmt.Sprintf("%s.%s", ev.Type, ev.TenantID)
}

func (r *NATSRelay) Publish(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	if err := r.conn.Publish(Subject(ev), payload); err != nil {
		return fmt.Errorf("notify: nats publish: %w", err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (r *NATSRelay) Close() error {
	return r.conn.Drain()
}
