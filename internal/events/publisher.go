package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/muilab/notigpt/internal/logger"
	"github.com/nats-io/nats.go"
)

const (
	// DigestCompletedSubject carries one message per finished pipeline run.
	DigestCompletedSubject = "notigpt.digest.completed"

	connectTimeout = 5 * time.Second
)

// DigestCompleted announces a finished digest. Text is left out; consumers
// fetch it from the API by mode.
type DigestCompleted struct {
	DigestID     string    `json:"digest_id"`
	Mode         string    `json:"mode"`
	ChunkCount   int       `json:"chunk_count"`
	FailedChunks int       `json:"failed_chunks"`
	UnitCount    int       `json:"unit_count"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
	InstanceID   string    `json:"instance_id"`
}

// Publisher sends digest events over NATS. A nil *Publisher is valid and
// drops every event.
type Publisher struct {
	nc         *nats.Conn
	logger     *logger.Logger
	instanceID string
}

// Connect dials url and returns a publisher on it. An empty url disables
// publishing and returns nil.
func Connect(url string, baseLogger *logger.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}

	log := baseLogger.WithComponent("events")
	nc, err := nats.Connect(url,
		nats.Name("notigpt-"+logger.GetInstanceID()),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	log.Info("connected to nats", slog.String("url", nc.ConnectedUrl()))
	return NewPublisher(nc, baseLogger), nil
}

// NewPublisher wraps an existing connection. Returns nil if nc is nil.
func NewPublisher(nc *nats.Conn, baseLogger *logger.Logger) *Publisher {
	if nc == nil {
		return nil
	}
	return &Publisher{
		nc:         nc,
		logger:     baseLogger.WithComponent("events"),
		instanceID: logger.GetInstanceID(),
	}
}

// PublishDigestCompleted publishes evt on DigestCompletedSubject.
func (p *Publisher) PublishDigestCompleted(ctx context.Context, evt DigestCompleted) error {
	if p == nil {
		return nil
	}
	if evt.InstanceID == "" {
		evt.InstanceID = p.instanceID
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.nc.Publish(DigestCompletedSubject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", DigestCompletedSubject, err)
	}

	p.logger.WithContext(ctx).Debug("digest event published",
		slog.String("digest_id", evt.DigestID),
		slog.String("subject", DigestCompletedSubject))
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("failed to drain nats connection: %w", err)
	}
	return nil
}

// DecodeDigestCompleted parses an event payload.
func DecodeDigestCompleted(data []byte) (DigestCompleted, error) {
	var evt DigestCompleted
	if err := json.Unmarshal(data, &evt); err != nil {
		return DigestCompleted{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return evt, nil
}
