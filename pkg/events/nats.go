// Package events publishes processing notifications over NATS. After a
// pipeline run replaces a source's chunks, a DocumentChunked event goes
// out so downstream consumers can react to fresh content without polling
// the store. Subjects are hierarchical: the configured prefix plus the
// event's source type as the final token, so a consumer subscribes to
// "cleave.chunked.>" for everything or "cleave.chunked.transcript" for a
// single stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cleaveai/cleave/pkg/config"
	"github.com/cleaveai/cleave/pkg/errors"
	"github.com/cleaveai/cleave/pkg/interfaces"
	"github.com/cleaveai/cleave/pkg/types"
)

// connectTimeout bounds the initial dial to the NATS server.
const connectTimeout = 5 * time.Second

// NATSPublisher implements the EventPublisher interface on a core NATS
// connection
type NATSPublisher struct {
	config *config.EventsConfig
	conn   *nats.Conn

	published   int64
	disconnects int64
	reconnects  int64
}

var _ interfaces.EventPublisher = (*NATSPublisher)(nil)

// PublisherStats counts publisher activity since construction
type PublisherStats struct {
	Published   int64 `json:"published"`
	Disconnects int64 `json:"disconnects"`
	Reconnects  int64 `json:"reconnects"`
}

// NewNATSPublisher connects to NATS and returns a publisher. The
// connection reconnects on its own within the configured limits, and
// events published while disconnected sit in the client's pending buffer
// until the connection returns.
func NewNATSPublisher(cfg *config.EventsConfig) (*NATSPublisher, error) {
	if cfg == nil {
		cfg = config.NewEventsConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigInvalidError(fmt.Sprintf("invalid events config: %v", err))
	}

	p := &NATSPublisher{config: cfg}

	opts := []nats.Option{
		nats.Name("cleave-events"),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			atomic.AddInt64(&p.disconnects, 1)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			atomic.AddInt64(&p.reconnects, 1)
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.NewEventError(fmt.Sprintf("failed to connect to NATS at %s", cfg.URL), err)
	}

	p.conn = conn
	return p, nil
}

// Publish sends a DocumentChunked event as JSON. The subject is the
// configured prefix with the event's source type appended, or the bare
// prefix when the source type is empty.
func (p *NATSPublisher) Publish(ctx context.Context, event *types.DocumentChunked) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event == nil {
		return errors.NewMissingFieldError("event")
	}
	if p.conn == nil || p.conn.IsClosed() {
		return errors.NewEventError("publisher is closed", nil)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.NewEventError("failed to marshal event", err)
	}

	subject := Subject(p.config.Subject, event.SourceType)
	if err := p.conn.Publish(subject, payload); err != nil {
		return errors.NewEventError(fmt.Sprintf("failed to publish to %s", subject), err)
	}

	atomic.AddInt64(&p.published, 1)
	return nil
}

// Subject computes the publish subject for a source type under prefix.
// The source type is lowercased and characters with NATS subject
// semantics are replaced so the value stays a single literal token.
func Subject(prefix, sourceType string) string {
	token := strings.ToLower(strings.TrimSpace(sourceType))
	token = strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '\t', '*', '>':
			return '_'
		}
		return r
	}, token)

	if token == "" {
		return prefix
	}
	return prefix + "." + token
}

// Connected reports whether the underlying connection is currently up
func (p *NATSPublisher) Connected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Stats returns publish and reconnect counts since construction
func (p *NATSPublisher) Stats() PublisherStats {
	return PublisherStats{
		Published:   atomic.LoadInt64(&p.published),
		Disconnects: atomic.LoadInt64(&p.disconnects),
		Reconnects:  atomic.LoadInt64(&p.reconnects),
	}
}

// Close flushes buffered events and closes the connection
func (p *NATSPublisher) Close() error {
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}

	err := p.conn.Flush()
	p.conn.Close()
	if err != nil {
		return errors.NewEventError("failed to flush pending events", err)
	}
	return nil
}
