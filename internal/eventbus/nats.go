package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	logx "finalword/pkg/logx"
)

// Subject returns the NATS subject for an event type.
// Example: finalword.events.delivery
func Subject(prefix, eventType string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "finalword"
	}
	return fmt.Sprintf("%s.events.%s", prefix, eventType)
}

// Forwarder republishes bus events as JSON on NATS.
type Forwarder struct {
	nc     *nats.Conn
	pub    func(subject string, data []byte) error
	prefix string
	log    logx.Logger
}

// DialForwarder connects to url with unbounded reconnects.
func DialForwarder(url, prefix string, log logx.Logger) (*Forwarder, error) {
	nc, err := nats.Connect(url,
		nats.Name("finalword"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Forwarder{nc: nc, pub: nc.Publish, prefix: prefix, log: log}, nil
}

// Run forwards events from bus until ctx is done.
func (f *Forwarder) Run(ctx context.Context, bus Bus) {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := f.publish(e); err != nil {
				f.log.Warn("nats publish failed", logx.String("type", e.Type), logx.Err(err))
			}
		}
	}
}

func (f *Forwarder) publish(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return f.pub(Subject(f.prefix, e.Type), data)
}

// Close drains pending publishes and closes the connection.
func (f *Forwarder) Close() error {
	if f == nil || f.nc == nil {
		return nil
	}
	return f.nc.Drain()
}
