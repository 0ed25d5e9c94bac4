package analytics

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject serve events are republished on.
const DefaultSubject = "media.serves"

// NATSPublisher republishes serve events as JSON for external consumers
// (billing, dashboards) that should not read our SQLite files.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// ConnectNATS dials the broker with endless reconnects, matching the
// fire-and-forget role of the analytics stream.
func ConnectNATS(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

// Close drains the connection so buffered publishes flush.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}

// PublishServe sends one event as JSON.
func (p *NATSPublisher) PublishServe(e ServeEvent) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, b)
}
