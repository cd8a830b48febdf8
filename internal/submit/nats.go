package submit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkengine/internal/config"
	"checkengine/internal/streams"

	"github.com/nats-io/nats.go"
)

const resultStreamMaxAge = 24 * time.Hour

// NATSPublisher publishes check outcomes into a JetStream stream.
// Params: NATS connection and publish subject.
// Returns: result publisher.
type NATSPublisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// NewNATSPublisher connects and ensures the result stream.
// Params: submit NATS settings.
// Returns: publisher or setup error.
func NewNATSPublisher(cfg config.SubmitNATSConfig) (*NATSPublisher, error) {
	nc, js, err := streams.Open(cfg.URL, streams.Spec{
		Name:      cfg.Stream,
		Subject:   cfg.Subject + ".>",
		Retention: nats.LimitsPolicy,
		MaxAge:    resultStreamMaxAge,
	})
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc, js: js, subject: cfg.Subject}, nil
}

// Subject returns the per-host publish subject.
// Params: host name.
// Returns: "<subject>.<host>" with subject-unsafe characters replaced.
func (p *NATSPublisher) Subject(host string) string {
	return p.subject + "." + subjectToken(host)
}

// Submit publishes one message per result.
// Params: context and batch.
// Returns: first marshal or publish error.
func (p *NATSPublisher) Submit(ctx context.Context, batch Batch) error {
	subject := p.Subject(string(batch.Host))
	for _, res := range batch.Results {
		msg := NewMessage(batch.Host, batch.CheckedAt, res)
		body, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal check result: %w", err)
		}
		out := nats.NewMsg(subject)
		out.Data = body
		out.Header.Set("Nats-Msg-Id", msg.ID)
		if _, err := p.js.PublishMsg(out, nats.Context(ctx)); err != nil {
			return fmt.Errorf("publish check result %s/%s: %w", batch.Host, res.Service.Description, err)
		}
	}
	return nil
}

// Close closes publisher NATS connection.
// Params: none.
// Returns: nil after connection close.
func (p *NATSPublisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	p.nc.Close()
	return nil
}

func subjectToken(value string) string {
	out := []byte(value)
	for i, c := range out {
		switch c {
		case '.', '*', '>', ' ', '\t':
			out[i] = '_'
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}
