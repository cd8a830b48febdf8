// Package streams opens JetStream contexts and provisions the streams used
// for raw host data and check results.
package streams

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Spec describes one stream.
type Spec struct {
	Name      string
	Subject   string
	Retention nats.RetentionPolicy
	MaxAge    time.Duration
}

// Open connects to NATS and ensures the stream exists.
// Params: server URLs and stream spec.
// Returns: connection, JetStream context, or setup error (connection closed).
func Open(urls []string, spec Spec) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(strings.Join(urls, ","))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream init: %w", err)
	}
	if err := Ensure(js, spec); err != nil {
		nc.Close()
		return nil, nil, err
	}
	return nc, js, nil
}

// Ensure creates the stream when it does not exist yet.
// Params: JetStream context and stream spec.
// Returns: stream lookup/create error.
func Ensure(js nats.JetStreamContext, spec Spec) error {
	if _, err := js.StreamInfo(spec.Name); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(strings.ToLower(err.Error()), "stream not found") {
		return fmt.Errorf("stream info %q: %w", spec.Name, err)
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:      spec.Name,
		Subjects:  []string{spec.Subject},
		Retention: spec.Retention,
		Storage:   nats.FileStorage,
		MaxAge:    spec.MaxAge,
	})
	if err != nil {
		return fmt.Errorf("create stream %q: %w", spec.Name, err)
	}
	return nil
}
