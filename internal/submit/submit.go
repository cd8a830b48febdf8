// Package submit hands per-host check outcomes to result consumers.
package submit

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"checkengine/internal/domain"
	"checkengine/internal/logging"

	"go.uber.org/multierr"
)

// Batch is the outcome of checking one host in one cycle.
// Params: host, check time and aggregated results in service order.
// Returns: unit of submission.
type Batch struct {
	Host      domain.HostName
	CheckedAt time.Time
	Results   []domain.AggregatedResult
}

// Submitter consumes check outcomes.
// Params: context and one host batch.
// Returns: submit error.
type Submitter interface {
	Submit(ctx context.Context, batch Batch) error
	Close() error
}

// MetricMessage is the wire form of one metric.
type MetricMessage struct {
	Name  string   `json:"name"`
	Value float64  `json:"value"`
	Warn  *float64 `json:"warn,omitempty"`
	Crit  *float64 `json:"crit,omitempty"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
}

// Message is the wire form of one service outcome.
// Params: identity, state, text, metrics and data flags.
// Returns: JSON document published to result consumers.
type Message struct {
	ID           string            `json:"id"`
	Host         string            `json:"host"`
	Service      string            `json:"service"`
	Plugin       string            `json:"plugin"`
	Item         string            `json:"item,omitempty"`
	State        string            `json:"state"`
	StateCode    int               `json:"state_code"`
	Output       string            `json:"output"`
	Metrics      []MetricMessage   `json:"metrics,omitempty"`
	Submittable  bool              `json:"submittable"`
	DataReceived bool              `json:"data_received"`
	CacheInfo    *domain.CacheInfo `json:"cache_info,omitempty"`
	CheckedAt    time.Time         `json:"checked_at"`
}

// NewMessage converts one aggregated result.
// Params: host, check time and result.
// Returns: message with deterministic id.
func NewMessage(host domain.HostName, at time.Time, res domain.AggregatedResult) Message {
	metrics := make([]MetricMessage, 0, len(res.Result.Metrics))
	for _, m := range res.Result.Metrics {
		metrics = append(metrics, MetricMessage{Name: m.Name, Value: m.Value, Warn: m.Warn, Crit: m.Crit, Min: m.Min, Max: m.Max})
	}
	msg := Message{
		Host:         string(host),
		Service:      string(res.Service.Description),
		Plugin:       string(res.Service.CheckPluginName),
		Item:         res.Service.Item,
		State:        res.Result.State.String(),
		StateCode:    int(res.Result.State),
		Output:       res.Result.Output,
		Metrics:      metrics,
		Submittable:  res.Result.Submittable,
		DataReceived: res.DataReceived,
		CacheInfo:    res.CacheInfo,
		CheckedAt:    at.UTC(),
	}
	msg.ID = MessageID(host, res.Service.Description, at)
	return msg
}

// MessageID derives the deduplication id of one outcome.
// Params: host, service and check time.
// Returns: hex sha1 digest.
func MessageID(host domain.HostName, service domain.ServiceName, at time.Time) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%d", host, service, at.UnixNano())))
	return hex.EncodeToString(sum[:])
}

// LogSubmitter writes every outcome to the service log.
type LogSubmitter struct {
	logger *slog.Logger
}

// NewLogSubmitter creates log-backed submitter.
// Params: logger (nil discards).
// Returns: submitter.
func NewLogSubmitter(logger *slog.Logger) *LogSubmitter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LogSubmitter{logger: logger}
}

// Submit logs one line per result.
// Params: context and batch.
// Returns: always nil.
func (s *LogSubmitter) Submit(ctx context.Context, batch Batch) error {
	for _, res := range batch.Results {
		level := slog.LevelInfo
		if res.Result.State != domain.StateOK {
			level = slog.LevelWarn
		}
		logging.ForService(s.logger, batch.Host, res.Service.Description).Log(ctx, level, "check result",
			"state", res.Result.State.String(),
			"output", res.Result.Summary(),
			"metrics", len(res.Result.Metrics),
			"submittable", res.Result.Submittable,
			"data_received", res.DataReceived,
		)
	}
	return nil
}

// Close is a no-op.
func (s *LogSubmitter) Close() error { return nil }

// Fanout submits every batch to all targets.
type Fanout struct {
	targets []Submitter
}

// NewFanout combines submitters; nil entries are skipped.
// Params: submitters.
// Returns: fan-out submitter.
func NewFanout(targets ...Submitter) *Fanout {
	out := &Fanout{}
	for _, target := range targets {
		if target != nil {
			out.targets = append(out.targets, target)
		}
	}
	return out
}

// Submit passes the batch to every target even when one fails.
// Params: context and batch.
// Returns: combined target errors.
func (f *Fanout) Submit(ctx context.Context, batch Batch) error {
	var err error
	for _, target := range f.targets {
		err = multierr.Append(err, target.Submit(ctx, batch))
	}
	return err
}

// Close closes all targets.
// Params: none.
// Returns: combined close errors.
func (f *Fanout) Close() error {
	var err error
	for _, target := range f.targets {
		err = multierr.Append(err, target.Close())
	}
	return err
}
