package submit

import (
	"context"
	"time"

	"checkengine/internal/domain"
)

// HistoryRecorder receives metric samples.
type HistoryRecorder interface {
	Record(host domain.HostName, service domain.ServiceName, metric string, at time.Time, value float64)
}

// HistorySubmitter feeds metrics of authoritative results into prediction history.
type HistorySubmitter struct {
	history HistoryRecorder
}

// NewHistorySubmitter wraps a history recorder.
// Params: recorder, usually prediction.MemoryHistory.
// Returns: submitter.
func NewHistorySubmitter(history HistoryRecorder) *HistorySubmitter {
	return &HistorySubmitter{history: history}
}

// Submit records every metric of submittable results.
// Params: context and batch.
// Returns: always nil.
func (s *HistorySubmitter) Submit(_ context.Context, batch Batch) error {
	for _, res := range batch.Results {
		if !res.Result.Submittable || !res.DataReceived {
			continue
		}
		for _, m := range res.Result.Metrics {
			s.history.Record(batch.Host, res.Service.Description, m.Name, batch.CheckedAt, m.Value)
		}
	}
	return nil
}

// Close is a no-op.
func (s *HistorySubmitter) Close() error { return nil }
