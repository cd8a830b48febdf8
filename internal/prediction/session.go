package prediction

import (
	"context"
	"log/slog"
	"time"

	"checkengine/internal/clock"
	"checkengine/internal/domain"
	"checkengine/internal/logging"
	"checkengine/internal/params"
)

// Engine creates prediction sessions over a history source and store.
type Engine struct {
	history HistorySource
	store   *Store
	clock   clock.Clock
	logger  *slog.Logger
}

// NewEngine builds prediction engine.
// Params: history source, prediction store, clock and logger (nil values tolerated).
// Returns: engine instance.
func NewEngine(history HistorySource, store *Store, clk clock.Clock, logger *slog.Logger) *Engine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{history: history, store: store, clock: clk, logger: logger}
}

// NewSession starts one check invocation context.
// Params: context, host and service.
// Returns: session implementing params.Predictor.
func (e *Engine) NewSession(ctx context.Context, host domain.HostName, service domain.ServiceName) *Session {
	return &Session{
		ctx:     ctx,
		engine:  e,
		host:    host,
		service: service,
		now:     e.clock.Now(),
		memo:    make(map[memoKey]memoEntry),
	}
}

type memoKey struct {
	metric  string
	period  params.Period
	horizon int
}

type memoEntry struct {
	stats Stats
	found bool
}

// Session resolves predictive levels for one host/service at one instant.
// Stats are memoized per metric, period and horizon.
type Session struct {
	ctx     context.Context
	engine  *Engine
	host    domain.HostName
	service domain.ServiceName
	now     time.Time
	memo    map[memoKey]memoEntry
}

var _ params.Predictor = (*Session)(nil)

// PredictiveLevels computes reference and levels for metric.
// Params: metric name, direction and parameters.
// Returns: reference and levels (both nil without history) or error.
func (s *Session) PredictiveLevels(metric string, direction params.Direction, p params.PredictiveParameters) (*float64, *[2]float64, error) {
	entry, err := s.stats(metric, p)
	if err != nil {
		return nil, nil, err
	}
	if !entry.found {
		return nil, nil, nil
	}
	ref := entry.stats.Average
	levels := EstimateLevels(entry.stats, direction, p)
	return &ref, &levels, nil
}

// Injected returns the prediction context serialized for legacy parameters.
// Params: none.
// Returns: mapping with host, service and reference time.
func (s *Session) Injected() (params.Value, error) {
	return params.Map{
		"host_name":      params.String(string(s.host)),
		"service_name":   params.String(string(s.service)),
		"reference_time": params.Int(s.now.Unix()),
	}, nil
}

func (s *Session) stats(metric string, p params.PredictiveParameters) (memoEntry, error) {
	key := memoKey{metric: metric, period: p.Period, horizon: p.Horizon}
	if entry, ok := s.memo[key]; ok {
		return entry, nil
	}
	if err := s.ctx.Err(); err != nil {
		return memoEntry{}, err
	}

	storeKey := Key(s.host, s.service, metric, p.Period, p.Horizon)
	rec, ok, err := s.engine.store.Load(s.ctx, storeKey, s.now)
	if err != nil {
		s.engine.logger.Warn("prediction load failed", "key", storeKey, "error", err.Error())
	}
	if ok {
		entry := memoEntry{stats: rec.Stats, found: rec.Found}
		s.memo[key] = entry
		return entry, nil
	}

	entry := memoEntry{}
	entry.stats, entry.found = Summarize(s.collect(metric, p))
	s.memo[key] = entry

	slot := CurrentSlot(p.Period, s.now)
	rec = Record{
		Metric:     metric,
		Period:     p.Period,
		Horizon:    p.Horizon,
		SlotFrom:   slot.From,
		ValidUntil: slot.Until,
		Found:      entry.found,
		Stats:      entry.stats,
	}
	if err := s.engine.store.Save(s.ctx, storeKey, rec); err != nil {
		s.engine.logger.Warn("prediction save failed", "key", storeKey, "error", err.Error())
	}
	return entry, nil
}

// collect reads history values of all matching past slots.
// Lookup failures are logged and count as missing history.
func (s *Session) collect(metric string, p params.PredictiveParameters) []float64 {
	if s.engine.history == nil {
		return nil
	}
	slots := HistorySlots(p.Period, p.Horizon, s.now)
	if len(slots) == 0 {
		return nil
	}
	oldest := slots[len(slots)-1].From
	samples, err := s.engine.history.Query(s.ctx, s.host, s.service, metric, oldest, slots[0].Until)
	if err != nil {
		s.engine.logger.Warn(
			"prediction history lookup failed",
			"host", string(s.host),
			"service", string(s.service),
			"metric", metric,
			"error", err.Error(),
		)
		return nil
	}

	var values []float64
	for _, sample := range samples {
		for _, slot := range slots {
			if !sample.At.Before(slot.From) && sample.At.Before(slot.Until) {
				values = append(values, sample.Value)
				break
			}
		}
	}
	return values
}
