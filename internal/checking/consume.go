package checking

import (
	"context"
	"fmt"
	"iter"

	"checkengine/internal/domain"
)

// Collected holds classified outputs of one check stream.
type Collected struct {
	Ignores []domain.IgnoreResults
	Metrics []domain.Metric
	Results []domain.Result
}

// ConsumeCheckResults drains a check stream and classifies its items.
// An ignore signal in the stream discards everything collected so far,
// leaves a single IgnoreResults and ends consumption.
// A stream that keeps yielding after consumption ended still reports
// the outcome recorded when it ended.
// Params: context (checked between items) and stream.
// Returns: classified outputs, timeout, contract violation or plugin error.
func ConsumeCheckResults(ctx context.Context, stream iter.Seq2[domain.Output, error]) (out Collected, err error) {
	var (
		stopped  bool
		finalOut Collected
		finalErr error
	)
	stop := func(c Collected, e error) (Collected, error) {
		stopped, finalOut, finalErr = true, c, e
		return c, e
	}
	defer func() {
		if !stopped {
			return
		}
		if r := recover(); r != nil {
			out, err = finalOut, finalErr
		}
	}()

	for item, itemErr := range stream {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stop(Collected{}, fmt.Errorf("%w: %w", domain.ErrTimeout, ctxErr))
		}
		if itemErr != nil {
			if ignore, ok := domain.AsIgnoreResults(itemErr); ok {
				return stop(Collected{Ignores: []domain.IgnoreResults{{Text: ignore.Message}}}, nil)
			}
			return stop(Collected{}, itemErr)
		}

		switch v := item.(type) {
		case domain.IgnoreResults:
			out.Ignores = append(out.Ignores, v)
		case domain.Metric:
			if vErr := v.Validate(); vErr != nil {
				return stop(Collected{}, &domain.ContractViolation{Value: v, Reason: vErr.Error()})
			}
			out.Metrics = append(out.Metrics, v)
		case domain.Result:
			if vErr := v.Validate(); vErr != nil {
				return stop(Collected{}, &domain.ContractViolation{Value: v, Reason: vErr.Error()})
			}
			out.Results = append(out.Results, v)
		default:
			return stop(Collected{}, &domain.ContractViolation{Value: item})
		}
	}
	return out, nil
}
