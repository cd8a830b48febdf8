package checking

import (
	"fmt"
	"strings"

	"checkengine/internal/domain"
)

// AggregateResults reduces classified outputs to one service result.
// Params: classified outputs.
// Returns: item-not-found for empty streams, else worst state with joined texts.
func AggregateResults(c Collected) domain.ServiceCheckResult {
	if len(c.Ignores) == 0 && len(c.Results) == 0 {
		return domain.ItemNotFound()
	}

	states := make([]domain.State, 0, len(c.Results))
	for _, r := range c.Results {
		states = append(states, r.State)
	}
	state := domain.WorstState(states...)
	text := aggregateTexts(c.Ignores, c.Results)

	if len(c.Ignores) > 0 {
		return domain.Unsubmittable(state, text, c.Metrics)
	}
	return domain.Submittable(state, text, c.Metrics)
}

// aggregateTexts joins summaries into the headline followed by detail lines.
// With more than one result every text carries its state marker.
func aggregateTexts(ignores []domain.IgnoreResults, results []domain.Result) string {
	summaries := make([]string, 0, len(ignores)+len(results))
	for _, ignore := range ignores {
		if ignore.Text != "" {
			summaries = append(summaries, ignore.Text)
		}
	}

	needsMarker := len(results) > 1
	withMarker := func(text string, state domain.State) string {
		if !needsMarker || strings.Contains(text, state.Marker()) {
			return text
		}
		return text + state.Marker()
	}

	details := make([]string, 0, len(results))
	for _, r := range results {
		details = append(details, withMarker(r.Details, r.State))
		if r.Summary != "" {
			summaries = append(summaries, withMarker(r.Summary, r.State))
		}
	}

	if len(summaries) == 0 {
		suffix := "s"
		if len(details) == 1 {
			suffix = ""
		}
		summaries = append(summaries, fmt.Sprintf("Everything looks OK - %d detail%s available", len(details), suffix))
	}

	lines := append([]string{strings.Join(summaries, ", ")}, details...)
	return strings.Join(lines, "\n")
}
