package prediction

import (
	"time"

	"checkengine/internal/params"
)

// Slot is one time window of a past period aligned with the reference time.
type Slot struct {
	From  time.Time
	Until time.Time
}

// window returns the slot width of a period.
func window(period params.Period) time.Duration {
	if period == params.PeriodMinute {
		return time.Minute
	}
	return time.Hour
}

// previous shifts t back by n periods.
func previous(period params.Period, t time.Time, n int) time.Time {
	switch period {
	case params.PeriodWeekday:
		return t.AddDate(0, 0, -7*n)
	case params.PeriodDay:
		return t.AddDate(0, -n, 0)
	case params.PeriodHour:
		return t.AddDate(0, 0, -n)
	default:
		return t.Add(-time.Duration(n) * time.Hour)
	}
}

// CurrentSlot returns the slot containing now.
// Params: period and reference time.
// Returns: current slot; its Until is the validity end of a prediction.
func CurrentSlot(period params.Period, now time.Time) Slot {
	width := window(period)
	from := now.Truncate(width)
	return Slot{From: from, Until: from.Add(width)}
}

// HistorySlots lists matching slots of past periods inside the horizon.
// wday repeats weekly, day monthly, hour daily and minute hourly.
// Params: period, horizon in days and reference time.
// Returns: slots ordered from newest to oldest.
func HistorySlots(period params.Period, horizonDays int, now time.Time) []Slot {
	current := CurrentSlot(period, now)
	oldest := current.From.AddDate(0, 0, -horizonDays)
	width := current.Until.Sub(current.From)

	var out []Slot
	for n := 1; ; n++ {
		from := previous(period, current.From, n)
		if from.Before(oldest) {
			break
		}
		out = append(out, Slot{From: from, Until: from.Add(width)})
	}
	return out
}
