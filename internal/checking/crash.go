package checking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"checkengine/internal/clock"
	"checkengine/internal/domain"
	"checkengine/internal/logging"
)

// CrashReport describes one crashed check invocation.
type CrashReport struct {
	ID          string         `json:"id"`
	Time        time.Time      `json:"time"`
	Host        string         `json:"host"`
	Service     string         `json:"service"`
	Plugin      string         `json:"plugin"`
	Item        string         `json:"item,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Error       string         `json:"error"`
	Panic       bool           `json:"panic"`
	Stack       string         `json:"stack,omitempty"`
	Description string         `json:"description"`
}

// CrashReporter persists crash reports as JSON files.
type CrashReporter struct {
	dir     string
	clock   clock.Clock
	logger  *slog.Logger
	observe func(CrashReport)
}

// NewCrashReporter builds reporter.
// Params: output directory (empty keeps reports in logs only), clock and logger.
// Returns: crash reporter.
func NewCrashReporter(dir string, clk clock.Clock, logger *slog.Logger) *CrashReporter {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &CrashReporter{dir: dir, clock: clk, logger: logger}
}

// OnReport registers a callback invoked for every recorded crash.
// Params: callback receiving the completed report.
// Returns: none.
func (r *CrashReporter) OnReport(fn func(CrashReport)) {
	r.observe = fn
}

// Report records crash and renders the service output text.
// Params: partially filled report (id and time are assigned here).
// Returns: output line shown as service result.
func (r *CrashReporter) Report(report CrashReport) string {
	report.ID = uuid.NewString()
	report.Time = r.clock.Now()
	report.Description = fmt.Sprintf("%s (%s)", report.Service, report.Plugin)

	r.logger.Error(
		"check crashed",
		"crash_id", report.ID,
		"host", report.Host,
		"service", report.Service,
		"plugin", report.Plugin,
		"error", report.Error,
	)
	if r.observe != nil {
		r.observe(report)
	}

	if r.dir != "" {
		if err := r.write(report); err != nil {
			r.logger.Error("crash report write failed", "crash_id", report.ID, "error", err.Error())
			return fmt.Sprintf("check failed - failed to create a crash report: %v", err)
		}
	}
	return fmt.Sprintf("check failed - please submit a crash report! (Crash-ID: %s)", report.ID)
}

func (r *CrashReporter) write(report CrashReport) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create crash dir: %w", err)
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode crash report: %w", err)
	}
	path := filepath.Join(r.dir, report.ID+".json")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write crash report: %w", err)
	}
	return nil
}

// crashResult is the service result of a crashed check.
func crashResult(text string) domain.ServiceCheckResult {
	return domain.Submittable(domain.StateCrit, text, nil)
}
