// Package encode serializes grid tables to CSV and XLSX bytes.
package encode

import (
	"fmt"
	"log/slog"
)

// ProgressFunc receives completion percentages in [0,100]. Returning an
// error cancels the export when the reporter is strict.
type ProgressFunc func(pct int) error

// Reporter wraps a progress callback with the strict/lenient failure
// policy: strict reporters abort the export on callback error, lenient
// ones log a warning and keep going.
type Reporter struct {
	fn     ProgressFunc
	strict bool
	log    *slog.Logger
}

// NewReporter builds a Reporter. A nil fn yields a no-op reporter; a nil
// logger falls back to slog.Default.
func NewReporter(fn ProgressFunc, strict bool, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{fn: fn, strict: strict, log: log}
}

// Report invokes the callback with pct.
func (r *Reporter) Report(pct int) error {
	if r == nil || r.fn == nil {
		return nil
	}
	if err := r.fn(pct); err != nil {
		if r.strict {
			return fmt.Errorf("progress callback: %w", err)
		}
		r.log.Warn("progress callback failed", "pct", pct, "error", err)
	}
	return nil
}

// Scaled returns a reporter that maps [0,100] into the i-th of n equal
// segments, for spreading one callback across multiple sheets.
func (r *Reporter) Scaled(i, n int) *Reporter {
	if r == nil || r.fn == nil || n <= 1 {
		return r
	}
	return &Reporter{
		fn: func(pct int) error {
			return r.fn((i*100 + pct) / n)
		},
		strict: r.strict,
		log:    r.log,
	}
}
