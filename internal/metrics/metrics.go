// Package metrics defines the minimal metrics surface the scan pipeline
// emits to.
//
// The pipeline records against a process-wide backend so the scraping and
// storage code stays free of vendor types; backends (see the datadog
// subpackage) implement Backend and are installed once at startup with
// SetBackend. The default backend discards everything, which keeps metrics
// optional for local runs and tests.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels attach dimensions to a metric point.
type Labels map[string]string

// Backend receives metric points. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer points between
// submissions. Flush is called before process exit so short-lived runs
// still report.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs the process metrics backend. Passing nil restores the
// discarding default.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the installed backend when it buffers points; backends
// without a Flush are a no-op.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// IncCounter adds delta to a counter on the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records a sample on the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// RecordRun counts one completed batch run.
func RecordRun() {
	IncCounter("scan_runs_total", 1, nil)
}

// RecordOutcome counts one per-URL outcome; kind is added, duplicate, or
// failed.
func RecordOutcome(kind string) {
	IncCounter("scan_records_total", 1, Labels{"kind": kind})
}

// RecordStep counts one pipeline step and its duration, labeled with the
// step name and ok/error status.
func RecordStep(step string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	IncCounter("scan_step_total", 1, l)
	ObserveHistogram("scan_step_duration_seconds", d.Seconds(), l)
}

// RecordHTTP counts one page fetch. A zero status code means the request
// never produced a response (network error, timeout).
func RecordHTTP(statusCode int, err error, d time.Duration) {
	status := "error"
	if statusCode != 0 {
		status = strconv.Itoa(statusCode)
	}
	l := Labels{"status": status}
	IncCounter("scan_http_requests_total", 1, l)
	if err != nil {
		IncCounter("scan_http_errors_total", 1, l)
	}
	ObserveHistogram("scan_http_request_duration_seconds", d.Seconds(), l)
}
