package observability

import (
	"sync"
	"time"

	"github.com/gigmarket/gig/internal/api"
)

var _ api.Hooks = (*CLIHooks)(nil)

// CLIHooks implements api.Hooks for CLI observability.
// It supports configurable verbosity levels:
//   - 0: Silent (collect stats only, no output)
//   - 1: Session events (refreshes and resends)
//   - 2: Session events + every request
type CLIHooks struct {
	mu        sync.Mutex
	level     int
	collector *SessionCollector
	writer    *TraceWriter
}

// NewCLIHooks creates a new CLIHooks with the given verbosity level.
// If collector is nil, metrics are not collected.
// If writer is nil, no trace output is produced.
func NewCLIHooks(level int, collector *SessionCollector, writer *TraceWriter) *CLIHooks {
	return &CLIHooks{
		level:     level,
		collector: collector,
		writer:    writer,
	}
}

// SetLevel changes the verbosity level at runtime.
func (h *CLIHooks) SetLevel(level int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

// Level returns the current verbosity level.
func (h *CLIHooks) Level() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

func (h *CLIHooks) snapshot() (int, *SessionCollector, *TraceWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level, h.collector, h.writer
}

// OnRequest is called after every network send.
func (h *CLIHooks) OnRequest(req *api.Request, resp *api.Response, err error, d time.Duration) {
	level, collector, writer := h.snapshot()

	m := RequestMetrics{
		Method:   req.Method,
		Path:     req.Path,
		Attempt:  1,
		Duration: d,
		Error:    err,
	}
	if len(req.Query) > 0 {
		m.Path += "?" + req.Query.Encode()
	}
	if req.Retried {
		m.Attempt = 2
	}
	if resp != nil {
		m.StatusCode = resp.StatusCode
	}

	if collector != nil {
		collector.RecordRequest(m)
	}
	if level >= 2 && writer != nil {
		writer.WriteRequest(m)
	}
}

// OnRetry is called when a request is resent after a refresh.
func (h *CLIHooks) OnRetry(req *api.Request) {
	level, collector, writer := h.snapshot()

	if collector != nil {
		collector.RecordResend()
	}
	if level >= 1 && writer != nil {
		writer.WriteResend(req.Method, req.Path)
	}
}

// OnRefresh is called after every token refresh call.
func (h *CLIHooks) OnRefresh(ok bool) {
	level, collector, writer := h.snapshot()

	if collector != nil {
		collector.RecordRefresh(ok)
	}
	if level >= 1 && writer != nil {
		writer.WriteRefresh(ok)
	}
}
