package observability

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// sensitiveParams are query parameter names that should be scrubbed from trace output.
var sensitiveParams = map[string]bool{
	"access":        true,
	"refresh":       true,
	"access_token":  true,
	"refresh_token": true,
	"token":         true,
	"password":      true,
	"secret":        true,
}

// TraceWriter outputs human-readable trace information to stderr.
// It formats output with timestamps relative to session start.
type TraceWriter struct {
	mu        sync.Mutex
	writer    io.Writer
	startTime time.Time
}

// NewTraceWriter creates a new TraceWriter that writes to stderr.
func NewTraceWriter() *TraceWriter {
	return NewTraceWriterTo(os.Stderr)
}

// NewTraceWriterTo creates a new TraceWriter that writes to the given writer.
func NewTraceWriterTo(w io.Writer) *TraceWriter {
	return &TraceWriter{
		writer:    w,
		startTime: time.Now(),
	}
}

func (t *TraceWriter) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	elapsed := time.Since(t.startTime).Seconds()
	fmt.Fprintf(t.writer, "[%.3fs] "+format+"\n", append([]any{elapsed}, args...)...)
}

// WriteRequest writes a request trace line.
// Format: [0.234s]   GET projects/ -> 200 (45ms)
func (t *TraceWriter) WriteRequest(m RequestMetrics) {
	path := scrubURL(m.Path)
	retry := ""
	if m.Attempt > 1 {
		retry = " [resend]"
	}
	if m.Error != nil {
		t.printf("  %s %s%s -> ERROR: %v", m.Method, path, retry, m.Error)
		return
	}
	t.printf("  %s %s%s -> %d (%dms)", m.Method, path, retry, m.StatusCode, m.Duration.Milliseconds())
}

// WriteResend writes a resend trace line.
func (t *TraceWriter) WriteResend(method, path string) {
	t.printf("RESEND %s %s after session refresh", method, scrubURL(path))
}

// WriteRefresh writes a token refresh trace line.
func (t *TraceWriter) WriteRefresh(ok bool) {
	if ok {
		t.printf("REFRESH access token renewed")
		return
	}
	t.printf("REFRESH failed, session cleared")
}

// WriteSummary writes the session statistics block shown by --stats.
func WriteSummary(w io.Writer, s SessionMetrics) {
	fmt.Fprintf(w, "\nSession: %d requests (%d failed, %d unauthorized), %d resends, %d refreshes (%d failed)\n",
		s.TotalRequests, s.FailedRequests, s.Unauthorized, s.Resends, s.Refreshes, s.FailedRefreshes)
	fmt.Fprintf(w, "Time: %dms total, %dms in API calls\n",
		s.EndTime.Sub(s.StartTime).Milliseconds(), s.TotalLatency.Milliseconds())
}

// scrubURL redacts sensitive query parameters from a URL for safe logging.
// Returns a safe placeholder if the URL cannot be parsed.
func scrubURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[unparseable URL]"
	}

	query := u.Query()
	modified := false
	for key := range query {
		if sensitiveParams[strings.ToLower(key)] {
			query.Set(key, "[REDACTED]")
			modified = true
		}
	}

	if !modified {
		return rawURL
	}

	u.RawQuery = query.Encode()
	return u.String()
}
