package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Instrument wraps h so that every request updates RequestsTotal and
// RequestDuration, labeled by method, the matched route pattern, and
// status code. The route label relies on http.Request.Pattern, which
// ServeMux populates with the pattern that matched before calling h.
func (m *Metrics) Instrument(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// statusWriter captures the status code written through it, defaulting to
// 200 since a handler that never calls WriteHeader implicitly sends one.
// It also forwards http.Hijacker so the Listen Endpoint's websocket
// upgrade keeps working when wrapped by Instrument.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
	}
	return hj.Hijack()
}
