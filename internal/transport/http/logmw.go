package httptransport

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"tap-racer/internal/logging"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"
)

const redacted = "[redacted]"

// redactKeys are JSON object keys whose values never reach the request log.
var redactKeys = map[string]struct{}{
	"token":         {},
	"access_token":  {},
	"authorization": {},
	"secret":        {},
}

// APILogMiddleware writes one JSON line per request through the shared log
// writer, labelled with the chi route pattern.
func APILogMiddleware() func(http.Handler) http.Handler {
	logger := slog.New(slog.NewJSONHandler(logging.Writer(), &slog.HandlerOptions{}))
	return httplog.RequestLogger(logger, &httplog.Options{
		Level:              slog.LevelInfo,
		Schema:             httplog.Schema{ResponseStatus: "status", ResponseDuration: "duration_ms"},
		LogRequestBody:     func(*http.Request) bool { return false },
		LogResponseBody:    func(*http.Request) bool { return false },
		LogRequestHeaders:  []string{},
		LogResponseHeaders: []string{},
		LogExtraAttrs: func(req *http.Request, _ string, _ int) []slog.Attr {
			return []slog.Attr{
				slog.String("request_id", chimw.GetReqID(req.Context())),
				slog.String("method", req.Method),
				slog.String("route", routePattern(req)),
				slog.String("path", req.URL.Path),
			}
		},
	})
}

func routePattern(req *http.Request) string {
	if rc := chi.RouteContext(req.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return req.URL.Path
}

// BodyCaptureMiddleware attaches up to limit bytes of the request and
// response bodies to the request log line. Secret-bearing JSON keys are
// redacted. Streaming requests pass through untouched.
func BodyCaptureMiddleware(limit int) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = 4096
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isStreamingRequest(r) {
				next.ServeHTTP(w, r)
				return
			}
			reqBody, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(reqBody))

			cw := &captureWriter{ResponseWriter: w, limit: limit}
			next.ServeHTTP(cw, r)

			reqTruncated := len(reqBody) > limit
			if reqTruncated {
				reqBody = reqBody[:limit]
			}
			httplog.SetAttrs(r.Context(),
				slog.Any("request_body", logBody(reqBody)),
				slog.Any("response_body", logBody(cw.buf.Bytes())),
				slog.Bool("request_body_truncated", reqTruncated),
				slog.Bool("response_body_truncated", cw.truncated),
			)
		})
	}
}

type captureWriter struct {
	http.ResponseWriter
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room < len(p) {
		if room > 0 {
			c.buf.Write(p[:room])
		}
		c.truncated = true
	} else {
		c.buf.Write(p)
	}
	return c.ResponseWriter.Write(p)
}

func (c *captureWriter) Flush() {
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// logBody decodes b as JSON for structured logging, falling back to the raw
// string when it is not valid JSON.
func logBody(b []byte) any {
	if len(b) == 0 {
		return ""
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return string(b)
	}
	return redact(out)
}

func redact(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		for k, child := range vv {
			if _, ok := redactKeys[strings.ToLower(k)]; ok {
				vv[k] = redacted
				continue
			}
			vv[k] = redact(child)
		}
	case []any:
		for i := range vv {
			vv[i] = redact(vv[i])
		}
	}
	return v
}

func isStreamingRequest(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return true
	}
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
