package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type logformatter struct {
	logger zerolog.Logger
}

func (l *logformatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	req := map[string]interface{}{}

	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		req["id"] = reqID
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	req["scheme"] = scheme
	req["proto"] = r.Proto
	req["method"] = r.Method
	req["remote"] = r.RemoteAddr
	req["agent"] = r.UserAgent()
	req["uri"] = r.RequestURI

	return &logentry{
		logger: l.logger.With().Fields(req).Logger(),
	}
}

type logentry struct {
	logger  zerolog.Logger
	panic   bool
	message string
}

func (e *logentry) Panic(v interface{}, stack []byte) {
	e.panic = true
	e.message = string(stack)
}

func (e *logentry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	res := map[string]interface{}{
		"time":    time.Now().UTC().Format(time.RFC1123),
		"status":  status,
		"bytes":   bytes,
		"elapsed": float64(elapsed.Nanoseconds()) / 1000000.0, // in milliseconds
	}

	logger := e.logger.With().Fields(map[string]interface{}{"res": res}).Logger()

	if e.panic {
		logger.Error().Str("stack", e.message).Msg("request failed (500)")
	} else if status >= 500 {
		logger.Error().Msgf("request failed (%d)", status)
	} else if status >= 400 {
		logger.Warn().Msgf("request failed (%d)", status)
	} else {
		logger.Debug().Msg("request complete")
	}
}
