package rpc

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tradeescrow/native/escrow"
	"tradeescrow/observability/logging"
	telemetry "tradeescrow/observability/otel"
)

// requestInfo is filled in by inner middleware so the outer request log can
// report the authenticated caller.
type requestInfo struct {
	caller        [20]byte
	authenticated bool
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// observe records metrics and one log line per request. The route label is
// the matched chi pattern so identifiers never become label values.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		info := &requestInfo{}
		r = r.WithContext(context.WithValue(r.Context(), contextKeyRequestInfo, info))
		next.ServeHTTP(recorder, r)
		duration := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		s.metrics.Observe(route, r.Method, recorder.status, duration)

		attrs := []any{
			"method", r.Method,
			"route", route,
			"status", recorder.status,
			"duration_ms", float64(duration.Microseconds()) / 1000,
			"request_id", chimw.GetReqID(r.Context()),
		}
		if info.authenticated {
			attrs = append(attrs, "caller", logging.MaskIdentity(info.caller))
		}
		if token := r.Header.Get("Authorization"); token != "" {
			attrs = append(attrs, logging.MaskField("authorization", token))
		}
		switch {
		case recorder.status >= http.StatusInternalServerError:
			s.logger.Error("request failed", attrs...)
		case recorder.status >= http.StatusBadRequest:
			s.logger.Warn("request rejected", attrs...)
		default:
			s.logger.Info("request served", attrs...)
		}
	})
}

// traceEscrow opens a span around every per-escrow request, tagged with the
// escrow identifier from the path.
func traceEscrow(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.Tracer().Start(r.Context(), "escrow "+r.Method,
			trace.WithAttributes(attribute.String("escrow.id", chi.URLParam(r, "id"))))
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recordSpanError(ctx context.Context, kind string, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.String("escrow.error_kind", kind),
		attribute.Bool("escrow.transient", escrow.IsTransient(err)),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, kind)
}
