package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/gitlab-sheets/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// NewHTTPHandler wires metrics and health endpoints on a single router.
func NewHTTPHandler(metricsHandler http.Handler, healthHandler http.Handler) http.Handler {
	router := chi.NewRouter()
	traceMode := telemetry.TraceMode()
	router.Handle("/metrics", wrapHTTPHandler(traceMode, "metrics", metricsHandler))
	for _, route := range []string{"livez", "readyz", "healthz"} {
		router.Handle("/"+route, wrapHTTPHandler(traceMode, route, healthHandler))
	}
	return router
}

// Serve runs handler on addr until ctx is done, then shuts it down. An empty addr disables the
// server. The returned channel yields at most one listen error and is closed on exit.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) <-chan error {
	errCh := make(chan error, 1)
	if strings.TrimSpace(addr) == "" {
		close(errCh)
		return errCh
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		defer close(errCh)
		logger.Info("http server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown failed", zap.Error(err))
		}
	}()
	return errCh
}

func wrapHTTPHandler(traceMode, route string, handler http.Handler) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	if strings.EqualFold(strings.TrimSpace(traceMode), "off") {
		return handler
	}

	operation := strings.TrimSpace(route)
	if operation == "" {
		operation = "handler"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer("gitlab-sheets/internal/app").Start(
			r.Context(),
			"http.server."+operation,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		recorder := &statusCapturingResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}
		handler.ServeHTTP(recorder, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", recorder.status))
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
			return
		}
		span.SetStatus(codes.Ok, "request completed")
	})
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
