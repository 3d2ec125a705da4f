package aiservice

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type operationKey struct{}

func withOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

func operationFrom(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok {
		return op
	}
	return "unknown"
}

// loggingTransport records every outbound call before it is sent and its
// failure afterwards. It never consumes the response body.
type loggingTransport struct {
	next   http.RoundTripper
	logger *slog.Logger
}

func instrument(base http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingTransport{
		next: otelhttp.NewTransport(base,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "aiservice " + operationFrom(r.Context())
			}),
		),
		logger: logger,
	}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	op := operationFrom(req.Context())
	t.logger.Info("ai service request", "op", op, "method", req.Method, "path", req.URL.Path)

	start := time.Now()
	res, err := t.next.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		observeRequest(op, 0, err, elapsed)
		t.logger.Error("ai service request failed", "op", op, "path", req.URL.Path, "err", err)
		return nil, err
	}

	observeRequest(op, res.StatusCode, nil, elapsed)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		t.logger.Warn("ai service returned error status", "op", op, "path", req.URL.Path, "status", res.StatusCode)
	}
	return res, nil
}
