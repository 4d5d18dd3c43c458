package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestHandlerAndClientPropagate(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	opts := []otelhttp.Option{
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithPropagators(propagation.TraceContext{}),
	}

	var backendTrace trace.TraceID
	backend := httptest.NewServer(Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendTrace = trace.SpanContextFromContext(r.Context()).TraceID()
		w.WriteHeader(http.StatusOK)
	}), "backend", opts...))
	defer backend.Close()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, backend.URL+"/auth/callback", nil)
	require.NoError(t, err)
	resp, err := Client(opts...).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Eventually(t, func() bool { return len(recorder.Ended()) == 2 }, time.Second, 10*time.Millisecond)
	spans := recorder.Ended()
	kinds := map[trace.SpanKind]trace.TraceID{}
	for _, s := range spans {
		kinds[s.SpanKind()] = s.SpanContext().TraceID()
	}
	require.Contains(t, kinds, trace.SpanKindClient)
	require.Contains(t, kinds, trace.SpanKindServer)
	assert.Equal(t, kinds[trace.SpanKindClient], kinds[trace.SpanKindServer], "server span joins the client trace")
	assert.Equal(t, kinds[trace.SpanKindClient], backendTrace)
}
