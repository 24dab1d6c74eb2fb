package o11y

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goware/cachestore/cachestorectl"
	"github.com/goware/cachestore/memlru"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceBuildsSpanTree(t *testing.T) {
	ctx, root := Trace(context.Background(), "claim", WithSpanKind(SpanKindServer))
	_, child := Trace(ctx, "platform.Google.GetProviderPayload", WithAnnotation("platform", "Google"))
	child.End()
	root.End()

	require.Len(t, root.Spans, 1)
	assert.Equal(t, "platform.Google.GetProviderPayload", root.Spans[0].Name)
	assert.Equal(t, "Google", root.Spans[0].Annotations["platform"])
	assert.False(t, root.EndedAt.IsZero())
	assert.GreaterOrEqual(t, root.DurationMS, int64(0))
}

func TestRecordErrorMetadata(t *testing.T) {
	_, span := Trace(context.Background(), "claim")
	span.RecordError(fmt.Errorf("redirect wait timed out"))
	span.End()

	assert.Equal(t, "redirect wait timed out", span.Metadata["error.message"])
	assert.NotEmpty(t, span.Metadata["error.type"])
	assert.NotEmpty(t, span.Metadata["error.stack"])

	_, clean := Trace(context.Background(), "claim")
	clean.RecordError(nil)
	assert.NotContains(t, clean.Metadata, "error.message")
}

func TestWrapClientRecordsClientSpan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	ctx, root := Trace(context.Background(), "claim")

	client := WrapClient(srv.Client())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/SignatureAddress", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	root.End()

	require.Len(t, root.Spans, 1)
	span := root.Spans[0]
	assert.Equal(t, SpanKindClient, span.Kind)
	assert.Equal(t, http.StatusCreated, span.Status)
	assert.Equal(t, http.MethodGet, span.Metadata["http.method"])
	assert.Equal(t, "/api/SignatureAddress", span.Metadata["http.path"])
}

func TestTracedCacheAnnotatesSource(t *testing.T) {
	store, err := cachestorectl.Open[string](memlru.Backend(16))
	require.NoError(t, err)
	cache := NewTracedCache("oauth-secrets", store)

	ctx, root := Trace(context.Background(), "claim")

	getter := func(_ context.Context, _ string) (string, error) {
		return "secret-value", nil
	}

	value, err := cache.GetOrSetWithLock(ctx, "google/client-id", getter)
	require.NoError(t, err)
	assert.Equal(t, "secret-value", value)

	value, err = cache.GetOrSetWithLock(ctx, "google/client-id", getter)
	require.NoError(t, err)
	assert.Equal(t, "secret-value", value)

	root.End()
	require.Len(t, root.Spans, 2)
	assert.Equal(t, "origin", root.Spans[0].Annotations["source"])
	assert.Equal(t, "cache", root.Spans[1].Annotations["source"])
}
