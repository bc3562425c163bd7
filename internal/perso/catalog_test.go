// ABOUTME: Tests for the cached platform catalog
// ABOUTME: Covers listing decode, result unwrapping, caching, and invalidation

package perso

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T, handler http.Handler) *Catalog {
	t.Helper()
	client, _ := newTestClient(t, handler)
	catalog := NewCatalog(client)
	t.Cleanup(catalog.Close)
	return catalog
}

func TestCatalogPrompts(t *testing.T) {
	catalog := newTestCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/prompt/", r.URL.Path)
		fmt.Fprint(w, `{"results": [
			{"prompt_id": "p1", "name": "Default", "description": "baseline"},
			{"prompt_id": "p2", "name": "Strict"}
		]}`)
	}))

	prompts, err := catalog.Prompts(context.Background())
	require.NoError(t, err)
	require.Len(t, prompts, 2)
	assert.Equal(t, "p1", prompts[0].ID)
	assert.Equal(t, "Default", prompts[0].Name)
	assert.Equal(t, "baseline", prompts[0].Description)
	assert.Equal(t, "p2", prompts[1].ID)
}

func TestCatalogBareListing(t *testing.T) {
	// Some listings arrive as a bare array rather than wrapped in results
	catalog := newTestCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"name": "studio", "thumbnail_url": "https://cdn/x.png"}]`)
	}))

	styles, err := catalog.ModelStyles(context.Background())
	require.NoError(t, err)
	require.Len(t, styles, 1)
	assert.Equal(t, "studio", styles[0].Name)
	assert.Equal(t, "https://cdn/x.png", styles[0].Preview)
}

func TestCatalogCachesListings(t *testing.T) {
	var calls atomic.Int64
	catalog := newTestCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"results": [{"document_id": "d1", "name": "Resume"}]}`)
	}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		docs, err := catalog.Documents(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "d1", docs[0].ID)
	}
	assert.Equal(t, int64(1), calls.Load(), "repeat listings must come from cache")

	catalog.Invalidate()
	_, err := catalog.Documents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load(), "invalidation forces a refetch")
}

func TestCatalogUpstreamError(t *testing.T) {
	catalog := newTestCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := catalog.AIModels(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestCatalogDecodeError(t *testing.T) {
	catalog := newTestCatalog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": "not-an-array"}`)
	}))

	_, err := catalog.Prompts(context.Background())
	assert.Error(t, err)
}
