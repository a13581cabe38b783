package images

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/jerilmartin/infini8seo-sub000/internal/common"
)

func TestFetchImages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "beekeeping", r.URL.Query().Get("query"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"photos": [
				{"alt": "bees on a frame", "photographer": "A. Keeper", "photographer_url": "https://example.com/ak", "src": {"large": "https://images.example.com/1.jpg"}},
				{"alt": "", "photographer": "B. Hive", "photographer_url": "https://example.com/bh", "src": {"large": "https://images.example.com/2.jpg"}},
				{"alt": "no src", "photographer": "C", "photographer_url": "", "src": {"large": ""}}
			]
		}`))
	}))
	defer server.Close()

	provider := NewPexelsProvider(&common.ImagesConfig{APIKey: "test-key", BaseURL: server.URL}, arbor.NewLogger())

	refs := provider.FetchImages(context.Background(), []string{"beekeeping", "hives"}, "Persona 1", 2)
	require.Len(t, refs, 2)
	assert.Equal(t, "https://images.example.com/1.jpg", refs[0].URL)
	assert.Equal(t, "bees on a frame", refs[0].Alt)
	assert.Equal(t, "A. Keeper", refs[0].Photographer)
	// Missing alt falls back to the query
	assert.Equal(t, "beekeeping", refs[1].Alt)
}

func TestFetchImagesNeverErrors(t *testing.T) {
	ctx := context.Background()
	logger := arbor.NewLogger()

	// No API key: silently disabled
	disabled := NewPexelsProvider(&common.ImagesConfig{}, logger)
	assert.Nil(t, disabled.FetchImages(ctx, []string{"topic"}, "Persona 1", 2))

	// Server error: empty result, no panic
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	failing := NewPexelsProvider(&common.ImagesConfig{APIKey: "k", BaseURL: server.URL}, logger)
	assert.Empty(t, failing.FetchImages(ctx, []string{"topic"}, "Persona 1", 2))

	// Unreachable host: empty result
	dead := NewPexelsProvider(&common.ImagesConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1"}, logger)
	assert.Empty(t, dead.FetchImages(ctx, []string{"topic"}, "Persona 1", 2))

	// Garbage body: empty result
	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer garbage.Close()

	broken := NewPexelsProvider(&common.ImagesConfig{APIKey: "k", BaseURL: garbage.URL}, logger)
	assert.Empty(t, broken.FetchImages(ctx, []string{"topic"}, "Persona 1", 2))
}

func TestFetchImagesQueryFallback(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		w.Write([]byte(`{"photos": []}`))
	}))
	defer server.Close()

	provider := NewPexelsProvider(&common.ImagesConfig{APIKey: "k", BaseURL: server.URL}, arbor.NewLogger())

	// No keywords: fall back to the persona name
	provider.FetchImages(context.Background(), nil, "Persona 3", 1)
	assert.Equal(t, "Persona 3", gotQuery)
}
