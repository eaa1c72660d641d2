package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novacat/novacat/internal/classify"
	"github.com/novacat/novacat/pkg/catalog"
)

func urlLocator(role catalog.LocatorRole, value string) catalog.Locator {
	return catalog.Locator{Kind: catalog.LocatorKindURL, Role: role, Value: value}
}

func TestHTTPAdapterAcquire(t *testing.T) {
	adapter := NewHTTPAdapter(nil)
	ctx := context.Background()

	t.Run("fetches bytes from the primary locator", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("SIMPLE"))
		}))
		defer srv.Close()

		data, err := adapter.Acquire(ctx, []catalog.Locator{urlLocator(catalog.LocatorRolePrimary, srv.URL)})
		require.NoError(t, err)
		assert.Equal(t, []byte("SIMPLE"), data)
	})

	t.Run("falls back to the mirror on retryable failure", func(t *testing.T) {
		broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer broken.Close()
		mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("from mirror"))
		}))
		defer mirror.Close()

		data, err := adapter.Acquire(ctx, []catalog.Locator{
			urlLocator(catalog.LocatorRolePrimary, broken.URL),
			urlLocator(catalog.LocatorRoleMirror, mirror.URL),
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("from mirror"), data)
	})

	t.Run("does not try mirrors after a terminal failure", func(t *testing.T) {
		gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer gone.Close()
		var mirrorHits int
		mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mirrorHits++
			w.Write([]byte("should not be reached"))
		}))
		defer mirror.Close()

		_, err := adapter.Acquire(ctx, []catalog.Locator{
			urlLocator(catalog.LocatorRolePrimary, gone.URL),
			urlLocator(catalog.LocatorRoleMirror, mirror.URL),
		})
		require.Error(t, err)
		cls, kind, _ := classify.Classify(err)
		assert.Equal(t, classify.Terminal, cls)
		assert.Equal(t, classify.KindNotFound, kind)
		assert.Zero(t, mirrorHits)
	})

	t.Run("maps status codes onto the failure taxonomy", func(t *testing.T) {
		cases := []struct {
			status int
			kind   classify.FailureKind
		}{
			{http.StatusTooManyRequests, classify.KindThrottled},
			{http.StatusNotFound, classify.KindNotFound},
			{http.StatusInternalServerError, classify.KindProviderUnavailable},
			{http.StatusForbidden, classify.KindBadRequest},
		}
		for _, tc := range cases {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			_, err := adapter.Acquire(ctx, []catalog.Locator{urlLocator(catalog.LocatorRolePrimary, srv.URL)})
			srv.Close()
			require.Error(t, err, "status %d", tc.status)
			_, kind, _ := classify.Classify(err)
			assert.Equal(t, tc.kind, kind, "status %d", tc.status)
		}
	})

	t.Run("unreachable host is a network failure", func(t *testing.T) {
		_, err := adapter.Acquire(ctx, []catalog.Locator{
			urlLocator(catalog.LocatorRolePrimary, "http://127.0.0.1:1/never"),
		})
		require.Error(t, err)
		_, kind, _ := classify.Classify(err)
		assert.Equal(t, classify.KindNetwork, kind)
	})

	t.Run("rejects empty locator list", func(t *testing.T) {
		_, err := adapter.Acquire(ctx, nil)
		require.Error(t, err)
		_, kind, _ := classify.Classify(err)
		assert.Equal(t, classify.KindImpossibleState, kind)
	})
}

func TestHTTPAdapterNormalizeRecord(t *testing.T) {
	adapter := NewHTTPAdapter(nil)

	t.Run("maps known keys and hints", func(t *testing.T) {
		record, err := adapter.NormalizeRecord(map[string]string{
			"native_id": " NGC-1 ",
			"url":       "https://archive.example/1.fits",
			"mirrors":   "https://m1.example/1.fits, https://m2.example/1.fits",
			"obs_date":  "2026-08-29",
		})
		require.NoError(t, err)
		assert.Equal(t, "NGC-1", record.NativeID)
		assert.Equal(t, "https://archive.example/1.fits", record.URL)
		assert.Equal(t, []string{"https://m1.example/1.fits", "https://m2.example/1.fits"}, record.Mirrors)
		assert.Equal(t, "2026-08-29", record.Hints["obs_date"])
	})

	t.Run("rejects record with no identity material", func(t *testing.T) {
		_, err := adapter.NormalizeRecord(map[string]string{"obs_date": "2026-08-29"})
		assert.Error(t, err)
	})
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	adapter := NewHTTPAdapter(nil)

	t.Run("registers and resolves adapters", func(t *testing.T) {
		require.NoError(t, registry.Register("ArchiveX", adapter))
		got, err := registry.Get("ArchiveX")
		require.NoError(t, err)
		assert.Equal(t, adapter, got)
	})

	t.Run("rejects duplicate registration", func(t *testing.T) {
		err := registry.Register("ArchiveX", adapter)
		assert.Error(t, err)
	})

	t.Run("rejects empty name and nil adapter", func(t *testing.T) {
		assert.Error(t, registry.Register("", adapter))
		assert.Error(t, registry.Register("ArchiveY", nil))
	})

	t.Run("unknown provider reports known names", func(t *testing.T) {
		_, err := registry.Get("Nowhere")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ArchiveX")
	})

	t.Run("names are sorted", func(t *testing.T) {
		require.NoError(t, registry.Register("AAA", adapter))
		assert.Equal(t, []string{"AAA", "ArchiveX"}, registry.Names())
	})
}
