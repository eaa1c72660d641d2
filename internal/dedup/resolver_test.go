package dedup

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novacat/novacat/pkg/catalog"
)

func setupTestStore(t *testing.T) *catalog.Store {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store := catalog.NewStore(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFingerprint(t *testing.T) {
	t.Run("identical bytes fingerprint identically", func(t *testing.T) {
		assert.Equal(t, Fingerprint([]byte("SIMPLE  = T")), Fingerprint([]byte("SIMPLE  = T")))
	})

	t.Run("different bytes fingerprint differently", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint([]byte("a")), Fingerprint([]byte("b")))
	})

	t.Run("is a full sha256 hex digest", func(t *testing.T) {
		assert.Len(t, Fingerprint([]byte("x")), 64)
	})
}

func TestFindCanonical(t *testing.T) {
	store := setupTestStore(t)
	resolver := NewResolver(store)
	ctx := context.Background()

	t.Run("absent fingerprint reports no duplicate", func(t *testing.T) {
		_, ok, err := resolver.FindCanonical(ctx, Fingerprint([]byte("nobody")))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("finds the VALID product owning the bytes", func(t *testing.T) {
		fingerprint := Fingerprint([]byte("spectra bytes"))

		p := &catalog.DataProduct{
			ProductID:       uuid.New().String(),
			NovaID:          uuid.New().String(),
			Provider:        "ArchiveX",
			LocatorIdentity: "id:NGC-1",
			Locators: []catalog.Locator{
				{Kind: catalog.LocatorKindURL, Role: catalog.LocatorRolePrimary, Value: "https://archive.example/1"},
			},
			AcquisitionStatus: catalog.AcquisitionStub,
			ValidationStatus:  catalog.ValidationUnvalidated,
			Eligibility:       catalog.EligibilityAcquire,
		}
		require.NoError(t, store.CreateStub(ctx, p))

		p.AcquisitionStatus = catalog.AcquisitionAcquired
		p.ValidationStatus = catalog.ValidationValid
		p.Eligibility = catalog.EligibilityNone
		p.ContentFingerprint = fingerprint
		require.NoError(t, store.CompareAndUpdate(ctx, p, 1))

		owner, ok, err := resolver.FindCanonical(ctx, fingerprint)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, p.ProductID, owner)
	})

	t.Run("rejects empty fingerprint", func(t *testing.T) {
		_, _, err := resolver.FindCanonical(ctx, "")
		assert.Error(t, err)
	})
}
