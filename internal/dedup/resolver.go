// Package dedup detects byte-identical duplicates across independently
// discovered products by content fingerprint.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/novacat/novacat/pkg/catalog"
)

// Fingerprint returns the canonical content fingerprint for raw product
// bytes: the full sha256 hex digest.
func Fingerprint(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// Resolver answers "has a VALID product already claimed these bytes".
// It is read-only: all mutation stays with the coordinator after the answer
// is known, preserving a single writer per product. Safe for concurrent use.
type Resolver struct {
	store *catalog.Store
}

// NewResolver creates a duplicate resolver backed by the catalog store.
func NewResolver(store *catalog.Store) *Resolver {
	return &Resolver{store: store}
}

// FindCanonical returns the product ID of the VALID product owning the
// fingerprint, or ok=false when no VALID product has it. The index only ever
// contains VALID products: CompareAndUpdate registers a fingerprint solely
// on the transition to VALID.
func (r *Resolver) FindCanonical(ctx context.Context, fingerprint string) (string, bool, error) {
	if fingerprint == "" {
		return "", false, fmt.Errorf("fingerprint cannot be empty")
	}

	productID, err := r.store.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		if catalog.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("fingerprint lookup failed: %w", err)
	}
	return productID, true, nil
}
