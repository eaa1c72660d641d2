package objectstore

import (
	"fmt"
	"time"
)

// Object key layout helpers. Centralizing key construction keeps the layout
// stable across workflows; these functions perform no I/O.
//
// Layout:
//   raw/spectra/<nova_id>/<product_id>/original
//   quarantine/spectra/<nova_id>/<product_id>/<timestamp>/original

// RawSpectraKey returns the object key for a product's acquired raw bytes.
func RawSpectraKey(novaID, productID string) string {
	return fmt.Sprintf("raw/spectra/%s/%s/original", novaID, productID)
}

// QuarantineSpectraKey returns the object key for the quarantine copy of a
// product's bytes, timestamped so repeated quarantines never collide.
func QuarantineSpectraKey(novaID, productID string, at time.Time) string {
	return fmt.Sprintf("quarantine/spectra/%s/%s/%s/original",
		novaID, productID, at.UTC().Format("2006-01-02T15:04:05Z"))
}
