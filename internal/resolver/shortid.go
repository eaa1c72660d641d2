// Package resolver expands short product ID prefixes typed on the CLI into
// full UUIDs.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/novacat/novacat/pkg/catalog"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
// Set to 6 characters to balance usability with collision avoidance.
const MinShortIDLength = 6

// ResolveProductID resolves a short ID prefix to a full product UUID within
// one nova. Returns the full UUID if exactly one product matches; a full
// UUID input is verified to exist and returned as-is.
func ResolveProductID(ctx context.Context, store *catalog.Store, novaID, shortID string) (string, error) {
	if len(shortID) == 36 && strings.Count(shortID, "-") == 4 {
		_, err := store.GetProduct(ctx, novaID, shortID)
		if err != nil {
			if catalog.IsNotFound(err) {
				return "", fmt.Errorf("product not found: %s", shortID)
			}
			return "", fmt.Errorf("failed to verify product existence: %w", err)
		}
		return shortID, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	products, err := store.ScanProducts(ctx, novaID)
	if err != nil {
		return "", fmt.Errorf("failed to search for product: %w", err)
	}

	var matches []string
	for _, p := range products {
		if strings.HasPrefix(p.ProductID, shortID) {
			matches = append(matches, p.ProductID)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no products matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no products found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple products matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d products", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError creates a user-friendly message for ambiguous short
// IDs, listing up to 10 matches.
func FormatAmbiguousError(err *AmbiguousError) string {
	msg := fmt.Sprintf("Error: ambiguous short ID '%s' matches %d products:\n", err.ShortID, len(err.Matches))

	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}
	for i := 0; i < displayCount; i++ {
		msg += fmt.Sprintf("  %s\n", err.Matches[i])
	}
	if len(err.Matches) > 10 {
		msg += fmt.Sprintf("  ...and %d more\n", len(err.Matches)-10)
	}

	msg += "\nUse a longer prefix to uniquely identify the product."
	return msg
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
