// Package review implements the human-gated quarantine clearing path.
// Quarantine is never auto-resumed; these transitions run only on explicit
// external action.
package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/novacat/novacat/pkg/catalog"
)

// ErrNotQuarantined signals a clearing action against a product that is not
// in quarantine.
var ErrNotQuarantined = errors.New("review: product is not quarantined")

// Decision is the reviewer's verdict on a quarantined product.
type Decision string

const (
	// DecisionRetryApproved re-arms the product for acquisition with a
	// fresh retry budget.
	DecisionRetryApproved Decision = "RETRY_APPROVED"

	// DecisionTerminal declares the product permanently invalid.
	DecisionTerminal Decision = "TERMINAL"
)

// Clear applies a reviewer decision to a quarantined product. The mutation
// is optimistic-concurrency conditional and retried once on conflict, since
// a reviewer races only with other reviewers, not with the coordinator
// (the product is ineligible while quarantined).
func Clear(ctx context.Context, store *catalog.Store, novaID, productID string, decision Decision) (*catalog.DataProduct, error) {
	for attempt := 0; attempt < 2; attempt++ {
		product, err := store.GetProduct(ctx, novaID, productID)
		if err != nil {
			if catalog.IsNotFound(err) {
				return nil, fmt.Errorf("product %s not found: %w", productID, err)
			}
			return nil, fmt.Errorf("failed to load product: %w", err)
		}
		if product.ValidationStatus != catalog.ValidationQuarantined {
			return nil, fmt.Errorf("product %s has validation status %s: %w",
				productID, product.ValidationStatus, ErrNotQuarantined)
		}

		loadedVer := product.RecordVersion
		switch decision {
		case DecisionRetryApproved:
			product.ValidationStatus = catalog.ValidationUnvalidated
			product.Eligibility = catalog.EligibilityAcquire
			product.ManualReviewStatus = catalog.ReviewClearedRetryApproved
			product.QuarantineReasonCode = ""
			// Fresh retry budget: clearing quarantine is a human statement
			// that the earlier failures no longer apply.
			product.AttemptCount = 0
			product.NextEligibleAttemptMs = 0
			product.LastErrorFingerprint = ""
		case DecisionTerminal:
			product.ValidationStatus = catalog.ValidationTerminalInvalid
			product.Eligibility = catalog.EligibilityNone
			product.ManualReviewStatus = catalog.ReviewClearedTerminal
		default:
			return nil, fmt.Errorf("unknown review decision: %q", decision)
		}

		err = store.CompareAndUpdate(ctx, product, loadedVer)
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, catalog.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to apply review decision: %w", err)
		}
	}
	return nil, fmt.Errorf("review decision for product %s: %w", productID, catalog.ErrVersionConflict)
}
