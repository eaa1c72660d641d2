package coordinator

import (
	"fmt"
	"time"
)

// Idempotency key derivation. Keys are internal-only coordination state:
// they live on TTL-expired locks and are never emitted on any event payload
// or record.

// SweepBucket is the time bucket width for scheduled sweep invocations.
// A sweep re-invoking the same product within one bucket deduplicates to a
// single JobRun.
const SweepBucket = 15 * time.Minute

// DiscreteKey derives the idempotency key for a discovery-triggered
// invocation: one JobRun per (workflow, product, correlation) triple.
func DiscreteKey(workflowName, productID, correlationID string) string {
	return fmt.Sprintf("%s:%s:%s", workflowName, productID, correlationID)
}

// SweepKey derives the time-bucketed idempotency key for a scheduled sweep
// invocation, so periodic drivers cannot double-invoke within a bucket.
func SweepKey(workflowName, productID string, now time.Time) string {
	bucket := now.UTC().Truncate(SweepBucket)
	return fmt.Sprintf("%s:%s:sweep:%s", workflowName, productID, bucket.Format("2006-01-02T15:04"))
}
