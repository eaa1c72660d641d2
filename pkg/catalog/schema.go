package catalog

import "fmt"

// Redis key pattern helpers
//
// Three logically different index shapes (primary product record, locator
// alias, eligibility projection) are views over the one store; they are
// updated together through conditional writes, never independently.
//
// Key pattern: novacat:{nova_id}:{entity}:{id}
// Global-partition keys (alias, fingerprint, lock) omit the nova segment.

// ProductKey returns the Redis key for a product record hash.
// Pattern: novacat:{nova_id}:product:{product_id}
func ProductKey(novaID, productID string) string {
	return fmt.Sprintf("novacat:%s:product:%s", novaID, productID)
}

// AliasKey returns the Redis key for a locator alias row.
// Aliases are global-partition: the same (provider, locator_identity) must
// resolve to one product regardless of which nova discovered it.
// Pattern: novacat:alias:{provider}:{locator_identity}
func AliasKey(provider, locatorIdentity string) string {
	return fmt.Sprintf("novacat:alias:%s:%s", provider, locatorIdentity)
}

// EligibleSetKey returns the Redis key for the eligibility index SET of a
// (nova, provider) pair. A product_id is a member iff eligibility == ACQUIRE.
// Pattern: novacat:{nova_id}:eligible:{provider}
func EligibleSetKey(novaID, provider string) string {
	return fmt.Sprintf("novacat:%s:eligible:%s", novaID, provider)
}

// FingerprintKey returns the Redis key mapping a content fingerprint to the
// canonical VALID product that owns those bytes.
// Pattern: novacat:fp:{content_fingerprint}
func FingerprintKey(fingerprint string) string {
	return fmt.Sprintf("novacat:fp:%s", fingerprint)
}

// JobRunKey returns the Redis key for a JobRun hash.
// Pattern: novacat:{nova_id}:jobrun:{job_run_id}
func JobRunKey(novaID, jobRunID string) string {
	return fmt.Sprintf("novacat:%s:jobrun:%s", novaID, jobRunID)
}

// JobRunIndexKey returns the Redis key for the per-workflow JobRun time
// index ZSET (score = started_at_ms, member = job_run_id).
// Pattern: novacat:{nova_id}:jobruns:{workflow_name}
func JobRunIndexKey(novaID, workflowName string) string {
	return fmt.Sprintf("novacat:%s:jobruns:%s", novaID, workflowName)
}

// AttemptKey returns the Redis key for an Attempt hash.
// Pattern: novacat:{nova_id}:attempt:{job_run_id}:{task_name}:{attempt_no}
func AttemptKey(novaID, jobRunID, taskName string, attemptNo int) string {
	return fmt.Sprintf("novacat:%s:attempt:%s:%s:%d", novaID, jobRunID, taskName, attemptNo)
}

// LockKey returns the Redis key for an idempotency lock.
// Locks are global-partition and TTL-expired.
// Pattern: novacat:lock:{idempotency_key}
func LockKey(idempotencyKey string) string {
	return fmt.Sprintf("novacat:lock:%s", idempotencyKey)
}

// QuarantineEventsChannel returns the Pub/Sub channel for quarantine
// notifications of one nova.
// Pattern: novacat:{nova_id}:quarantine_events
func QuarantineEventsChannel(novaID string) string {
	return fmt.Sprintf("novacat:%s:quarantine_events", novaID)
}

// ProductScanPattern returns the SCAN match pattern covering every product
// record of one nova.
func ProductScanPattern(novaID string) string {
	return fmt.Sprintf("novacat:%s:product:*", novaID)
}
