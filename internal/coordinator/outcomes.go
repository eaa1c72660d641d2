package coordinator

import "github.com/novacat/novacat/pkg/catalog"

// Outcome is the terminal result of one coordinator execution. Exactly one
// outcome is produced per execution; QUARANTINED and TERMINAL_FAIL are
// successful executions (the coordinator did its job of classifying the
// product), distinct from infrastructure errors which propagate to the
// driver.
type Outcome string

const (
	// OutcomeSkippedDuplicate: the product is already VALID or a duplicate,
	// or the idempotency key already has a JobRun. No effects produced.
	OutcomeSkippedDuplicate Outcome = "SKIPPED_DUPLICATE"

	// OutcomeSkippedBackoff: the cooldown floor has not passed. Acquire was
	// not called.
	OutcomeSkippedBackoff Outcome = "SKIPPED_BACKOFF"

	// OutcomeValidated: bytes acquired, validated, and unique. Product is
	// now VALID.
	OutcomeValidated Outcome = "VALIDATED"

	// OutcomeDuplicateOfExisting: bytes are byte-identical to an existing
	// VALID product. The original product is untouched.
	OutcomeDuplicateOfExisting Outcome = "DUPLICATE_OF_EXISTING"

	// OutcomeQuarantined: content needs human judgment. Never auto-retried.
	OutcomeQuarantined Outcome = "QUARANTINED"

	// OutcomeFailedRetryable: a transient failure occurred; a cooldown was
	// scheduled and the product stays eligible.
	OutcomeFailedRetryable Outcome = "FAILED_RETRYABLE"

	// OutcomeTerminalFail: the product can never be acquired or validated.
	OutcomeTerminalFail Outcome = "TERMINAL_FAIL"
)

// jobRunStatus maps an outcome onto the coarse JobRun status field.
func (o Outcome) jobRunStatus() string {
	switch o {
	case OutcomeFailedRetryable, OutcomeTerminalFail:
		return catalog.JobRunStatusFailed
	default:
		return catalog.JobRunStatusCompleted
	}
}
