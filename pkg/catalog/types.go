// Package catalog provides type-safe Go definitions and Redis schema patterns
// for the Nova Cat product catalog. The catalog is the durable shared state
// all Nova Cat components (discovery, coordinator, CLI) interact with via
// well-defined data structures stored in Redis.
//
// All Redis keys and channels are namespaced so multiple catalog deployments
// can safely coexist on a single Redis server.
package catalog

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is stamped on every persisted record. Bump only for
// backward-incompatible record shape changes.
const SchemaVersion = "1"

// DataProduct is the atomic unit of scientific work: one externally-sourced
// spectra artifact belonging to a nova. Products are created as stubs by
// discovery, mutated exclusively through the acquisition coordinator's
// conditional writes, and never deleted - terminal states are retained for
// audit and future duplicate lookups.
type DataProduct struct {
	ProductID       string    `json:"product_id"`       // UUID, immutable once assigned
	NovaID          string    `json:"nova_id"`          // UUID of the owning nova
	Provider        string    `json:"provider"`         // e.g. "ArchiveX"
	LocatorIdentity string    `json:"locator_identity"` // "id:<native>" or "url:<normalized>"
	WeakIdentity    bool      `json:"weak_identity"`    // identity derived from an unparseable locator
	Locators        []Locator `json:"locators"`         // ordered, first PRIMARY entry is authoritative

	AcquisitionStatus AcquisitionStatus `json:"acquisition_status"`
	ValidationStatus  ValidationStatus  `json:"validation_status"`
	Eligibility       Eligibility       `json:"eligibility"`

	// Operational retry bookkeeping. These fields never encode scientific
	// validity; that lives in ValidationStatus alone.
	AttemptCount          int   `json:"attempt_count"`
	LastAttemptAtMs       int64 `json:"last_attempt_at_ms,omitempty"`
	NextEligibleAttemptMs int64 `json:"next_eligible_attempt_ms,omitempty"`

	LastErrorFingerprint string `json:"last_error_fingerprint,omitempty"`

	// Set once bytes have been acquired and fingerprinted.
	ContentFingerprint string `json:"content_fingerprint,omitempty"`
	ByteLength         int64  `json:"byte_length,omitempty"`
	RawObjectKey       string `json:"raw_object_key,omitempty"`

	DuplicateOfProductID string `json:"duplicate_of_product_id,omitempty"`

	QuarantineReasonCode string             `json:"quarantine_reason_code,omitempty"`
	ManualReviewStatus   ManualReviewStatus `json:"manual_review_status,omitempty"`

	// RecordVersion backs optimistic concurrency. Starts at 1 on stub
	// creation and increments on every CompareAndUpdate.
	RecordVersion int64 `json:"record_version"`

	CreatedAtMs int64 `json:"created_at_ms"`
	UpdatedAtMs int64 `json:"updated_at_ms"`
}

// Locator is one access path for a product's bytes.
type Locator struct {
	Kind  LocatorKind `json:"kind"`
	Role  LocatorRole `json:"role"`
	Value string      `json:"value"`
}

// LocatorKind identifies the access mechanism for a locator value.
type LocatorKind string

const (
	LocatorKindURL    LocatorKind = "URL"
	LocatorKindObject LocatorKind = "OBJECT"
	LocatorKindOther  LocatorKind = "OTHER"
)

// LocatorRole marks which locator the coordinator tries first.
type LocatorRole string

const (
	LocatorRolePrimary LocatorRole = "PRIMARY"
	LocatorRoleMirror  LocatorRole = "MIRROR"
)

// AcquisitionStatus tracks whether bytes have been fetched for a product.
type AcquisitionStatus string

const (
	AcquisitionStub            AcquisitionStatus = "STUB"
	AcquisitionAcquired        AcquisitionStatus = "ACQUIRED"
	AcquisitionFailedRetryable AcquisitionStatus = "FAILED_RETRYABLE"
)

// ValidationStatus is the scientific lifecycle state of a product.
// It never encodes retryability.
type ValidationStatus string

const (
	ValidationUnvalidated     ValidationStatus = "UNVALIDATED"
	ValidationValid           ValidationStatus = "VALID"
	ValidationQuarantined     ValidationStatus = "QUARANTINED"
	ValidationTerminalInvalid ValidationStatus = "TERMINAL_INVALID"
)

// Definitive reports whether the validation status is final: the product no
// longer needs an acquisition attempt.
func (vs ValidationStatus) Definitive() bool {
	switch vs {
	case ValidationValid, ValidationQuarantined, ValidationTerminalInvalid:
		return true
	}
	return false
}

// Eligibility says whether a product still requires an acquisition attempt.
type Eligibility string

const (
	EligibilityAcquire Eligibility = "ACQUIRE"
	EligibilityNone    Eligibility = "NONE"
)

// ManualReviewStatus gates quarantined products. Quarantine is never
// auto-resumed; only an explicit clearing action moves a product out.
type ManualReviewStatus string

const (
	ReviewPending              ManualReviewStatus = "PENDING"
	ReviewClearedRetryApproved ManualReviewStatus = "CLEARED_RETRY_APPROVED"
	ReviewClearedTerminal      ManualReviewStatus = "CLEARED_TERMINAL"
)

// JobRun is the audit record for one coordinator invocation.
// The idempotency key lives only on the lock, never on this record's
// externally visible serializations.
type JobRun struct {
	JobRunID      string `json:"job_run_id"`
	NovaID        string `json:"nova_id"`
	ProductID     string `json:"product_id"`
	WorkflowName  string `json:"workflow_name"`
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`            // RUNNING until finalized
	Outcome       string `json:"outcome,omitempty"` // set at finalization
	StartedAtMs   int64  `json:"started_at_ms"`
	EndedAtMs     int64  `json:"ended_at_ms,omitempty"`
}

// JobRunStatusRunning is the initial JobRun status; finalization replaces it
// with the terminal outcome's status string.
const (
	JobRunStatusRunning   = "RUNNING"
	JobRunStatusCompleted = "COMPLETED"
	JobRunStatusFailed    = "FAILED"
)

// Attempt records one task invocation within a JobRun, including each retry.
type Attempt struct {
	NovaID              string `json:"nova_id"`
	JobRunID            string `json:"job_run_id"`
	TaskName            string `json:"task_name"`
	AttemptNo           int    `json:"attempt_no"`
	Status              string `json:"status"` // STARTED, SUCCEEDED, FAILED
	ErrorClassification string `json:"error_classification,omitempty"`
	ErrorFingerprint    string `json:"error_fingerprint,omitempty"`
	StartedAtMs         int64  `json:"started_at_ms"`
	FinishedAtMs        int64  `json:"finished_at_ms,omitempty"`
	DurationMs          int64  `json:"duration_ms,omitempty"`
}

// Attempt status values.
const (
	AttemptStarted   = "STARTED"
	AttemptSucceeded = "SUCCEEDED"
	AttemptFailed    = "FAILED"
)

// LocatorAlias is the global identity mapping
// (provider, locator_identity) -> product_id. Alias rows are created at most
// once per key (first-writer-wins) and never updated.
type LocatorAlias struct {
	Provider        string `json:"provider"`
	LocatorIdentity string `json:"locator_identity"`
	ProductID       string `json:"product_id"`
	NovaID          string `json:"nova_id"`
	CreatedAtMs     int64  `json:"created_at_ms"`
}

// Validate checks the DataProduct's field values and cross-field invariants.
func (p *DataProduct) Validate() error {
	if !isValidUUID(p.ProductID) {
		return fmt.Errorf("invalid product ID: not a valid UUID")
	}
	if !isValidUUID(p.NovaID) {
		return fmt.Errorf("invalid nova ID: not a valid UUID")
	}
	if p.Provider == "" {
		return fmt.Errorf("provider cannot be empty")
	}
	if p.LocatorIdentity == "" {
		return fmt.Errorf("locator_identity cannot be empty")
	}
	if err := p.AcquisitionStatus.Validate(); err != nil {
		return fmt.Errorf("invalid acquisition status: %w", err)
	}
	if err := p.ValidationStatus.Validate(); err != nil {
		return fmt.Errorf("invalid validation status: %w", err)
	}
	if err := p.Eligibility.Validate(); err != nil {
		return fmt.Errorf("invalid eligibility: %w", err)
	}
	if p.AttemptCount < 0 {
		return fmt.Errorf("attempt_count must be >= 0, got %d", p.AttemptCount)
	}
	if p.RecordVersion < 1 {
		return fmt.Errorf("record_version must be >= 1, got %d", p.RecordVersion)
	}
	for i, loc := range p.Locators {
		if err := loc.Validate(); err != nil {
			return fmt.Errorf("invalid locator at index %d: %w", i, err)
		}
	}
	if p.DuplicateOfProductID != "" && !isValidUUID(p.DuplicateOfProductID) {
		return fmt.Errorf("invalid duplicate_of_product_id: not a valid UUID")
	}

	// Cross-field invariants.
	if p.ValidationStatus == ValidationValid && p.DuplicateOfProductID != "" {
		return fmt.Errorf("VALID product cannot also be a duplicate of %s", p.DuplicateOfProductID)
	}
	if p.eligibilityShouldBeAcquire() != (p.Eligibility == EligibilityAcquire) {
		return fmt.Errorf("eligibility %q inconsistent with validation_status %q duplicate_of %q",
			p.Eligibility, p.ValidationStatus, p.DuplicateOfProductID)
	}
	return nil
}

// eligibilityShouldBeAcquire applies the invariant: a product is eligible
// iff its scientific fate is still undecided.
func (p *DataProduct) eligibilityShouldBeAcquire() bool {
	return !p.ValidationStatus.Definitive() && p.DuplicateOfProductID == ""
}

// Validate checks a Locator's fields.
func (l Locator) Validate() error {
	switch l.Kind {
	case LocatorKindURL, LocatorKindObject, LocatorKindOther:
	default:
		return fmt.Errorf("unknown locator kind: %q", l.Kind)
	}
	switch l.Role {
	case LocatorRolePrimary, LocatorRoleMirror:
	default:
		return fmt.Errorf("unknown locator role: %q", l.Role)
	}
	if l.Value == "" {
		return fmt.Errorf("locator value cannot be empty")
	}
	return nil
}

// PrimaryLocator returns the first PRIMARY locator, or the first locator if
// none is marked primary. Returns false when the product has no locators.
func (p *DataProduct) PrimaryLocator() (Locator, bool) {
	for _, loc := range p.Locators {
		if loc.Role == LocatorRolePrimary {
			return loc, true
		}
	}
	if len(p.Locators) > 0 {
		return p.Locators[0], true
	}
	return Locator{}, false
}

// Validate checks if the AcquisitionStatus is a valid enum value.
func (as AcquisitionStatus) Validate() error {
	switch as {
	case AcquisitionStub, AcquisitionAcquired, AcquisitionFailedRetryable:
		return nil
	default:
		return fmt.Errorf("unknown acquisition status: %q", as)
	}
}

// Validate checks if the ValidationStatus is a valid enum value.
func (vs ValidationStatus) Validate() error {
	switch vs {
	case ValidationUnvalidated, ValidationValid, ValidationQuarantined, ValidationTerminalInvalid:
		return nil
	default:
		return fmt.Errorf("unknown validation status: %q", vs)
	}
}

// Validate checks if the Eligibility is a valid enum value.
func (e Eligibility) Validate() error {
	switch e {
	case EligibilityAcquire, EligibilityNone:
		return nil
	default:
		return fmt.Errorf("unknown eligibility: %q", e)
	}
}

// Validate checks the JobRun's field values.
func (jr *JobRun) Validate() error {
	if !isValidUUID(jr.JobRunID) {
		return fmt.Errorf("invalid job run ID: not a valid UUID")
	}
	if !isValidUUID(jr.NovaID) {
		return fmt.Errorf("invalid nova ID: not a valid UUID")
	}
	if !isValidUUID(jr.ProductID) {
		return fmt.Errorf("invalid product ID: not a valid UUID")
	}
	if jr.WorkflowName == "" {
		return fmt.Errorf("workflow_name cannot be empty")
	}
	if jr.CorrelationID == "" {
		return fmt.Errorf("correlation_id cannot be empty")
	}
	if jr.StartedAtMs <= 0 {
		return fmt.Errorf("started_at_ms must be set")
	}
	return nil
}

// Validate checks the Attempt's field values.
func (a *Attempt) Validate() error {
	if !isValidUUID(a.JobRunID) {
		return fmt.Errorf("invalid job run ID: not a valid UUID")
	}
	if !isValidUUID(a.NovaID) {
		return fmt.Errorf("invalid nova ID: not a valid UUID")
	}
	if a.TaskName == "" {
		return fmt.Errorf("task_name cannot be empty")
	}
	if a.AttemptNo < 1 {
		return fmt.Errorf("attempt_no must be >= 1, got %d", a.AttemptNo)
	}
	return nil
}

// Validate checks the LocatorAlias's field values.
func (la *LocatorAlias) Validate() error {
	if la.Provider == "" {
		return fmt.Errorf("provider cannot be empty")
	}
	if la.LocatorIdentity == "" {
		return fmt.Errorf("locator_identity cannot be empty")
	}
	if !isValidUUID(la.ProductID) {
		return fmt.Errorf("invalid product ID: not a valid UUID")
	}
	if !isValidUUID(la.NovaID) {
		return fmt.Errorf("invalid nova ID: not a valid UUID")
	}
	return nil
}

// NowMs returns the current wall-clock time in Unix milliseconds.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
