package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Complex fields like
// the locator list are JSON-encoded into single hash fields. This keeps
// individual lifecycle fields queryable while leaving structured fields
// flexible.

// ProductToHash converts a DataProduct to a Redis hash format.
func ProductToHash(p *DataProduct) (map[string]interface{}, error) {
	locatorsJSON, err := json.Marshal(p.Locators)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal locators: %w", err)
	}

	hash := map[string]interface{}{
		"schema_version":           SchemaVersion,
		"product_id":               p.ProductID,
		"nova_id":                  p.NovaID,
		"provider":                 p.Provider,
		"locator_identity":         p.LocatorIdentity,
		"weak_identity":            strconv.FormatBool(p.WeakIdentity),
		"locators":                 string(locatorsJSON),
		"acquisition_status":       string(p.AcquisitionStatus),
		"validation_status":        string(p.ValidationStatus),
		"eligibility":              string(p.Eligibility),
		"attempt_count":            p.AttemptCount,
		"last_attempt_at_ms":       p.LastAttemptAtMs,
		"next_eligible_attempt_ms": p.NextEligibleAttemptMs,
		"last_error_fingerprint":   p.LastErrorFingerprint,
		"content_fingerprint":      p.ContentFingerprint,
		"byte_length":              p.ByteLength,
		"raw_object_key":           p.RawObjectKey,
		"duplicate_of_product_id":  p.DuplicateOfProductID,
		"quarantine_reason_code":   p.QuarantineReasonCode,
		"manual_review_status":     string(p.ManualReviewStatus),
		"record_version":           p.RecordVersion,
		"created_at_ms":            p.CreatedAtMs,
		"updated_at_ms":            p.UpdatedAtMs,
	}

	return hash, nil
}

// HashToProduct converts a Redis hash to a DataProduct.
func HashToProduct(hash map[string]string) (*DataProduct, error) {
	var locators []Locator
	if locatorsJSON := hash["locators"]; locatorsJSON != "" {
		if err := json.Unmarshal([]byte(locatorsJSON), &locators); err != nil {
			return nil, fmt.Errorf("failed to unmarshal locators: %w", err)
		}
	}
	if locators == nil {
		locators = []Locator{}
	}

	attemptCount, err := strconv.Atoi(zeroDefault(hash["attempt_count"]))
	if err != nil {
		return nil, fmt.Errorf("invalid attempt_count field: %w", err)
	}
	recordVersion, err := strconv.ParseInt(zeroDefault(hash["record_version"]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid record_version field: %w", err)
	}

	weakIdentity, _ := strconv.ParseBool(hash["weak_identity"])
	lastAttemptAtMs, _ := strconv.ParseInt(zeroDefault(hash["last_attempt_at_ms"]), 10, 64)
	nextEligibleMs, _ := strconv.ParseInt(zeroDefault(hash["next_eligible_attempt_ms"]), 10, 64)
	byteLength, _ := strconv.ParseInt(zeroDefault(hash["byte_length"]), 10, 64)
	createdAtMs, _ := strconv.ParseInt(zeroDefault(hash["created_at_ms"]), 10, 64)
	updatedAtMs, _ := strconv.ParseInt(zeroDefault(hash["updated_at_ms"]), 10, 64)

	product := &DataProduct{
		ProductID:             hash["product_id"],
		NovaID:                hash["nova_id"],
		Provider:              hash["provider"],
		LocatorIdentity:       hash["locator_identity"],
		WeakIdentity:          weakIdentity,
		Locators:              locators,
		AcquisitionStatus:     AcquisitionStatus(hash["acquisition_status"]),
		ValidationStatus:      ValidationStatus(hash["validation_status"]),
		Eligibility:           Eligibility(hash["eligibility"]),
		AttemptCount:          attemptCount,
		LastAttemptAtMs:       lastAttemptAtMs,
		NextEligibleAttemptMs: nextEligibleMs,
		LastErrorFingerprint:  hash["last_error_fingerprint"],
		ContentFingerprint:    hash["content_fingerprint"],
		ByteLength:            byteLength,
		RawObjectKey:          hash["raw_object_key"],
		DuplicateOfProductID:  hash["duplicate_of_product_id"],
		QuarantineReasonCode:  hash["quarantine_reason_code"],
		ManualReviewStatus:    ManualReviewStatus(hash["manual_review_status"]),
		RecordVersion:         recordVersion,
		CreatedAtMs:           createdAtMs,
		UpdatedAtMs:           updatedAtMs,
	}

	return product, nil
}

// JobRunToHash converts a JobRun to a Redis hash format.
// The idempotency key is deliberately absent: it lives only on the lock key.
func JobRunToHash(jr *JobRun) map[string]interface{} {
	return map[string]interface{}{
		"schema_version": SchemaVersion,
		"job_run_id":     jr.JobRunID,
		"nova_id":        jr.NovaID,
		"product_id":     jr.ProductID,
		"workflow_name":  jr.WorkflowName,
		"correlation_id": jr.CorrelationID,
		"status":         jr.Status,
		"outcome":        jr.Outcome,
		"started_at_ms":  jr.StartedAtMs,
		"ended_at_ms":    jr.EndedAtMs,
	}
}

// HashToJobRun converts a Redis hash to a JobRun.
func HashToJobRun(hash map[string]string) (*JobRun, error) {
	startedAtMs, err := strconv.ParseInt(zeroDefault(hash["started_at_ms"]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at_ms field: %w", err)
	}
	endedAtMs, _ := strconv.ParseInt(zeroDefault(hash["ended_at_ms"]), 10, 64)

	return &JobRun{
		JobRunID:      hash["job_run_id"],
		NovaID:        hash["nova_id"],
		ProductID:     hash["product_id"],
		WorkflowName:  hash["workflow_name"],
		CorrelationID: hash["correlation_id"],
		Status:        hash["status"],
		Outcome:       hash["outcome"],
		StartedAtMs:   startedAtMs,
		EndedAtMs:     endedAtMs,
	}, nil
}

// AttemptToHash converts an Attempt to a Redis hash format.
func AttemptToHash(a *Attempt) map[string]interface{} {
	return map[string]interface{}{
		"schema_version":       SchemaVersion,
		"nova_id":              a.NovaID,
		"job_run_id":           a.JobRunID,
		"task_name":            a.TaskName,
		"attempt_no":           a.AttemptNo,
		"status":               a.Status,
		"error_classification": a.ErrorClassification,
		"error_fingerprint":    a.ErrorFingerprint,
		"started_at_ms":        a.StartedAtMs,
		"finished_at_ms":       a.FinishedAtMs,
		"duration_ms":          a.DurationMs,
	}
}

// HashToAttempt converts a Redis hash to an Attempt.
func HashToAttempt(hash map[string]string) (*Attempt, error) {
	attemptNo, err := strconv.Atoi(zeroDefault(hash["attempt_no"]))
	if err != nil {
		return nil, fmt.Errorf("invalid attempt_no field: %w", err)
	}
	startedAtMs, _ := strconv.ParseInt(zeroDefault(hash["started_at_ms"]), 10, 64)
	finishedAtMs, _ := strconv.ParseInt(zeroDefault(hash["finished_at_ms"]), 10, 64)
	durationMs, _ := strconv.ParseInt(zeroDefault(hash["duration_ms"]), 10, 64)

	return &Attempt{
		NovaID:              hash["nova_id"],
		JobRunID:            hash["job_run_id"],
		TaskName:            hash["task_name"],
		AttemptNo:           attemptNo,
		Status:              hash["status"],
		ErrorClassification: hash["error_classification"],
		ErrorFingerprint:    hash["error_fingerprint"],
		StartedAtMs:         startedAtMs,
		FinishedAtMs:        finishedAtMs,
		DurationMs:          durationMs,
	}, nil
}

// zeroDefault maps an absent numeric hash field to "0" so strconv parsing
// treats missing and zero identically.
func zeroDefault(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
