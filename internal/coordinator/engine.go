// Package coordinator implements the acquisition-and-validation state
// machine for one product per invocation: LOAD, duplicate guard, cooldown
// check, ACQUIRE, VALIDATE, duplicate check. The coordinator never loops
// internally; repeated attempts happen only through repeated external
// invocations, and every invocation reconstructs its decision from the
// catalog, so no in-memory state survives a call boundary.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/novacat/novacat/internal/classify"
	"github.com/novacat/novacat/internal/dedup"
	"github.com/novacat/novacat/internal/notify"
	"github.com/novacat/novacat/internal/objectstore"
	"github.com/novacat/novacat/internal/provider"
	"github.com/novacat/novacat/internal/retry"
	"github.com/novacat/novacat/internal/telemetry"
	"github.com/novacat/novacat/pkg/catalog"
)

// WorkflowName identifies this workflow on every record and event.
const WorkflowName = "acquire_and_validate_spectra"

// Task names recorded on the execution ledger.
const (
	taskAcquire  = "Acquire"
	taskValidate = "Validate"
)

// ValidationResult is the canonical outcome of the Validate capability.
// A retryable or terminal validation failure is returned as an error
// (ideally a *classify.Failure) instead.
type ValidationResult struct {
	Quarantine bool
	ReasonCode string // set when Quarantine
}

// Validator is the content validation capability. CPU-bound; bounded by the
// caller's context.
type Validator interface {
	Validate(ctx context.Context, data []byte, hints map[string]string) (ValidationResult, error)
}

// Notifier delivers quarantine events, best-effort.
type Notifier interface {
	Notify(ctx context.Context, event notify.QuarantineEvent) error
}

// Request identifies one coordinator invocation.
type Request struct {
	NovaID        string
	ProductID     string
	CorrelationID string

	// IdempotencyKey overrides the derived key; leave empty for the
	// default DiscreteKey. Sweep drivers pass SweepKey.
	IdempotencyKey string
}

// Result reports the terminal outcome of one execution.
type Result struct {
	Outcome               Outcome
	JobRunID              string
	DuplicateOfProductID  string
	QuarantineReasonCode  string
	ErrorFingerprint      string
	NextEligibleAttemptMs int64
}

// Config bounds the coordinator's suspension points and lock lifetime.
type Config struct {
	AcquireTimeout  time.Duration // network-bound, default 5m
	ValidateTimeout time.Duration // CPU-bound, default 1m
	LockTTL         time.Duration // idempotency lock lifetime, default 1h
	Now             func() time.Time
}

func (c *Config) applyDefaults() {
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Minute
	}
	if c.ValidateTimeout <= 0 {
		c.ValidateTimeout = 1 * time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 1 * time.Hour
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Coordinator sequences one acquisition-and-validation execution per call.
// Safe for concurrent use across distinct products; per product, the
// idempotency lock in BeginJobRun serializes effect-producing executions
// even across processes.
type Coordinator struct {
	store     *catalog.Store
	providers *provider.Registry
	validator Validator
	objects   objectstore.Store
	dedup     *dedup.Resolver
	notifier  Notifier
	cfg       Config
}

// New creates a coordinator.
func New(store *catalog.Store, providers *provider.Registry, validator Validator,
	objects objectstore.Store, notifier Notifier, cfg Config) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		store:     store,
		providers: providers,
		validator: validator,
		objects:   objects,
		dedup:     dedup.NewResolver(store),
		notifier:  notifier,
		cfg:       cfg,
	}
}

// execution carries per-invocation state between the state machine steps.
type execution struct {
	req       Request
	jobRunID  string
	product   *catalog.DataProduct
	loadedVer int64
	startedAt time.Time
}

// Run executes the state machine for one product. The returned error is an
// infrastructure failure only; QUARANTINED and TERMINAL_FAIL are successful
// outcomes carried in the Result.
func (c *Coordinator) Run(ctx context.Context, req Request) (Result, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.New().String()
	}
	idemKey := req.IdempotencyKey
	if idemKey == "" {
		idemKey = DiscreteKey(WorkflowName, req.ProductID, req.CorrelationID)
	}

	exec := &execution{
		req:       req,
		jobRunID:  uuid.New().String(),
		startedAt: c.cfg.Now(),
	}

	// The idempotency lock and the JobRun are taken together; a second
	// invocation with the same key fails closed before any effect.
	err := c.store.BeginJobRun(ctx, &catalog.JobRun{
		JobRunID:      exec.jobRunID,
		NovaID:        req.NovaID,
		ProductID:     req.ProductID,
		WorkflowName:  WorkflowName,
		CorrelationID: req.CorrelationID,
		StartedAtMs:   exec.startedAt.UnixMilli(),
	}, idemKey, c.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, catalog.ErrDuplicateInvocation) {
			c.logEvent(exec, "duplicate_invocation_skipped", nil)
			telemetry.CoordinatorOutcome(string(OutcomeSkippedDuplicate))
			return Result{Outcome: OutcomeSkippedDuplicate}, nil
		}
		telemetry.CoordinatorError()
		return Result{}, fmt.Errorf("failed to begin job run: %w", err)
	}

	result, err := c.run(ctx, exec)
	if err != nil {
		// Infrastructure failure: finalize the JobRun as FAILED with no
		// outcome and propagate to the driver's retry envelope.
		if finErr := c.store.FinalizeJobRun(ctx, req.NovaID, exec.jobRunID,
			catalog.JobRunStatusFailed, "", c.cfg.Now().UnixMilli()); finErr != nil {
			c.logEvent(exec, "finalize_failed", map[string]interface{}{"error": finErr.Error()})
		}
		telemetry.CoordinatorError()
		return Result{}, err
	}
	return result, nil
}

// run walks the state machine after the JobRun exists.
func (c *Coordinator) run(ctx context.Context, exec *execution) (Result, error) {
	// LOAD
	product, err := c.store.GetProduct(ctx, exec.req.NovaID, exec.req.ProductID)
	if err != nil {
		if catalog.IsNotFound(err) {
			return c.finish(ctx, exec, Result{
				Outcome:          OutcomeTerminalFail,
				ErrorFingerprint: classify.Fingerprint(string(classify.KindImpossibleState), "unknown product"),
			})
		}
		return Result{}, fmt.Errorf("failed to load product: %w", err)
	}
	exec.product = product
	exec.loadedVer = product.RecordVersion

	// CHECK_DUPLICATE_GUARD
	if product.ValidationStatus == catalog.ValidationValid || product.DuplicateOfProductID != "" {
		return c.finish(ctx, exec, Result{
			Outcome:              OutcomeSkippedDuplicate,
			DuplicateOfProductID: product.DuplicateOfProductID,
		})
	}

	// CHECK_COOLDOWN
	now := c.cfg.Now()
	if product.NextEligibleAttemptMs != 0 && now.UnixMilli() < product.NextEligibleAttemptMs {
		return c.finish(ctx, exec, Result{
			Outcome:               OutcomeSkippedBackoff,
			NextEligibleAttemptMs: product.NextEligibleAttemptMs,
		})
	}
	if product.ValidationStatus == catalog.ValidationQuarantined {
		// Human-gated: never auto-resumed.
		return c.finish(ctx, exec, Result{
			Outcome:              OutcomeQuarantined,
			QuarantineReasonCode: product.QuarantineReasonCode,
		})
	}
	if product.ValidationStatus == catalog.ValidationTerminalInvalid {
		return c.finish(ctx, exec, Result{
			Outcome:          OutcomeTerminalFail,
			ErrorFingerprint: product.LastErrorFingerprint,
		})
	}

	// ACQUIRE
	data, failResult, err := c.acquire(ctx, exec)
	if err != nil {
		return Result{}, err
	}
	if failResult != nil {
		return c.finish(ctx, exec, *failResult)
	}

	// VALIDATE
	failResult, err = c.validate(ctx, exec, data)
	if err != nil {
		return Result{}, err
	}
	if failResult != nil {
		return c.finish(ctx, exec, *failResult)
	}

	// DUPLICATE_CHECK
	result, err := c.resolveDuplicate(ctx, exec, data)
	if err != nil {
		return Result{}, err
	}
	return c.finish(ctx, exec, result)
}

// acquire fetches the product's bytes and persists them to the object
// store. A nil failResult with nil error means bytes are ready; a non-nil
// failResult carries a FAILED_RETRYABLE or TERMINAL_FAIL outcome.
func (c *Coordinator) acquire(ctx context.Context, exec *execution) (data []byte, failResult *Result, err error) {
	product := exec.product
	attemptNo := product.AttemptCount + 1

	if err := c.recordAttemptStart(ctx, exec, taskAcquire, attemptNo); err != nil {
		return nil, nil, err
	}
	attemptStart := c.cfg.Now()

	adapter, err := c.providers.Get(product.Provider)
	if err != nil {
		// A product referencing an unregistered provider cannot proceed.
		failure := classify.NewFailure(classify.KindImpossibleState, "no adapter for provider %s", product.Provider)
		failResult, err := c.handleTaskFailure(ctx, exec, taskAcquire, attemptNo, attemptStart, failure)
		return nil, failResult, err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, c.cfg.AcquireTimeout)
	data, acquireErr := adapter.Acquire(acquireCtx, product.Locators)
	cancel()
	if acquireErr != nil {
		if ctx.Err() != nil {
			// Driver cancelled the whole invocation: infrastructure, not a
			// product verdict.
			return nil, nil, fmt.Errorf("acquire cancelled: %w", ctx.Err())
		}
		if errors.Is(acquireErr, context.DeadlineExceeded) {
			acquireErr = classify.NewFailure(classify.KindTimeout, "acquire exceeded %s", c.cfg.AcquireTimeout)
		}
		failResult, err := c.handleTaskFailure(ctx, exec, taskAcquire, attemptNo, attemptStart, acquireErr)
		return nil, failResult, err
	}

	rawKey := objectstore.RawSpectraKey(product.NovaID, product.ProductID)
	if _, err := c.objects.Put(ctx, rawKey, data); err != nil {
		return nil, nil, fmt.Errorf("failed to store raw bytes: %w", err)
	}
	product.RawObjectKey = rawKey
	product.ByteLength = int64(len(data))
	product.AcquisitionStatus = catalog.AcquisitionAcquired

	if err := c.recordAttemptFinish(ctx, exec, taskAcquire, attemptNo, attemptStart, catalog.AttemptSucceeded, "", ""); err != nil {
		return nil, nil, err
	}
	return data, nil, nil
}

// validate runs the Validate capability. A nil failResult means the bytes
// are scientifically acceptable and duplicate resolution should proceed.
func (c *Coordinator) validate(ctx context.Context, exec *execution, data []byte) (*Result, error) {
	product := exec.product
	attemptNo := product.AttemptCount + 1

	if err := c.recordAttemptStart(ctx, exec, taskValidate, attemptNo); err != nil {
		return nil, err
	}
	attemptStart := c.cfg.Now()

	hints := map[string]string{
		"provider":         product.Provider,
		"locator_identity": product.LocatorIdentity,
	}

	validateCtx, cancel := context.WithTimeout(ctx, c.cfg.ValidateTimeout)
	verdict, validateErr := c.validator.Validate(validateCtx, data, hints)
	cancel()
	if validateErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("validate cancelled: %w", ctx.Err())
		}
		if errors.Is(validateErr, context.DeadlineExceeded) {
			validateErr = classify.NewFailure(classify.KindTimeout, "validate exceeded %s", c.cfg.ValidateTimeout)
		}
		return c.handleTaskFailure(ctx, exec, taskValidate, attemptNo, attemptStart, validateErr)
	}

	if verdict.Quarantine {
		if err := c.recordAttemptFinish(ctx, exec, taskValidate, attemptNo, attemptStart,
			catalog.AttemptFailed, string(classify.Quarantine), classify.Fingerprint("QUARANTINE", verdict.ReasonCode)); err != nil {
			return nil, err
		}
		result, err := c.quarantine(ctx, exec, data, verdict.ReasonCode)
		if err != nil {
			return nil, err
		}
		return &result, nil
	}

	if err := c.recordAttemptFinish(ctx, exec, taskValidate, attemptNo, attemptStart, catalog.AttemptSucceeded, "", ""); err != nil {
		return nil, err
	}
	return nil, nil
}

// resolveDuplicate fingerprints the bytes and either marks the product a
// duplicate of the canonical VALID owner or promotes it to VALID.
func (c *Coordinator) resolveDuplicate(ctx context.Context, exec *execution, data []byte) (Result, error) {
	product := exec.product

	fingerprint := dedup.Fingerprint(data)
	product.ContentFingerprint = fingerprint

	canonicalID, found, err := c.dedup.FindCanonical(ctx, fingerprint)
	if err != nil {
		return Result{}, err
	}

	if found && canonicalID != product.ProductID {
		product.DuplicateOfProductID = canonicalID
		product.Eligibility = catalog.EligibilityNone
		// ValidationStatus deliberately stays non-VALID: VALID and
		// duplicate-of are mutually exclusive.
		if err := c.persistProduct(ctx, exec); err != nil {
			return Result{}, err
		}
		c.logEvent(exec, "duplicate_detected", map[string]interface{}{
			"duplicate_of_product_id": canonicalID,
			"content_fingerprint":     fingerprint,
		})
		return Result{
			Outcome:              OutcomeDuplicateOfExisting,
			DuplicateOfProductID: canonicalID,
		}, nil
	}

	product.ValidationStatus = catalog.ValidationValid
	product.Eligibility = catalog.EligibilityNone
	product.QuarantineReasonCode = ""
	product.ManualReviewStatus = ""
	if err := c.persistProduct(ctx, exec); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeValidated}, nil
}

// quarantine persists the quarantine verdict, copies the bytes to the
// quarantine area, and notifies reviewers. The notification and the byte
// copy are best-effort; only the catalog write is load-bearing.
func (c *Coordinator) quarantine(ctx context.Context, exec *execution, data []byte, reasonCode string) (Result, error) {
	product := exec.product

	// No quarantine copy when the failure happened before any bytes landed.
	var quarantineKey string
	if len(data) > 0 {
		quarantineKey = objectstore.QuarantineSpectraKey(product.NovaID, product.ProductID, c.cfg.Now())
		if _, err := c.objects.Put(ctx, quarantineKey, data); err != nil {
			c.logEvent(exec, "quarantine_copy_failed", map[string]interface{}{"error": err.Error()})
		}
	}

	product.ValidationStatus = catalog.ValidationQuarantined
	product.Eligibility = catalog.EligibilityNone
	product.QuarantineReasonCode = reasonCode
	product.ManualReviewStatus = catalog.ReviewPending
	if err := c.persistProduct(ctx, exec); err != nil {
		return Result{}, err
	}

	if err := c.notifier.Notify(ctx, notify.QuarantineEvent{
		WorkflowName:  WorkflowName,
		JobRunID:      exec.jobRunID,
		CorrelationID: exec.req.CorrelationID,
		NovaID:        product.NovaID,
		ProductID:     product.ProductID,
		Provider:      product.Provider,
		ReasonCode:    reasonCode,
		ObjectKey:     quarantineKey,
	}); err != nil {
		telemetry.QuarantineNotifyFailure()
		c.logEvent(exec, "quarantine_notify_failed", map[string]interface{}{"error": err.Error()})
	}

	return Result{Outcome: OutcomeQuarantined, QuarantineReasonCode: reasonCode}, nil
}

// handleTaskFailure classifies a task error, records the attempt, persists
// the resulting product transition, and maps the classification onto a
// terminal outcome. Failures are classified exactly once, here.
func (c *Coordinator) handleTaskFailure(ctx context.Context, exec *execution,
	taskName string, attemptNo int, attemptStart time.Time, taskErr error) (*Result, error) {

	classification, kind, fingerprint := classify.Classify(taskErr)
	product := exec.product

	if err := c.recordAttemptFinish(ctx, exec, taskName, attemptNo, attemptStart,
		catalog.AttemptFailed, string(classification), fingerprint); err != nil {
		return nil, err
	}
	c.logEvent(exec, "task_failed", map[string]interface{}{
		"task_name":            taskName,
		"error_classification": string(classification),
		"error_fingerprint":    fingerprint,
		"failure_kind":         string(kind),
	})

	now := c.cfg.Now()
	product.LastErrorFingerprint = fingerprint
	product.LastAttemptAtMs = now.UnixMilli()

	switch classification {
	case classify.Retryable:
		product.AttemptCount++
		product.AcquisitionStatus = failedAcquisitionStatus(product)
		nextAt := retry.NextEligibleAttempt(now, product.AttemptCount, classify.Throttled(taskErr), product.ProductID)
		product.NextEligibleAttemptMs = nextAt.UnixMilli()
		if err := c.persistProduct(ctx, exec); err != nil {
			return nil, err
		}
		return &Result{
			Outcome:               OutcomeFailedRetryable,
			ErrorFingerprint:      fingerprint,
			NextEligibleAttemptMs: product.NextEligibleAttemptMs,
		}, nil

	case classify.Quarantine:
		result, err := c.quarantine(ctx, exec, nil, string(kind))
		if err != nil {
			return nil, err
		}
		result.ErrorFingerprint = fingerprint
		return &result, nil

	default: // classify.Terminal
		product.ValidationStatus = catalog.ValidationTerminalInvalid
		product.Eligibility = catalog.EligibilityNone
		if err := c.persistProduct(ctx, exec); err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeTerminalFail, ErrorFingerprint: fingerprint}, nil
	}
}

// failedAcquisitionStatus keeps ACQUIRED when bytes already landed this
// execution (a validation retry) and records FAILED_RETRYABLE otherwise.
func failedAcquisitionStatus(product *catalog.DataProduct) catalog.AcquisitionStatus {
	if product.AcquisitionStatus == catalog.AcquisitionAcquired {
		return catalog.AcquisitionAcquired
	}
	return catalog.AcquisitionFailedRetryable
}

// persistProduct applies the execution's product mutation conditional on
// the version loaded at LOAD. The idempotency lock makes a conflict an
// anomaly, so it propagates as an infrastructure error rather than being
// silently retried.
func (c *Coordinator) persistProduct(ctx context.Context, exec *execution) error {
	if err := c.store.CompareAndUpdate(ctx, exec.product, exec.loadedVer); err != nil {
		return fmt.Errorf("failed to persist product transition: %w", err)
	}
	exec.loadedVer = exec.product.RecordVersion
	return nil
}

func (c *Coordinator) recordAttemptStart(ctx context.Context, exec *execution, taskName string, attemptNo int) error {
	err := c.store.RecordAttemptStarted(ctx, &catalog.Attempt{
		NovaID:      exec.req.NovaID,
		JobRunID:    exec.jobRunID,
		TaskName:    taskName,
		AttemptNo:   attemptNo,
		StartedAtMs: c.cfg.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to record %s attempt start: %w", taskName, err)
	}
	return nil
}

func (c *Coordinator) recordAttemptFinish(ctx context.Context, exec *execution,
	taskName string, attemptNo int, attemptStart time.Time, status, classification, fingerprint string) error {

	finishedAt := c.cfg.Now()
	duration := finishedAt.Sub(attemptStart)
	telemetry.AttemptDuration(taskName, duration.Seconds())

	err := c.store.RecordAttemptFinished(ctx, &catalog.Attempt{
		NovaID:              exec.req.NovaID,
		JobRunID:            exec.jobRunID,
		TaskName:            taskName,
		AttemptNo:           attemptNo,
		Status:              status,
		ErrorClassification: classification,
		ErrorFingerprint:    fingerprint,
		StartedAtMs:         attemptStart.UnixMilli(),
		FinishedAtMs:        finishedAt.UnixMilli(),
		DurationMs:          duration.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("failed to record %s attempt finish: %w", taskName, err)
	}
	return nil
}

// finish finalizes the JobRun with the terminal outcome and emits the
// completion event.
func (c *Coordinator) finish(ctx context.Context, exec *execution, result Result) (Result, error) {
	result.JobRunID = exec.jobRunID
	endedAt := c.cfg.Now()

	err := c.store.FinalizeJobRun(ctx, exec.req.NovaID, exec.jobRunID,
		result.Outcome.jobRunStatus(), string(result.Outcome), endedAt.UnixMilli())
	if err != nil {
		return Result{}, fmt.Errorf("failed to finalize job run: %w", err)
	}

	fields := map[string]interface{}{
		"outcome":     string(result.Outcome),
		"duration_ms": endedAt.Sub(exec.startedAt).Milliseconds(),
	}
	if result.ErrorFingerprint != "" {
		fields["error_fingerprint"] = result.ErrorFingerprint
	}
	if result.DuplicateOfProductID != "" {
		fields["duplicate_of_product_id"] = result.DuplicateOfProductID
	}
	c.logEvent(exec, "execution_completed", fields)
	telemetry.CoordinatorOutcome(string(result.Outcome))
	return result, nil
}

// logEvent logs a structured event in JSON format with the standard
// context fields. The idempotency key never appears here.
func (c *Coordinator) logEvent(exec *execution, eventType string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "coordinator"
	data["event_type"] = eventType
	data["workflow_name"] = WorkflowName
	data["job_run_id"] = exec.jobRunID
	data["correlation_id"] = exec.req.CorrelationID
	data["nova_id"] = exec.req.NovaID
	data["product_id"] = exec.req.ProductID

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Coordinator] Failed to marshal log event: %v", err)
		return
	}
	log.Println(string(jsonData))
}
