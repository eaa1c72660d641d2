package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novacat/novacat/internal/classify"
	"github.com/novacat/novacat/internal/dedup"
	"github.com/novacat/novacat/internal/notify"
	"github.com/novacat/novacat/internal/objectstore"
	"github.com/novacat/novacat/internal/provider"
	"github.com/novacat/novacat/pkg/catalog"
)

// fakeAdapter serves canned bytes or a canned error for any locator list.
type fakeAdapter struct {
	data     []byte
	err      error
	acquires int
}

func (f *fakeAdapter) Acquire(ctx context.Context, locators []catalog.Locator) ([]byte, error) {
	f.acquires++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func (f *fakeAdapter) NormalizeRecord(raw map[string]string) (provider.DiscoveredRecord, error) {
	return provider.DiscoveredRecord{NativeID: raw["native_id"], URL: raw["url"]}, nil
}

// fakeValidator returns a fixed verdict or error.
type fakeValidator struct {
	verdict ValidationResult
	err     error
}

func (f *fakeValidator) Validate(ctx context.Context, data []byte, hints map[string]string) (ValidationResult, error) {
	if f.err != nil {
		return ValidationResult{}, f.err
	}
	return f.verdict, nil
}

// fakeNotifier records events and can be told to fail.
type fakeNotifier struct {
	events []notify.QuarantineEvent
	err    error
}

func (f *fakeNotifier) Notify(ctx context.Context, event notify.QuarantineEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

// harness bundles a coordinator over miniredis with controllable parts.
type harness struct {
	store    *catalog.Store
	adapter  *fakeAdapter
	valid    *fakeValidator
	notifier *fakeNotifier
	coord    *Coordinator
	novaID   string
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store := catalog.NewStore(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { store.Close() })

	h := &harness{
		store:    store,
		adapter:  &fakeAdapter{data: []byte("SIMPLE  =                    T")},
		valid:    &fakeValidator{},
		notifier: &fakeNotifier{},
		novaID:   uuid.New().String(),
		now:      time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}

	registry := provider.NewRegistry()
	require.NoError(t, registry.Register("ArchiveX", h.adapter))

	h.coord = New(store, registry, h.valid,
		objectstore.NewRedisStore(store.RedisClient()), h.notifier,
		Config{Now: func() time.Time { return h.now }})
	return h
}

// seedProduct writes an eligible stub the coordinator can work on.
func (h *harness) seedProduct(t *testing.T) *catalog.DataProduct {
	p := &catalog.DataProduct{
		ProductID:       uuid.New().String(),
		NovaID:          h.novaID,
		Provider:        "ArchiveX",
		LocatorIdentity: "id:NGC-" + uuid.New().String(),
		Locators: []catalog.Locator{
			{Kind: catalog.LocatorKindURL, Role: catalog.LocatorRolePrimary, Value: "https://archive.example/spec.fits"},
		},
		AcquisitionStatus: catalog.AcquisitionStub,
		ValidationStatus:  catalog.ValidationUnvalidated,
		Eligibility:       catalog.EligibilityAcquire,
	}
	require.NoError(t, h.store.CreateStub(context.Background(), p))
	return p
}

func (h *harness) run(t *testing.T, productID string) Result {
	result, err := h.coord.Run(context.Background(), Request{
		NovaID:    h.novaID,
		ProductID: productID,
	})
	require.NoError(t, err)
	return result
}

func (h *harness) reload(t *testing.T, productID string) *catalog.DataProduct {
	p, err := h.store.GetProduct(context.Background(), h.novaID, productID)
	require.NoError(t, err)
	return p
}

func TestRunValidated(t *testing.T) {
	h := newHarness(t)
	p := h.seedProduct(t)

	result := h.run(t, p.ProductID)
	assert.Equal(t, OutcomeValidated, result.Outcome)
	assert.NotEmpty(t, result.JobRunID)

	stored := h.reload(t, p.ProductID)
	assert.Equal(t, catalog.AcquisitionAcquired, stored.AcquisitionStatus)
	assert.Equal(t, catalog.ValidationValid, stored.ValidationStatus)
	assert.Equal(t, catalog.EligibilityNone, stored.Eligibility)
	assert.Equal(t, dedup.Fingerprint(h.adapter.data), stored.ContentFingerprint)
	assert.Equal(t, int64(len(h.adapter.data)), stored.ByteLength)
	assert.NotEmpty(t, stored.RawObjectKey)

	// Eligibility index entry is gone.
	eligible, err := h.store.IsEligible(context.Background(), h.novaID, "ArchiveX", p.ProductID)
	require.NoError(t, err)
	assert.False(t, eligible)

	// The fingerprint index names this product canonical.
	owner, err := h.store.FindByFingerprint(context.Background(), stored.ContentFingerprint)
	require.NoError(t, err)
	assert.Equal(t, p.ProductID, owner)

	// JobRun finalized COMPLETED with the outcome.
	jr, err := h.store.GetJobRun(context.Background(), h.novaID, result.JobRunID)
	require.NoError(t, err)
	assert.Equal(t, catalog.JobRunStatusCompleted, jr.Status)
	assert.Equal(t, "VALIDATED", jr.Outcome)

	// Both task attempts recorded as SUCCEEDED.
	acq, err := h.store.GetAttempt(context.Background(), h.novaID, result.JobRunID, "Acquire", 1)
	require.NoError(t, err)
	assert.Equal(t, catalog.AttemptSucceeded, acq.Status)
	val, err := h.store.GetAttempt(context.Background(), h.novaID, result.JobRunID, "Validate", 1)
	require.NoError(t, err)
	assert.Equal(t, catalog.AttemptSucceeded, val.Status)
}

func TestRunDuplicateOfExisting(t *testing.T) {
	h := newHarness(t)

	// First product claims the bytes.
	first := h.seedProduct(t)
	result := h.run(t, first.ProductID)
	require.Equal(t, OutcomeValidated, result.Outcome)

	// Second product with a different identity downloads identical bytes.
	second := h.seedProduct(t)
	result = h.run(t, second.ProductID)
	assert.Equal(t, OutcomeDuplicateOfExisting, result.Outcome)
	assert.Equal(t, first.ProductID, result.DuplicateOfProductID)

	stored := h.reload(t, second.ProductID)
	assert.Equal(t, first.ProductID, stored.DuplicateOfProductID)
	assert.Equal(t, catalog.EligibilityNone, stored.Eligibility)
	// A duplicate is never VALID; the canonical product keeps that status.
	assert.NotEqual(t, catalog.ValidationValid, stored.ValidationStatus)

	// Re-running the duplicate is a no-op skip.
	result = h.run(t, second.ProductID)
	assert.Equal(t, OutcomeSkippedDuplicate, result.Outcome)
}

func TestRunSkipsValidProduct(t *testing.T) {
	h := newHarness(t)
	p := h.seedProduct(t)

	require.Equal(t, OutcomeValidated, h.run(t, p.ProductID).Outcome)

	acquiresBefore := h.adapter.acquires
	result := h.run(t, p.ProductID)
	assert.Equal(t, OutcomeSkippedDuplicate, result.Outcome)
	assert.Equal(t, acquiresBefore, h.adapter.acquires, "skip must not touch the provider")
}

func TestRunIdempotentInvocation(t *testing.T) {
	h := newHarness(t)
	p := h.seedProduct(t)
	ctx := context.Background()

	correlationID := uuid.New().String()
	req := Request{NovaID: h.novaID, ProductID: p.ProductID, CorrelationID: correlationID}

	first, err := h.coord.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeValidated, first.Outcome)

	// Same (workflow, product, correlation) triple: fails closed, no effects.
	second, err := h.coord.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedDuplicate, second.Outcome)
	assert.Empty(t, second.JobRunID)
	assert.Equal(t, 1, h.adapter.acquires)

	// Only one JobRun exists.
	ids, err := h.store.ListJobRuns(ctx, h.novaID, WorkflowName, 10)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestRunRetryableFailure(t *testing.T) {
	h := newHarness(t)
	p := h.seedProduct(t)
	h.adapter.err = classify.NewFailure(classify.KindNetwork, "connection refused")

	result := h.run(t, p.ProductID)
	assert.Equal(t, OutcomeFailedRetryable, result.Outcome)
	assert.NotEmpty(t, result.ErrorFingerprint)
	assert.Greater(t, result.NextEligibleAttemptMs, h.now.UnixMilli())

	stored := h.reload(t, p.ProductID)
	assert.Equal(t, catalog.AcquisitionFailedRetryable, stored.AcquisitionStatus)
	assert.Equal(t, catalog.ValidationUnvalidated, stored.ValidationStatus, "operational failure must not touch scientific state")
	assert.Equal(t, catalog.EligibilityAcquire, stored.Eligibility)
	assert.Equal(t, 1, stored.AttemptCount)
	assert.Equal(t, result.ErrorFingerprint, stored.LastErrorFingerprint)

	// Still in the eligibility index: the product remains work to do.
	eligible, err := h.store.IsEligible(context.Background(), h.novaID, "ArchiveX", p.ProductID)
	require.NoError(t, err)
	assert.True(t, eligible)

	// The JobRun is finalized normally; a retryable failure is still a
	// completed execution, recorded with the FAILED status.
	jr, err := h.store.GetJobRun(context.Background(), h.novaID, result.JobRunID)
	require.NoError(t, err)
	assert.Equal(t, catalog.JobRunStatusFailed, jr.Status)
	assert.Equal(t, "FAILED_RETRYABLE", jr.Outcome)
}

func TestRunCooldownEnforced(t *testing.T) {
	h := newHarness(t)
	p := h.seedProduct(t)
	h.adapter.err = classify.NewFailure(classify.KindTimeout, "slow archive")

	first := h.run(t, p.ProductID)
	require.Equal(t, OutcomeFailedRetryable, first.Outcome)

	// Within the cooldown window nothing runs.
	acquiresBefore := h.adapter.acquires
	result := h.run(t, p.ProductID)
	assert.Equal(t, OutcomeSkippedBackoff, result.Outcome)
	assert.Equal(t, first.NextEligibleAttemptMs, result.NextEligibleAttemptMs)
	assert.Equal(t, acquiresBefore, h.adapter.acquires)

	// After the floor passes, the next attempt proceeds and succeeds.
	h.now = time.UnixMilli(first.NextEligibleAttemptMs).Add(time.Second)
	h.adapter.err = nil
	result = h.run(t, p.ProductID)
	assert.Equal(t, OutcomeValidated, result.Outcome)

	stored := h.reload(t, p.ProductID)
	assert.Equal(t, catalog.ValidationValid, stored.ValidationStatus)
}

func TestRunTerminalFailure(t *testing.T) {
	h := newHarness(t)
	p := h.seedProduct(t)
	h.adapter.err = classify.NewFailure(classify.KindNotFound, "spectrum withdrawn")

	result := h.run(t, p.ProductID)
	assert.Equal(t, OutcomeTerminalFail, result.Outcome)

	stored := h.reload(t, p.ProductID)
	assert.Equal(t, catalog.ValidationTerminalInvalid, stored.ValidationStatus)
	assert.Equal(t, catalog.EligibilityNone, stored.Eligibility)
	assert.Zero(t, stored.AttemptCount, "terminal failures burn no retry budget")

	eligible, err := h.store.IsEligible(context.Background(), h.novaID, "ArchiveX", p.ProductID)
	require.NoError(t, err)
	assert.False(t, eligible)

	// Re-running reports the terminal state without touching the provider.
	acquiresBefore := h.adapter.acquires
	result = h.run(t, p.ProductID)
	assert.Equal(t, OutcomeTerminalFail, result.Outcome)
	assert.Equal(t, acquiresBefore, h.adapter.acquires)
}

func TestRunQuarantine(t *testing.T) {
	h := newHarness(t)

	t.Run("validation verdict quarantines with notification", func(t *testing.T) {
		p := h.seedProduct(t)
		h.valid.verdict = ValidationResult{Quarantine: true, ReasonCode: "UNKNOWN_PROFILE"}

		result := h.run(t, p.ProductID)
		assert.Equal(t, OutcomeQuarantined, result.Outcome)
		assert.Equal(t, "UNKNOWN_PROFILE", result.QuarantineReasonCode)

		stored := h.reload(t, p.ProductID)
		assert.Equal(t, catalog.ValidationQuarantined, stored.ValidationStatus)
		assert.Equal(t, catalog.EligibilityNone, stored.Eligibility)
		assert.Equal(t, "UNKNOWN_PROFILE", stored.QuarantineReasonCode)
		assert.Equal(t, catalog.ReviewPending, stored.ManualReviewStatus)

		require.Len(t, h.notifier.events, 1)
		event := h.notifier.events[0]
		assert.Equal(t, p.ProductID, event.ProductID)
		assert.Equal(t, "UNKNOWN_PROFILE", event.ReasonCode)
		assert.NotEmpty(t, event.ObjectKey)

		// Quarantine is never auto-resumed.
		result = h.run(t, p.ProductID)
		assert.Equal(t, OutcomeQuarantined, result.Outcome)
		assert.Equal(t, "UNKNOWN_PROFILE", result.QuarantineReasonCode)
	})

	t.Run("notifier failure does not block the quarantine transition", func(t *testing.T) {
		p := h.seedProduct(t)
		h.valid.verdict = ValidationResult{Quarantine: true, ReasonCode: "UNKNOWN_PROFILE"}
		h.notifier.err = errors.New("pubsub down")

		result := h.run(t, p.ProductID)
		assert.Equal(t, OutcomeQuarantined, result.Outcome)

		stored := h.reload(t, p.ProductID)
		assert.Equal(t, catalog.ValidationQuarantined, stored.ValidationStatus)
	})

	t.Run("checksum mismatch during validation quarantines", func(t *testing.T) {
		p := h.seedProduct(t)
		h.valid.verdict = ValidationResult{}
		h.valid.err = classify.NewFailure(classify.KindChecksumMismatch, "sha mismatch")
		h.notifier.err = nil

		result := h.run(t, p.ProductID)
		assert.Equal(t, OutcomeQuarantined, result.Outcome)
		assert.Equal(t, string(classify.KindChecksumMismatch), result.QuarantineReasonCode)
		assert.NotEmpty(t, result.ErrorFingerprint)
	})
}

func TestRunUnknownProduct(t *testing.T) {
	h := newHarness(t)

	result := h.run(t, uuid.New().String())
	assert.Equal(t, OutcomeTerminalFail, result.Outcome)
	assert.NotEmpty(t, result.ErrorFingerprint)
}

func TestRunUnregisteredProvider(t *testing.T) {
	h := newHarness(t)

	p := &catalog.DataProduct{
		ProductID:       uuid.New().String(),
		NovaID:          h.novaID,
		Provider:        "UnknownArchive",
		LocatorIdentity: "id:NGC-X",
		Locators: []catalog.Locator{
			{Kind: catalog.LocatorKindURL, Role: catalog.LocatorRolePrimary, Value: "https://x.example/1"},
		},
		AcquisitionStatus: catalog.AcquisitionStub,
		ValidationStatus:  catalog.ValidationUnvalidated,
		Eligibility:       catalog.EligibilityAcquire,
	}
	require.NoError(t, h.store.CreateStub(context.Background(), p))

	result := h.run(t, p.ProductID)
	assert.Equal(t, OutcomeTerminalFail, result.Outcome)

	stored := h.reload(t, p.ProductID)
	assert.Equal(t, catalog.ValidationTerminalInvalid, stored.ValidationStatus)
}

func TestRunThrottledBackoffLongerThanGeneric(t *testing.T) {
	h := newHarness(t)

	generic := h.seedProduct(t)
	h.adapter.err = classify.NewFailure(classify.KindNetwork, "refused")
	genericResult := h.run(t, generic.ProductID)
	require.Equal(t, OutcomeFailedRetryable, genericResult.Outcome)

	throttled := h.seedProduct(t)
	h.adapter.err = classify.NewFailure(classify.KindThrottled, "429 too many requests")
	throttledResult := h.run(t, throttled.ProductID)
	require.Equal(t, OutcomeFailedRetryable, throttledResult.Outcome)

	genericDelay := genericResult.NextEligibleAttemptMs - h.now.UnixMilli()
	throttledDelay := throttledResult.NextEligibleAttemptMs - h.now.UnixMilli()
	assert.Greater(t, throttledDelay, genericDelay)
}

func TestDiscreteAndSweepKeys(t *testing.T) {
	t.Run("discrete key varies with correlation", func(t *testing.T) {
		a := DiscreteKey(WorkflowName, "p1", "c1")
		b := DiscreteKey(WorkflowName, "p1", "c2")
		assert.NotEqual(t, a, b)
	})

	t.Run("sweep key is stable within a bucket", func(t *testing.T) {
		base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
		a := SweepKey(WorkflowName, "p1", base)
		b := SweepKey(WorkflowName, "p1", base.Add(SweepBucket-time.Second))
		c := SweepKey(WorkflowName, "p1", base.Add(SweepBucket))
		assert.Equal(t, a, b)
		assert.NotEqual(t, a, c)
	})
}
