package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sentinel errors for conditional-write outcomes. Callers distinguish these
// from infrastructure failures with errors.Is.
var (
	// ErrVersionConflict signals a CompareAndUpdate against a stale
	// record_version. The caller must reload and re-derive its decision,
	// never blindly overwrite.
	ErrVersionConflict = errors.New("catalog: record version conflict")

	// ErrAlreadyExists signals a conditional create against an existing key.
	ErrAlreadyExists = errors.New("catalog: record already exists")

	// ErrDuplicateInvocation signals that an idempotency key already holds a
	// JobRun; the invocation must produce no further effects.
	ErrDuplicateInvocation = errors.New("catalog: duplicate invocation for idempotency key")

	// ErrAlreadyFinalized signals a second finalization of a JobRun.
	ErrAlreadyFinalized = errors.New("catalog: job run already finalized")
)

// Store provides catalog-scoped Redis operations. It is the single mutation
// path for product records, locator aliases, the eligibility index, and the
// execution ledger. The store is thread-safe and can be used concurrently
// from multiple goroutines; cross-process safety comes from the conditional
// writes, not in-process locking.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a catalog store from Redis connection options.
func NewStore(redisOpts *redis.Options) *Store {
	return &Store{rdb: redis.NewClient(redisOpts)}
}

// Close closes the Redis connection. Implements io.Closer.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// RedisClient exposes the underlying client for scan-style read paths
// (CLI listing) and tests. Mutations must go through Store methods.
func (s *Store) RedisClient() *redis.Client {
	return s.rdb
}

// createStubScript conditionally creates a product record and, in the same
// operation, inserts the eligibility index entry. Returns 0 when the record
// already exists.
const createStubScript = `
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
for i = 3, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
if ARGV[2] == 'ACQUIRE' then
  redis.call('SADD', KEYS[2], ARGV[1])
end
return 1
`

// CreateStub conditionally creates a new product record. The record and its
// eligibility index entry are written in one atomic script so a concurrent
// eligibility scan can never observe one without the other.
// Returns ErrAlreadyExists if the product is already present.
func (s *Store) CreateStub(ctx context.Context, p *DataProduct) error {
	if p.RecordVersion == 0 {
		p.RecordVersion = 1
	}
	if p.CreatedAtMs == 0 {
		p.CreatedAtMs = NowMs()
	}
	p.UpdatedAtMs = p.CreatedAtMs
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid product stub: %w", err)
	}

	hash, err := ProductToHash(p)
	if err != nil {
		return fmt.Errorf("failed to serialize product: %w", err)
	}

	keys := []string{
		ProductKey(p.NovaID, p.ProductID),
		EligibleSetKey(p.NovaID, p.Provider),
	}
	args := append([]interface{}{p.ProductID, string(p.Eligibility)}, flattenHash(hash)...)

	created, err := s.rdb.Eval(ctx, createStubScript, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to create product stub: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("product %s: %w", p.ProductID, ErrAlreadyExists)
	}
	return nil
}

// GetProduct retrieves a product record.
// Returns (nil, redis.Nil) if the product doesn't exist; check with IsNotFound.
func (s *Store) GetProduct(ctx context.Context, novaID, productID string) (*DataProduct, error) {
	hashData, err := s.rdb.HGetAll(ctx, ProductKey(novaID, productID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read product from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	product, err := HashToProduct(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize product: %w", err)
	}
	return product, nil
}

// compareAndUpdateScript applies a full product mutation only when the
// stored record_version matches the expectation, and maintains the
// eligibility index and the VALID fingerprint index in the same operation.
// Returns -1 on version conflict, 1 on success.
const compareAndUpdateScript = `
local stored = redis.call('HGET', KEYS[1], 'record_version')
if not stored or tonumber(stored) ~= tonumber(ARGV[1]) then
  return -1
end
for i = 6, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
if ARGV[3] == 'ACQUIRE' then
  redis.call('SADD', KEYS[2], ARGV[2])
else
  redis.call('SREM', KEYS[2], ARGV[2])
end
if ARGV[4] == 'VALID' and ARGV[5] ~= '' then
  redis.call('SET', KEYS[3], ARGV[2], 'NX')
end
return 1
`

// CompareAndUpdate persists a mutated product record, conditional on the
// stored record_version still being expectedVersion. On success the stored
// record carries expectedVersion+1. The eligibility index entry is inserted
// or removed atomically with the record write, and a product turning VALID
// registers its content fingerprint as canonical (first VALID writer wins).
//
// Returns ErrVersionConflict when a concurrent transition got there first;
// the caller reloads and re-derives its decision.
func (s *Store) CompareAndUpdate(ctx context.Context, p *DataProduct, expectedVersion int64) error {
	p.RecordVersion = expectedVersion + 1
	p.UpdatedAtMs = NowMs()
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid product mutation: %w", err)
	}

	hash, err := ProductToHash(p)
	if err != nil {
		return fmt.Errorf("failed to serialize product: %w", err)
	}

	fingerprintKey := FingerprintKey(p.ContentFingerprint)
	keys := []string{
		ProductKey(p.NovaID, p.ProductID),
		EligibleSetKey(p.NovaID, p.Provider),
		fingerprintKey,
	}
	args := append([]interface{}{
		expectedVersion,
		p.ProductID,
		string(p.Eligibility),
		string(p.ValidationStatus),
		p.ContentFingerprint,
	}, flattenHash(hash)...)

	applied, err := s.rdb.Eval(ctx, compareAndUpdateScript, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if applied == -1 {
		return fmt.Errorf("product %s at version %d: %w", p.ProductID, expectedVersion, ErrVersionConflict)
	}
	return nil
}

// PutAliasIfAbsent inserts a locator alias row under a uniqueness condition.
// Returns true when this call created the row; false when a concurrent
// insert won the race, in which case the caller must re-read and reuse the
// winning product_id.
func (s *Store) PutAliasIfAbsent(ctx context.Context, alias *LocatorAlias) (bool, error) {
	if alias.CreatedAtMs == 0 {
		alias.CreatedAtMs = NowMs()
	}
	if err := alias.Validate(); err != nil {
		return false, fmt.Errorf("invalid locator alias: %w", err)
	}

	payload, err := json.Marshal(alias)
	if err != nil {
		return false, fmt.Errorf("failed to marshal locator alias: %w", err)
	}

	created, err := s.rdb.SetNX(ctx, AliasKey(alias.Provider, alias.LocatorIdentity), payload, 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to insert locator alias: %w", err)
	}
	return created, nil
}

// GetAlias retrieves a locator alias row.
// Returns (nil, redis.Nil) if no alias exists; check with IsNotFound.
func (s *Store) GetAlias(ctx context.Context, provider, locatorIdentity string) (*LocatorAlias, error) {
	payload, err := s.rdb.Get(ctx, AliasKey(provider, locatorIdentity)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read locator alias: %w", err)
	}

	var alias LocatorAlias
	if err := json.Unmarshal([]byte(payload), &alias); err != nil {
		return nil, fmt.Errorf("failed to unmarshal locator alias: %w", err)
	}
	return &alias, nil
}

// EligibleProducts returns the product IDs currently eligible for
// acquisition for one (nova, provider) pair, sorted for stable output.
func (s *Store) EligibleProducts(ctx context.Context, novaID, provider string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, EligibleSetKey(novaID, provider)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read eligibility index: %w", err)
	}
	sort.Strings(members)
	return members, nil
}

// IsEligible checks membership in the eligibility index without fetching
// the full set.
func (s *Store) IsEligible(ctx context.Context, novaID, provider, productID string) (bool, error) {
	member, err := s.rdb.SIsMember(ctx, EligibleSetKey(novaID, provider), productID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check eligibility index: %w", err)
	}
	return member, nil
}

// FindByFingerprint resolves a content fingerprint to the canonical VALID
// product that owns it. Read-only: safe to call concurrently.
// Returns ("", redis.Nil) when no VALID product has the fingerprint.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	productID, err := s.rdb.Get(ctx, FingerprintKey(fingerprint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", redis.Nil
		}
		return "", fmt.Errorf("failed to read fingerprint index: %w", err)
	}
	return productID, nil
}

// beginJobRunScript takes the idempotency lock and creates the JobRun record
// plus its time-index entry in one operation. Fails closed (returns 0,
// writes nothing) when the lock is already held.
const beginJobRunScript = `
local ok = redis.call('SET', KEYS[1], ARGV[1], 'NX', 'EX', ARGV[2])
if not ok then
  return 0
end
for i = 5, #ARGV, 2 do
  redis.call('HSET', KEYS[2], ARGV[i], ARGV[i+1])
end
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[3])
return 1
`

// BeginJobRun creates a JobRun under an idempotency lock. At most one JobRun
// can exist per idempotency key within the lock TTL; a second invocation
// gets ErrDuplicateInvocation and must produce no effects.
//
// The idempotency key is stored only on the TTL-expired lock, never on the
// JobRun record itself.
func (s *Store) BeginJobRun(ctx context.Context, jr *JobRun, idempotencyKey string, lockTTL time.Duration) error {
	if idempotencyKey == "" {
		return fmt.Errorf("idempotency key cannot be empty")
	}
	if lockTTL <= 0 {
		return fmt.Errorf("lock TTL must be positive")
	}
	if jr.Status == "" {
		jr.Status = JobRunStatusRunning
	}
	if jr.StartedAtMs == 0 {
		jr.StartedAtMs = NowMs()
	}
	if err := jr.Validate(); err != nil {
		return fmt.Errorf("invalid job run: %w", err)
	}

	keys := []string{
		LockKey(idempotencyKey),
		JobRunKey(jr.NovaID, jr.JobRunID),
		JobRunIndexKey(jr.NovaID, jr.WorkflowName),
	}
	args := append([]interface{}{
		jr.JobRunID,
		int(lockTTL.Seconds()),
		jr.JobRunID,
		jr.StartedAtMs,
	}, flattenHash(JobRunToHash(jr))...)

	created, err := s.rdb.Eval(ctx, beginJobRunScript, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to begin job run: %w", err)
	}
	if created == 0 {
		return ErrDuplicateInvocation
	}
	return nil
}

// finalizeJobRunScript enforces single finalization: a JobRun that already
// carries a non-zero ended_at_ms refuses a second finalize.
const finalizeJobRunScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -2
end
local ended = redis.call('HGET', KEYS[1], 'ended_at_ms')
if ended and tonumber(ended) ~= 0 then
  return -1
end
redis.call('HSET', KEYS[1], 'status', ARGV[1], 'outcome', ARGV[2], 'ended_at_ms', ARGV[3])
return 1
`

// FinalizeJobRun records the terminal outcome of a JobRun exactly once.
// Returns ErrAlreadyFinalized on a second finalization and a not-found
// error (check IsNotFound) for an unknown JobRun.
func (s *Store) FinalizeJobRun(ctx context.Context, novaID, jobRunID, status, outcome string, endedAtMs int64) error {
	if endedAtMs == 0 {
		endedAtMs = NowMs()
	}

	res, err := s.rdb.Eval(ctx, finalizeJobRunScript,
		[]string{JobRunKey(novaID, jobRunID)},
		status, outcome, endedAtMs,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to finalize job run: %w", err)
	}
	switch res {
	case -2:
		return fmt.Errorf("job run %s: %w", jobRunID, redis.Nil)
	case -1:
		return fmt.Errorf("job run %s: %w", jobRunID, ErrAlreadyFinalized)
	}
	return nil
}

// GetJobRun retrieves a JobRun record.
// Returns (nil, redis.Nil) if the JobRun doesn't exist.
func (s *Store) GetJobRun(ctx context.Context, novaID, jobRunID string) (*JobRun, error) {
	hashData, err := s.rdb.HGetAll(ctx, JobRunKey(novaID, jobRunID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job run from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}
	return HashToJobRun(hashData)
}

// ListJobRuns returns the most recent JobRun IDs for a workflow, newest
// first, up to limit.
func (s *Store) ListJobRuns(ctx context.Context, novaID, workflowName string, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.rdb.ZRevRange(ctx, JobRunIndexKey(novaID, workflowName), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job run index: %w", err)
	}
	return ids, nil
}

// createAttemptScript conditionally creates an attempt record.
const createAttemptScript = `
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
for i = 1, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
return 1
`

// RecordAttemptStarted inserts an Attempt record in STARTED state.
// Returns ErrAlreadyExists for a duplicate (job_run_id, task, attempt_no).
func (s *Store) RecordAttemptStarted(ctx context.Context, a *Attempt) error {
	if a.Status == "" {
		a.Status = AttemptStarted
	}
	if a.StartedAtMs == 0 {
		a.StartedAtMs = NowMs()
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid attempt: %w", err)
	}

	key := AttemptKey(a.NovaID, a.JobRunID, a.TaskName, a.AttemptNo)
	created, err := s.rdb.Eval(ctx, createAttemptScript, []string{key}, flattenHash(AttemptToHash(a))...).Int()
	if err != nil {
		return fmt.Errorf("failed to record attempt start: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("attempt %s/%s/%d: %w", a.JobRunID, a.TaskName, a.AttemptNo, ErrAlreadyExists)
	}
	return nil
}

// finishAttemptScript updates an existing attempt record in place.
const finishAttemptScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
for i = 1, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
return 1
`

// RecordAttemptFinished finalizes an Attempt with its status, duration and,
// when the attempt failed, the error classification and fingerprint.
func (s *Store) RecordAttemptFinished(ctx context.Context, a *Attempt) error {
	if a.FinishedAtMs == 0 {
		a.FinishedAtMs = NowMs()
	}
	if a.DurationMs == 0 && a.FinishedAtMs > a.StartedAtMs {
		a.DurationMs = a.FinishedAtMs - a.StartedAtMs
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid attempt: %w", err)
	}

	key := AttemptKey(a.NovaID, a.JobRunID, a.TaskName, a.AttemptNo)
	args := flattenHash(map[string]interface{}{
		"status":               a.Status,
		"error_classification": a.ErrorClassification,
		"error_fingerprint":    a.ErrorFingerprint,
		"finished_at_ms":       a.FinishedAtMs,
		"duration_ms":          a.DurationMs,
	})
	updated, err := s.rdb.Eval(ctx, finishAttemptScript, []string{key}, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to record attempt finish: %w", err)
	}
	if updated == 0 {
		return fmt.Errorf("attempt %s/%s/%d: %w", a.JobRunID, a.TaskName, a.AttemptNo, redis.Nil)
	}
	return nil
}

// GetAttempt retrieves an Attempt record.
// Returns (nil, redis.Nil) if the attempt doesn't exist.
func (s *Store) GetAttempt(ctx context.Context, novaID, jobRunID, taskName string, attemptNo int) (*Attempt, error) {
	hashData, err := s.rdb.HGetAll(ctx, AttemptKey(novaID, jobRunID, taskName, attemptNo)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read attempt from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}
	return HashToAttempt(hashData)
}

// ScanProducts iterates every product record of one nova using Redis SCAN
// so large catalogs don't block the server. Malformed records are skipped.
// Results are sorted by creation time for stable output.
func (s *Store) ScanProducts(ctx context.Context, novaID string) ([]*DataProduct, error) {
	iter := s.rdb.Scan(ctx, 0, ProductScanPattern(novaID), 0).Iterator()

	var products []*DataProduct
	for iter.Next(ctx) {
		hashData, err := s.rdb.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read product %s: %w", iter.Val(), err)
		}
		if len(hashData) == 0 {
			continue
		}
		product, err := HashToProduct(hashData)
		if err != nil {
			continue
		}
		products = append(products, product)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("product scan failed: %w", err)
	}

	sort.Slice(products, func(i, j int) bool {
		if products[i].CreatedAtMs != products[j].CreatedAtMs {
			return products[i].CreatedAtMs < products[j].CreatedAtMs
		}
		return products[i].ProductID < products[j].ProductID
	})
	return products, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error
// (redis.Nil). Use this to check GetProduct, GetAlias, GetJobRun,
// FindByFingerprint and friends for "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

// flattenHash converts a field map into the alternating field/value ARGV
// layout the mutation scripts expect.
func flattenHash(hash map[string]interface{}) []interface{} {
	args := make([]interface{}, 0, len(hash)*2)
	for field, value := range hash {
		args = append(args, field, value)
	}
	return args
}
