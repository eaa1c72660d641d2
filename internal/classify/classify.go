// Package classify maps raw task failures into the closed error taxonomy
// {RETRYABLE, TERMINAL, QUARANTINE} and derives stable error fingerprints
// for operational records.
//
// The taxonomy is versioned: adding a FailureKind is an additive,
// backward-compatible extension; reclassifying an existing kind is a
// breaking change and requires explicit review.
package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// TaxonomyVersion identifies the current failure taxonomy revision.
const TaxonomyVersion = 1

// Classification is the operational verdict on a failure.
type Classification string

const (
	// Retryable failures are transient (provider/network/timeout/throttling)
	// and may be attempted again after a cooldown.
	Retryable Classification = "RETRYABLE"

	// Terminal failures can never succeed on retry (invalid identifiers,
	// unsupported schema versions, logically impossible states).
	Terminal Classification = "TERMINAL"

	// Quarantine failures need human judgment: ambiguous or suspect content.
	// Never auto-retried; cleared only by explicit external action.
	Quarantine Classification = "QUARANTINE"
)

// FailureKind is the closed set of recognized failure causes. Providers and
// validators report failures through these kinds, never free-form strings.
type FailureKind string

const (
	KindThrottled           FailureKind = "THROTTLED"
	KindTimeout             FailureKind = "TIMEOUT"
	KindNetwork             FailureKind = "NETWORK"
	KindProviderUnavailable FailureKind = "PROVIDER_UNAVAILABLE"
	KindNotFound            FailureKind = "NOT_FOUND"
	KindBadRequest          FailureKind = "BAD_REQUEST"
	KindUnsupportedSchema   FailureKind = "UNSUPPORTED_SCHEMA"
	KindImpossibleState     FailureKind = "IMPOSSIBLE_STATE"
	KindChecksumMismatch    FailureKind = "CHECKSUM_MISMATCH"
	KindSuspectData         FailureKind = "SUSPECT_DATA"
	KindUnknown             FailureKind = "UNKNOWN"
)

// classificationByKind is the authoritative taxonomy table.
// Checksum and fingerprint mismatches are QUARANTINE, never retried: the
// bytes disagree with themselves and no retry schedule fixes that.
var classificationByKind = map[FailureKind]Classification{
	KindThrottled:           Retryable,
	KindTimeout:             Retryable,
	KindNetwork:             Retryable,
	KindProviderUnavailable: Retryable,
	KindNotFound:            Terminal,
	KindBadRequest:          Terminal,
	KindUnsupportedSchema:   Terminal,
	KindImpossibleState:     Terminal,
	KindChecksumMismatch:    Quarantine,
	KindSuspectData:         Quarantine,
	// Unexpected infra issues default to retryable: safe under the
	// coordinator's at-most-one-effect guarantees.
	KindUnknown: Retryable,
}

// Failure is a classified task error. It implements error so provider and
// validator capabilities can return it directly.
type Failure struct {
	Kind    FailureKind
	Message string
}

// NewFailure builds a Failure for a known kind.
func NewFailure(kind FailureKind, format string, a ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, a...)}
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Validate checks that the kind is part of the closed taxonomy.
func (k FailureKind) Validate() error {
	if _, ok := classificationByKind[k]; !ok {
		return fmt.Errorf("unknown failure kind: %q", k)
	}
	return nil
}

// Classify maps an error to its taxonomy verdict plus a stable fingerprint
// and a compact message. It is total: any error, including ones that are not
// *Failure values, gets a verdict (unrecognized errors default to RETRYABLE
// with KindUnknown).
func Classify(err error) (Classification, FailureKind, string) {
	var failure *Failure
	if errors.As(err, &failure) {
		if cls, ok := classificationByKind[failure.Kind]; ok {
			return cls, failure.Kind, Fingerprint(string(failure.Kind), failure.Message)
		}
	}
	return Retryable, KindUnknown, Fingerprint(string(KindUnknown), errMessage(err))
}

// Throttled reports whether the error is an explicit provider throttling
// signal. The retry scheduler gives these a longer base delay.
func Throttled(err error) bool {
	var failure *Failure
	return errors.As(err, &failure) && failure.Kind == KindThrottled
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Fingerprint returns a stable 16-hex-char digest of a failure kind and its
// normalized message. Stack frames and timestamps are intentionally absent
// so the same logical failure always fingerprints identically.
func Fingerprint(kind, message string) string {
	material := kind + ":" + whitespaceRe.ReplaceAllString(strings.TrimSpace(message), " ")
	digest := sha256.Sum256([]byte(material))
	// Shortened to keep records compact while collision-resistant enough for ops.
	return hex.EncodeToString(digest[:])[:16]
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
