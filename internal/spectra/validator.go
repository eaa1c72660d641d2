// Package spectra holds the content validation capability for spectra
// products. Format parsing proper lives behind profile implementations;
// the shipped validator performs structural checks and profile selection
// only, returning the canonical {valid, quarantine, error} outcome shape.
package spectra

import (
	"bytes"
	"context"

	"github.com/novacat/novacat/internal/coordinator"
)

// Quarantine reason codes.
const (
	ReasonEmptyContent   = "EMPTY_CONTENT"
	ReasonUnknownProfile = "UNKNOWN_PROFILE"
)

// fitsMagic is the mandatory first keyword of a FITS primary header.
var fitsMagic = []byte("SIMPLE")

// Validator selects a known content profile for acquired bytes. Content
// matching no known profile is quarantined for human review rather than
// rejected: ambiguity is a judgment call, not an error.
type Validator struct{}

// NewValidator creates the profile-selecting validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate implements coordinator.Validator.
func (v *Validator) Validate(_ context.Context, data []byte, _ map[string]string) (coordinator.ValidationResult, error) {
	if len(data) == 0 {
		return coordinator.ValidationResult{Quarantine: true, ReasonCode: ReasonEmptyContent}, nil
	}
	if !bytes.HasPrefix(data, fitsMagic) {
		return coordinator.ValidationResult{Quarantine: true, ReasonCode: ReasonUnknownProfile}, nil
	}
	return coordinator.ValidationResult{}, nil
}
