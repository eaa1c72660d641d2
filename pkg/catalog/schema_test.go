package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyPatterns(t *testing.T) {
	assert.Equal(t, "novacat:nova-1:product:prod-1", ProductKey("nova-1", "prod-1"))
	assert.Equal(t, "novacat:alias:ArchiveX:id:NGC-1", AliasKey("ArchiveX", "id:NGC-1"))
	assert.Equal(t, "novacat:nova-1:eligible:ArchiveX", EligibleSetKey("nova-1", "ArchiveX"))
	assert.Equal(t, "novacat:fp:cafebabe", FingerprintKey("cafebabe"))
	assert.Equal(t, "novacat:nova-1:jobrun:run-1", JobRunKey("nova-1", "run-1"))
	assert.Equal(t, "novacat:nova-1:jobruns:acquire_and_validate_spectra", JobRunIndexKey("nova-1", "acquire_and_validate_spectra"))
	assert.Equal(t, "novacat:nova-1:attempt:run-1:acquire:2", AttemptKey("nova-1", "run-1", "acquire", 2))
	assert.Equal(t, "novacat:lock:wf:p:c", LockKey("wf:p:c"))
	assert.Equal(t, "novacat:nova-1:quarantine_events", QuarantineEventsChannel("nova-1"))
	assert.Equal(t, "novacat:nova-1:product:*", ProductScanPattern("nova-1"))
}

func TestAliasKeyIsGlobalPartition(t *testing.T) {
	// The alias key must not vary by nova: identity is global. The same
	// identity resolved for two different novae must map to the same key.
	novaA := "8a6e0804-2bd0-4672-b79d-d97027f9071a"
	novaB := "f47ac10b-58cc-4372-a567-0e02b2c3d479"
	key := AliasKey("ArchiveX", "id:NGC-1")
	assert.NotContains(t, key, novaA)
	assert.NotContains(t, key, novaB)
}
