package timespec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("parses RFC3339 timestamps", func(t *testing.T) {
		ms, err := Parse("2026-08-30T12:00:00Z")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC).UnixMilli(), ms)
	})

	t.Run("parses durations relative to now", func(t *testing.T) {
		before := time.Now().Add(-time.Hour).UnixMilli()
		ms, err := Parse("1h")
		require.NoError(t, err)
		after := time.Now().Add(-time.Hour).UnixMilli()
		assert.GreaterOrEqual(t, ms, before)
		assert.LessOrEqual(t, ms, after)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := Parse("")
		assert.Error(t, err)
		_, err = Parse("next tuesday")
		assert.Error(t, err)
	})
}

func TestParseRange(t *testing.T) {
	t.Run("zero values mean unbounded", func(t *testing.T) {
		since, until, err := ParseRange("", "")
		require.NoError(t, err)
		assert.Zero(t, since)
		assert.Zero(t, until)
	})

	t.Run("rejects inverted ranges", func(t *testing.T) {
		_, _, err := ParseRange("2026-08-30T12:00:00Z", "2026-08-30T11:00:00Z")
		assert.Error(t, err)
	})

	t.Run("accepts ordered ranges", func(t *testing.T) {
		since, until, err := ParseRange("2026-08-30T11:00:00Z", "2026-08-30T12:00:00Z")
		require.NoError(t, err)
		assert.Less(t, since, until)
	})
}
