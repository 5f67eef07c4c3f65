package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatElapsedUnderAMinute(t *testing.T) {
	assert.Equal(t, "12.3s", formatElapsed(12300*time.Millisecond))
	assert.Equal(t, "0.0s", formatElapsed(0))
}

func TestFormatElapsedPastAMinute(t *testing.T) {
	assert.Equal(t, "1m02.5s", formatElapsed(62500*time.Millisecond))
	assert.Equal(t, "2m00.0s", formatElapsed(120*time.Second))
}

func TestFormatElapsedClampsNegative(t *testing.T) {
	assert.Equal(t, "0.0s", formatElapsed(-5*time.Second))
}

func TestPrettyHandlerLevelTagUnknownLevelFallsBack(t *testing.T) {
	h := NewPrettyHandler(0)
	tag, color := h.levelTag(100)
	assert.Equal(t, "     ", tag)
	assert.Equal(t, colorReset, color)
}

func TestUseStructuredLoggingRespectsExplicitEnv(t *testing.T) {
	t.Setenv("DESKREC_LOG_FORMAT", "structured")
	assert.True(t, UseStructuredLogging())

	t.Setenv("DESKREC_LOG_FORMAT", "pretty")
	assert.False(t, UseStructuredLogging())
}

func TestUseStructuredLoggingDetectsCIEnvironment(t *testing.T) {
	t.Setenv("DESKREC_LOG_FORMAT", "")
	t.Setenv("CI", "true")
	assert.True(t, UseStructuredLogging())
}
