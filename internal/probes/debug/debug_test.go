package debug

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jandubois/healthagent/internal/probe"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name           string
		mode           string
		message        string
		expectedStatus probe.Status
		expectedMsg    string
	}{
		{"ok mode default message", "ok", "", probe.StatusOK, "Debug probe completed successfully"},
		{"ok mode custom message", "ok", "custom ok", probe.StatusOK, "custom ok"},
		{"warning mode", "warning", "", probe.StatusWarning, "Debug probe simulated warning"},
		{"critical mode", "critical", "", probe.StatusCritical, "Debug probe simulated critical failure"},
		{"error mode", "error", "", probe.StatusUnknown, "Debug probe simulated error"},
		{"invalid mode", "invalid", "", probe.StatusUnknown, "Invalid mode: invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Run(context.Background(), tt.mode, tt.message, 0)
			assert.Equal(t, tt.expectedStatus, result.Status)
			assert.Equal(t, tt.expectedMsg, result.Message)
		})
	}
}

func TestRunCrashMode(t *testing.T) {
	assert.Panics(t, func() { Run(context.Background(), "crash", "", 0) })
}

func TestRunTimeoutModeHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	result := Run(ctx, "timeout", "", 0)
	assert.Equal(t, probe.StatusUnknown, result.Status)
	assert.Contains(t, result.Message, "interrupted")
}

func TestRunDelay(t *testing.T) {
	start := time.Now()
	result := Run(context.Background(), "warning", "", 30*time.Millisecond)
	assert.Equal(t, probe.StatusWarning, result.Status)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
