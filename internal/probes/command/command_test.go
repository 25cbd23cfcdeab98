package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jandubois/healthagent/internal/probe"
)

func TestParseCodeSet(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected map[int]bool
	}{
		{"empty string", "", map[int]bool{}},
		{"single code", "0", map[int]bool{0: true}},
		{"multiple codes", "0,1,2", map[int]bool{0: true, 1: true, 2: true}},
		{"codes with spaces", "0, 1, 2", map[int]bool{0: true, 1: true, 2: true}},
		{"garbage ignored", "1,x,3", map[int]bool{1: true, 3: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseCodeSet(tt.input))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hello", truncate("hello", 5))
	assert.Equal(t, "hello... (truncated)", truncate("hello world", 5))
}

func stringField(t *testing.T, r *probe.Result, key string) (string, bool) {
	t.Helper()
	var s string
	ok, err := r.Field(key, &s)
	require.NoError(t, err)
	return s, ok
}

func TestRunEmptyCommand(t *testing.T) {
	result := Run(context.Background(), "", "/bin/sh", "0", "", true)
	assert.Equal(t, probe.StatusUnknown, result.Status)
	assert.Equal(t, "command argument is required", result.Message)
}

func TestRunSuccessfulCommand(t *testing.T) {
	result := Run(context.Background(), "echo hello", "/bin/sh", "0", "", true)
	assert.Equal(t, probe.StatusOK, result.Status)
	assert.Equal(t, "Command completed successfully", result.Message)
	assert.Equal(t, "ms", result.Unit)

	stdout, ok := stringField(t, result, "stdout")
	assert.True(t, ok)
	assert.Equal(t, "hello\n", stdout)
}

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		command, okCodes, warningCodes string
		status                         probe.Status
	}{
		{"exit 1", "0", "", probe.StatusCritical},
		{"exit 2", "0", "2", probe.StatusWarning},
		{"exit 42", "0,42", "", probe.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			result := Run(context.Background(), tt.command, "/bin/sh", tt.okCodes, tt.warningCodes, true)
			assert.Equal(t, tt.status, result.Status)
		})
	}

	result := Run(context.Background(), "exit 1", "/bin/sh", "0", "", true)
	var code int
	ok, err := result.Field("command_exit_code", &code)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, code)
	assert.Equal(t, "Command exited with code 1", result.Message)
}

func TestRunCaptureOutputDisabled(t *testing.T) {
	result := Run(context.Background(), "echo secret", "/bin/sh", "0", "", false)
	assert.Equal(t, probe.StatusOK, result.Status)
	_, ok := stringField(t, result, "stdout")
	assert.False(t, ok, "stdout should not be captured when captureOutput is false")
}

func TestRunMissingShell(t *testing.T) {
	result := Run(context.Background(), "true", "/nonexistent/shell", "0", "", true)
	assert.Equal(t, probe.StatusUnknown, result.Status)
	assert.Contains(t, result.Message, "failed to run command")
}
