// Package command provides the command probe implementation.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jandubois/healthagent/internal/probe"
)

// Name is the probe subcommand name.
const Name = "command"

const maxOutput = 10000

// Run executes command through shell and grades its exit code.
func Run(ctx context.Context, command, shell, okCodes, warningCodes string, captureOutput bool) *probe.Result {
	if command == "" {
		return probe.Unknown("command argument is required")
	}

	okCodeSet := parseCodeSet(okCodes)
	warningCodeSet := parseCodeSet(warningCodes)

	start := time.Now()
	cmd := exec.CommandContext(ctx, shell, "-c", command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return probe.Unknown("failed to run command: %v", err)
		}
		exitCode = exitErr.ExitCode()
	}

	status := probe.StatusCritical
	if okCodeSet[exitCode] {
		status = probe.StatusOK
	} else if warningCodeSet[exitCode] {
		status = probe.StatusWarning
	}

	message := fmt.Sprintf("Command exited with code %d", exitCode)
	if status == probe.StatusOK {
		message = "Command completed successfully"
	}

	result := probe.New(status, message).WithValue(float64(duration.Milliseconds()), "ms")
	_ = result.Set("command", command)
	_ = result.Set("command_exit_code", exitCode)
	if captureOutput {
		_ = result.Set("stdout", truncate(stdout.String(), maxOutput))
		_ = result.Set("stderr", truncate(stderr.String(), maxOutput))
	}
	return result
}

func parseCodeSet(codes string) map[int]bool {
	set := make(map[int]bool)
	if codes == "" {
		return set
	}
	for _, part := range strings.Split(codes, ",") {
		var code int
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%d", &code); err == nil {
			set[code] = true
		}
	}
	return set
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
