// Package debug provides a probe that simulates probe behaviors, for
// exercising the agent's handling of failing checks.
package debug

import (
	"context"
	"time"

	"github.com/jandubois/healthagent/internal/probe"
)

// Name is the probe subcommand name.
const Name = "debug"

// Modes lists the supported behaviors.
var Modes = []string{"ok", "warning", "critical", "timeout", "crash", "error"}

var defaultMessages = map[string]string{
	"ok":       "Debug probe completed successfully",
	"warning":  "Debug probe simulated warning",
	"critical": "Debug probe simulated critical failure",
	"error":    "Debug probe simulated error",
}

// Run executes the probe. The "timeout" mode blocks until ctx is done and
// "crash" panics.
func Run(ctx context.Context, mode, message string, delay time.Duration) *probe.Result {
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return probe.Unknown("debug probe interrupted: %v", ctx.Err())
		}
	}

	var status probe.Status
	switch mode {
	case "ok":
		status = probe.StatusOK
	case "warning":
		status = probe.StatusWarning
	case "critical":
		status = probe.StatusCritical
	case "error":
		status = probe.StatusUnknown
	case "timeout":
		<-ctx.Done()
		return probe.Unknown("debug probe interrupted: %v", ctx.Err())
	case "crash":
		panic("debug probe intentional crash")
	default:
		return probe.Unknown("Invalid mode: %s", mode)
	}

	if message == "" {
		message = defaultMessages[mode]
	}
	result := probe.New(status, message)
	_ = result.Set("mode", mode)
	return result
}
