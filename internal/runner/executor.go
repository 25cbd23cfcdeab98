package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jandubois/healthagent/internal/config"
	"github.com/jandubois/healthagent/internal/probe"
)

// waitDelay bounds how long Run waits for output pipes after the probe's
// process group has been killed.
const waitDelay = 2 * time.Second

// Executor runs probes as subprocesses.
type Executor struct {
	baseDir string
	logger  *zap.Logger
	now     func() time.Time
}

// NewExecutor creates an Executor resolving relative scripts against baseDir.
func NewExecutor(baseDir string, logger *zap.Logger) *Executor {
	return &Executor{
		baseDir: baseDir,
		logger:  logger,
		now:     time.Now,
	}
}

// Execute runs one check to completion and interprets its output. It always
// returns a result; failures are expressed through the result status.
func (e *Executor) Execute(ctx context.Context, check *config.CheckConfig) *probe.Result {
	result := e.run(ctx, check)
	result.Timestamp = e.now()
	return result
}

func (e *Executor) run(ctx context.Context, check *config.CheckConfig) *probe.Result {
	scriptPath, err := e.resolve(check.Script)
	if err != nil {
		e.logger.Error("script not found", zap.String("check", check.Name), zap.String("script", check.Script))
		return probe.Unknown("script not found: %s", scriptPath)
	}

	timeout := check.TimeoutDuration()
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, scriptPath, check.Args...)
	cmd.Env = buildEnv(check.Environment)
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("running check", zap.String("check", check.Name), zap.String("script", scriptPath))
	err = cmd.Run()

	if err != nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		e.logger.Error("check timed out", zap.String("check", check.Name), zap.Int("timeout_seconds", int(timeout.Seconds())))
		return probe.Unknown("check timed out after %d seconds", int(timeout.Seconds()))
	}
	if err != nil && ctx.Err() != nil {
		return probe.Unknown("check cancelled: %v", ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		e.logger.Warn("check failed", zap.String("check", check.Name), zap.Int("exit_code", code))

		// Probes also report severity through the exit code. A structured
		// warning or critical printed alongside it carries the detail; any
		// other status cannot mask the failure.
		if structured, perr := probe.Parse(stdout.Bytes()); perr == nil && structured.Status.Degraded() {
			return structured.WithExitCode(code)
		}

		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("check failed with exit code %d", code)
		}
		return probe.New(probe.StatusCritical, msg).WithExitCode(code)
	}
	if err != nil {
		e.logger.Error("error running check", zap.String("check", check.Name), zap.Error(err))
		return probe.New(probe.StatusUnknown, err.Error())
	}

	structured, perr := probe.Parse(stdout.Bytes())
	if perr == nil {
		e.logger.Info("check completed", zap.String("check", check.Name), zap.String("status", string(structured.Status)))
		return structured.WithExitCode(0)
	}
	if errors.Is(perr, probe.ErrInvalidStatus) {
		e.logger.Warn("check reported an unrecognized status", zap.String("check", check.Name), zap.Error(perr))
		return probe.Unknown("check reported %v", perr).WithExitCode(0)
	}

	e.logger.Debug("check output is not structured", zap.String("check", check.Name))
	return probe.New(probe.StatusOK, strings.TrimSpace(stdout.String())).WithExitCode(0)
}

// resolve turns the configured script into an absolute path. Relative
// paths are taken from the base directory; a bare command name that is not
// found there is looked up in PATH.
func (e *Executor) resolve(script string) (string, error) {
	path := script
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.baseDir, script)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	info, err := os.Stat(path)
	if err == nil && !info.IsDir() {
		return path, nil
	}
	if !strings.ContainsRune(script, filepath.Separator) {
		if found, lerr := exec.LookPath(script); lerr == nil {
			return found, nil
		}
	}
	if err == nil {
		err = fmt.Errorf("%s is a directory", path)
	}
	return path, err
}

// buildEnv copies the ambient environment and applies overrides on top.
func buildEnv(overrides map[string]string) []string {
	env := os.Environ()
	if len(overrides) == 0 {
		return env
	}

	merged := make([]string, 0, len(env)+len(overrides))
	for _, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		merged = append(merged, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+overrides[k])
	}
	return merged
}
