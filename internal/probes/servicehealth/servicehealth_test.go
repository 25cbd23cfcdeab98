package servicehealth

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jandubois/healthagent/internal/probe"
)

func fakeProc(t *testing.T, procs map[int]string) string {
	t.Helper()
	root := t.TempDir()
	for pid, name := range procs {
		dir := filepath.Join(root, strconv.Itoa(pid))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "comm"), []byte(name+"\n"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte("Name:\t"+name+"\nVmRSS:\t  20480 kB\n"), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sys"), 0o755))
	return root
}

func fakeSystemctl(active map[string]bool) func(ctx context.Context, args ...string) (string, error) {
	return func(ctx context.Context, args ...string) (string, error) {
		switch args[0] {
		case "is-active":
			if active[args[1]] {
				return "active\n", nil
			}
			return "inactive\n", nil
		case "status":
			return "● " + args[1] + ".service\n     Active: active (running)\n   Main PID: 812 (" + args[1] + ")\n     Memory: 12.0M\n", nil
		}
		return "", errors.New("unexpected args")
	}
}

func newTestChecker(t *testing.T, active map[string]bool, procs map[int]string) *Checker {
	c := NewChecker()
	c.Systemctl = fakeSystemctl(active)
	c.ProcRoot = fakeProc(t, procs)
	return c
}

func TestService(t *testing.T) {
	c := newTestChecker(t, map[string]bool{"nginx": true}, nil)

	state := c.Service(context.Background(), "nginx")
	assert.True(t, state.Active)
	assert.Equal(t, "Active: active (running)", state.Details["state"])
	assert.Equal(t, "Main PID: 812 (nginx)", state.Details["pid"])
	assert.Equal(t, "Memory: 12.0M", state.Details["memory"])

	assert.False(t, c.Service(context.Background(), "docker").Active)
}

func TestServiceSystemctlMissing(t *testing.T) {
	c := NewChecker()
	c.Systemctl = func(ctx context.Context, args ...string) (string, error) {
		return "", errors.New(`exec: "systemctl": executable file not found in $PATH`)
	}
	state := c.Service(context.Background(), "nginx")
	assert.False(t, state.Active)
	assert.Contains(t, state.Error, "systemctl")
}

func TestProcess(t *testing.T) {
	c := newTestChecker(t, nil, map[int]string{101: "postgres", 102: "postgres", 200: "sshd"})

	state := c.Process("Postgres")
	assert.True(t, state.Running)
	assert.Equal(t, 2, state.Count)
	assert.InDelta(t, 20.0, state.Instances[0].MemoryMB, 0.01)

	state = c.Process("redis")
	assert.False(t, state.Running)
	assert.Empty(t, state.Instances)
}

func TestPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	c := NewChecker()
	assert.True(t, c.Port(context.Background(), "127.0.0.1", port).Listening)

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closedPort := closed.Addr().(*net.TCPAddr).Port
	closed.Close()
	assert.False(t, c.Port(context.Background(), "127.0.0.1", closedPort).Listening)
}

func TestParsePortSpec(t *testing.T) {
	host, port, err := ParsePortSpec("8080")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, 8080, port)

	host, port, err = ParsePortSpec("db.internal:5432")
	require.NoError(t, err)
	assert.Equal(t, "db.internal", host)
	assert.Equal(t, 5432, port)

	for _, bad := range []string{"http", "host:", "70000", "0"} {
		_, _, err := ParsePortSpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestCheckSeverities(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	open := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

	c := newTestChecker(t, map[string]bool{"nginx": true}, map[int]string{7: "sshd"})

	res := c.Check(context.Background(), Config{Services: []string{"nginx"}, Processes: []string{"sshd"}, Ports: []string{open}})
	assert.Equal(t, probe.StatusOK, res.Status)
	assert.Equal(t, "All 3 checks passed", res.Message)
	assert.Equal(t, 0.0, *res.Value)

	res = c.Check(context.Background(), Config{Processes: []string{"redis"}, Ports: []string{open}})
	assert.Equal(t, probe.StatusWarning, res.Status)
	assert.Equal(t, "Process redis is not running", res.Message)

	res = c.Check(context.Background(), Config{Services: []string{"nginx", "docker"}, Processes: []string{"redis"}})
	assert.Equal(t, probe.StatusCritical, res.Status)
	assert.Equal(t, "Service docker is not active", res.Message)
	assert.Equal(t, 2.0, *res.Value)
	assert.Equal(t, "failed checks", res.Unit)

	var summary Summary
	ok, err := res.Field("summary", &summary)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Summary{Total: 3, Passed: 1, Failed: 1, Warnings: 1}, summary)
}

func TestSummarizeEmpty(t *testing.T) {
	res := Summarize(nil, nil, nil)
	assert.Equal(t, probe.StatusOK, res.Status)
	assert.Equal(t, "All 0 checks passed", res.Message)
	assert.JSONEq(t, `[]`, string(res.Extra["checks"]))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"docker", "nginx"}, SplitList("docker, nginx,,"))
	assert.Nil(t, SplitList(""))
}
