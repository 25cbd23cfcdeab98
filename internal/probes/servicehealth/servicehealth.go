// Package servicehealth provides the service-health probe implementation:
// systemd units, running processes and listening TCP ports.
package servicehealth

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"

	"github.com/jandubois/healthagent/internal/probe"
)

// Name is the probe subcommand name.
const Name = "service-health"

const (
	systemctlTimeout = 5 * time.Second
	dialTimeout      = 2 * time.Second
	defaultPortHost  = "127.0.0.1"
)

// ServiceState is the systemd state of one unit.
type ServiceState struct {
	Service string            `json:"service"`
	Active  bool              `json:"active"`
	Details map[string]string `json:"details,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// ProcessInstance is one process matching a name.
type ProcessInstance struct {
	PID      int     `json:"pid"`
	Name     string  `json:"name"`
	MemoryMB float64 `json:"memory_mb"`
}

// ProcessState lists the processes matching a name.
type ProcessState struct {
	Process   string            `json:"process"`
	Running   bool              `json:"running"`
	Count     int               `json:"count"`
	Instances []ProcessInstance `json:"instances"`
	Error     string            `json:"error,omitempty"`
}

// PortState is the reachability of one TCP port.
type PortState struct {
	Port      int    `json:"port"`
	Host      string `json:"host"`
	Listening bool   `json:"listening"`
	Error     string `json:"error,omitempty"`
}

// Item is one checked service, process or port.
type Item struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Result any    `json:"result"`
}

// Summary counts the checked items by outcome.
type Summary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Warnings int `json:"warnings"`
}

// Checker inspects the local host. The hooks are replaceable in tests.
type Checker struct {
	Systemctl func(ctx context.Context, args ...string) (string, error)
	ProcRoot  string
	Dial      func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewChecker returns a Checker for the running host.
func NewChecker() *Checker {
	d := &net.Dialer{Timeout: dialTimeout}
	return &Checker{
		Systemctl: runSystemctl,
		ProcRoot:  "/proc",
		Dial:      d.DialContext,
	}
}

func runSystemctl(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, systemctlTimeout)
	defer cancel()
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "systemctl", args...)
	cmd.Stdout = &out
	err := cmd.Run()
	if _, ok := err.(*exec.ExitError); ok {
		// is-active and status report inactive units through the exit code.
		err = nil
	}
	return out.String(), err
}

// Service reports whether a systemd unit is active, with details from
// `systemctl status`.
func (c *Checker) Service(ctx context.Context, name string) ServiceState {
	state := ServiceState{Service: name}
	out, err := c.Systemctl(ctx, "is-active", name)
	if err != nil {
		state.Error = err.Error()
		return state
	}
	state.Active = strings.TrimSpace(out) == "active"

	status, err := c.Systemctl(ctx, "status", name, "--no-pager", "-n", "0")
	if err != nil {
		return state
	}
	state.Details = parseStatusDetails(status)
	return state
}

func parseStatusDetails(out string) map[string]string {
	details := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Active:"):
			details["state"] = line
		case strings.HasPrefix(line, "Main PID:"):
			details["pid"] = line
		case strings.HasPrefix(line, "Memory:"):
			details["memory"] = line
		}
	}
	return details
}

// Process finds processes whose name contains name, ignoring case.
func (c *Checker) Process(name string) ProcessState {
	state := ProcessState{Process: name, Instances: []ProcessInstance{}}
	entries, err := os.ReadDir(c.ProcRoot)
	if err != nil {
		state.Error = err.Error()
		return state
	}

	needle := strings.ToLower(name)
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || !entry.IsDir() {
			continue
		}
		comm, err := os.ReadFile(filepath.Join(c.ProcRoot, entry.Name(), "comm"))
		if err != nil {
			continue
		}
		procName := strings.TrimSpace(string(comm))
		if !strings.Contains(strings.ToLower(procName), needle) {
			continue
		}
		state.Instances = append(state.Instances, ProcessInstance{
			PID:      pid,
			Name:     procName,
			MemoryMB: c.residentMB(entry.Name()),
		})
	}
	state.Count = len(state.Instances)
	state.Running = state.Count > 0
	return state
}

// residentMB reads VmRSS from /proc/<pid>/status.
func (c *Checker) residentMB(pid string) float64 {
	data, err := os.ReadFile(filepath.Join(c.ProcRoot, pid, "status"))
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if rest, ok := strings.CutPrefix(line, "VmRSS:"); ok {
			size, err := units.RAMInBytes(strings.TrimSpace(rest))
			if err != nil {
				return 0
			}
			return float64(size) / units.MiB
		}
	}
	return 0
}

// Port reports whether a TCP connection to host:port succeeds.
func (c *Checker) Port(ctx context.Context, host string, port int) PortState {
	state := PortState{Port: port, Host: host}
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, err := c.Dial(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return state
	}
	conn.Close()
	state.Listening = true
	return state
}

// ParsePortSpec splits "host:port" or "port". The host defaults to
// 127.0.0.1.
func ParsePortSpec(spec string) (string, int, error) {
	host, portStr := defaultPortHost, spec
	if i := strings.LastIndex(spec, ":"); i >= 0 {
		host, portStr = spec[:i], spec[i+1:]
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in %q", spec)
	}
	return host, port, nil
}

// Config lists what to check.
type Config struct {
	Services  []string
	Processes []string
	Ports     []string
}

// SplitList splits a comma separated list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Check runs every configured check. Inactive services are critical;
// missing processes and closed ports are warnings.
func (c *Checker) Check(ctx context.Context, cfg Config) *probe.Result {
	var items []Item
	var failed, warnings []string

	for _, name := range cfg.Services {
		state := c.Service(ctx, name)
		items = append(items, Item{Type: "service", Name: name, Result: state})
		if !state.Active {
			failed = append(failed, fmt.Sprintf("Service %s is not active", name))
		}
	}

	for _, name := range cfg.Processes {
		state := c.Process(name)
		items = append(items, Item{Type: "process", Name: name, Result: state})
		if !state.Running {
			warnings = append(warnings, fmt.Sprintf("Process %s is not running", name))
		}
	}

	for _, spec := range cfg.Ports {
		host, port, err := ParsePortSpec(spec)
		if err != nil {
			items = append(items, Item{Type: "port", Name: spec, Result: PortState{Error: err.Error()}})
			warnings = append(warnings, fmt.Sprintf("Port %s is not valid", spec))
			continue
		}
		state := c.Port(ctx, host, port)
		addr := fmt.Sprintf("%s:%d", host, port)
		items = append(items, Item{Type: "port", Name: addr, Result: state})
		if !state.Listening {
			warnings = append(warnings, fmt.Sprintf("Port %s is not listening", addr))
		}
	}

	return Summarize(items, failed, warnings)
}

// Summarize builds the probe result from the checked items.
func Summarize(items []Item, failed, warnings []string) *probe.Result {
	var result *probe.Result
	switch {
	case len(failed) > 0:
		result = probe.New(probe.StatusCritical, strings.Join(failed, "; "))
	case len(warnings) > 0:
		result = probe.New(probe.StatusWarning, strings.Join(warnings, "; "))
	default:
		result = probe.New(probe.StatusOK, fmt.Sprintf("All %d checks passed", len(items)))
	}
	result.WithValue(float64(len(failed)+len(warnings)), "failed checks")

	if items == nil {
		items = []Item{}
	}
	_ = result.Set("checks", items)
	_ = result.Set("summary", Summary{
		Total:    len(items),
		Passed:   len(items) - len(failed) - len(warnings),
		Failed:   len(failed),
		Warnings: len(warnings),
	})
	return result
}

// DefaultServices is checked when CHECK_SERVICES is unset.
const DefaultServices = "docker,nginx"

// Run executes the probe against the running host.
func Run(ctx context.Context, services, processes, ports string) *probe.Result {
	return NewChecker().Check(ctx, Config{
		Services:  SplitList(services),
		Processes: SplitList(processes),
		Ports:     SplitList(ports),
	})
}
