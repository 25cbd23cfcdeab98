// Package disksmart provides the disk-smart probe implementation.
package disksmart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jandubois/healthagent/internal/probe"
)

// Name is the probe subcommand name.
const Name = "disk-smart"

const smartctlTimeout = 10 * time.Second

// healthyMessage is the per-disk message when nothing is wrong.
const healthyMessage = "All SMART parameters within limits"

// criticalAttributes maps SMART attribute IDs to the names reported.
var criticalAttributes = map[int]string{
	5:   "Reallocated_Sectors",
	187: "Reported_Uncorrectable",
	188: "Command_Timeout",
	197: "Current_Pending_Sectors",
	198: "Offline_Uncorrectable",
}

var textPatterns = map[string]*regexp.Regexp{
	"Reallocated_Sectors":     regexp.MustCompile(`(?m)Reallocated_Sector_Ct.*\s+(\d+)\s*$`),
	"Current_Pending_Sectors": regexp.MustCompile(`(?m)Current_Pending_Sector.*\s+(\d+)\s*$`),
	"Offline_Uncorrectable":   regexp.MustCompile(`(?m)Offline_Uncorrectable.*\s+(\d+)\s*$`),
}

// CommandRunner runs an external command and returns its stdout and exit
// code. A non-nil error means the command could not be run at all.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, int, error)

// Info is the SMART data collected for one device.
type Info struct {
	Device       string         `json:"device"`
	HealthPassed bool           `json:"health_passed"`
	Attributes   map[string]int `json:"attributes"`
	Temperature  *int           `json:"temperature,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// DiskResult is the evaluation of one device.
type DiskResult struct {
	Device  string       `json:"device"`
	Status  probe.Status `json:"status"`
	Message string       `json:"message"`
	Data    *Info        `json:"data"`
}

// Checker collects SMART data through smartctl.
type Checker struct {
	Run  CommandRunner
	Sudo bool
}

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return nil, -1, err
	}
	return stdout.Bytes(), 0, nil
}

// Collect returns the SMART data of device, or nil when smartctl rejected
// the device.
func (c *Checker) Collect(ctx context.Context, device string) *Info {
	ctx, cancel := context.WithTimeout(ctx, smartctlTimeout)
	defer cancel()

	name, args := "smartctl", []string{"-H", "-A", "-j", device}
	if c.Sudo {
		name, args = "sudo", append([]string{"smartctl"}, args...)
	}

	out, code, err := c.Run(ctx, name, args...)
	if ctx.Err() == context.DeadlineExceeded {
		return &Info{Device: device, Error: "Timeout"}
	}
	if err != nil {
		return &Info{Device: device, Error: err.Error()}
	}
	// 4 means a SMART command failed but the device exists.
	if code != 0 && code != 4 {
		return nil
	}
	return ParseJSON(device, out)
}

type smartctlOutput struct {
	SmartStatus struct {
		Passed bool `json:"passed"`
	} `json:"smart_status"`
	ATASmartAttributes struct {
		Table []struct {
			ID  int `json:"id"`
			Raw struct {
				Value int `json:"value"`
			} `json:"raw"`
		} `json:"table"`
	} `json:"ata_smart_attributes"`
	Temperature struct {
		Current *int `json:"current"`
	} `json:"temperature"`
}

// ParseJSON parses `smartctl -j` output, falling back to the text parser
// when the output is not JSON.
func ParseJSON(device string, out []byte) *Info {
	var data smartctlOutput
	if err := json.Unmarshal(out, &data); err != nil {
		return ParseText(device, string(out))
	}

	info := &Info{
		Device:       device,
		HealthPassed: data.SmartStatus.Passed,
		Attributes:   map[string]int{},
		Temperature:  data.Temperature.Current,
	}
	for _, attr := range data.ATASmartAttributes.Table {
		if name, ok := criticalAttributes[attr.ID]; ok {
			info.Attributes[name] = attr.Raw.Value
		}
	}
	return info
}

// ParseText extracts health and attributes from plain smartctl output.
func ParseText(device, out string) *Info {
	info := &Info{
		Device:       device,
		HealthPassed: strings.Contains(out, "PASSED") || strings.Contains(out, "OK"),
		Attributes:   map[string]int{},
	}
	for name, re := range textPatterns {
		if m := re.FindStringSubmatch(out); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				info.Attributes[name] = v
			}
		}
	}
	return info
}

// Evaluate grades the SMART data of one device.
func Evaluate(info *Info) (probe.Status, string) {
	if info == nil {
		return probe.StatusUnknown, "Unable to get SMART data"
	}
	if info.Error != "" {
		return probe.StatusUnknown, "Error: " + info.Error
	}
	if !info.HealthPassed {
		return probe.StatusCritical, "SMART health check failed"
	}

	var warnings, critical []string
	if v := info.Attributes["Reallocated_Sectors"]; v > 0 {
		warnings = append(warnings, fmt.Sprintf("Reallocated sectors: %d", v))
	}
	if v := info.Attributes["Current_Pending_Sectors"]; v > 0 {
		critical = append(critical, fmt.Sprintf("Pending sectors: %d", v))
	}
	if v := info.Attributes["Offline_Uncorrectable"]; v > 0 {
		critical = append(critical, fmt.Sprintf("Uncorrectable sectors: %d", v))
	}

	// The warning branch is tested first, so temperatures above 60 also end
	// up as warnings and the critical branch never fires.
	// TODO: swap the branches once alerting on hot disks has been agreed on.
	if t := info.Temperature; t != nil && *t > 50 {
		warnings = append(warnings, fmt.Sprintf("High temperature: %d°C", *t))
	} else if t != nil && *t > 60 {
		critical = append(critical, fmt.Sprintf("Critical temperature: %d°C", *t))
	}

	switch {
	case len(critical) > 0:
		return probe.StatusCritical, strings.Join(critical, "; ")
	case len(warnings) > 0:
		return probe.StatusWarning, strings.Join(warnings, "; ")
	default:
		return probe.StatusOK, healthyMessage
	}
}

// Check evaluates every device and aggregates the worst status.
func (c *Checker) Check(ctx context.Context, devices []string) *probe.Result {
	worst := probe.StatusOK
	var messages []string
	disks := make([]DiskResult, 0, len(devices))
	withIssues := 0

	for _, device := range devices {
		info := c.Collect(ctx, device)
		status, message := Evaluate(info)
		disks = append(disks, DiskResult{Device: device, Status: status, Message: message, Data: info})

		if message != healthyMessage {
			messages = append(messages, fmt.Sprintf("%s: %s", device, message))
		}
		if status != probe.StatusOK {
			withIssues++
		}
		worst = probe.Worst(worst, status)
	}

	message := fmt.Sprintf("All %d disks healthy", len(devices))
	if len(messages) > 0 {
		message = strings.Join(messages, "; ")
	}

	result := probe.New(worst, message).WithValue(float64(withIssues), "disks with issues")
	_ = result.Set("disks", disks)
	return result
}

// Detect lists whole disks reported by lsblk. It falls back to sda and sdb
// when lsblk is unavailable.
func (c *Checker) Detect(ctx context.Context) []string {
	out, code, err := c.Run(ctx, "lsblk", "-d", "-n", "-o", "NAME,TYPE")
	if err != nil || code != 0 {
		return []string{"/dev/sda", "/dev/sdb"}
	}
	return ParseLsblk(string(out))
}

// ParseLsblk extracts disk device paths from `lsblk -d -n -o NAME,TYPE`.
func ParseLsblk(out string) []string {
	var disks []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "disk" {
			disks = append(disks, "/dev/"+fields[0])
		}
	}
	return disks
}

// ParseDevices splits a comma separated SMART_DISKS value.
func ParseDevices(s string) []string {
	var devices []string
	for _, d := range strings.Split(s, ",") {
		if d = strings.TrimSpace(d); d != "" {
			devices = append(devices, d)
		}
	}
	return devices
}

// Run executes the probe. An empty disks value autodetects devices.
func Run(ctx context.Context, disks string, sudo bool) *probe.Result {
	c := &Checker{Run: ExecRunner, Sudo: sudo}
	devices := ParseDevices(disks)
	if len(devices) == 0 {
		devices = c.Detect(ctx)
	}
	return c.Check(ctx, devices)
}
