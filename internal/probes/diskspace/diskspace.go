// Package diskspace provides the disk-space probe implementation.
package diskspace

import (
	"fmt"
	"strings"
	"syscall"

	units "github.com/docker/go-units"

	"github.com/jandubois/healthagent/internal/probe"
)

// Name is the probe subcommand name.
const Name = "disk-space"

// Usage is the filesystem usage of a path.
type Usage struct {
	Path        string  `json:"path"`
	FreeBytes   uint64  `json:"free_bytes"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreePercent float64 `json:"free_percent"`
}

// Stat returns the usage of the filesystem holding path.
func Stat(path string) (*Usage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, err
	}
	free := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	u := &Usage{Path: path, FreeBytes: free, TotalBytes: total}
	if total > 0 {
		u.FreePercent = float64(free) / float64(total) * 100
	}
	return u, nil
}

// Evaluate grades usage against the thresholds. A zero threshold is
// disabled. Crossing a critical threshold is critical; crossing a warning
// threshold is a warning.
func Evaluate(u *Usage, minFreeGB, warnFreeGB, minFreePercent float64) *probe.Result {
	freeGB := float64(u.FreeBytes) / (1 << 30)
	free := units.BytesSize(float64(u.FreeBytes))

	status := probe.StatusOK
	var reasons []string
	if minFreeGB > 0 && freeGB < minFreeGB {
		status = probe.StatusCritical
		reasons = append(reasons, fmt.Sprintf("%s free < %.0f GB minimum", free, minFreeGB))
	} else if warnFreeGB > 0 && freeGB < warnFreeGB {
		status = probe.StatusWarning
		reasons = append(reasons, fmt.Sprintf("%s free < %.0f GB warning threshold", free, warnFreeGB))
	}
	if minFreePercent > 0 && u.FreePercent < minFreePercent {
		status = probe.StatusCritical
		reasons = append(reasons, fmt.Sprintf("%.1f%% free < %.1f%% minimum", u.FreePercent, minFreePercent))
	}

	message := fmt.Sprintf("%s free on %s (%.1f%%)", free, u.Path, u.FreePercent)
	if len(reasons) > 0 {
		message = strings.Join(reasons, "; ")
	}

	result := probe.New(status, message).WithValue(u.FreePercent, "% free")
	_ = result.Set("path", u.Path)
	_ = result.Set("free_bytes", u.FreeBytes)
	_ = result.Set("total_bytes", u.TotalBytes)
	return result
}

// Run executes the probe.
func Run(path string, minFreeGB, warnFreeGB, minFreePercent float64) *probe.Result {
	if path == "" {
		return probe.Unknown("path argument is required")
	}
	u, err := Stat(path)
	if err != nil {
		return probe.Unknown("failed to stat %s: %v", path, err)
	}
	return Evaluate(u, minFreeGB, warnFreeGB, minFreePercent)
}
