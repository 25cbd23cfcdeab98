// Package probes lists the built-in probes.
package probes

import (
	"github.com/jandubois/healthagent/internal/probes/command"
	"github.com/jandubois/healthagent/internal/probes/debug"
	"github.com/jandubois/healthagent/internal/probes/diskspace"
	"github.com/jandubois/healthagent/internal/probes/disksmart"
	"github.com/jandubois/healthagent/internal/probes/servicehealth"
	"github.com/jandubois/healthagent/internal/probes/sslexpiry"
)

// Description documents a built-in probe subcommand.
type Description struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Environment []string `json:"environment,omitempty"`
	Flags       []string `json:"flags,omitempty"`
}

// GetAllDescriptions returns descriptions of all built-in probes.
func GetAllDescriptions() []Description {
	return []Description{
		{
			Name:        disksmart.Name,
			Description: "Check SMART health, critical attributes and temperature of disks",
			Environment: []string{"SMART_DISKS", "SMART_SUDO"},
		},
		{
			Name:        servicehealth.Name,
			Description: "Check systemd services, processes and listening ports",
			Environment: []string{"CHECK_SERVICES", "CHECK_PROCESSES", "CHECK_PORTS"},
		},
		{
			Name:        sslexpiry.Name,
			Description: "Check TLS certificates for upcoming expiry",
			Environment: []string{"SSL_HOSTS"},
		},
		{
			Name:        diskspace.Name,
			Description: "Check available disk space on a path",
			Flags:       []string{"path", "min_free_gb", "warn_free_gb", "min_free_percent"},
		},
		{
			Name:        command.Name,
			Description: "Run a command and check its exit code",
			Flags:       []string{"command", "shell", "ok_codes", "warning_codes", "capture_output"},
		},
		{
			Name:        debug.Name,
			Description: "Simulate probe behaviors for testing failure handling",
			Flags:       []string{"mode", "message", "delay_ms"},
		},
	}
}
