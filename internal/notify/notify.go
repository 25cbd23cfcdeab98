// Package notify delivers alerts for degraded check results.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/jandubois/healthagent/internal/probe"
)

// Alert is the JSON body posted to the webhook.
type Alert struct {
	Title     string       `json:"title"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
	Server    string       `json:"server"`
	Check     string       `json:"check"`
	Status    probe.Status `json:"status"`
}

// FormatAlert builds the alert for a check result reported by server.
func FormatAlert(server, check string, result *probe.Result) *Alert {
	status := result.Status
	if status == "" {
		status = probe.StatusUnknown
	}
	message := result.Message
	if message == "" {
		message = "No message provided"
	}

	return &Alert{
		Title:     fmt.Sprintf("Health Check Alert: %s", check),
		Message:   fmt.Sprintf("Status: %s\n%s", strings.ToUpper(string(status)), message),
		Timestamp: result.Timestamp,
		Server:    server,
		Check:     check,
		Status:    status,
	}
}
