// Package probe defines the result contract shared by the agent and every
// health-check probe it runs.
package probe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrInvalidStatus is returned by Parse for an object whose status is set
// but is not one of the known statuses.
var ErrInvalidStatus = errors.New("invalid status")

// Status represents the outcome of a probe execution.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusUnknown  Status = "unknown"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusWarning, StatusCritical, StatusUnknown:
		return true
	}
	return false
}

// Degraded reports whether s is a status that may trigger an alert.
func (s Status) Degraded() bool {
	return s == StatusWarning || s == StatusCritical
}

// ExitCode returns the process exit code a probe reports for s:
// 0 ok, 1 warning, 2 critical or unknown.
func (s Status) ExitCode() int {
	switch s {
	case StatusOK:
		return 0
	case StatusWarning:
		return 1
	default:
		return 2
	}
}

// rank orders statuses for aggregation. Unknown only outranks ok.
func (s Status) rank() int {
	switch s {
	case StatusOK:
		return 0
	case StatusUnknown:
		return 1
	case StatusWarning:
		return 2
	case StatusCritical:
		return 3
	}
	return 1
}

// Worst returns the more severe of a and b.
func Worst(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Result is the standard output format for probes and the normalized
// outcome of one check execution.
//
// Fields printed by a probe beyond the known ones are kept in Extra and
// written back unchanged, so a probe's full structured output survives
// into the metrics snapshot.
type Result struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	Value     *float64  `json:"value,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	ExitCode  *int      `json:"exit_code,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownFields = []string{"status", "message", "value", "unit", "timestamp", "exit_code"}

// New creates a result with the given status and message.
func New(status Status, message string) *Result {
	return &Result{Status: status, Message: message}
}

// Unknown creates an unknown result with a formatted message.
func Unknown(format string, args ...any) *Result {
	return New(StatusUnknown, fmt.Sprintf(format, args...))
}

// WithValue sets the numeric measurement and its unit.
func (r *Result) WithValue(v float64, unit string) *Result {
	r.Value = &v
	r.Unit = unit
	return r
}

// WithExitCode records the probe process exit status.
func (r *Result) WithExitCode(code int) *Result {
	r.ExitCode = &code
	return r
}

// Set stores an additional structured field. Known fields cannot be
// overridden this way.
func (r *Result) Set(key string, v any) error {
	for _, k := range knownFields {
		if k == key {
			return fmt.Errorf("field %q is reserved", key)
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal field %q: %w", key, err)
	}
	if r.Extra == nil {
		r.Extra = make(map[string]json.RawMessage)
	}
	r.Extra[key] = raw
	return nil
}

// Field decodes an additional field into v. It returns false if the field
// is absent.
func (r *Result) Field(key string, v any) (bool, error) {
	raw, ok := r.Extra[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

// Clone returns a deep copy of r.
func (r *Result) Clone() *Result {
	c := *r
	if r.Value != nil {
		v := *r.Value
		c.Value = &v
	}
	if r.ExitCode != nil {
		code := *r.ExitCode
		c.ExitCode = &code
	}
	if r.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &c
}

type resultFields Result

// MarshalJSON writes the known fields followed by the extra fields.
func (r Result) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(resultFields(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return known, nil
	}

	fields := make(map[string]json.RawMessage, len(r.Extra)+len(knownFields))
	for k, v := range r.Extra {
		fields[k] = v
	}
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return nil, err
	}
	for k, v := range knownMap {
		fields[k] = v
	}
	return json.Marshal(fields)
}

// UnmarshalJSON reads a probe result object. A non-numeric "value" is
// kept verbatim in Extra rather than rejected.
func (r *Result) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var out Result
	if raw, ok := fields["value"]; ok {
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			out.Value = &v
			delete(fields, "value")
		}
	}
	if err := decodeField(fields, "status", &out.Status); err != nil {
		return err
	}
	if err := decodeField(fields, "message", &out.Message); err != nil {
		return err
	}
	if err := decodeField(fields, "unit", &out.Unit); err != nil {
		return err
	}
	// The agent stamps its own completion time, so a timestamp in a format
	// other than RFC 3339 is dropped rather than failing the whole result.
	_ = decodeField(fields, "timestamp", &out.Timestamp)
	if raw, ok := fields["exit_code"]; ok {
		var code int
		if err := json.Unmarshal(raw, &code); err != nil {
			return fmt.Errorf("field exit_code: %w", err)
		}
		out.ExitCode = &code
		delete(fields, "exit_code")
	}

	if len(fields) > 0 {
		out.Extra = fields
	}
	*r = out
	return nil
}

func decodeField(fields map[string]json.RawMessage, key string, v any) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	delete(fields, key)
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("field %s: %w", key, err)
	}
	return nil
}

// Parse decodes probe output. It succeeds only for a JSON object carrying
// one of the known statuses.
func Parse(output []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("output is not a JSON object")
	}
	var result Result
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return nil, err
	}
	result.Status = Status(strings.ToLower(strings.TrimSpace(string(result.Status))))
	if result.Status == "" {
		return nil, fmt.Errorf("output has no status")
	}
	if !result.Status.Valid() {
		return nil, fmt.Errorf("%w %q", ErrInvalidStatus, result.Status)
	}
	return &result, nil
}

// Emit writes the result as a single JSON line and returns the exit code
// the probe should terminate with.
func Emit(w io.Writer, result *Result) int {
	if err := json.NewEncoder(w).Encode(result); err != nil {
		return StatusUnknown.ExitCode()
	}
	return result.Status.ExitCode()
}
