package probe

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsExtraFields(t *testing.T) {
	out := []byte(`{"status":"warning","message":"1 disk","value":1,"unit":"disks with issues","disks":[{"device":"/dev/sda"}]}` + "\n")

	result, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, result.Status)
	assert.Equal(t, "1 disk", result.Message)
	require.NotNil(t, result.Value)
	assert.Equal(t, 1.0, *result.Value)
	assert.Equal(t, "disks with issues", result.Unit)

	var disks []map[string]string
	ok, err := result.Field("disks", &disks)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/dev/sda", disks[0]["device"])

	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(encoded, &back))
	assert.Contains(t, back, "disks")
	assert.Equal(t, "warning", back["status"])
}

func TestParseNonNumericValueIsPreserved(t *testing.T) {
	result, err := Parse([]byte(`{"status":"ok","value":"n/a"}`))
	require.NoError(t, err)
	assert.Nil(t, result.Value)

	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"value":"n/a"`)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"plain text", "all good"},
		{"empty", ""},
		{"array", `[{"status":"ok"}]`},
		{"missing status", `{"message":"hi"}`},
		{"invalid status", `{"status":"fine"}`},
		{"broken json", `{"status":"ok"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.output))
			assert.Error(t, err)
		})
	}
}

func TestParseNormalizesStatusCase(t *testing.T) {
	result, err := Parse([]byte(`{"status":" CRITICAL ","message":"raid degraded"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusCritical, result.Status)
}

func TestParseUnrecognizedStatus(t *testing.T) {
	_, err := Parse([]byte(`{"status":"fine"}`))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = Parse([]byte(`{"message":"hi"}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidStatus)
}

func TestParseIgnoresForeignTimestamp(t *testing.T) {
	result, err := Parse([]byte(`{"status":"ok","timestamp":"2024-01-01T10:00:00.123"}`))
	require.NoError(t, err)
	assert.True(t, result.Timestamp.IsZero())
}

func TestMarshalOmitsAbsentFields(t *testing.T) {
	encoded, err := json.Marshal(New(StatusUnknown, "script not found"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"unknown","message":"script not found"}`, string(encoded))

	r := New(StatusOK, "fine").WithExitCode(0)
	r.Timestamp = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	encoded, err = json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","message":"fine","exit_code":0,"timestamp":"2025-01-02T03:04:05Z"}`, string(encoded))
}

func TestSetRejectsReservedField(t *testing.T) {
	r := New(StatusOK, "")
	assert.Error(t, r.Set("status", "critical"))
	assert.NoError(t, r.Set("summary", map[string]int{"total": 3}))
}

func TestCloneIsIndependent(t *testing.T) {
	r := New(StatusOK, "x").WithValue(3, "days").WithExitCode(0)
	require.NoError(t, r.Set("details", map[string]string{"a": "b"}))

	c := r.Clone()
	*c.Value = 4
	*c.ExitCode = 9
	c.Extra["details"][2] = 'z'

	assert.Equal(t, 3.0, *r.Value)
	assert.Equal(t, 0, *r.ExitCode)
	assert.Equal(t, `{"a":"b"}`, string(r.Extra["details"]))
}

func TestWorst(t *testing.T) {
	assert.Equal(t, StatusCritical, Worst(StatusWarning, StatusCritical))
	assert.Equal(t, StatusWarning, Worst(StatusWarning, StatusUnknown))
	assert.Equal(t, StatusUnknown, Worst(StatusOK, StatusUnknown))
	assert.Equal(t, StatusOK, Worst(StatusOK, StatusOK))
}

func TestEmitExitCodes(t *testing.T) {
	tests := map[Status]int{
		StatusOK:       0,
		StatusWarning:  1,
		StatusCritical: 2,
		StatusUnknown:  2,
	}
	for status, want := range tests {
		var buf bytes.Buffer
		assert.Equal(t, want, Emit(&buf, New(status, "m")), status)
		parsed, err := Parse(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, status, parsed.Status)
	}
}
