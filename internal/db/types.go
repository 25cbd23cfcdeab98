package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jandubois/healthagent/internal/probe"
)

// timeFormat sorts lexically in the same order as the times it encodes.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// ResultJSON stores a full probe result, extra fields included, as JSON text.
type ResultJSON struct {
	Result *probe.Result
}

func (j *ResultJSON) Scan(value any) error {
	if value == nil {
		j.Result = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ResultJSON", value)
	}
	if len(data) == 0 {
		j.Result = nil
		return nil
	}
	var r probe.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	j.Result = &r
	return nil
}

func (j ResultJSON) Value() (driver.Value, error) {
	if j.Result == nil {
		return "{}", nil
	}
	data, err := json.Marshal(j.Result)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// NullTime handles scanning SQLite TEXT datetime columns.
type NullTime struct {
	Time  time.Time
	Valid bool
}

func (t *NullTime) Scan(value any) error {
	if value == nil {
		t.Valid = false
		return nil
	}
	var str string
	switch v := value.(type) {
	case []byte:
		str = string(v)
	case string:
		str = v
	case time.Time:
		t.Time, t.Valid = v, true
		return nil
	default:
		return fmt.Errorf("cannot scan %T into NullTime", value)
	}
	if str == "" {
		t.Valid = false
		return nil
	}
	for _, format := range []string{timeFormat, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(format, str); err == nil {
			t.Time = parsed
			t.Valid = true
			return nil
		}
	}
	return fmt.Errorf("cannot parse time %q", str)
}
