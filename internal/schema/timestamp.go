package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the capture time format used by the interchange catalog.
const TimestampLayout = "2006-01-02 15:04:05"

// DateLayout is the format used for Info.DateCreated.
const DateLayout = "2006-01-02"

// Timestamp is a capture time serialised in TimestampLayout.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t, dropping sub-second precision.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t.Truncate(time.Second)}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(TimestampLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	parsed, err := time.Parse(TimestampLayout, raw)
	if err != nil {
		if parsed, err = time.Parse(time.RFC3339, raw); err != nil {
			return fmt.Errorf("parse timestamp %q: %w", raw, err)
		}
	}
	t.Time = parsed
	return nil
}

// Date is a calendar day serialised in DateLayout.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode date: %w", err)
	}
	parsed, err := time.Parse(DateLayout, raw)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", raw, err)
	}
	d.Time = parsed
	return nil
}
