package core

import (
	"errors"
	"strconv"
	"time"
)

var (
	ErrNotFound         = errors.New("identifier not found in payload")
	ErrTransport        = errors.New("telemetry fetch failed")
	ErrMalformedPayload = errors.New("malformed telemetry payload")
	ErrInvalidConfig    = errors.New("invalid config")
)

// TimestampLayout is the ISO-8601 form written to every sink.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Sample is one poll of one interface. Nil counters mean the payload had no
// parseable value for that direction.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	MAC       string    `json:"mac"`
	RxBytes   *int64    `json:"rx_bytes"`
	TxBytes   *int64    `json:"tx_bytes"`
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999",
}

// ParseTimestamp accepts what this tool writes plus the naive forms older
// files may carry; naive values are read as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func formatCounter(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func parseStoredCounter(raw string) *int64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}
