package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entry is the persisted form of one cached value.
type Entry struct {
	Result    json.RawMessage `json:"result"`
	Timestamp time.Time       `json:"timestamp"`
}

// Timestamps written without a zone offset are read as local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Result    json.RawMessage `json:"result"`
		Timestamp string          `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Result) == 0 {
		return fmt.Errorf("cache entry has no result")
	}
	for _, layout := range timestampLayouts {
		ts, err := time.ParseInLocation(layout, raw.Timestamp, time.Local)
		if err == nil {
			e.Result = raw.Result
			e.Timestamp = ts
			return nil
		}
	}
	return fmt.Errorf("invalid cache timestamp %q", raw.Timestamp)
}
