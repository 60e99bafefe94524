package output

import (
	"bytes"
	"encoding/json"
)

// JSONFormatter formats the report as a single indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

var _ Formatter = (*JSONFormatter)(nil)

// JSONLFormatter writes one compact JSON object per line: one per event,
// one per archived day and one per backup, in that order.
// This format suits streaming consumers such as jq.
type JSONLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONLFormatter) Format(w *bytes.Buffer, r *Report) error {
	encoder := json.NewEncoder(w)
	for _, ev := range r.Events {
		if err := encoder.Encode(ev); err != nil {
			return err
		}
	}
	for _, d := range r.History {
		if err := encoder.Encode(d); err != nil {
			return err
		}
	}
	for _, b := range r.Backups {
		if err := encoder.Encode(b); err != nil {
			return err
		}
	}
	if r.Status != nil {
		return encoder.Encode(r.Status)
	}
	return nil
}

func init() {
	Register("jsonl", func() Formatter {
		return &JSONLFormatter{}
	})
}

var _ Formatter = (*JSONLFormatter)(nil)
