package keepsakev1

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jamesainslie/keepsake/pkg/keepsake/output"
	"github.com/jamesainslie/keepsake/pkg/keepsake/types"
)

// Status is the GetStatus payload.
type Status = output.Status

// HistoryResponse is the History payload, newest day first.
type HistoryResponse struct {
	Days []output.Day `json:"days"`
}

// BackupsResponse is the Backups payload, newest backup first.
type BackupsResponse struct {
	Stem    string          `json:"stem"`
	Backups []output.Backup `json:"backups"`
}

// SnapshotResult is the Snapshot payload.
type SnapshotResult struct {
	Path     string        `json:"path"`
	Files    int64         `json:"files"`
	Dirs     int64         `json:"dirs"`
	Bytes    int64         `json:"bytes"`
	Errors   []string      `json:"errors,omitempty"`
	Duration time.Duration `json:"duration"`
}

// WatchRequest selects the events WatchEvents streams. Empty fields match
// everything.
type WatchRequest struct {
	Root  string            `json:"root,omitempty"`
	Kinds []types.EventKind `json:"kinds,omitempty"`
}

// AuditEvent is one WatchEvents message.
type AuditEvent = types.AuditEvent

// Encode converts v to a Struct through its JSON form.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return s, nil
}

// Decode fills v from s. A nil Struct leaves v untouched.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	return nil
}
