// Package types provides the core data types shared by the keepsake daemon,
// its client and the CLI: watched filesystem events, audit events and size
// helpers.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// EventKind is the kind of change reported by a watcher.
type EventKind int

// Event kinds delivered by the watcher.
const (
	KindCreated EventKind = iota
	KindModified
	KindDeleted
)

// String returns the lowercase name of the kind.
func (k EventKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindModified:
		return "modified"
	case KindDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Label returns the label written to audit lines and consolidated logs.
func (k EventKind) Label() string {
	switch k {
	case KindCreated:
		return "CRIADO"
	case KindModified:
		return "MODIFICADO"
	case KindDeleted:
		return "DELETADO"
	default:
		return "DESCONHECIDO"
	}
}

// TriggersBackup reports whether events of this kind produce a backup and a
// ledger increment.
func (k EventKind) TriggersBackup() bool {
	return k == KindCreated || k == KindModified
}

// ErrUnknownKind is returned when parsing an unrecognized event kind.
var ErrUnknownKind = errors.New("unknown event kind")

// ParseEventKind parses the lowercase name of a kind.
func ParseEventKind(s string) (EventKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "created", "create":
		return KindCreated, nil
	case "modified", "modify", "write":
		return KindModified, nil
	case "deleted", "delete", "remove":
		return KindDeleted, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *EventKind) UnmarshalText(text []byte) error {
	parsed, err := ParseEventKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// WatchedEvent is a single notification delivered by a watcher.
// It is transient and consumed once.
type WatchedEvent struct {
	// Path is the path of the file that changed.
	Path string

	// Kind is the kind of change.
	Kind EventKind

	// IsDir is true when the path is a directory.
	IsDir bool
}

// AuditEvent is an accepted event as published to subscribers.
type AuditEvent struct {
	Time       time.Time `json:"time" yaml:"time"`
	Kind       EventKind `json:"kind" yaml:"kind"`
	Path       string    `json:"path" yaml:"path"`
	User       string    `json:"user" yaml:"user"`
	BackupPath string    `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
}

// TimestampLayout is the layout used for timestamps inside audit lines and reports.
const TimestampLayout = "2006-01-02 15:04:05"

// EventLine renders the audit line for an accepted event:
//
//	2025-03-01 10:00:00 - MODIFICADO: /srv/docs/a.txt | Usuário: alice
func EventLine(at time.Time, kind EventKind, path, user string) string {
	return fmt.Sprintf("%s - %s: %s | Usuário: %s", at.Format(TimestampLayout), kind.Label(), path, user)
}

// BackupLine renders the audit line for a successful backup.
func BackupLine(at time.Time, backupPath string) string {
	return fmt.Sprintf("%s - Backup criado: %s", at.Format(TimestampLayout), backupPath)
}

// Line renders the event the way the audit trail records it.
func (e AuditEvent) Line() string {
	return EventLine(e.Time, e.Kind, e.Path, e.User)
}

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ParseSize parses a human-readable size such as "10MB" or "512KiB" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidSize, s)
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	return int64(n), nil
}

// FormatSize converts a size in bytes to a human-readable IEC string.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
