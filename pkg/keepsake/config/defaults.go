// Package config loads keepsake configuration from YAML, environment
// variables and an optional .env file.
package config

import "time"

// Default configuration values.
const (
	// DefaultMaxBackups is the number of backups kept per file stem.
	DefaultMaxBackups = 10

	// DefaultMaxSummaries is the number of daily summary files kept.
	DefaultMaxSummaries = 30

	// DefaultMaxLogs is the number of consolidated log files kept.
	DefaultMaxLogs = 30

	// DefaultMaxSnapshots is the number of whole-tree snapshots kept.
	DefaultMaxSnapshots = 5

	// DefaultRolloverSchedule runs the day-rollover check one minute past midnight.
	DefaultRolloverSchedule = "1 0 * * *"

	// DefaultAuditMaxSize is the size at which the audit file rotates.
	DefaultAuditMaxSize = "10MB"

	// DefaultAuditMaxBackups is the number of rotated audit files kept.
	DefaultAuditMaxBackups = 5

	// DebounceWindow is the minimum spacing between two accepted events for
	// the same path. It is not configurable.
	DebounceWindow = 5 * time.Second
)

// DefaultExtensions is the monitored extension set.
var DefaultExtensions = []string{".txt"}

// DefaultExclude matches editor lock files and temporary saves.
var DefaultExclude = []string{
	"~$*",
	"*.tmp",
	".~lock*",
}

// DefaultComponentLevels are the per-component log levels written by config init.
var DefaultComponentLevels = map[string]string{
	"daemon":      "info",
	"watcher":     "warn",
	"coordinator": "info",
	"ledger":      "info",
	"backup":      "info",
}
