package config

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/jamesainslie/keepsake/pkg/keepsake/filter"
	"github.com/jamesainslie/keepsake/pkg/keepsake/logging"
)

// Validation errors.
var (
	ErrNoWatchRoot     = errors.New("watch.root is required")
	ErrNoExtensions    = errors.New("watch.extensions must name at least one extension")
	ErrBadRetention    = errors.New("retention counts must be positive")
	ErrRootInsideWatch = errors.New("artifact directory lies inside the watched tree")
	ErrBadSchedule     = errors.New("invalid rollover schedule")
)

// Validate checks the configuration before the monitor starts.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Watch.Root == "" {
		errs = append(errs, ErrNoWatchRoot)
	}
	if len(filter.NormalizeExtensions(c.Watch.Extensions)) == 0 {
		errs = append(errs, ErrNoExtensions)
	}
	if _, err := filter.New(filter.WithExclude(c.Watch.Exclude...)); err != nil {
		errs = append(errs, fmt.Errorf("watch.exclude: %w", err))
	}

	counts := []struct {
		key string
		n   int
	}{
		{"backup.max", c.Backup.Max},
		{"ledger.max_summaries", c.Ledger.MaxSummaries},
		{"ledger.max_logs", c.Ledger.MaxLogs},
		{"snapshot.max", c.Snapshot.Max},
	}
	for _, rc := range counts {
		if rc.n <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s = %d", ErrBadRetention, rc.key, rc.n))
		}
	}

	if c.Watch.Root != "" {
		for key, dir := range c.ArtifactRoots() {
			if dir != "" && filter.IsUnder(dir, c.Watch.Root) {
				errs = append(errs, fmt.Errorf("%w: %s = %s", ErrRootInsideWatch, key, dir))
			}
		}
	}

	if _, err := cron.ParseStandard(c.Ledger.RolloverSchedule); err != nil {
		errs = append(errs, fmt.Errorf("%w %q: %w", ErrBadSchedule, c.Ledger.RolloverSchedule, err))
	}

	if _, err := c.AuditMaxBytes(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.LogMaxBytes(); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	return errors.Join(errs...)
}

// ArtifactRoots returns every directory keepsake writes to, keyed by config key.
// The watcher ignores these paths.
func (c *Config) ArtifactRoots() map[string]string {
	return map[string]string{
		"backup.root":        c.Backup.Root,
		"ledger.summary_dir": c.Ledger.SummaryDir,
		"ledger.log_dir":     c.Ledger.LogDir,
		"snapshot.root":      c.Snapshot.Root,
	}
}

// LoggingConfig converts the logging section for logging.Init.
func (c *Config) LoggingConfig() (logging.Config, error) {
	maxSize, err := c.LogMaxBytes()
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{
		Level:        c.Logging.Level,
		Path:         c.Logging.Path,
		ConsoleLevel: c.Logging.Console,
		Components:   c.Logging.Components,
		Rotation: logging.RotationConfig{
			MaxSize:    maxSize,
			MaxAge:     c.Logging.Rotation.MaxAge,
			MaxBackups: c.Logging.Rotation.MaxBackups,
			Daily:      c.Logging.Rotation.Daily,
		},
	}, nil
}
