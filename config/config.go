// Package config holds the single configuration record captured by the
// query facade at construction.  Options are never re-read mid-request.
package config

import (
	"io"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// Timeout bounds every blocking wait in one operation.
type Timeout struct {
	Limit time.Duration
}

// Logging controls diagnostic emission.
type Logging struct {
	Enabled bool
	Level   string
}

// Concurrency toggles and tunes the parallel inner loops: correlator
// insertion and phantom fill.
type Concurrency struct {
	Enabled    bool
	MaxThreads int
	// PivotSize is the largest work-item count that still runs
	// serially; loops over more items go parallel.
	PivotSize int
}

// Table selects and bounds the result materializations.
type Table struct {
	StaticDefault bool
	StaticHasMax  bool
	// StaticMaxSize bounds the static table in total cells.
	StaticMaxSize int
	DynamicEnable bool
}

// Data tunes the correlation stage.
type Data struct {
	// ErrorChecking toggles the correlator verification passes.
	ErrorChecking bool
	// CoalesceDuplicates accepts a duplicate (timestamp, source) cell
	// when the second value equals the first.  Unequal duplicates
	// always fail.
	CoalesceDuplicates bool
	// BufferCapacity bounds the stream message buffer.
	BufferCapacity int
}

// Config is the full configuration record.
type Config struct {
	Timeout     Timeout
	Logging     Logging
	Concurrency Concurrency
	Table       Table
	Data        Data
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Timeout: Timeout{Limit: 5 * time.Minute},
		Logging: Logging{Enabled: true, Level: "info"},
		Concurrency: Concurrency{
			Enabled:    true,
			MaxThreads: runtime.NumCPU(),
			PivotSize:  100,
		},
		Table: Table{
			StaticDefault: true,
			StaticHasMax:  true,
			StaticMaxSize: 4_000_000,
			DynamicEnable: true,
		},
		Data: Data{
			ErrorChecking:  true,
			BufferCapacity: 64,
		},
	}
}

// Bind registers every recognized option on flags, storing results into
// c.  Callers parse the flag set themselves.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.DurationVar(&c.Timeout.Limit, "timeout-limit", c.Timeout.Limit,
		"global operation timeout")
	flags.BoolVar(&c.Logging.Enabled, "logging-enabled", c.Logging.Enabled,
		"emit diagnostic logs")
	flags.StringVar(&c.Logging.Level, "logging-level", c.Logging.Level,
		"diagnostic log level")
	flags.BoolVar(&c.Concurrency.Enabled, "concurrency-enabled", c.Concurrency.Enabled,
		"enable parallel inner loops")
	flags.IntVar(&c.Concurrency.MaxThreads, "concurrency-max-threads", c.Concurrency.MaxThreads,
		"worker cap for parallel loops and stream fan-out")
	flags.IntVar(&c.Concurrency.PivotSize, "concurrency-pivot-size", c.Concurrency.PivotSize,
		"loops over more work items than this go parallel")
	flags.BoolVar(&c.Table.StaticDefault, "table-static-default", c.Table.StaticDefault,
		"prefer the static table materialization")
	flags.BoolVar(&c.Table.StaticHasMax, "table-static-has-max", c.Table.StaticHasMax,
		"bound the static table size")
	flags.IntVar(&c.Table.StaticMaxSize, "table-static-max-size", c.Table.StaticMaxSize,
		"static table bound, in total cells")
	flags.BoolVar(&c.Table.DynamicEnable, "table-dynamic-enable", c.Table.DynamicEnable,
		"enable the lazy table materialization")
	flags.BoolVar(&c.Data.ErrorChecking, "data-error-checking", c.Data.ErrorChecking,
		"run correlator verification passes")
	flags.BoolVar(&c.Data.CoalesceDuplicates, "data-coalesce-duplicates", c.Data.CoalesceDuplicates,
		"coalesce value-equal duplicate cells instead of failing")
	flags.IntVar(&c.Data.BufferCapacity, "data-buffer-capacity", c.Data.BufferCapacity,
		"stream message buffer capacity")
}

// Validate rejects unusable settings.
func (c Config) Validate() error {
	if c.Timeout.Limit < 0 {
		return errors.New("timeout limit must be non-negative")
	}
	if c.Concurrency.MaxThreads < 1 {
		return errors.New("concurrency max threads must be at least 1")
	}
	if c.Concurrency.PivotSize < 0 {
		return errors.New("concurrency pivot size must be non-negative")
	}
	if c.Data.BufferCapacity < 1 {
		return errors.New("buffer capacity must be at least 1")
	}
	if c.Table.StaticHasMax && c.Table.StaticMaxSize < 1 {
		return errors.New("static table max size must be at least 1 when bounded")
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return errors.Wrapf(err, "bad logging level %q", c.Logging.Level)
	}
	return nil
}

// Logger builds the logger the facade injects everywhere.  A disabled
// configuration yields a logger that discards all output.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	if !c.Logging.Enabled {
		log.SetOutput(io.Discard)
		return log
	}
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// WorkerLimit returns the pool cap for parallel loops.
func (c Config) WorkerLimit() int {
	if c.Concurrency.MaxThreads > 0 {
		return c.Concurrency.MaxThreads
	}
	return runtime.NumCPU()
}

// Parallel reports whether a loop over n items should run on the pool.
func (c Config) Parallel(n int) bool {
	return c.Concurrency.Enabled && n > c.Concurrency.PivotSize
}
