package engine

import (
	"context"
	"time"

	"github.com/alexisbeaulieu97/stratum/internal/config"
	"github.com/alexisbeaulieu97/stratum/internal/logger"
	"github.com/alexisbeaulieu97/stratum/internal/plugin"
	"github.com/alexisbeaulieu97/stratum/internal/snapshot"
)

const (
	// DefaultRetries bounds retry attempts for transient failures.
	DefaultRetries = 3
	// DefaultRetryInterval seeds the exponential backoff between retries.
	DefaultRetryInterval = 500 * time.Millisecond
	// DefaultTimeout bounds a single apply attempt when the specification
	// does not override it.
	DefaultTimeout = 5 * time.Minute
)

// Options holds tunable execution parameters.
type Options struct {
	DryRun        bool
	Parallel      int
	Retries       int
	RetryInterval time.Duration
	Timeout       time.Duration
	KindTimeouts  map[string]time.Duration
}

// OptionsFromSettings derives execution options from a specification's
// settings block, filling defaults for everything unset.
func OptionsFromSettings(settings config.Settings) Options {
	opts := Options{
		DryRun:        settings.DryRun,
		Parallel:      settings.Parallel,
		Retries:       DefaultRetries,
		RetryInterval: DefaultRetryInterval,
		Timeout:       DefaultTimeout,
	}
	if settings.Parallel <= 0 {
		opts.Parallel = 1
	}
	if settings.Retries > 0 {
		opts.Retries = settings.Retries
	}
	if settings.Timeout > 0 {
		opts.Timeout = time.Duration(settings.Timeout) * time.Second
	}
	if len(settings.Timeouts) > 0 {
		opts.KindTimeouts = make(map[string]time.Duration, len(settings.Timeouts))
		for kind, seconds := range settings.Timeouts {
			opts.KindTimeouts[kind] = time.Duration(seconds) * time.Second
		}
	}
	return opts
}

// timeoutFor returns the apply-attempt timeout for a step kind.
func (o Options) timeoutFor(kind string) time.Duration {
	if t, ok := o.KindTimeouts[kind]; ok {
		return t
	}
	if o.Timeout > 0 {
		return o.Timeout
	}
	return DefaultTimeout
}

// ExecutionContext contains runtime state shared across executor workers.
type ExecutionContext struct {
	Spec     *config.Spec
	Registry *plugin.Registry
	Snapshot *snapshot.Snapshot
	Logger   *logger.Logger
	Options  Options
	Context  context.Context
}
