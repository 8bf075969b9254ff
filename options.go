package cropagent

import (
	"log/slog"
	"time"

	"github.com/agrisense/cropagent/internal/noise"
	"github.com/agrisense/cropagent/internal/storage"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds the overrides after applying options.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port        int
	databaseURL string
	policy      string
	logger      *slog.Logger
	version     string
	clock       func() time.Time
	noise       noise.Source
	store       storage.Store
}

// WithPort overrides the TCP port from config (CROPAGENT_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the history store location from config
// (DATABASE_URL env var). A postgres:// URL selects PostgreSQL.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithFanoutPolicy overrides CROPAGENT_FANOUT_POLICY ("fail_fast" or "partial").
func WithFanoutPolicy(policy string) Option {
	return func(o *resolvedOptions) { o.policy = policy }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithClock replaces time.Now for every timestamp the pipeline produces.
func WithClock(now func() time.Time) Option {
	return func(o *resolvedOptions) { o.clock = now }
}

// WithNoise replaces the seeded random source used by simulation and fusion.
func WithNoise(src noise.Source) Option {
	return func(o *resolvedOptions) { o.noise = src }
}

// WithStore supplies an already-open history store. The App closes it on
// shutdown.
func WithStore(store storage.Store) Option {
	return func(o *resolvedOptions) { o.store = store }
}
