package orchestrator

import (
	"github.com/weftworks/weft/internal/exec"
	"github.com/weftworks/weft/internal/isolation"
	"github.com/weftworks/weft/pkg/models"
)

// RequiredConfig contains the minimal required configuration for a Service.
// All fields are required and have no defaults.
type RequiredConfig struct {
	// Executor performs the actual work for admitted items.
	Executor exec.WorkExecutor
}

// Option configures a Service. Use With* functions to create Options.
type Option func(*serviceOptions)

// serviceOptions holds all optional configuration.
type serviceOptions struct {
	defaults   *models.Config
	workspaces isolation.Provider
	logger     *DebugLogger
	emitter    *EventEmitter
}

// WithDefaults sets the default run configuration applied to requests
// that carry none.
func WithDefaults(cfg models.Config) Option {
	return func(o *serviceOptions) { o.defaults = &cfg }
}

// WithWorkspaces sets the isolation provider. Without one, items run
// directly in the caller's working tree.
func WithWorkspaces(p isolation.Provider) Option {
	return func(o *serviceOptions) { o.workspaces = p }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *serviceOptions) { o.logger = l }
}

// WithEmitter sets the event emitter for run progress events.
func WithEmitter(e *EventEmitter) Option {
	return func(o *serviceOptions) { o.emitter = e }
}
