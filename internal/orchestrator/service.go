package orchestrator

import (
	"context"
	"sync"

	"github.com/weftworks/weft/internal/exec"
	"github.com/weftworks/weft/internal/isolation"
	"github.com/weftworks/weft/pkg/models"
)

// Callback receives one completion batch per driver cycle.
type Callback func(update CallbackUpdate)

// CallbackUpdate describes the items that finished in one driver cycle.
type CallbackUpdate struct {
	// OrchestrationID identifies the run.
	OrchestrationID string
	// Completed lists item IDs that completed in this batch.
	Completed []string
	// Failed lists item IDs that failed in this batch.
	Failed []string
}

// Service owns active orchestrations. It is the only entry point for
// starting and controlling runs; there is no package-level run state.
type Service struct {
	mu        sync.RWMutex
	active    map[string]*Orchestration
	callbacks []Callback

	defaults   models.Config
	executor   exec.WorkExecutor
	workspaces isolation.Provider
	logger     *DebugLogger
	emitter    *EventEmitter
}

// NewService creates an orchestration service.
func NewService(required RequiredConfig, opts ...Option) *Service {
	options := &serviceOptions{}
	for _, opt := range opts {
		opt(options)
	}

	defaults := models.DefaultConfig()
	if options.defaults != nil {
		defaults = *options.defaults
	}
	logger := options.logger
	if logger == nil {
		logger = NopLogger()
	}
	setPackageLogger(logger)

	return &Service{
		active:     make(map[string]*Orchestration),
		defaults:   defaults,
		executor:   required.Executor,
		workspaces: options.workspaces,
		logger:     logger,
		emitter:    options.emitter,
	}
}

// RegisterCallback adds a completion callback. Callbacks are invoked once
// per driver batch with the items that finished in that cycle.
func (s *Service) RegisterCallback(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// Start validates the request and launches a run. Cycle and configuration
// errors are returned synchronously; on success the run executes in the
// background and the orchestration ID is returned.
func (s *Service) Start(ctx context.Context, req models.Request) (string, error) {
	o, err := newOrchestration(req, s.defaults, s.executor, s.workspaces, s.logger, s.emitter, nil)
	if err != nil {
		return "", err
	}
	o.notify = func(completed, failed []string) {
		s.dispatch(CallbackUpdate{
			OrchestrationID: o.ID(),
			Completed:       completed,
			Failed:          failed,
		})
	}

	s.mu.Lock()
	s.active[o.ID()] = o
	s.mu.Unlock()

	s.logger.Log("[service] starting orchestration %s with %d items", o.ID(), len(req.Items))
	o.start(ctx)
	return o.ID(), nil
}

// dispatch delivers a batch update to every registered callback.
func (s *Service) dispatch(update CallbackUpdate) {
	s.mu.RLock()
	callbacks := append([]Callback(nil), s.callbacks...)
	s.mu.RUnlock()

	for _, cb := range callbacks {
		cb(update)
	}
}

// get returns the orchestration with the given ID.
func (s *Service) get(id string) (*Orchestration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.active[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

// Status returns a snapshot of the run's full state.
func (s *Service) Status(id string) (models.OrchestrationState, error) {
	o, err := s.get(id)
	if err != nil {
		return models.OrchestrationState{}, err
	}
	return o.snapshotState(), nil
}

// Result returns the run's result. Available mid-run with the counts
// observed so far.
func (s *Service) Result(id string) (models.Result, error) {
	o, err := s.get(id)
	if err != nil {
		return models.Result{}, err
	}
	return o.snapshotResult(), nil
}

// Pause suspends admission for the run. In-flight items keep running.
// Returns ErrAlreadyTerminal when the run has finished.
func (s *Service) Pause(id string) error {
	o, err := s.get(id)
	if err != nil {
		return err
	}
	if o.terminal() {
		return ErrAlreadyTerminal
	}
	o.Pause()
	return nil
}

// Resume re-enables admission for a paused run. Returns
// ErrAlreadyTerminal when the run has finished.
func (s *Service) Resume(id string) error {
	o, err := s.get(id)
	if err != nil {
		return err
	}
	if o.terminal() {
		return ErrAlreadyTerminal
	}
	o.Resume()
	return nil
}

// Stop halts the run best-effort and waits for the driver to finish
// shutting down.
func (s *Service) Stop(id string) error {
	o, err := s.get(id)
	if err != nil {
		return err
	}
	o.Stop()
	<-o.Done()
	return nil
}

// Wait blocks until the run reaches a terminal status, then returns its
// result.
func (s *Service) Wait(ctx context.Context, id string) (models.Result, error) {
	o, err := s.get(id)
	if err != nil {
		return models.Result{}, err
	}
	select {
	case <-o.Done():
		return o.snapshotResult(), nil
	case <-ctx.Done():
		return models.Result{}, ctx.Err()
	}
}

// List returns the IDs of all known orchestrations.
func (s *Service) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}
