package operator

import (
	"sync"

	"go.uber.org/zap"
)

// State is the lifecycle position of one service within a run.
type State string

const (
	StateDefined       State = "defined"
	StateCreating      State = "creating"
	StateHealthPending State = "health_pending"
	StateHealthy       State = "healthy"
	StateUnhealthy     State = "unhealthy"
	StateRunning       State = "running"
	StateRestarting    State = "restarting"
	StateStopped       State = "stopped"
)

// Recorder receives state transitions, usually backed by the journal.
type Recorder interface {
	Record(stack, service, state, reason string) error
}

// Registry tracks per-service state for one stack. It belongs to a single
// Operator instance; several stacks in one process never share a registry.
type Registry struct {
	mu     sync.Mutex
	stack  string
	states map[string]State
	log    *zap.Logger
	rec    Recorder
}

func NewRegistry(log *zap.Logger, stack string, rec Recorder) *Registry {
	return &Registry{
		stack:  stack,
		states: map[string]State{},
		log:    log.Named("registry"),
		rec:    rec,
	}
}

func (r *Registry) Set(service string, state State, reason string) {
	r.mu.Lock()
	r.states[service] = state
	r.mu.Unlock()

	r.log.Info("transition",
		zap.String("service", service),
		zap.String("state", string(state)),
		zap.String("reason", reason))
	if r.rec != nil {
		if err := r.rec.Record(r.stack, service, string(state), reason); err != nil {
			r.log.Warn("journal write failed", zap.Error(err))
		}
	}
}

func (r *Registry) Get(service string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[service]; ok {
		return s
	}
	return StateDefined
}

func (r *Registry) Snapshot() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.states))
	for k, v := range r.states {
		out[k] = v
	}
	return out
}
