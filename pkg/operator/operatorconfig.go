package operator

import "time"

// Options tunes a single Operator instance. Zero values are filled in by
// withDefaults so callers only set what they care about.
type Options struct {
	// GracePeriod bounds how long a stopping container may take to exit
	// before it is killed.
	GracePeriod time.Duration

	// Journal, when set, receives every service state transition.
	Journal Recorder

	// EngineRestart delegates restart:always to the engine's own restart
	// policy. Set for detached stacks, where no supervision loop runs after
	// the operator exits.
	EngineRestart bool

	// Restart backoff for restart:always services. Immediate unbounded
	// restart loops are an operational hazard, so restarts back off
	// exponentially from BackoffBase up to BackoffCap; the attempt counter
	// resets once a container has stayed up for ResetAfter.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	ResetAfter  time.Duration
}

const (
	defaultGracePeriod = 10 * time.Second
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffCap  = 30 * time.Second
	defaultResetAfter  = time.Minute
)

func (o Options) withDefaults() Options {
	if o.GracePeriod <= 0 {
		o.GracePeriod = defaultGracePeriod
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = defaultBackoffBase
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = defaultBackoffCap
	}
	if o.ResetAfter <= 0 {
		o.ResetAfter = defaultResetAfter
	}
	return o
}

// nextBackoff doubles prev and clamps it to cap; a non-positive prev yields
// base.
func nextBackoff(prev, base, cap time.Duration) time.Duration {
	if prev <= 0 {
		return base
	}
	next := prev * 2
	if next > cap {
		return cap
	}
	return next
}
