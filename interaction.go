package termq

// Scope carries the ambient context an interaction callback runs inside.
//
// The bound value is whatever the host associates with the exchange, such
// as a terminal buffer or screen model. The value the callback last bound
// is saved when it suspends and restored before it is resumed, so rebinding
// survives across suspension points.
type Scope struct {
	value any
}

// Value returns the currently bound context value.
func (s *Scope) Value() any {
	return s.value
}

// Bind rebinds the ambient context for subsequent resumes.
func (s *Scope) Bind(v any) {
	s.value = v
}

// Callback is the body of an Interaction. On each resume it receives the
// ambient scope and the resume value, and returns the next step. Returning
// Done() completes the interaction and triggers cleanup.
type Callback func(scope *Scope, v ResumeValue) Step

// CleanupFunc is an interaction finalizer. It runs exactly once, inside a
// scope seeded with the context the interaction was created with.
type CleanupFunc func(scope *Scope)

// Interaction is a multi-step, stateful exchange with the subprocess,
// expressed as a resumable callback plus an optional cleanup finalizer.
//
// An Interaction does not satisfy Generator directly; adapt it with
// Generator() before enqueueing.
type Interaction struct {
	callback   Callback
	cleanup    CleanupFunc
	env        any
	initialEnv any
	closed     bool
}

// InteractionOption configures an Interaction.
type InteractionOption func(*Interaction)

// WithCleanup registers a finalizer that runs exactly once when the
// interaction completes, is cancelled, or is discarded before ever
// starting.
func WithCleanup(f CleanupFunc) InteractionOption {
	return func(ia *Interaction) {
		ia.cleanup = f
	}
}

// NewInteraction creates an interaction whose callback runs inside the
// given ambient context value.
func NewInteraction(env any, callback Callback, opts ...InteractionOption) *Interaction {
	ia := &Interaction{
		callback:   callback,
		env:        env,
		initialEnv: env,
	}

	for _, opt := range opts {
		opt(ia)
	}

	return ia
}

// Close completes the interaction: cleanup runs inside the initial context
// and further resumes fail with ErrInteractionClosed. It is idempotent and
// safe to call on an interaction that never started.
func (ia *Interaction) Close() {
	if ia.closed {
		return
	}

	ia.closed = true
	ia.callback = nil

	if ia.cleanup != nil {
		cleanup := ia.cleanup
		ia.cleanup = nil
		cleanup(&Scope{value: ia.initialEnv})
	}
}
