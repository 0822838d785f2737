package termq

// Generator is the resumable-computation interface the queue drives.
//
// The queue resumes a generator with a ResumeValue describing what happened
// since it last suspended and receives a Step describing what to do next.
// Exhaustion is signalled by a StepDone step, not an error; a non-nil error
// indicates a broken contract (such as resuming a closed interaction) and
// propagates to the caller of the queue's Resume.
//
// Both hand-written generators and adapted Interactions satisfy this
// interface; the queue cannot tell them apart.
type Generator interface {
	// Resume advances the generator with v and returns its next step.
	Resume(v ResumeValue) (Step, error)

	// Close releases the generator's resources and runs any cleanup.
	// It is idempotent and safe to call on a generator that never ran.
	Close()
}

// SendString wraps a one-shot send as a generator: it transmits text,
// waits for a single response (or timeout), then finishes.
func SendString(text string) Generator {
	return &oneShot{text: text}
}

// SendStringNoWait wraps a one-shot fire-and-forget send as a generator:
// it transmits text and finishes immediately without waiting.
func SendStringNoWait(text string) Generator {
	return &oneShot{text: text, noWait: true}
}

type oneShot struct {
	text   string
	noWait bool
	sent   bool
	closed bool
}

func (g *oneShot) Resume(ResumeValue) (Step, error) {
	if g.closed || g.sent {
		g.closed = true

		return Done(), nil
	}

	g.sent = true

	if g.noWait {
		return NoWait(g.text), nil
	}

	return Send(g.text), nil
}

func (g *oneShot) Close() {
	g.closed = true
}

// Steps returns a generator that yields each step in order, ignoring
// resume values, and then finishes.
func Steps(steps ...Step) Generator {
	return &stepsGen{steps: steps}
}

type stepsGen struct {
	steps  []Step
	closed bool
}

func (g *stepsGen) Resume(ResumeValue) (Step, error) {
	if g.closed || len(g.steps) == 0 {
		g.closed = true

		return Done(), nil
	}

	step := g.steps[0]
	g.steps = g.steps[1:]

	return step, nil
}

func (g *stepsGen) Close() {
	g.closed = true
	g.steps = nil
}
