package termq

import "fmt"

// Generator adapts the interaction to the Generator interface so it can be
// enqueued alongside hand-written generators.
//
// Each resume restores the interaction's saved context into a fresh scope,
// invokes the callback, and saves whatever the callback left bound. When
// the callback returns Done(), the interaction is closed before the step is
// handed back, so cleanup has already run by the time the queue moves on.
func (ia *Interaction) Generator() Generator {
	return &interactionGenerator{ia: ia}
}

type interactionGenerator struct {
	ia *Interaction
}

func (g *interactionGenerator) Resume(v ResumeValue) (Step, error) {
	ia := g.ia

	if ia.closed {
		return Step{}, fmt.Errorf("%w: resumed after close", ErrInteractionClosed)
	}

	scope := &Scope{value: ia.env}
	step := ia.callback(scope, v)
	ia.env = scope.value

	if step.Kind == StepDone {
		ia.Close()
	}

	return step, nil
}

func (g *interactionGenerator) Close() {
	g.ia.Close()
}
