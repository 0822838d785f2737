package termq

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProc records sends and lets tests control liveness and the
// buffered-output poll.
type mockProc struct {
	mu       sync.Mutex
	sent     []string
	alive    bool
	buffered bool
}

func newMockProc() *mockProc {
	return &mockProc{alive: true}
}

func (p *mockProc) Send(data string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sent = append(p.sent, data)

	return nil
}

func (p *mockProc) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.alive
}

func (p *mockProc) PollOutput() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.buffered
}

func (p *mockProc) setAlive(alive bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.alive = alive
}

func (p *mockProc) setBuffered(buffered bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buffered = buffered
}

func (p *mockProc) getSent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := make([]string, len(p.sent))
	copy(result, p.sent)

	return result
}

// recorder is a generator that sends once and then records every value it
// is resumed with until closed.
type recorder struct {
	text   string
	sent   bool
	closed bool

	mu     sync.Mutex
	values []ResumeValue
}

func (g *recorder) Resume(v ResumeValue) (Step, error) {
	if !g.sent {
		g.sent = true

		return Send(g.text), nil
	}

	g.mu.Lock()
	g.values = append(g.values, v)
	g.mu.Unlock()

	return Wait(), nil
}

func (g *recorder) Close() {
	g.closed = true
}

func (g *recorder) recorded() []ResumeValue {
	g.mu.Lock()
	defer g.mu.Unlock()

	result := make([]ResumeValue, len(g.values))
	copy(result, g.values)

	return result
}

func TestQueue_FIFOOrdering(t *testing.T) {
	proc := newMockProc()
	q := New(proc)

	require.NoError(t, q.Enqueue(SendString("G1")))
	require.NoError(t, q.Enqueue(SendString("G2")))
	require.NoError(t, q.Enqueue(SendString("G3")))

	// Only the first generator has driven I/O so far.
	require.Equal(t, []string{"G1"}, proc.getSent())
	require.False(t, q.Idle())

	// Each response finishes one generator and starts the next.
	require.NoError(t, q.Resume(Data("ok")))
	require.Equal(t, []string{"G1", "G2"}, proc.getSent())

	require.NoError(t, q.Resume(Data("ok")))
	require.Equal(t, []string{"G1", "G2", "G3"}, proc.getSent())

	require.NoError(t, q.Resume(Data("ok")))
	require.True(t, q.Idle())

	q.Cancel()
}

func TestQueue_FireAndForgetChaining(t *testing.T) {
	proc := newMockProc()
	q := New(proc)

	require.NoError(t, q.Enqueue(Steps(NoWait("A"), Send("B"))))

	// Both sends happen in the same synchronous step; the queue is then
	// waiting for one response.
	require.Equal(t, []string{"A", "B"}, proc.getSent())
	require.False(t, q.Idle())

	require.NoError(t, q.Resume(Data("response")))
	require.True(t, q.Idle())
	require.Equal(t, []string{"A", "B"}, proc.getSent())

	q.Cancel()
}

func TestQueue_FireAndForgetAck(t *testing.T) {
	proc := newMockProc()
	q := New(proc)

	var acks []ResumeValue

	ia := NewInteraction(nil, func(_ *Scope, v ResumeValue) Step {
		switch v.Kind {
		case ResumeEmpty:
			return NoWait("A")
		case ResumeAck:
			acks = append(acks, v)

			return Done()
		default:
			return Done()
		}
	})

	require.NoError(t, q.Enqueue(ia.Generator()))

	require.Equal(t, []string{"A"}, proc.getSent())
	require.Len(t, acks, 1)
	require.Equal(t, ResumeAck, acks[0].Kind)
	require.True(t, q.Idle())
}

func TestQueue_UntilPredicateGating(t *testing.T) {
	proc := newMockProc()
	q := New(proc)

	prompt := func(v ResumeValue) (bool, error) {
		return strings.Contains(v.Text, "$"), nil
	}

	require.NoError(t, q.Enqueue(Steps(Until("CMD", prompt))))
	require.Equal(t, []string{"CMD"}, proc.getSent())

	// Values the predicate rejects do not resume the generator.
	require.NoError(t, q.Resume(Data("partial output")))
	require.NoError(t, q.Resume(Data("more output")))
	require.False(t, q.Idle())
	require.Equal(t, []string{"CMD"}, proc.getSent())

	// The matching value resumes it exactly once.
	require.NoError(t, q.Resume(Data("done $ ")))
	require.True(t, q.Idle())
	require.Equal(t, []string{"CMD"}, proc.getSent())

	q.Cancel()
}

func TestQueue_AcceptPredicateError(t *testing.T) {
	proc := newMockProc()
	q := New(proc)

	calls := 0
	failing := func(ResumeValue) (bool, error) {
		calls++

		return false, errors.New("predicate broke")
	}

	require.NoError(t, q.Enqueue(Steps(Until("X", failing), Send("Y"))))
	require.Equal(t, []string{"X"}, proc.getSent())

	// The failing predicate is logged and discarded; the cycle is
	// abandoned without resuming the generator.
	require.NoError(t, q.Resume(Data("first")))
	require.Equal(t, []string{"X"}, proc.getSent())
	require.Equal(t, 1, calls)

	// With the predicate gone, the next resume reaches the generator.
	require.NoError(t, q.Resume(Data("second")))
	require.Equal(t, []string{"X", "Y"}, proc.getSent())
	require.Equal(t, 1, calls)

	q.Cancel()
}

func TestQueue_TimeoutDelivery(t *testing.T) {
	proc := newMockProc()
	q := New(proc, WithTimeout(20*time.Millisecond))

	gen := &recorder{text: "cmd"}
	require.NoError(t, q.Enqueue(gen))
	require.Equal(t, []string{"cmd"}, proc.getSent())

	require.Eventually(t, func() bool {
		return len(gen.recorded()) >= 1
	}, time.Second, 5*time.Millisecond)

	values := gen.recorded()
	require.True(t, values[0].IsTimeout())

	q.Cancel()
}

func TestQueue_TimeoutSkippedWhenOutputBuffered(t *testing.T) {
	proc := newMockProc()
	proc.setBuffered(true)

	q := New(proc, WithTimeout(10*time.Millisecond))

	gen := &recorder{text: "cmd"}
	require.NoError(t, q.Enqueue(gen))

	// While output is buffered at the process boundary, the timer keeps
	// re-arming instead of reporting a spurious timeout.
	time.Sleep(80 * time.Millisecond)
	require.Empty(t, gen.recorded())

	// Once the buffer is empty, the timeout comes through.
	proc.setBuffered(false)

	require.Eventually(t, func() bool {
		values := gen.recorded()

		return len(values) >= 1 && values[0].IsTimeout()
	}, time.Second, 5*time.Millisecond)

	q.Cancel()
}

func TestQueue_TimeoutCancelledByResume(t *testing.T) {
	proc := newMockProc()
	q := New(proc, WithTimeout(50*time.Millisecond))

	gen := &recorder{text: "cmd"}
	require.NoError(t, q.Enqueue(gen))

	require.NoError(t, q.Resume(Data("real response")))
	q.Cancel()

	// The real response cancelled the timer and Cancel stopped the one
	// re-armed while waiting; no timeout sneaks in afterwards.
	time.Sleep(120 * time.Millisecond)

	values := gen.recorded()
	require.Len(t, values, 1)
	require.Equal(t, ResumeData, values[0].Kind)
	require.Equal(t, "real response", values[0].Text)
}

func TestQueue_DebounceCoalescing(t *testing.T) {
	proc := newMockProc()
	q := New(proc, WithTimeout(time.Second), WithStableDelay(50*time.Millisecond))

	gen := &recorder{text: "cmd"}
	require.NoError(t, q.Enqueue(gen))

	q.ResumeDebounced(Data("first"))
	q.ResumeDebounced(Data("second"))
	q.ResumeDebounced(Data("third"))

	require.Eventually(t, func() bool {
		return len(gen.recorded()) >= 1
	}, time.Second, 5*time.Millisecond)

	values := gen.recorded()
	require.Len(t, values, 1)
	require.Equal(t, "third", values[0].Text)

	q.Cancel()
}

func TestQueue_CancelIdempotent(t *testing.T) {
	proc := newMockProc()
	q := New(proc)

	require.NoError(t, q.Enqueue(SendString("one")))
	require.NoError(t, q.Enqueue(SendString("two")))
	require.False(t, q.Idle())

	q.Cancel()
	require.True(t, q.Idle())

	// Repeated and idle-queue cancels are harmless.
	q.Cancel()
	q.Cancel()
	require.True(t, q.Idle())

	// The queue stays usable after cancellation.
	require.NoError(t, q.Enqueue(SendString("three")))
	require.Equal(t, []string{"one", "three"}, proc.getSent())

	q.Cancel()
}

func TestQueue_CancelClosesPending(t *testing.T) {
	proc := newMockProc()
	q := New(proc)

	blocker := &recorder{text: "block"}
	waiting := &recorder{text: "never"}

	require.NoError(t, q.Enqueue(blocker))
	require.NoError(t, q.Enqueue(waiting))

	q.Cancel()

	require.True(t, blocker.closed)
	require.True(t, waiting.closed)
	require.Equal(t, []string{"block"}, proc.getSent())
}

func TestQueue_CleanupGuarantee(t *testing.T) {
	proc := newMockProc()
	q := New(proc)

	cleanups := 0

	ia := NewInteraction(nil, func(*Scope, ResumeValue) Step {
		t.Fatal("interaction should never start")

		return Done()
	}, WithCleanup(func(*Scope) {
		cleanups++
	}))

	require.NoError(t, q.Enqueue(&recorder{text: "block"}))
	require.NoError(t, q.Enqueue(ia.Generator()))

	// Cancelled before it was ever resumed: cleanup still runs, once.
	q.Cancel()
	require.Equal(t, 1, cleanups)

	q.Cancel()
	require.Equal(t, 1, cleanups)
}

func TestQueue_InvalidStepFatal(t *testing.T) {
	proc := newMockProc()
	q := New(proc)

	err := q.Enqueue(Steps(Step{}))
	require.ErrorIs(t, err, ErrInvalidStep)
}

func TestQueue_InvalidStepEmptyText(t *testing.T) {
	proc := newMockProc()

	tests := []struct {
		name string
		step Step
	}{
		{name: "send without text", step: Send("")},
		{name: "no-wait without text", step: NoWait("")},
		{name: "until without text", step: Until("", func(ResumeValue) (bool, error) { return true, nil })},
		{name: "until without predicate", step: Step{Kind: StepUntil, Text: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(proc)

			err := q.Enqueue(Steps(tt.step))
			require.ErrorIs(t, err, ErrInvalidStep)

			q.Cancel()
		})
	}
}

func TestQueue_EnqueueNil(t *testing.T) {
	proc := newMockProc()
	q := New(proc)

	require.NoError(t, q.Enqueue(nil))
	require.True(t, q.Idle())
	require.Empty(t, proc.getSent())
}

func TestQueue_ResumeIdle(t *testing.T) {
	proc := newMockProc()
	q := New(proc)

	require.NoError(t, q.Resume(Data("unsolicited output")))
	require.True(t, q.Idle())
}

func TestQueue_DeadProcessSendDropped(t *testing.T) {
	proc := newMockProc()
	proc.setAlive(false)

	q := New(proc)

	// Sends to a dead process are dropped, not raised.
	require.NoError(t, q.Enqueue(SendString("ignored")))
	require.Empty(t, proc.getSent())

	q.Cancel()
}

func TestQueue_KeepWaiting(t *testing.T) {
	proc := newMockProc()
	q := New(proc, WithTimeout(time.Second))

	resumes := 0

	ia := NewInteraction(nil, func(_ *Scope, v ResumeValue) Step {
		resumes++

		if resumes == 1 {
			// Suspend without sending anything.
			return Wait()
		}

		assert.Equal(t, ResumeData, v.Kind)

		return Done()
	})

	require.NoError(t, q.Enqueue(ia.Generator()))
	require.Empty(t, proc.getSent())
	require.False(t, q.Idle())

	require.NoError(t, q.Resume(Data("wake up")))
	require.True(t, q.Idle())
	require.Equal(t, 2, resumes)
}

func TestQueue_NoWaitGeneratorDrainsImmediately(t *testing.T) {
	proc := newMockProc()
	q := New(proc)

	require.NoError(t, q.Enqueue(SendStringNoWait("fire")))

	// Fire-and-forget one-shots complete without waiting for a response.
	require.True(t, q.Idle())
	require.Equal(t, []string{"fire"}, proc.getSent())
}

func TestQueue_FreshGeneratorDoesNotSeePriorResponse(t *testing.T) {
	proc := newMockProc()
	q := New(proc)

	var first ResumeValue

	ia := NewInteraction(nil, func(_ *Scope, v ResumeValue) Step {
		first = v

		return Done()
	})

	require.NoError(t, q.Enqueue(SendString("one")))
	require.NoError(t, q.Enqueue(ia.Generator()))

	// The response that finishes the first generator is not replayed
	// into the second.
	require.NoError(t, q.Resume(Data("response for one")))
	require.Equal(t, ResumeEmpty, first.Kind)
	require.True(t, q.Idle())
}

func TestQueue_CancelDropsDebouncedValue(t *testing.T) {
	proc := newMockProc()
	q := New(proc, WithStableDelay(30*time.Millisecond))

	gen := &recorder{text: "cmd"}
	require.NoError(t, q.Enqueue(gen))

	q.ResumeDebounced(Data("late output"))
	q.Cancel()

	// The scheduled resume never fires after cancellation.
	time.Sleep(100 * time.Millisecond)
	require.Empty(t, gen.recorded())
	require.True(t, q.Idle())
}

func TestQueue_ResumeAfterCloseFatal(t *testing.T) {
	proc := newMockProc()
	q := New(proc)

	ia := NewInteraction(nil, func(*Scope, ResumeValue) Step {
		return Send("cmd")
	})

	gen := ia.Generator()
	require.NoError(t, q.Enqueue(gen))

	// Close behind the queue's back; the next resume must fail loudly.
	ia.Close()

	err := q.Resume(Data("response"))
	require.ErrorIs(t, err, ErrInteractionClosed)

	q.Cancel()
}
