package termq

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Queue serializes generators onto one subprocess connection.
//
// The Queue owns the subprocess send timing: it drives the current
// generator until it suspends, transmits at most one pending send at a
// time, arms a timeout after every send, and resumes the generator when
// output arrives (directly via Resume, or coalesced via ResumeDebounced).
// Generators enqueued against one Queue complete in strict FIFO order.
//
// All state is guarded by a single mutex, so Queue methods may be called
// from any goroutine, including timer callbacks. Generator callbacks and
// accept predicates run while that mutex is held; they must not call back
// into the Queue.
//
// Create one Queue per subprocess connection. After Cancel the Queue is
// reset, not torn down, and can be reused for the same connection.
type Queue struct {
	log  *slog.Logger
	proc Process

	timeout     time.Duration
	stableDelay time.Duration

	mu        sync.Mutex
	current   Generator
	currentID string
	pending   []queued

	// accept gates resumption of the current generator; armed by
	// StepUntil, cleared when it matches or fails.
	accept AcceptFunc

	timeoutTimer *time.Timer
	timeoutSeq   uint64

	debounceTimer *time.Timer
	debounceSeq   uint64
	debounceVal   ResumeValue
}

// queued is a generator waiting its turn, tagged for log correlation.
type queued struct {
	gen Generator
	id  string
}

// New creates a queue that sends to proc.
//
// The queue never creates or destroys the subprocess; proc is owned by the
// caller and must outlive the queue's use of it.
func New(proc Process, opts ...Option) *Queue {
	q := &Queue{
		proc:        proc,
		log:         NopLogger(),
		timeout:     DefaultTimeout,
		stableDelay: DefaultStableDelay,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.log = q.log.With("component", "queue")

	return q
}

// Enqueue submits a generator. A nil generator is a no-op.
//
// If the queue is idle the generator is driven immediately, which may send
// to the subprocess before Enqueue returns. Otherwise it runs only after
// everything ahead of it completes.
//
// The returned error is non-nil only for a broken generator contract
// (invalid step, resume after close) hit during the immediate drive.
func (q *Queue) Enqueue(gen Generator) error {
	if gen == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	id := ulid.Make().String()

	if q.current != nil {
		q.pending = append(q.pending, queued{gen: gen, id: id})
		q.log.Debug("Generator queued", "generator_id", id, "pending", len(q.pending))

		return nil
	}

	q.current = gen
	q.currentID = id
	q.log.Debug("Generator started", "generator_id", id)

	return q.resumeLocked(ResumeValue{})
}

// Resume delivers a value to the queue, typically subprocess output.
//
// It cancels the pending timeout, checks the value against the armed
// accept predicate if any, and drives the current generator until it
// suspends again or every queued generator is exhausted. Calling Resume on
// an idle queue is a no-op.
//
// The returned error indicates a broken generator contract and means the
// generator is stuck; everything else (predicate failures, dead-process
// sends) is handled internally.
func (q *Queue) Resume(v ResumeValue) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.resumeLocked(v)
}

// ResumeDebounced schedules a Resume after the stable delay, replacing any
// previously scheduled one. Bursts of calls within the quiet period
// collapse into a single Resume carrying only the last value.
func (q *Queue) ResumeDebounced(v ResumeValue) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopDebounceLocked()

	q.debounceSeq++
	seq := q.debounceSeq
	q.debounceVal = v
	q.debounceTimer = time.AfterFunc(q.stableDelay, func() {
		q.onDebounce(seq)
	})
}

// Cancel resets the queue: the current generator and every pending one are
// closed (running their cleanups before Cancel returns), the accept
// predicate is discarded, and both timers are stopped. The queue remains
// valid and reusable. Cancel is idempotent.
func (q *Queue) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.accept = nil

	if q.current != nil {
		q.log.Debug("Generator cancelled", "generator_id", q.currentID)
		q.current.Close()
		q.current = nil
		q.currentID = ""
	}

	for _, p := range q.pending {
		q.log.Debug("Generator cancelled", "generator_id", p.id)
		p.gen.Close()
	}

	q.pending = nil

	q.stopTimeoutLocked()
	q.stopDebounceLocked()
}

// Idle reports whether no generator is installed and nothing is pending.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.current == nil && len(q.pending) == 0
}

// resumeLocked is the drive cycle. It must be called with q.mu held.
func (q *Queue) resumeLocked(v ResumeValue) error {
	q.stopTimeoutLocked()

	// Whatever stops this cycle while a generator is still installed, the
	// wait for its next resume stays bounded.
	defer func() {
		if q.current != nil {
			q.armTimeoutLocked()
		}
	}()

	for q.current != nil {
		if q.accept != nil {
			ok, err := q.accept(v)
			if err != nil {
				q.log.Warn("Accept predicate failed",
					"generator_id", q.currentID, "value", v.String(), "error", err)

				q.accept = nil

				return nil
			}

			if !ok {
				q.log.Debug("Accept predicate rejected value",
					"generator_id", q.currentID, "value", v.String())

				return nil
			}

			q.accept = nil
		}

		for {
			step, err := q.current.Resume(v)
			if err != nil {
				return fmt.Errorf("resume generator %s: %w", q.currentID, err)
			}

			switch step.Kind {
			case StepWait:
				return nil

			case StepNoWait:
				if step.Text == "" {
					return q.invalidStepLocked(step)
				}

				q.sendLocked(step.Text)

				// Re-resume synchronously so one logical step can emit
				// several sends before suspending.
				v = Ack()

				continue

			case StepUntil:
				if step.Text == "" || step.Accept == nil {
					return q.invalidStepLocked(step)
				}

				q.accept = step.Accept
				q.sendLocked(step.Text)

				return nil

			case StepSend:
				if step.Text == "" {
					return q.invalidStepLocked(step)
				}

				q.sendLocked(step.Text)

				return nil

			case StepDone:
				q.log.Debug("Generator finished", "generator_id", q.currentID)
				q.current.Close()
				q.current = nil
				q.currentID = ""

				if len(q.pending) > 0 {
					next := q.pending[0]
					q.pending = q.pending[1:]
					q.current = next.gen
					q.currentID = next.id
					q.log.Debug("Generator started", "generator_id", next.id)
				}

				// A fresh generator starts from scratch; the previous
				// generator's response is not replayed into it.
				v = ResumeValue{}

			default:
				return q.invalidStepLocked(step)
			}

			break
		}
	}

	return nil
}

// invalidStepLocked logs and wraps a protocol violation.
func (q *Queue) invalidStepLocked(step Step) error {
	q.log.Error("Invalid step yielded",
		"generator_id", q.currentID, "kind", int(step.Kind))

	return fmt.Errorf("generator %s: %w (kind %d)", q.currentID, ErrInvalidStep, int(step.Kind))
}

// sendLocked transmits text, dropping it if the subprocess is gone. Sends
// racing a normal process exit are not an error.
func (q *Queue) sendLocked(text string) {
	if !q.proc.Alive() {
		q.log.Debug("Dropped send to dead process",
			"generator_id", q.currentID, "data_len", len(text))

		return
	}

	if err := q.proc.Send(text); err != nil {
		q.log.Debug("Send failed", "generator_id", q.currentID, "error", err)

		return
	}

	q.log.Debug("Sent to subprocess", "generator_id", q.currentID, "data_len", len(text))
}

// armTimeoutLocked (re)arms the timeout timer. Arming invalidates any
// earlier instance, so at most one is live at a time.
func (q *Queue) armTimeoutLocked() {
	q.stopTimeoutLocked()

	q.timeoutSeq++
	seq := q.timeoutSeq
	q.timeoutTimer = time.AfterFunc(q.timeout, func() {
		q.onTimeout(seq)
	})
}

// stopTimeoutLocked cancels the timeout timer. Bumping the sequence makes
// an already-fired callback a no-op, so cancellation is idempotent.
func (q *Queue) stopTimeoutLocked() {
	if q.timeoutTimer != nil {
		q.timeoutTimer.Stop()
		q.timeoutTimer = nil
	}

	q.timeoutSeq++
}

// stopDebounceLocked cancels the debounce timer and drops the held value.
func (q *Queue) stopDebounceLocked() {
	if q.debounceTimer != nil {
		q.debounceTimer.Stop()
		q.debounceTimer = nil
	}

	q.debounceSeq++
	q.debounceVal = ResumeValue{}
}

// onTimeout delivers the timeout sentinel to the waiting generator.
func (q *Queue) onTimeout(seq uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if seq != q.timeoutSeq || q.current == nil {
		// Cancelled or superseded while the callback was in flight.
		return
	}

	q.timeoutTimer = nil

	// Last resort before declaring a timeout: output that raced the timer
	// may already be buffered, either in the debounce window or inside the
	// process boundary. If so, wait for the real resume instead.
	if q.debounceTimer != nil {
		q.log.Debug("Timeout raced with debounced output, re-arming",
			"generator_id", q.currentID)
		q.armTimeoutLocked()

		return
	}

	if p, ok := q.proc.(Poller); ok && q.proc.Alive() && p.PollOutput() {
		q.log.Debug("Timeout raced with buffered output, re-arming",
			"generator_id", q.currentID)
		q.armTimeoutLocked()

		return
	}

	q.log.Debug("Timeout expired", "generator_id", q.currentID, "timeout", q.timeout)

	if err := q.resumeLocked(Timeout()); err != nil {
		q.log.Error("Resume after timeout failed",
			"generator_id", q.currentID, "error", err)
	}
}

// onDebounce fires the coalesced resume.
func (q *Queue) onDebounce(seq uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if seq != q.debounceSeq {
		// A later call re-armed the window or the queue was cancelled.
		return
	}

	q.debounceTimer = nil
	v := q.debounceVal
	q.debounceVal = ResumeValue{}

	if err := q.resumeLocked(v); err != nil {
		q.log.Error("Debounced resume failed", "error", err)
	}
}
