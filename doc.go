// Package termq serializes asynchronous, multi-step exchanges onto a single
// interactive subprocess connection.
//
// A Queue owns the timing of everything sent to the subprocess: generators
// are enqueued in FIFO order, at most one generator drives I/O at a time,
// and the subprocess never receives a second send while a prior one's
// response (or timeout) is still outstanding, except for sends explicitly
// marked fire-and-forget.
//
// # Generators
//
// A Generator is a resumable computation: on each resume it receives a
// ResumeValue describing what happened since it last suspended (received
// output, the timeout sentinel, or a fire-and-forget acknowledgement) and
// yields a Step describing what to do next. Four wait disciplines are
// available as a single cooperative step:
//
//	Send(text)          // send, then wait for any response
//	NoWait(text)        // send without waiting; resumed with Ack()
//	Until(text, accept) // send, then wait until accept matches a value
//	Wait()              // wait without sending
//
// Simple sends do not need a hand-written generator:
//
//	q := termq.New(proc, termq.WithLogger(slog.Default()))
//	q.Enqueue(termq.SendString("ls\r"))
//
// # Interactions
//
// Multi-step exchanges that carry state between suspensions are expressed
// as an Interaction: a callback running inside an ambient Scope, plus an
// optional cleanup that runs exactly once, even if the interaction is
// cancelled before it ever starts:
//
//	ia := termq.NewInteraction(buf, func(scope *termq.Scope, v termq.ResumeValue) termq.Step {
//	    // inspect v, rebind scope, decide the next step...
//	    return termq.Done()
//	}, termq.WithCleanup(func(scope *termq.Scope) {
//	    // release resources
//	}))
//	q.Enqueue(ia.Generator())
//
// # Timers
//
// The queue arms a hard timeout after every send; if no response arrives
// within the bound, the waiting generator is resumed with the Timeout
// sentinel and decides how to recover. Bursty subprocess output is
// coalesced through ResumeDebounced, which delivers only the last value
// after a short quiet period. Both durations are tunable via WithTimeout
// and WithStableDelay.
//
// # Process boundary
//
// The queue talks to the subprocess only through the narrow Process
// interface (send bytes, check liveness). The ptyproc subpackage provides
// an implementation that runs a command behind a pseudo-terminal and feeds
// its output back into the queue.
package termq
