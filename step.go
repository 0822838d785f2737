package termq

import "fmt"

// StepKind identifies the shape of a step yielded by a generator.
type StepKind int

const (
	// StepInvalid is the zero value. Yielding it is a protocol violation
	// and causes the queue to fail with ErrInvalidStep.
	StepInvalid StepKind = iota

	// StepSend sends text to the subprocess and suspends until the next
	// response (or timeout) arrives.
	StepSend

	// StepNoWait sends text to the subprocess without waiting. The
	// generator is resumed again synchronously with an Ack value, so a
	// single logical step can emit several sends before suspending.
	StepNoWait

	// StepUntil sends text and suspends until the accept predicate
	// returns true for a received value.
	StepUntil

	// StepWait suspends without sending anything until the next external
	// resume call.
	StepWait

	// StepDone marks the generator as exhausted.
	StepDone
)

// AcceptFunc gates resumption of a generator suspended by a StepUntil step.
//
// The predicate is evaluated against every resume value delivered while it
// is armed. Returning true consumes the value and resumes the generator
// with it. Returning an error discards the predicate and abandons the
// current resume cycle; the error is logged, not propagated.
type AcceptFunc func(v ResumeValue) (bool, error)

// Step is a single suspension point yielded by a Generator: an instruction
// to the queue describing what to send, whether to wait, and what condition
// gates the next resume.
type Step struct {
	// Kind selects the shape; Text and Accept are meaningful only for the
	// kinds documented on each constant.
	Kind   StepKind
	Text   string
	Accept AcceptFunc
}

// Send returns a step that transmits text and waits for the next response.
func Send(text string) Step {
	return Step{Kind: StepSend, Text: text}
}

// NoWait returns a fire-and-forget step: text is transmitted and the
// generator continues immediately with an Ack resume value.
func NoWait(text string) Step {
	return Step{Kind: StepNoWait, Text: text}
}

// Until returns a step that transmits text and suspends until accept
// returns true for a received value.
//
// The predicate also sees the Timeout sentinel; a predicate that should
// unblock on timeout must accept values where IsTimeout reports true.
func Until(text string, accept AcceptFunc) Step {
	return Step{Kind: StepUntil, Text: text, Accept: accept}
}

// Wait returns a step that suspends without sending anything.
func Wait() Step {
	return Step{Kind: StepWait}
}

// Done returns the step that marks a generator as exhausted.
func Done() Step {
	return Step{Kind: StepDone}
}

// ResumeKind identifies what a generator is being resumed with.
type ResumeKind int

const (
	// ResumeEmpty carries no payload. It is the value a generator first
	// sees when the queue starts driving it.
	ResumeEmpty ResumeKind = iota

	// ResumeData carries output received from the subprocess.
	ResumeData

	// ResumeTimeout is the sentinel delivered when no response arrived
	// within the timeout bound. It is not an error; the generator decides
	// whether to retry, abort, or escalate.
	ResumeTimeout

	// ResumeAck acknowledges that a fire-and-forget send was transmitted.
	ResumeAck
)

// ResumeValue is what happened since a generator last suspended.
type ResumeValue struct {
	Kind ResumeKind
	// Text is the received output; meaningful only for ResumeData.
	Text string
}

// Data wraps received subprocess output as a resume value.
func Data(text string) ResumeValue {
	return ResumeValue{Kind: ResumeData, Text: text}
}

// Timeout returns the timeout sentinel resume value.
func Timeout() ResumeValue {
	return ResumeValue{Kind: ResumeTimeout}
}

// Ack returns the fire-and-forget acknowledgement resume value.
func Ack() ResumeValue {
	return ResumeValue{Kind: ResumeAck}
}

// IsTimeout reports whether the value is the timeout sentinel.
func (v ResumeValue) IsTimeout() bool {
	return v.Kind == ResumeTimeout
}

// String renders the value for log output.
func (v ResumeValue) String() string {
	switch v.Kind {
	case ResumeEmpty:
		return "<empty>"
	case ResumeData:
		return fmt.Sprintf("data(%q)", v.Text)
	case ResumeTimeout:
		return "<timeout>"
	case ResumeAck:
		return "<ack>"
	default:
		return fmt.Sprintf("<unknown kind %d>", int(v.Kind))
	}
}
