package termq

// Process is the byte-stream boundary to the subprocess. The queue uses it
// only to transmit data and check liveness; it never creates or destroys
// the underlying process.
//
// Send on a process that has already exited must be a no-op or return an
// error; the queue logs and swallows it either way, since sends racing a
// normal process exit are not a failure.
type Process interface {
	// Send transmits data to the subprocess.
	Send(data string) error

	// Alive reports whether the subprocess can still receive data.
	Alive() bool
}

// Poller is an optional interface a Process may implement to let the queue
// check, as a last resort before declaring a timeout, whether subprocess
// output is already buffered and about to be delivered. This avoids
// spurious timeouts when output and the timeout timer fire near
// simultaneously.
type Poller interface {
	// PollOutput reports whether output is buffered awaiting delivery.
	PollOutput() bool
}
