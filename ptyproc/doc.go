// Package ptyproc runs an interactive subprocess behind a pseudo-terminal
// and connects it to a termq.Queue.
//
// A Proc satisfies termq.Process (send bytes, check liveness) and
// termq.Poller (buffered-output check for the queue's timeout handler).
// Attach forwards subprocess output into a queue through its debounce
// window, so bursts of terminal output collapse into a single resume.
package ptyproc
