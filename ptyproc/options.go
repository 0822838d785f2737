package ptyproc

import "log/slog"

// Defaults for the pseudo-terminal window.
const (
	defaultRows uint16 = 24
	defaultCols uint16 = 80
)

type config struct {
	log      *slog.Logger
	rows     uint16
	cols     uint16
	dir      string
	env      map[string]string
	onOutput func(string)
}

// Option configures a Proc.
type Option func(*config)

// WithLogger sets the logger for operation tracking.
// If not set, logging is disabled (silent operation).
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithSize sets the pseudo-terminal window size. Defaults to 24x80.
func WithSize(rows, cols uint16) Option {
	return func(c *config) {
		if rows > 0 {
			c.rows = rows
		}

		if cols > 0 {
			c.cols = cols
		}
	}
}

// WithDir sets the working directory for the subprocess.
func WithDir(dir string) Option {
	return func(c *config) {
		c.dir = dir
	}
}

// WithEnv provides additional environment variables for the subprocess,
// on top of the parent environment.
func WithEnv(env map[string]string) Option {
	return func(c *config) {
		c.env = env
	}
}

// WithOnOutput registers a callback invoked with every chunk of subprocess
// output, before it is forwarded to the queue. Use this to feed a screen
// model or transcript; the resume value delivered to the queue carries only
// the latest chunk of a burst.
func WithOnOutput(fn func(string)) Option {
	return func(c *config) {
		c.onOutput = fn
	}
}
