package ptyproc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"golang.org/x/sync/errgroup"

	"github.com/driftdev/termq"
)

const (
	// readBufferSize is the chunk size for reading pty output.
	readBufferSize = 4096

	// chunkBacklog bounds how many unread output chunks are buffered
	// between the read loop and the dispatcher.
	chunkBacklog = 64
)

// Proc is a subprocess running behind a pseudo-terminal.
type Proc struct {
	log      *slog.Logger
	cmd      *exec.Cmd
	ptmx     *os.File
	onOutput func(string)

	chunks chan string

	group    errgroup.Group
	ptmxOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex // guards the fields below and ptmx writes
	closing bool
	exited  bool
	waitErr error
}

// Compile-time verification that Proc satisfies the queue's interfaces.
var (
	_ termq.Process = (*Proc)(nil)
	_ termq.Poller  = (*Proc)(nil)
)

// Start launches name with args behind a new pseudo-terminal.
//
// The subprocess inherits the parent environment plus TERM=xterm-256color
// and anything given via WithEnv. Cancelling ctx kills the subprocess.
func Start(ctx context.Context, name string, args []string, opts ...Option) (*Proc, error) {
	cfg := &config{
		log:  termq.NopLogger(),
		rows: defaultRows,
		cols: defaultCols,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	//nolint:gosec // G204: launching a caller-chosen command is the point
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = cfg.dir
	cmd.Env = buildEnv(cfg.env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: cfg.rows, Cols: cfg.cols})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	p := &Proc{
		log:      cfg.log.With("component", "ptyproc"),
		cmd:      cmd,
		ptmx:     ptmx,
		onOutput: cfg.onOutput,
		chunks:   make(chan string, chunkBacklog),
		done:     make(chan struct{}),
	}

	p.log.Info("Subprocess started", "command", name, "pid", cmd.Process.Pid)

	p.group.Go(p.readLoop)

	go p.monitor()

	return p, nil
}

// Attach starts forwarding subprocess output into q.
//
// Each chunk goes through q.ResumeDebounced, so a burst of output collapses
// into a single resume after the queue's stable delay. The resume value
// carries the latest chunk of the burst; register WithOnOutput to observe
// the complete stream.
//
// Attach may be called at most once.
func (p *Proc) Attach(q *termq.Queue) {
	p.group.Go(func() error {
		for chunk := range p.chunks {
			if p.onOutput != nil {
				p.onOutput(chunk)
			}

			q.ResumeDebounced(termq.Data(chunk))
		}

		return nil
	})
}

// Send writes data to the subprocess terminal.
//
// Writes to a subprocess that has exited or been closed are dropped
// silently: a send racing normal process exit is not a failure.
func (p *Proc) Send(data string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closing || p.exited {
		p.log.Debug("Dropped write to dead subprocess", "data_len", len(data))

		return nil
	}

	if _, err := p.ptmx.Write([]byte(data)); err != nil {
		return fmt.Errorf("write to pty: %w", err)
	}

	return nil
}

// Alive reports whether the subprocess can still receive data.
func (p *Proc) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return !p.closing && !p.exited
}

// PollOutput reports whether subprocess output is buffered awaiting
// delivery. The queue's timeout handler uses this as a last-resort check
// before declaring a timeout.
func (p *Proc) PollOutput() bool {
	return len(p.chunks) > 0
}

// Resize changes the pseudo-terminal window size.
func (p *Proc) Resize(rows, cols uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closing || p.exited {
		return fmt.Errorf("resize: subprocess gone")
	}

	if err := pty.Setsize(p.ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}

	return nil
}

// Close kills the subprocess and releases the pseudo-terminal. It is safe
// to call Close multiple times or after the subprocess has exited.
func (p *Proc) Close() error {
	p.mu.Lock()

	if p.closing {
		p.mu.Unlock()

		return nil
	}

	p.closing = true
	exited := p.exited

	p.mu.Unlock()

	if !exited && p.cmd.Process != nil {
		p.log.Debug("Killing subprocess", "pid", p.cmd.Process.Pid)

		if err := p.cmd.Process.Kill(); err != nil {
			p.log.Debug("Kill failed", "error", err)
		}
	}

	p.closePtmx()

	return nil
}

// Wait blocks until the subprocess has exited and output forwarding has
// drained. It returns the process exit error, or nil when the exit was
// caused by Close.
func (p *Proc) Wait() error {
	<-p.done

	_ = p.group.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closing {
		return nil
	}

	return p.waitErr
}

// readLoop reads pty output into the chunk channel until the terminal
// closes. Closing the channel ends the dispatcher started by Attach.
func (p *Proc) readLoop() error {
	defer close(p.chunks)

	buf := make([]byte, readBufferSize)

	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			p.chunks <- string(buf[:n])
		}

		if err != nil {
			// A pty reports child exit as EIO; either way the stream
			// is over and that is not a failure of the read loop.
			p.log.Debug("Read loop stopped", "error", err)

			return nil
		}
	}
}

// monitor reaps the subprocess and unblocks the read loop.
func (p *Proc) monitor() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.exited = true
	p.waitErr = err
	p.mu.Unlock()

	p.closePtmx()
	close(p.done)

	p.log.Debug("Subprocess exited", "error", err)
}

// closePtmx closes the pty master exactly once.
func (p *Proc) closePtmx() {
	p.ptmxOnce.Do(func() {
		_ = p.ptmx.Close()
	})
}

// buildEnv merges the parent environment with TERM and extra variables.
func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	env = append(env, "TERM=xterm-256color")

	for key, value := range extra {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}

	return env
}
