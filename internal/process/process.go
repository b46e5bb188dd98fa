package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/framerec/internal/logging"
)

// Exit code reported when the process had to be killed.
const ExitKilled = 137

var (
	// ErrEmptyCommand is returned by Start when there is nothing to run.
	ErrEmptyCommand = errors.New("empty command")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("process already started")
	// ErrNotStarted is returned when waiting on a process that never ran.
	ErrNotStarted = errors.New("process not started")
)

// OutputHandler receives stderr lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
// Used to route ffmpeg's "[level] message" output to the matching slog level.
type LogParser func(line string) (level, msg string)

// Option configures a Process.
type Option func(*Process)

// WithStdin gives the caller a pipe to the process's standard input.
func WithStdin() Option {
	return func(p *Process) { p.wantStdin = true }
}

// WithStdout gives the caller a pipe from the process's standard output.
func WithStdout() Option {
	return func(p *Process) { p.wantStdout = true }
}

// WithLogParser sets the logger and parser used for stderr lines.
func WithLogParser(logger logging.Logger, parser LogParser) Option {
	return func(p *Process) {
		p.processLogger = logger
		p.logParser = parser
	}
}

// WithOutputHandler forwards every stderr line to h.
func WithOutputHandler(h OutputHandler) Option {
	return func(p *Process) { p.outputHandler = h }
}

// WithTimeouts overrides how long Stop waits after SIGINT and after SIGKILL.
func WithTimeouts(graceful, kill time.Duration) Option {
	return func(p *Process) {
		p.gracefulTimeout = graceful
		p.killTimeout = kill
	}
}

// Process manages the lifecycle of one subprocess.
type Process struct {
	args            []string
	logger          logging.Logger
	processLogger   logging.Logger // logger for process output (nil = use logger)
	logParser       LogParser      // nil = every line at info
	outputHandler   OutputHandler
	wantStdin       bool
	wantStdout      bool
	gracefulTimeout time.Duration // after SIGINT, before SIGKILL
	killTimeout     time.Duration // after SIGKILL, before giving up

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	done    chan struct{}
	waitErr error
}

// New creates a process for argv. Nothing runs until Start.
func New(args []string, logger logging.Logger, opts ...Option) *Process {
	p := &Process{
		args:            args,
		logger:          logger,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Args returns the argv the process runs with.
func (p *Process) Args() []string {
	return p.args
}

// Start launches the subprocess.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return ErrAlreadyStarted
	}
	if len(p.args) == 0 {
		p.logger.Error("Empty command")
		return ErrEmptyCommand
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	setProcessGroup(cmd)

	var err error
	if p.wantStdin {
		if p.stdin, err = cmd.StdinPipe(); err != nil {
			return fmt.Errorf("stdin pipe: %w", err)
		}
	}

	// stdout goes through an os.Pipe the caller owns, so Wait never closes
	// it under a reader that still has data to drain.
	var stdoutWriter *os.File
	if p.wantStdout {
		r, w, err := os.Pipe()
		if err != nil {
			return fmt.Errorf("stdout pipe: %w", err)
		}
		cmd.Stdout = w
		p.stdout = r
		stdoutWriter = w
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "error", err, "command", strings.Join(p.args, " "))
		if stdoutWriter != nil {
			stdoutWriter.Close()
			p.stdout.Close()
		}
		return err
	}
	if stdoutWriter != nil {
		stdoutWriter.Close()
	}

	p.cmd = cmd
	p.done = make(chan struct{})
	p.logger.Info("Process started", "pid", cmd.Process.Pid, "command", strings.Join(p.args, " "))

	go func() {
		p.streamOutput(stderr, "stderr")
		// Wait closes stderr, so it must run after the last read.
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.done)
	}()

	return nil
}

// Stdin returns the input pipe, or nil without WithStdin.
func (p *Process) Stdin() io.Writer {
	return p.stdin
}

// Stdout returns the output pipe, or nil without WithStdout.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// Pid returns the process id, or 0 before Start.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return p.done
}

// CloseInput closes stdin, which ffmpeg treats as end of input.
func (p *Process) CloseInput() error {
	if p.stdin == nil {
		return nil
	}
	err := p.stdin.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// Wait blocks until the process exits and returns its exit code.
func (p *Process) Wait() (int, error) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return 1, ErrNotStarted
	}
	<-done
	return p.result()
}

// CloseAndWait closes stdin and waits up to timeout for a clean exit.
// A process still running after that is stopped with Stop.
func (p *Process) CloseAndWait(timeout time.Duration) (int, error) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return 1, ErrNotStarted
	}

	if err := p.CloseInput(); err != nil {
		p.logger.Warn("Failed to close stdin", "error", err)
	}

	select {
	case <-done:
		return p.result()
	case <-time.After(timeout):
		p.logger.Warn("Process did not exit after end of input", "timeout", timeout)
		return p.Stop()
	}
}

// Stop sends SIGINT, waits for the graceful timeout, then kills.
// Returns ExitKilled when the kill was needed.
func (p *Process) Stop() (int, error) {
	p.mu.Lock()
	cmd, done := p.cmd, p.done
	p.mu.Unlock()
	if done == nil {
		return 1, ErrNotStarted
	}

	select {
	case <-done:
		return p.result()
	default:
	}

	p.logger.Info("Sending SIGINT to process", "pid", cmd.Process.Pid)
	if err := interrupt(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "error", err)
	}

	select {
	case <-done:
		return p.result()
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", p.gracefulTimeout)
	if err := cmd.Process.Kill(); err != nil {
		// "os: process already finished" is OK, it exited between timeout and kill
		if !errors.Is(err, os.ErrProcessDone) {
			p.logger.Error("Failed to kill process", "error", err)
		}
	}

	select {
	case <-done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal")
	}
	return ExitKilled, fmt.Errorf("process killed after %v", p.gracefulTimeout)
}

func (p *Process) result() (int, error) {
	p.mu.Lock()
	err := p.waitErr
	p.mu.Unlock()

	code := ExitCode(err)
	if code != 0 {
		return code, fmt.Errorf("%s exited with code %d: %w", p.args[0], code, err)
	}
	return 0, nil
}

// ExitCode extracts the exit code from a Wait error.
// Returns 0 for nil, the exit code for *exec.ExitError, and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		// Terminated by a signal.
		return ExitKilled
	}
	return 1
}

// streamOutput logs each line at the level reported by the LogParser.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "panic", "fatal", "error":
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		case "verbose", "debug", "trace":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "source", source, "error", err)
	}
}
