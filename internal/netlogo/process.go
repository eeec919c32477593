package netlogo

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"evacsim/internal/logging"
)

// DefaultGracePeriod is how long Close waits for the bridge to exit after a
// quit request before escalating to SIGTERM, and again before SIGKILL.
const DefaultGracePeriod = 3 * time.Second

// maxLineBytes bounds a single bridge response; a 2000-step table of three
// reporters is well under this.
const maxLineBytes = 16 << 20

// ProcessConfig describes how to launch the bridge.
type ProcessConfig struct {
	Command     []string // argv; Command[0] is the executable
	Env         []string // extra environment, appended to os.Environ()
	Dir         string
	GracePeriod time.Duration
	Logger      *slog.Logger
}

// ProcessLink is a Link backed by a bridge subprocess speaking JSON lines
// over stdin/stdout. Bridge stderr is forwarded to the logger at debug level.
type ProcessLink struct {
	cfg    ProcessConfig
	logger *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	enc    *json.Encoder
	respCh chan response
	stop   chan struct{} // closed by Close; releases a reader stuck on a stale response
	exited chan struct{} // closed after the process is reaped

	mu     sync.Mutex
	nextID int64
	broken bool
	closed bool
}

// Start launches the bridge process. The returned link has no model loaded.
func Start(ctx context.Context, cfg ProcessConfig) (*ProcessLink, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("netlogo bridge command is required")
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New("netlogo")
	}

	// Not exec.CommandContext: the process outlives the ctx of the call that
	// built it and is torn down by Close.
	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge stderr: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start bridge %s: %w", cfg.Command[0], err)
	}
	logger.Debug("bridge started", "pid", cmd.Process.Pid, "command", cfg.Command[0])

	l := &ProcessLink{
		cfg:    cfg,
		logger: logger.With("pid", cmd.Process.Pid),
		cmd:    cmd,
		stdin:  stdin,
		enc:    json.NewEncoder(stdin),
		respCh: make(chan response),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	// cmd.Wait closes the pipes, so it must only run once both readers are done.
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		l.readResponses(stdout)
	}()
	go func() {
		defer readers.Done()
		l.forwardStderr(stderr)
	}()
	go func() {
		readers.Wait()
		if err := cmd.Wait(); err != nil {
			l.logger.Debug("bridge exited", "error", err)
		}
		close(l.exited)
	}()
	return l, nil
}

// ProcessFactory returns a Factory that starts one bridge per call.
func ProcessFactory(cfg ProcessConfig) Factory {
	return func(ctx context.Context) (Link, error) {
		return Start(ctx, cfg)
	}
}

func (l *ProcessLink) readResponses(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		var resp response
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil {
			l.logger.Warn("discarding malformed bridge line", "error", err)
			continue
		}
		select {
		case l.respCh <- resp:
		case <-l.stop:
			return
		}
	}
	if err := sc.Err(); err != nil {
		l.logger.Warn("bridge stdout closed", "error", err)
	}
}

func (l *ProcessLink) forwardStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		l.logger.Debug("bridge", "stderr", sc.Text())
	}
}

// call sends one request and waits for the matching response. An abandoned
// call (ctx done) leaves a response in flight, so the link is marked broken.
func (l *ProcessLink) call(ctx context.Context, req request) (response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.broken {
		return response{}, ErrLinkBroken
	}
	l.nextID++
	req.ID = l.nextID

	if err := l.enc.Encode(req); err != nil {
		l.broken = true
		return response{}, fmt.Errorf("%w: write %s: %v", ErrLinkBroken, req.Op, err)
	}

	for {
		select {
		case resp := <-l.respCh:
			if resp.ID != req.ID {
				l.logger.Warn("dropping stale bridge response", "got_id", resp.ID, "want_id", req.ID)
				continue
			}
			if !resp.OK {
				return resp, &BridgeError{Op: req.Op, Message: resp.Error}
			}
			return resp, nil
		case <-l.exited:
			l.broken = true
			return response{}, fmt.Errorf("%w: bridge exited during %s", ErrLinkBroken, req.Op)
		case <-ctx.Done():
			l.broken = true
			return response{}, ctx.Err()
		}
	}
}

func (l *ProcessLink) LoadModel(ctx context.Context, path string) error {
	_, err := l.call(ctx, request{Op: opLoadModel, Arg: path})
	return err
}

func (l *ProcessLink) Command(ctx context.Context, command string) error {
	_, err := l.call(ctx, request{Op: opCommand, Arg: command})
	return err
}

func (l *ProcessLink) Report(ctx context.Context, reporter string) (any, error) {
	resp, err := l.call(ctx, request{Op: opReport, Arg: reporter})
	if err != nil {
		return nil, err
	}
	if len(resp.Value) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(resp.Value, &v); err != nil {
		return nil, fmt.Errorf("decode report %q: %w", reporter, err)
	}
	return v, nil
}

func (l *ProcessLink) RepeatReport(ctx context.Context, reporters []string, reps int) (*Table, error) {
	resp, err := l.call(ctx, request{Op: opRepeatReport, Reporters: reporters, Reps: reps})
	if err != nil {
		return nil, err
	}
	if resp.Table == nil {
		return nil, &BridgeError{Op: opRepeatReport, Message: "response carried no table"}
	}
	if len(resp.Table.Reporters) == 0 {
		resp.Table.Reporters = reporters
	}
	return resp.Table, nil
}

// Close asks the bridge to quit, then escalates to SIGTERM and SIGKILL.
func (l *ProcessLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	if !l.broken {
		_ = l.enc.Encode(request{Op: opQuit})
	}
	_ = l.stdin.Close()
	close(l.stop)
	l.mu.Unlock()

	grace := l.cfg.GracePeriod
	select {
	case <-l.exited:
		return nil
	case <-time.After(grace):
	}

	l.logger.Info("bridge did not quit, sending SIGTERM", "grace", grace)
	if err := l.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return nil // already gone
	}
	select {
	case <-l.exited:
		return nil
	case <-time.After(grace):
	}

	l.logger.Warn("bridge ignored SIGTERM, killing")
	if err := l.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("kill bridge: %w", err)
	}
	<-l.exited
	return nil
}
