// Package supervisor launches a local transformator service and owns its lifetime.
//
// Startup is a race between two suspension points:
//
//	stdout scanner ──"server bound"──┐
//	                                 ├──→ first one wins: Ready | TimedOut | LaunchFailed
//	watchdog timer ──ReadyTimeout────┘
//
// The loser is cancelled. On TimedOut and LaunchFailed the child (and its process
// group) is killed and reaped before Spawn returns, so nothing is left orphaned.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/anmitsu/go-shlex"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"transformator/logging"
	"transformator/rpcerr"
	"transformator/transport"
)

// Defaults applied by Spawn to zero-valued Options fields.
const (
	DefaultBinary       = "transformator"
	DefaultReadyMarker  = "server bound"
	DefaultReadyTimeout = 10 * time.Second
	DefaultGracePeriod  = 2 * time.Second
)

// stdioDrainDelay bounds how long reaping waits for output after the child has exited.
const stdioDrainDelay = 500 * time.Millisecond

// ErrAlreadyStopped is returned by Stop after the first teardown.
var ErrAlreadyStopped = errors.New("supervised process already stopped")

// Options configures Spawn.
type Options struct {
	BinaryPath    string        // empty: search PATH for DefaultBinary
	Args          []string      // extra arguments placed before the connect target
	ConnectTarget string        // empty: a socket inside a fresh temporary directory
	ReadyTimeout  time.Duration // watchdog for the readiness marker
	ReadyMarker   string        // stdout substring that signals the listener is bound
	GracePeriod   time.Duration // interrupt → kill delay when stopping
	Env           []string      // added to the inherited environment
	Logger        *zap.Logger
}

// ParseArgs splits a shell-quoted argument string, e.g. `--engines "pug coffee"`.
func ParseArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	args, err := shlex.Split(s, true)
	if err != nil {
		return nil, rpcerr.New(rpcerr.KindConfig, "parse standalone args", err)
	}
	return args, nil
}

// State is the supervised process's lifecycle position.
type State int

const (
	StateStarting State = iota
	StateReady
	StateTimedOut
	StateLaunchFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateTimedOut:
		return "timed out"
	case StateLaunchFailed:
		return "launch failed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Process is a running child bound to an endpoint. It is exclusively owned by the
// client that spawned it.
type Process struct {
	cmd      *exec.Cmd
	endpoint transport.Endpoint
	tempDir  string // created by Spawn, removed on teardown
	grace    time.Duration
	logger   *zap.Logger

	ready   chan struct{} // closed when the marker is seen
	exited  chan struct{} // closed after cmd.Wait returns
	waitErr error         // valid after exited is closed
	stdout  *io.PipeWriter
	stderr  *io.PipeWriter

	mu       sync.Mutex
	state    State
	stopOnce sync.Once
}

// Spawn launches the service and blocks until it is ready, times out, exits, or ctx ends.
func Spawn(ctx context.Context, opts Options) (*Process, error) {
	applyDefaults(&opts)
	logger := opts.Logger

	// Step 1: Locate the binary, failing fast when absent
	bin, err := lookBinary(opts.BinaryPath)
	if err != nil {
		return nil, err
	}

	// Step 2: Pick and resolve the connect target
	target := opts.ConnectTarget
	tempDir := ""
	if target == "" {
		tempDir, err = os.MkdirTemp("", "transformator-")
		if err != nil {
			return nil, rpcerr.New(rpcerr.KindConfig, "create socket directory", err)
		}
		target = filepath.Join(tempDir, "transformator-"+uuid.NewString()[:8]+".sock")
	}
	endpoint, err := transport.Resolve(target)
	if err != nil {
		removeTempDir(tempDir)
		return nil, err
	}

	// Step 3: Build the command; the connect target is always the last argument
	cmd := exec.Command(bin, append(append([]string{}, opts.Args...), target)...) //nolint:gosec // launching the configured service is the point
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	configureProcessGroup(cmd)

	// Output goes through in-memory pipes so Wait can give up on them after
	// stdioDrainDelay: a grandchild outside the process group may hold the write ends.
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.WaitDelay = stdioDrainDelay

	p := &Process{
		cmd:      cmd,
		endpoint: endpoint,
		tempDir:  tempDir,
		grace:    opts.GracePeriod,
		logger:   logger.With(zap.String("binary", bin), zap.String("target", target)),
		ready:    make(chan struct{}),
		exited:   make(chan struct{}),
		stdout:   stdoutW,
		stderr:   stderrW,
	}

	// Step 4: Start the child
	if err := cmd.Start(); err != nil {
		p.closeStdio()
		removeTempDir(tempDir)
		return nil, launchError(err)
	}
	p.logger.Info("standalone server starting", zap.Int("pid", cmd.Process.Pid))

	// Step 5: Watch stdio and reap, independently of each other
	go p.scanStdout(stdoutR, opts.ReadyMarker)
	go p.scanStderr(stderrR)
	go p.wait()

	// Step 6: Race readiness against the watchdog
	watchdog := time.NewTimer(opts.ReadyTimeout)
	defer watchdog.Stop()

	select {
	case <-p.ready:
		p.setState(StateReady)
		p.logger.Info("standalone server ready", zap.String("endpoint", endpoint.String()))
		return p, nil

	case <-watchdog.C:
		p.abort(StateTimedOut)
		return nil, rpcerr.Newf(rpcerr.KindTimeout, "standalone server",
			"no %q on stdout within %s", opts.ReadyMarker, opts.ReadyTimeout)

	case <-p.exited:
		p.abort(StateLaunchFailed)
		return nil, rpcerr.Newf(rpcerr.KindTransport, "standalone server",
			"exited before ready: %v", p.exitStatus())

	case <-ctx.Done():
		p.abort(StateLaunchFailed)
		return nil, rpcerr.New(rpcerr.KindTimeout, "standalone server", ctx.Err())
	}
}

func applyDefaults(o *Options) {
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = DefaultReadyTimeout
	}
	if o.ReadyMarker == "" {
		o.ReadyMarker = DefaultReadyMarker
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	o.Logger = logging.OrNop(o.Logger)
}

func lookBinary(path string) (string, error) {
	if path == "" {
		path = DefaultBinary
	}
	found, err := exec.LookPath(path)
	if err != nil {
		return "", rpcerr.New(rpcerr.KindNotFound, "locate "+path, err)
	}
	return found, nil
}

func launchError(err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, exec.ErrNotFound) {
		return rpcerr.New(rpcerr.KindNotFound, "start standalone server", err)
	}
	return rpcerr.New(rpcerr.KindConfig, "start standalone server", err)
}

func (p *Process) scanStdout(r io.Reader, marker string) {
	var once sync.Once
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := s.Text()
		p.logger.Debug(line, zap.String("stream", "stdout"))
		if strings.Contains(line, marker) {
			once.Do(func() { close(p.ready) })
		}
	}
	if err := s.Err(); err != nil {
		p.logger.Warn("stdout scan stopped", zap.Error(err))
		_, _ = io.Copy(io.Discard, r)
	}
}

func (p *Process) scanStderr(r io.Reader) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		p.logger.Debug(s.Text(), zap.String("stream", "stderr"))
	}
	if s.Err() != nil {
		_, _ = io.Copy(io.Discard, r)
	}
}

// wait reaps the child. Wait returns at most stdioDrainDelay after the child exits,
// even when a descendant still holds its stdout or stderr.
func (p *Process) wait() {
	p.waitErr = p.cmd.Wait()
	p.closeStdio()
	close(p.exited)
}

// closeStdio ends both scanners.
func (p *Process) closeStdio() {
	_ = p.stdout.Close()
	_ = p.stderr.Close()
}

// abort kills the child group, waits for it to be reaped and removes the temp dir.
func (p *Process) abort(state State) {
	p.setState(state)
	p.stopOnce.Do(func() {
		if err := killGroup(p.cmd); err != nil {
			p.logger.Debug("kill failed", zap.Error(err))
		}
		<-p.exited
		removeTempDir(p.tempDir)
	})
}

// Stop tears the child down: interrupt, wait GracePeriod, then kill. Only the first
// call has effects; later calls return ErrAlreadyStopped.
func (p *Process) Stop() error {
	err := ErrAlreadyStopped
	p.stopOnce.Do(func() {
		err = p.stop()
	})
	return err
}

func (p *Process) stop() error {
	defer removeTempDir(p.tempDir)
	defer p.setState(StateStopped)

	select {
	case <-p.exited:
		p.logger.Info("standalone server already exited", zap.String("status", p.exitStatus()))
		return nil
	default:
	}

	if err := interruptGroup(p.cmd); err != nil {
		p.logger.Warn("could not interrupt standalone server", zap.Error(err))
	}

	select {
	case <-p.exited:
		p.logger.Info("standalone server stopped", zap.String("status", p.exitStatus()))
		return nil
	case <-time.After(p.grace):
		p.logger.Info("killing standalone server", zap.Duration("grace", p.grace))
	}

	if err := killGroup(p.cmd); err != nil {
		return fmt.Errorf("kill standalone server: %w", err)
	}
	<-p.exited
	return nil
}

// Endpoint is where the child listens.
func (p *Process) Endpoint() transport.Endpoint {
	return p.endpoint
}

// Pid is the child's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the child has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.exited
}

// State reports the lifecycle position.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Process) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Process) exitStatus() string {
	if p.cmd.ProcessState != nil {
		return p.cmd.ProcessState.String()
	}
	if p.waitErr != nil {
		return p.waitErr.Error()
	}
	return "unknown"
}

func removeTempDir(dir string) {
	if dir != "" {
		_ = os.RemoveAll(dir)
	}
}
