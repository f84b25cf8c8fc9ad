package packs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

const processOutputLimit = 64 * 1024

var ErrUnknownProcess = errors.New("unknown process handle")

type ProcessStatus struct {
	Handle    string
	Command   string
	Running   bool
	ExitCode  int
	Output    string
	StartedAt time.Time
	EndedAt   time.Time
}

// Processes tracks background commands. They outlive the step that started them.
type Processes struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	procs  map[string]*process
}

type process struct {
	command string
	started time.Time
	out     *tailBuffer
	done    chan struct{}
	code    int
	ended   time.Time
}

func NewProcesses() *Processes {
	ctx, cancel := context.WithCancel(context.Background())
	return &Processes{ctx: ctx, cancel: cancel, procs: map[string]*process{}}
}

func (p *Processes) Start(dir, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", errors.New("empty command")
	}
	if err := p.ctx.Err(); err != nil {
		return "", fmt.Errorf("process table closed: %w", err)
	}

	proc := &process{command: command, started: time.Now(), out: &tailBuffer{limit: processOutputLimit}, done: make(chan struct{}), code: -1}
	cmd := exec.CommandContext(p.ctx, "bash", "-c", command)
	cmd.Dir = dir
	cmd.Stdout = proc.out
	cmd.Stderr = proc.out
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start: %w", err)
	}

	handle := ksuid.New().String()
	p.mu.Lock()
	p.procs[handle] = proc
	p.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		p.mu.Lock()
		proc.code = cmd.ProcessState.ExitCode()
		proc.ended = time.Now()
		p.mu.Unlock()
		close(proc.done)
	}()
	return handle, nil
}

func (p *Processes) Status(handle string) (ProcessStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	proc, ok := p.procs[handle]
	if !ok {
		return ProcessStatus{}, fmt.Errorf("%w: %q", ErrUnknownProcess, handle)
	}
	status := ProcessStatus{
		Handle:    handle,
		Command:   proc.command,
		Running:   true,
		ExitCode:  proc.code,
		Output:    proc.out.String(),
		StartedAt: proc.started,
		EndedAt:   proc.ended,
	}
	select {
	case <-proc.done:
		status.Running = false
	default:
	}
	return status, nil
}

// Wait blocks until the process exits or ctx is done.
func (p *Processes) Wait(ctx context.Context, handle string) (ProcessStatus, error) {
	p.mu.Lock()
	proc, ok := p.procs[handle]
	p.mu.Unlock()
	if !ok {
		return ProcessStatus{}, fmt.Errorf("%w: %q", ErrUnknownProcess, handle)
	}
	select {
	case <-proc.done:
		return p.Status(handle)
	case <-ctx.Done():
		return ProcessStatus{}, ctx.Err()
	}
}

// Close kills every process still running.
func (p *Processes) Close() {
	p.cancel()
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, data...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(data), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
