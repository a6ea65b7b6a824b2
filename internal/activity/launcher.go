package activity

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"homi/internal/notify"
	"homi/internal/status"
	"homi/internal/topic"
)

var (
	ErrUnsupportedKind = errors.New("unsupported activity kind")
	ErrNoViewer        = errors.New("no kiosk viewer found")
)

type Announcer interface {
	Announce(ctx context.Context, c notify.Cue)
}

type Options struct {
	// Script is the interpreter command; the activity path is appended.
	Script []string
	// Viewers are tried in order; the first found on PATH shows the page.
	Viewers [][]string
	// Sweep lists process-name patterns killed by CloseAll as a last resort.
	Sweep  []string
	Grace  time.Duration
	Status *status.Sink
}

// Info describes the live foreground activity.
type Info struct {
	Path    string
	Kind    topic.Kind
	PID     int
	Started time.Time
}

type handle struct {
	info Info
	cmd  *exec.Cmd
	done chan struct{}
}

func (h *handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Launcher keeps at most one foreground activity alive.
type Launcher struct {
	opt   Options
	cues  Announcer
	sweep func(ctx context.Context, pattern string) error

	mu      sync.Mutex
	current *handle
}

func NewLauncher(opt Options, cues Announcer) *Launcher {
	if opt.Grace <= 0 {
		opt.Grace = 5 * time.Second
	}
	if len(opt.Script) == 0 {
		opt.Script = []string{"python3"}
	}
	return &Launcher{
		opt:   opt,
		cues:  cues,
		sweep: pkill,
	}
}

// Launch tears down the current activity, then starts a.
func (l *Launcher) Launch(ctx context.Context, a topic.Activity) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.terminateLocked()

	abs, err := filepath.Abs(a.Path)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", a.Path, err)
	}

	var argv []string
	switch a.Kind {
	case topic.KindScript:
		if _, err := os.Stat(abs); err != nil {
			return fmt.Errorf("activity script: %w", err)
		}
		argv = append(append([]string(nil), l.opt.Script...), abs)
	case topic.KindPage:
		viewer, err := l.viewer()
		if err != nil {
			return err
		}
		argv = append(viewer, "file://"+abs)
	default:
		return fmt.Errorf("%w: %s (%s)", ErrUnsupportedKind, a.Kind, a.Path)
	}

	// Detached from ctx: the activity outlives the utterance that started it.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", a.Path, err)
	}

	h := &handle{
		info: Info{
			Path:    a.Path,
			Kind:    a.Kind,
			PID:     cmd.Process.Pid,
			Started: time.Now(),
		},
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(h.done)
	}()

	l.current = h
	log.Info("Launched activity", "path", a.Path, "kind", a.Kind, "pid", h.info.PID)
	l.opt.Status.Publish(status.Success, "Started "+filepath.Base(a.Path))
	return nil
}

// CloseAll ends the tracked activity and sweeps stray viewers. It always
// plays the closing and thank-you prompts, even when nothing was running.
func (l *Launcher) CloseAll(ctx context.Context) {
	log.Info("Closing all activities")
	l.opt.Status.Publish(status.Info, "Closing game")
	l.cues.Announce(ctx, notify.CueClosing)

	l.mu.Lock()
	l.terminateLocked()
	l.mu.Unlock()

	for _, pattern := range l.opt.Sweep {
		if err := l.sweep(ctx, pattern); err != nil {
			log.Debug("Sweep found nothing", "pattern", pattern, "err", err)
		}
	}

	l.cues.Announce(ctx, notify.CueThankYou)
}

// Active reports the live activity, if any.
func (l *Launcher) Active() (Info, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil || l.current.exited() {
		return Info{}, false
	}
	return l.current.info, true
}

func (l *Launcher) terminateLocked() {
	h := l.current
	l.current = nil
	if h == nil || h.exited() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Activity teardown panicked", "panic", r)
		}
	}()

	pid := h.info.PID
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
		log.Warn("Failed to signal activity", "pid", pid, "err", err)
	}

	select {
	case <-h.done:
		log.Info("Terminated activity", "pid", pid)
		return
	case <-time.After(l.opt.Grace):
	}

	if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
		log.Warn("Failed to kill activity", "pid", pid, "err", err)
	}
	select {
	case <-h.done:
		log.Info("Force killed activity", "pid", pid)
	case <-time.After(l.opt.Grace):
		log.Error("Activity did not exit", "pid", pid)
	}
}

func (l *Launcher) viewer() ([]string, error) {
	for _, v := range l.opt.Viewers {
		if len(v) == 0 {
			continue
		}
		if _, err := exec.LookPath(v[0]); err == nil {
			return append([]string(nil), v...), nil
		}
	}
	return nil, ErrNoViewer
}

func pkill(ctx context.Context, pattern string) error {
	return exec.CommandContext(ctx, "pkill", "-f", pattern).Run()
}
