package speech

import (
	"context"
	"errors"
	"sync"
	"time"

	log "log/slog"
)

// QueueSize bounds the utterances waiting for dispatch.
const QueueSize = 16

var ErrStarted = errors.New("listener already started")

// Source produces utterances until ctx is done or it runs dry.
type Source interface {
	Name() string
	Listen(ctx context.Context, out chan<- Utterance) error
}

// Listener fans every Source into one bounded channel. The channel closes
// once all sources have returned.
type Listener struct {
	sources []Source

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewListener(sources ...Source) *Listener {
	return &Listener{sources: sources}
}

func (l *Listener) Start(ctx context.Context) (<-chan Utterance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return nil, ErrStarted
	}
	if len(l.sources) == 0 {
		return nil, errors.New("no speech sources")
	}
	l.started = true

	ctx, l.cancel = context.WithCancel(ctx)
	out := make(chan Utterance, QueueSize)
	done := make(chan struct{})
	l.done = done

	var wg sync.WaitGroup
	for _, src := range l.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			log.Debug("speech source started", "source", src.Name())
			if err := src.Listen(ctx, out); err != nil && ctx.Err() == nil {
				log.Error("speech source failed", "source", src.Name(), "err", err)
				return
			}
			log.Debug("speech source finished", "source", src.Name())
		}(src)
	}

	go func() {
		wg.Wait()
		close(out)
		close(done)
	}()

	return out, nil
}

// Stop cancels every source without waiting for in-flight recognition.
// Safe to call more than once, or before Start.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
	}
}

// Wait blocks until every source has returned or timeout passes, and
// reports whether they all did. Resources the sources use must not be
// released before Wait succeeds.
func (l *Listener) Wait(timeout time.Duration) bool {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// emit delivers u unless ctx ends first.
func emit(ctx context.Context, out chan<- Utterance, u Utterance) error {
	select {
	case out <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
