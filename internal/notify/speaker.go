package notify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

const outputRate beep.SampleRate = 44100

// Speaker plays cue files through the default output device, one at a time.
type Speaker struct {
	mu    sync.Mutex
	ready bool
}

func NewSpeaker() *Speaker { return &Speaker{} }

// Play blocks until the file finished playing or ctx is cancelled. Failures
// are logged and never returned: a missing prompt must not stop the flow.
func (s *Speaker) Play(ctx context.Context, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("Audio file not found", "path", path)
		return
	}
	if err != nil {
		log.Error("Failed to open audio", "path", path, "err", err)
		return
	}
	defer f.Close()

	streamer, format, err := decode(f, path)
	if err != nil {
		log.Error("Failed to decode audio", "path", path, "err", err)
		return
	}
	defer streamer.Close()

	if !s.ready {
		if err := speaker.Init(outputRate, outputRate.N(time.Second/10)); err != nil {
			log.Error("Failed to init speaker", "err", err)
			return
		}
		s.ready = true
	}

	var src beep.Streamer = streamer
	if format.SampleRate != outputRate {
		src = beep.Resample(4, format.SampleRate, outputRate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(src, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		log.Debug("Played audio", "path", path)
	case <-ctx.Done():
		speaker.Clear()
	}
}

func decode(f *os.File, path string) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3.Decode(f)
	case ".wav":
		return wav.Decode(f)
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported audio format %q", filepath.Ext(path))
	}
}
