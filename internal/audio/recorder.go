package audio

import (
	"context"
	"errors"
	log "log/slog"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	SampleRate = 16000
	frameSize  = 320 // 20ms

	defaultThreshold = 0.015
	minThreshold     = 0.005
	energyRatio      = 1.5
)

var ErrNoInput = errors.New("no input device")

// Recorder captures 16 kHz mono phrases from the default input device.
type Recorder struct {
	mu        sync.Mutex
	threshold float64

	Pause     time.Duration // trailing silence that ends a phrase
	MaxPhrase time.Duration
}

func NewRecorder() *Recorder {
	return &Recorder{
		threshold: defaultThreshold,
		Pause:     800 * time.Millisecond,
		MaxPhrase: 5 * time.Second,
	}
}

// Init opens portaudio and fails when no input device is usable.
func (r *Recorder) Init() error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	if _, err := portaudio.DefaultInputDevice(); err != nil {
		portaudio.Terminate()
		return errors.Join(ErrNoInput, err)
	}
	return nil
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

func (r *Recorder) Threshold() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threshold
}

// Calibrate listens to the room for d and sets the speech threshold above
// the ambient level.
func (r *Recorder) Calibrate(ctx context.Context, d time.Duration) (float64, error) {
	buf := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return 0, err
	}
	defer stream.Stop()

	frames := int(d / (20 * time.Millisecond))
	var sum float64
	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := stream.Read(); err != nil {
			return 0, err
		}
		sum += frameRMS(buf)
	}

	th := thresholdFor(sum, frames)

	r.mu.Lock()
	r.threshold = th
	r.mu.Unlock()

	log.Info("Microphone calibrated", "threshold", th)
	return th, nil
}

func thresholdFor(sum float64, frames int) float64 {
	if frames <= 0 {
		return defaultThreshold
	}
	return math.Max(sum/float64(frames)*energyRatio, minThreshold)
}

// RecordPhrase waits for speech and returns it once trailing silence or the
// phrase limit ends it. Cancelling ctx returns ctx.Err().
func (r *Recorder) RecordPhrase(ctx context.Context) ([]float32, error) {
	buf := make([]float32, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	ph := newPhrase(r.Threshold(), r.Pause, r.MaxPhrase)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stream.Read(); err != nil {
			return nil, err
		}
		if ph.push(buf) {
			return ph.samples(), nil
		}
	}
}
