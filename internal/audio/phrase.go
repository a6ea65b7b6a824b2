package audio

import (
	"math"
	"time"
)

// phrase is the endpointing state of one utterance: it starts at the first
// loud frame and ends after enough quiet frames or at the length limit.
type phrase struct {
	threshold     float64
	pauseFrames   int
	maxFrames     int
	speaking      bool
	silenceFrames int
	frames        int
	out           []float32
}

func newPhrase(threshold float64, pause, max time.Duration) *phrase {
	frameDur := time.Second * frameSize / SampleRate
	return &phrase{
		threshold:   threshold,
		pauseFrames: int(pause / frameDur),
		maxFrames:   int(max / frameDur),
		out:         make([]float32, 0, SampleRate*2),
	}
}

// push consumes one frame and reports whether the phrase is complete.
func (p *phrase) push(frame []float32) bool {
	loud := frameRMS(frame) > p.threshold

	if !p.speaking {
		if !loud {
			return false
		}
		p.speaking = true
	}

	p.out = append(p.out, frame...)
	p.frames++

	if loud {
		p.silenceFrames = 0
	} else {
		p.silenceFrames++
	}

	return p.silenceFrames >= p.pauseFrames || p.frames >= p.maxFrames
}

func (p *phrase) samples() []float32 {
	return p.out
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
