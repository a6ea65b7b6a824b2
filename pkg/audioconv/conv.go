package audioconv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// TargetRate is the rate whisper expects.
const TargetRate = 16000

type Format string

const (
	WAV     Format = "wav"
	MP3     Format = "mp3"
	Vorbis  Format = "ogg"
	Unknown Format = ""
)

// FileToPCM16k decodes a recording into mono float32 PCM at 16 kHz.
// maxSamples > 0 truncates the result.
func FileToPCM16k(path string, maxSamples int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	format, err := sniff(f, path)
	if err != nil {
		return nil, err
	}

	var (
		pcm  []float32
		rate int
	)
	switch format {
	case WAV:
		pcm, rate, err = decodeWAV(f)
	case MP3:
		pcm, rate, err = decodeMP3(f)
	case Vorbis:
		pcm, rate, err = decodeVorbis(f)
	default:
		return nil, fmt.Errorf("unsupported audio %s (wav, mp3, ogg vorbis)", filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	pcm = Resample(pcm, rate, TargetRate)
	if maxSamples > 0 && len(pcm) > maxSamples {
		pcm = pcm[:maxSamples]
	}
	return pcm, nil
}

// sniff trusts the magic bytes over the extension.
func sniff(f *os.File, path string) (Format, error) {
	magic, _ := bufio.NewReader(f).Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Unknown, err
	}

	switch {
	case string(magic) == "RIFF":
		return WAV, nil
	case string(magic) == "OggS":
		return Vorbis, nil
	case len(magic) >= 3 && string(magic[:3]) == "ID3":
		return MP3, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return WAV, nil
	case ".mp3":
		return MP3, nil
	case ".ogg", ".oga":
		return Vorbis, nil
	}
	return Unknown, nil
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, errors.New("empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	scale := 1.0 / float64(int64(1)<<(depth-1))

	x := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		x[i] = float32(clamp(float64(v)*scale))
	}

	channels, rate := 1, 44100
	if buf.Format != nil {
		if buf.Format.NumChannels > 0 {
			channels = buf.Format.NumChannels
		}
		if buf.Format.SampleRate > 0 {
			rate = buf.Format.SampleRate
		}
	}
	return Downmix(x, channels), rate, nil
}

func decodeMP3(r io.Reader) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, err
	}

	ints := make([]int16, len(raw)/2)
	if err := binary.Read(bytes.NewReader(raw[:len(ints)*2]), binary.LittleEndian, ints); err != nil {
		return nil, 0, err
	}
	x := make([]float32, len(ints))
	for i, v := range ints {
		x[i] = float32(v) / 32768
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	// go-mp3 always yields interleaved stereo.
	return Downmix(x, 2), rate, nil
}

func decodeVorbis(r io.Reader) ([]float32, int, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, 0, errors.New("invalid ogg/vorbis stream")
	}
	return Downmix(pcm, format.Channels), format.SampleRate, nil
}

// Downmix averages interleaved channels into mono.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	n := len(in) / channels
	out := make([]float32, n)
	for i := range out {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(in[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Resample converts between rates with linear interpolation.
func Resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(in) == 0 {
		return in
	}
	ratio := float64(to) / float64(from)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) / ratio
		i0 := int(pos)
		if i0 >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(i0))
		out[i] = in[i0]*(1-frac) + in[i0+1]*frac
	}
	return out
}

func clamp(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}
