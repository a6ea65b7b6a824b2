package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

var ErrClosed = errors.New("transcriber closed")

type Options struct {
	Language      string // "en", "auto", ...
	Threads       int    // <=0 => NumCPU()
	InitialPrompt string // biases decoding towards the kiosk vocabulary
}

// Transcriber runs a whisper.cpp model. Calls are serialized: one model,
// one decode at a time.
type Transcriber struct {
	mu    sync.Mutex
	model whisper.Model
	opt   Options
}

func NewTranscriber(modelPath string, opt Options) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if opt.Language == "" {
		opt.Language = "auto"
	}
	if opt.Threads <= 0 {
		opt.Threads = runtime.NumCPU()
	}
	return &Transcriber{model: m, opt: opt}, nil
}

// Close waits for a running decode, then frees the model. Later calls to
// Transcribe fail.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return nil
	}
	err := t.model.Close()
	t.model = nil
	return err
}

// Transcribe decodes mono 16 kHz float32 PCM in [-1, 1]. Silence yields "".
func (t *Transcriber) Transcribe(ctx context.Context, pcm16k []float32) (string, error) {
	if len(pcm16k) == 0 {
		return "", nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return "", ErrClosed
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new context: %w", err)
	}
	if err := wctx.SetLanguage(t.opt.Language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	wctx.SetThreads(uint(t.opt.Threads))
	if t.opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(t.opt.InitialPrompt)
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process: %w", err)
	}

	var parts []string
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		if txt := cleanSegment(s.Text); txt != "" {
			parts = append(parts, txt)
		}
	}

	return strings.Join(parts, " "), nil
}

// cleanSegment drops whisper's non-speech markers such as [BLANK_AUDIO]
// or (music).
func cleanSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if (s[0] == '[' && s[len(s)-1] == ']') || (s[0] == '(' && s[len(s)-1] == ')') {
		return ""
	}
	return s
}
