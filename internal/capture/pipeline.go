package capture

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"strings"

	"homi/internal/notify"
	"homi/internal/status"
)

var (
	ErrCapture   = errors.New("capture failed")
	ErrRecognize = errors.New("text recognition failed")
)

type Camera interface {
	Capture(ctx context.Context) (string, error)
}

// OCR turns image bytes into text. An empty string with a nil error means
// the image held no text.
type OCR interface {
	DetectText(ctx context.Context, image []byte) (string, error)
}

type Announcer interface {
	Announce(ctx context.Context, c notify.Cue)
}

type Pipeline struct {
	camera Camera
	ocr    OCR
	cues   Announcer
	status *status.Sink
}

func NewPipeline(camera Camera, ocr OCR, cues Announcer, sink *status.Sink) *Pipeline {
	return &Pipeline{camera: camera, ocr: ocr, cues: cues, status: sink}
}

// CaptureAndRecognize takes a photo, runs OCR on it and returns the text in
// lower case. ("", nil) is a blank page; an error wraps ErrCapture or
// ErrRecognize. A failed capture never reaches the OCR stage.
func (p *Pipeline) CaptureAndRecognize(ctx context.Context) (string, error) {
	p.cues.Announce(ctx, notify.CueTakingPhoto)
	p.status.Publish(status.Info, "📷 Preparing camera...")

	path, err := p.camera.Capture(ctx)
	if err == nil {
		if st, statErr := os.Stat(path); statErr != nil {
			err = statErr
		} else if st.Size() == 0 {
			err = fmt.Errorf("empty image %s", path)
		}
	}
	if err != nil {
		log.Error("Failed to capture image", "err", err)
		p.status.Publish(status.Error, "Camera Failed!")
		p.cues.Announce(ctx, notify.CueCameraError)
		return "", fmt.Errorf("%w: %w", ErrCapture, err)
	}
	p.status.Publish(status.Success, "📸 Photo captured!")

	p.cues.Announce(ctx, notify.CueProcessing)
	p.status.Publish(status.Info, "🔍 Processing OCR...")

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRecognize, err)
	}

	text, err := p.ocr.DetectText(ctx, data)
	if err != nil {
		log.Error("OCR failed", "err", err)
		p.status.Publish(status.Error, "OCR Failed!")
		return "", fmt.Errorf("%w: %w", ErrRecognize, err)
	}

	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		log.Info("No text detected")
		p.status.Publish(status.Info, "No text detected")
		return "", nil
	}

	log.Info("OCR text extracted", "text", preview(text, 100))
	p.status.Publish(status.Success, "✅ Text detected!")
	return text, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
