package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homi/internal/notify"
	"homi/internal/status"
)

type fakeCamera struct {
	path string
	err  error
}

func (c *fakeCamera) Capture(context.Context) (string, error) { return c.path, c.err }

type fakeOCR struct {
	calls int
	text  string
	err   error
	got   []byte
}

func (o *fakeOCR) DetectText(_ context.Context, image []byte) (string, error) {
	o.calls++
	o.got = image
	return o.text, o.err
}

type cueLog []notify.Cue

func (c *cueLog) Announce(_ context.Context, cue notify.Cue) { *c = append(*c, cue) }

func photo(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "shot.jpg")
	require.NoError(t, os.WriteFile(p, []byte("jpeg-bytes"), 0o644))
	return p
}

func TestCaptureAndRecognize_Text(t *testing.T) {
	ocr := &fakeOCR{text: "  What is 7 + 5?\n"}
	cues := &cueLog{}
	p := NewPipeline(&fakeCamera{path: photo(t)}, ocr, cues, status.NewSink(16))

	text, err := p.CaptureAndRecognize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "what is 7 + 5?", text)
	assert.Equal(t, []byte("jpeg-bytes"), ocr.got)
	assert.Equal(t, cueLog{notify.CueTakingPhoto, notify.CueProcessing}, *cues)
}

func TestCaptureAndRecognize_CaptureFailureSkipsOCR(t *testing.T) {
	ocr := &fakeOCR{text: "never"}
	cues := &cueLog{}
	p := NewPipeline(&fakeCamera{err: errors.New("exit status 1")}, ocr, cues, nil)

	text, err := p.CaptureAndRecognize(context.Background())
	assert.ErrorIs(t, err, ErrCapture)
	assert.Empty(t, text)
	assert.Zero(t, ocr.calls)
	assert.Equal(t, cueLog{notify.CueTakingPhoto, notify.CueCameraError}, *cues)
}

func TestCaptureAndRecognize_MissingOutputFile(t *testing.T) {
	ocr := &fakeOCR{}
	p := NewPipeline(&fakeCamera{path: filepath.Join(t.TempDir(), "nope.jpg")}, ocr, &cueLog{}, nil)

	_, err := p.CaptureAndRecognize(context.Background())
	assert.ErrorIs(t, err, ErrCapture)
	assert.Zero(t, ocr.calls)
}

func TestCaptureAndRecognize_BlankPage(t *testing.T) {
	p := NewPipeline(&fakeCamera{path: photo(t)}, &fakeOCR{text: "   "}, &cueLog{}, nil)

	text, err := p.CaptureAndRecognize(context.Background())
	require.NoError(t, err, "a page without text is not an error")
	assert.Empty(t, text)
}

func TestCaptureAndRecognize_OCRFailure(t *testing.T) {
	p := NewPipeline(&fakeCamera{path: photo(t)}, &fakeOCR{err: errors.New("quota")}, &cueLog{}, nil)

	_, err := p.CaptureAndRecognize(context.Background())
	assert.ErrorIs(t, err, ErrRecognize)
	assert.NotErrorIs(t, err, ErrCapture)
}

func TestStillCamera(t *testing.T) {
	dir := t.TempDir()
	tool := filepath.Join(dir, "fakecam")
	require.NoError(t, os.WriteFile(tool, []byte(`#!/bin/sh
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then echo img > "$2"; fi
  shift
done
`), 0o755))

	cam := &StillCamera{
		Command: tool,
		Output:  filepath.Join(dir, "out.jpg"),
		Width:   640,
		Height:  480,
	}
	path, err := cam.Capture(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestStillCamera_NonZeroExit(t *testing.T) {
	cam := &StillCamera{
		Command:      "false",
		Output:       filepath.Join(t.TempDir(), "out.jpg"),
		PreviewDelay: time.Millisecond,
	}
	_, err := cam.Capture(context.Background())
	assert.Error(t, err)
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "ERROR: no cameras available", lastLine([]byte("starting\nERROR: no cameras available\n")))
	assert.Equal(t, "", lastLine(nil))
}
