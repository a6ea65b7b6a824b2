package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "log/slog"

	"homi/internal/ipc"
	"homi/internal/status"
	"homi/pkg/audioconv"
)

type PhraseRecorder interface {
	RecordPhrase(ctx context.Context) ([]float32, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, pcm16k []float32) (string, error)
}

// MicSource records phrases from the microphone and transcribes them.
type MicSource struct {
	Recorder    PhraseRecorder
	Transcriber Transcriber
	Status      *status.Sink
	// Backoff after a failed read from the device.
	Backoff time.Duration
}

func (m *MicSource) Name() string { return SourceMic }

func (m *MicSource) Listen(ctx context.Context, out chan<- Utterance) error {
	backoff := m.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pcm, err := m.Recorder.RecordPhrase(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("record failed", "err", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		u, ok := m.transcribe(ctx, pcm)
		if !ok {
			continue
		}
		if err := emit(ctx, out, u); err != nil {
			return err
		}
	}
}

func (m *MicSource) transcribe(ctx context.Context, pcm []float32) (Utterance, bool) {
	text, err := m.Transcriber.Transcribe(ctx, pcm)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("transcribe failed", "err", err)
		}
		return Utterance{}, false
	}

	u, ok := NewUtterance(text, SourceMic)
	if !ok {
		log.Debug("no speech recognized", "samples", len(pcm))
		return Utterance{}, false
	}
	log.Info("Heard", "text", u.Text)
	m.Status.Publish(status.Listening, "Heard: "+u.Text)
	return u, true
}

// ReplaySource transcribes recordings in order, then finishes.
type ReplaySource struct {
	Files       []string
	Transcriber Transcriber
	// Gap between files, roughly the pause between spoken commands.
	Gap time.Duration
}

func (r *ReplaySource) Name() string { return SourceReplay }

func (r *ReplaySource) Listen(ctx context.Context, out chan<- Utterance) error {
	for i, path := range r.Files {
		if i > 0 && r.Gap > 0 {
			select {
			case <-time.After(r.Gap):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		pcm, err := audioconv.FileToPCM16k(path, 0)
		if err != nil {
			log.Warn("replay decode failed", "file", path, "err", err)
			continue
		}

		text, err := r.Transcriber.Transcribe(ctx, pcm)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("replay transcribe failed", "file", path, "err", err)
			continue
		}

		u, ok := NewUtterance(text, SourceReplay)
		if !ok {
			log.Debug("replay produced no text", "file", path)
			continue
		}
		log.Info("Replayed", "file", path, "text", u.Text)
		if err := emit(ctx, out, u); err != nil {
			return err
		}
	}
	return nil
}

// ControlSource turns "say" messages on the control socket into utterances.
type ControlSource struct {
	Server *ipc.Server
}

func (c *ControlSource) Name() string { return SourceControl }

func (c *ControlSource) Listen(ctx context.Context, out chan<- Utterance) error {
	if c.Server == nil {
		return errors.New("control source without server")
	}

	err := c.Server.Serve(ctx, func(msg ipc.ControlMessage) {
		switch msg.Cmd {
		case ipc.CmdSay:
			if ctx.Err() != nil {
				return
			}
			u, ok := NewUtterance(msg.Text, SourceControl)
			if !ok {
				return
			}
			log.Info("Control", "text", u.Text)
			_ = emit(ctx, out, u)
		case ipc.CmdPing:
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
		}
	})
	if err != nil {
		return fmt.Errorf("control socket: %w", err)
	}
	return nil
}
