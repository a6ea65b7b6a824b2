package session

import (
	"context"
	log "log/slog"
	"time"

	"homi/internal/notify"
	"homi/internal/speech"
	"homi/internal/status"
)

type Listener interface {
	Start(ctx context.Context) (<-chan speech.Utterance, error)
	Stop()
}

type Dispatcher interface {
	Handle(ctx context.Context, u speech.Utterance) string
}

type Launcher interface {
	CloseAll(ctx context.Context)
}

type Actuator interface {
	Stop()
}

// Calibrator measures ambient noise before listening.
type Calibrator interface {
	Calibrate(ctx context.Context, d time.Duration) (float64, error)
}

type Announcer interface {
	Announce(ctx context.Context, c notify.Cue)
}

type Supervisor struct {
	Listener   Listener
	Dispatcher Dispatcher
	Launcher   Launcher
	Actuator   Actuator
	// Calibrator is optional; replay-only sessions have no microphone.
	Calibrator Calibrator
	Announcer  Announcer
	Status     *status.Sink

	Calibration     time.Duration
	ShutdownTimeout time.Duration
}

// Run listens and dispatches until ctx is cancelled or every speech source
// has finished. Teardown order: listening, activity, actuator.
func (s *Supervisor) Run(ctx context.Context) error {
	s.calibrate(ctx)

	utterances, err := s.Listener.Start(ctx)
	if err != nil {
		s.teardown()
		return err
	}
	// Stop listening the moment ctx ends, even mid-dispatch.
	stop := context.AfterFunc(ctx, s.Listener.Stop)
	defer stop()

	log.Info("Listening for commands")
	s.Status.Publish(status.Listening, "🎤 Listening...")
	s.Announcer.Announce(ctx, notify.CueReady)

	s.loop(ctx, utterances)

	s.Listener.Stop()
	s.teardown()
	return nil
}

func (s *Supervisor) loop(ctx context.Context, utterances <-chan speech.Utterance) {
	for {
		select {
		case <-ctx.Done():
			log.Info("Interrupt received")
			return
		case u, ok := <-utterances:
			if !ok {
				log.Info("Speech input finished")
				return
			}
			if ctx.Err() != nil {
				return
			}
			rule := s.Dispatcher.Handle(ctx, u)
			log.Debug("Dispatched", "rule", rule, "source", u.Source)
		}
	}
}

func (s *Supervisor) calibrate(ctx context.Context) {
	if s.Calibrator == nil {
		return
	}
	d := s.Calibration
	if d <= 0 {
		d = time.Second
	}

	log.Info("Calibrating microphone", "duration", d)
	s.Status.Publish(status.Info, "Calibrating microphone...")
	th, err := s.Calibrator.Calibrate(ctx, d)
	if err != nil {
		log.Error("Calibration failed, using default threshold", "err", err)
		s.Announcer.Announce(ctx, notify.CueError)
		return
	}
	log.Info("Calibrated", "threshold", th)
}

// teardown runs on a fresh context: the session one is already cancelled.
func (s *Supervisor) teardown() {
	timeout := s.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Info("Shutting down")
	s.Status.Publish(status.Info, "Shutting down")

	s.Launcher.CloseAll(ctx)
	s.Actuator.Stop()
	s.Announcer.Announce(ctx, notify.CueGoodbye)
	log.Info("Goodbye")
}
