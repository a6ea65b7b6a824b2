package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	log "log/slog"

	"homi/internal/activity"
	"homi/internal/actuator"
	"homi/internal/audio"
	"homi/internal/capture"
	"homi/internal/config"
	"homi/internal/interpreter"
	"homi/internal/ipc"
	"homi/internal/notify"
	"homi/internal/ocr"
	"homi/internal/proxy"
	"homi/internal/session"
	"homi/internal/speech"
	"homi/internal/status"
	"homi/internal/topic"
	"homi/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Error("Bad configuration", "err", err)
		os.Exit(2)
	}

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[cfg.LogLevel],
		TimeFormat: time.TimeOnly,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("Stopped", "err", err)
		stop()
		os.Exit(1)
	}
}

// run boots the kiosk and serves until ctx ends. Every failure returns
// through the deferred cleanups, so the servo is switched off on all exits.
func run(ctx context.Context, cfg *config.Config) error {
	log.Info("Booting up")

	kiosk, err := config.LoadKiosk(cfg.KioskFile)
	if err != nil {
		return fmt.Errorf("load kiosk config: %w", err)
	}
	registry, err := kiosk.Registry()
	if err != nil {
		return fmt.Errorf("topic registry: %w", err)
	}
	log.Debug("Loaded topics", "count", registry.Len())

	credentials := cfg.Credentials
	if cfg.OCRBackend != config.OCRVision {
		credentials = ""
	}
	if err := session.Preflight(credentials, registry); err != nil {
		return err
	}

	// The publisher outlives the session so teardown events still go out.
	sink := status.NewSink(64)
	pubCtx, stopPub := context.WithCancel(context.Background())
	pubDone := make(chan struct{})
	go func() {
		defer close(pubDone)
		status.NewPublisher(cfg.DisplayURL).Run(pubCtx, sink)
	}()
	defer func() {
		stopPub()
		<-pubDone
	}()

	recognizer, closeOCR, err := newOCR(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeOCR()

	dialCtx, cancelDial := context.WithTimeout(ctx, 5*time.Second)
	servo, err := actuator.DialPigpio(dialCtx, cfg.PigpioAddr)
	cancelDial()
	if err != nil {
		log.Error("pigpio daemon unreachable, start it with 'sudo pigpiod'", "addr", cfg.PigpioAddr)
		return err
	}
	ctrl := actuator.NewController(servo, actuator.Options{
		Pin:      uint32(cfg.ServoPin),
		Neutral:  kiosk.Actuator.Neutral,
		Extended: kiosk.Actuator.Extended,
		Settle:   kiosk.Actuator.Settle,
		Hold:     kiosk.Actuator.Hold,
		Status:   sink,
	})
	defer ctrl.Wait()
	defer ctrl.Stop()
	if err := ctrl.MoveTo(kiosk.Actuator.Neutral); err != nil {
		log.Warn("Servo did not reach neutral", "err", err)
	}
	log.Debug("Loaded actuator", "pin", cfg.ServoPin)

	cues := notify.NewAnnouncer(notify.NewSpeaker(), kiosk.Cues, kiosk.Greetings, kiosk.Help)

	launcher := activity.NewLauncher(activity.Options{
		Script:  kiosk.Activities.Script,
		Viewers: kiosk.Activities.Viewers,
		Sweep:   kiosk.Activities.Sweep,
		Grace:   kiosk.Activities.Grace,
		Status:  sink,
	}, cues)

	pipeline := capture.NewPipeline(&capture.StillCamera{
		Command:      kiosk.Camera.Command,
		Output:       cfg.PhotoPath,
		Width:        kiosk.Camera.Width,
		Height:       kiosk.Camera.Height,
		PreviewDelay: kiosk.Camera.PreviewDelay,
		Preview:      kiosk.Camera.Preview,
	}, recognizer, cues, sink)

	whisper, err := stt.NewTranscriber(cfg.ModelPath, stt.Options{
		Language:      cfg.Language,
		InitialPrompt: vocabulary(registry),
	})
	if err != nil {
		return fmt.Errorf("init whisper %s: %w", cfg.ModelPath, err)
	}
	defer whisper.Close()
	log.Debug("Loaded whisper")

	var (
		sources    []speech.Source
		calibrator session.Calibrator
	)
	if len(cfg.Replay) > 0 {
		sources = append(sources, &speech.ReplaySource{Files: cfg.Replay, Transcriber: whisper, Gap: time.Second})
	} else {
		rec := audio.NewRecorder()
		if err := rec.Init(); err != nil {
			return fmt.Errorf("no usable microphone: %w", err)
		}
		defer rec.Close()
		calibrator = rec
		sources = append(sources, &speech.MicSource{Recorder: rec, Transcriber: whisper, Status: sink})
	}
	if cfg.ControlSocket != "" {
		srv, err := ipc.Listen(cfg.ControlSocket)
		if err != nil {
			log.Warn("Control socket disabled", "path", cfg.ControlSocket, "err", err)
		} else {
			sources = append(sources, &speech.ControlSource{Server: srv})
		}
	}

	in := interpreter.New(interpreter.Config{
		CloseTriggersFeeding: cfg.CloseFeeds,
	}, interpreter.Deps{
		Actuator:   ctrl,
		Launcher:   launcher,
		Pipeline:   pipeline,
		Classifier: topic.NewClassifier(registry),
		Registry:   registry,
		Announcer:  cues,
		Status:     sink,
	})

	log.Info("Boot up - successful", "ocr", cfg.OCRBackend, "sources", len(sources))

	listener := speech.NewListener(sources...)
	sup := &session.Supervisor{
		Listener:    listener,
		Dispatcher:  in,
		Launcher:    launcher,
		Actuator:    ctrl,
		Calibrator:  calibrator,
		Announcer:   cues,
		Status:      sink,
		Calibration: 3 * time.Second,
	}
	err = sup.Run(ctx)

	// The recorder and the model are freed by the defers above; no source
	// may still be inside them.
	if !listener.Wait(10 * time.Second) {
		log.Warn("Speech sources still busy at exit")
	}
	return err
}

// newOCR builds the configured backend.
func newOCR(ctx context.Context, cfg *config.Config) (capture.OCR, func(), error) {
	switch cfg.OCRBackend {
	case config.OCROpenAI:
		httpClient, err := proxy.NewHTTPClient(cfg.ProxyAddr, 60*time.Second)
		if err != nil {
			return nil, nil, fmt.Errorf("socks proxy %s: %w", cfg.ProxyAddr, err)
		}
		log.Debug("Loaded OpenAI OCR", "model", cfg.OpenAIModel)
		return ocr.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel, httpClient), func() {}, nil
	default:
		v, err := ocr.NewVision(ctx, cfg.Credentials)
		if err != nil {
			return nil, nil, fmt.Errorf("vision client: %w", err)
		}
		log.Debug("Loaded Vision OCR")
		return v, func() { v.Close() }, nil
	}
}

// vocabulary nudges whisper towards topic names and command words.
func vocabulary(reg *topic.Registry) string {
	words := "hello, help, homework, feed, hungry, close the game, thank you, teach me"
	for _, t := range reg.Topics() {
		words += ", " + t.Name
	}
	return words
}
