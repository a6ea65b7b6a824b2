package interpreter

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"

	"homi/internal/actuator"
	"homi/internal/capture"
	"homi/internal/notify"
	"homi/internal/speech"
	"homi/internal/status"
	"homi/internal/topic"
)

const (
	RuleFeeding  = "feeding"
	RuleClose    = "close"
	RuleGreeting = "greeting"
	RuleHelp     = "help"
	RuleLearn    = "learn"
	RuleHomework = "homework"
	RuleNone     = "none"
)

type Actuator interface {
	RunFeedingSequence() error
}

type Launcher interface {
	Launch(ctx context.Context, a topic.Activity) error
	CloseAll(ctx context.Context)
}

type Pipeline interface {
	CaptureAndRecognize(ctx context.Context) (string, error)
}

type Classifier interface {
	Classify(text string) (string, bool)
}

type Announcer interface {
	Announce(ctx context.Context, c notify.Cue)
	Play(ctx context.Context, path string)
	Greet(ctx context.Context) string
	Help(ctx context.Context) string
}

type Config struct {
	// CloseTriggersFeeding runs the feeding gesture after a close intent.
	CloseTriggersFeeding bool
}

type Deps struct {
	Actuator   Actuator
	Launcher   Launcher
	Pipeline   Pipeline
	Classifier Classifier
	Registry   *topic.Registry
	Announcer  Announcer
	Status     *status.Sink
}

// Rule pairs a predicate with its action. The first matching rule handles
// the utterance.
type Rule struct {
	Name   string
	Match  func(u speech.Utterance) bool
	Action func(ctx context.Context, u speech.Utterance) error
}

// Interpreter dispatches one utterance at a time. It holds no state between
// utterances; callers must not call Handle concurrently.
type Interpreter struct {
	cfg   Config
	deps  Deps
	rules []Rule
}

func New(cfg Config, deps Deps) *Interpreter {
	in := &Interpreter{cfg: cfg, deps: deps}
	in.rules = []Rule{
		{RuleFeeding, isFeeding, in.feed},
		{RuleClose, isClose, in.close},
		{RuleGreeting, isGreeting, in.greet},
		{RuleHelp, isHelp, in.help},
		{RuleLearn, in.isLearn, in.learn},
		{RuleHomework, isHomework, in.homework},
		{RuleNone, func(speech.Utterance) bool { return true }, in.ignore},
	}
	return in
}

// RuleNames lists the rules in evaluation order.
func (in *Interpreter) RuleNames() []string {
	names := make([]string, len(in.rules))
	for i, r := range in.rules {
		names[i] = r.Name
	}
	return names
}

// Handle runs the first matching rule and returns its name. Errors and
// panics are logged; Handle itself never fails.
func (in *Interpreter) Handle(ctx context.Context, u speech.Utterance) (rule string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Dispatch panicked", "rule", rule, "text", u.Text, "panic", r)
			in.deps.Status.Publish(status.Error, "Something went wrong")
		}
	}()

	for _, r := range in.rules {
		if !r.Match(u) {
			continue
		}
		rule = r.Name
		log.Debug("Intent matched", "rule", rule, "text", u.Text)
		if err := r.Action(ctx, u); err != nil {
			log.Error("Intent failed", "rule", rule, "err", err)
		}
		return rule
	}
	return RuleNone
}

func (in *Interpreter) feed(ctx context.Context, _ speech.Utterance) error {
	if err := in.startFeeding(); err != nil {
		return err
	}
	in.deps.Announcer.Announce(ctx, notify.CueFeeding)
	return nil
}

func (in *Interpreter) startFeeding() error {
	err := in.deps.Actuator.RunFeedingSequence()
	if errors.Is(err, actuator.ErrFeedingInFlight) {
		log.Warn("Feeding already in progress")
		in.deps.Status.Publish(status.Actuator, "Already feeding")
		return nil
	}
	if err != nil {
		in.deps.Status.Publish(status.Error, "Servo Error!")
		return fmt.Errorf("feeding: %w", err)
	}
	return nil
}

func (in *Interpreter) close(ctx context.Context, _ speech.Utterance) error {
	in.deps.Status.Publish(status.Info, "Closing activity")
	in.deps.Launcher.CloseAll(ctx)
	if in.cfg.CloseTriggersFeeding {
		return in.startFeeding()
	}
	return nil
}

func (in *Interpreter) greet(ctx context.Context, _ speech.Utterance) error {
	in.deps.Status.Publish(status.Info, "👋 Hello!")
	in.deps.Announcer.Greet(ctx)
	return nil
}

func (in *Interpreter) help(ctx context.Context, _ speech.Utterance) error {
	in.deps.Status.Publish(status.Info, "How can I help?")
	in.deps.Announcer.Help(ctx)
	return nil
}

func (in *Interpreter) isLearn(u speech.Utterance) bool {
	if !u.ContainsAny("teach me", "learn", "start", "play") {
		return false
	}
	_, _, ok := in.deps.Registry.MatchKeyword(u.Text)
	return ok
}

func (in *Interpreter) learn(ctx context.Context, u speech.Utterance) error {
	t, kw, ok := in.deps.Registry.MatchKeyword(u.Text)
	if !ok {
		return nil
	}
	log.Info("Topic requested", "topic", t.Name, "keyword", kw)
	return in.startTopic(ctx, t)
}

func (in *Interpreter) homework(ctx context.Context, _ speech.Utterance) error {
	in.deps.Status.Publish(status.Info, "📚 Homework mode")

	text, err := in.deps.Pipeline.CaptureAndRecognize(ctx)
	switch {
	case errors.Is(err, capture.ErrCapture):
		// The pipeline already played the camera cue.
		return err
	case err != nil:
		in.deps.Announcer.Announce(ctx, notify.CueError)
		return err
	case text == "":
		in.notFound(ctx)
		return nil
	}

	name, ok := in.deps.Classifier.Classify(text)
	if !ok {
		in.notFound(ctx)
		return nil
	}
	t, ok := in.deps.Registry.Lookup(name)
	if !ok {
		in.notFound(ctx)
		return nil
	}

	log.Info("Homework topic", "topic", t.Name)
	in.deps.Status.Publish(status.Success, "Topic: "+t.Name)
	in.deps.Announcer.Announce(ctx, notify.CueTopicFound)
	return in.startTopic(ctx, t)
}

func (in *Interpreter) notFound(ctx context.Context) {
	log.Info("No topic found")
	in.deps.Status.Publish(status.Info, "❓ Topic not found")
	in.deps.Announcer.Announce(ctx, notify.CueTopicNotFound)
}

// startTopic plays the topic audio, then replaces the foreground activity.
func (in *Interpreter) startTopic(ctx context.Context, t topic.Topic) error {
	in.deps.Announcer.Play(ctx, t.Audio)

	if t.Activity.Path == "" {
		log.Warn("Topic has no activity", "topic", t.Name)
		in.deps.Announcer.Announce(ctx, notify.CueNoSession)
		return nil
	}

	in.deps.Status.Publish(status.Info, "🎮 Starting "+t.Name)
	if err := in.deps.Launcher.Launch(ctx, t.Activity); err != nil {
		in.deps.Status.Publish(status.Error, "Could not start "+t.Name)
		in.deps.Announcer.Announce(ctx, notify.CueError)
		return fmt.Errorf("launch %s: %w", t.Name, err)
	}
	return nil
}

func (in *Interpreter) ignore(_ context.Context, u speech.Utterance) error {
	log.Info("No intent", "text", u.Text)
	return nil
}
