package interpreter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homi/internal/activity"
	"homi/internal/actuator"
	"homi/internal/capture"
	"homi/internal/notify"
	"homi/internal/speech"
	"homi/internal/status"
	"homi/internal/topic"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Announce(_ context.Context, c notify.Cue) { r.add("cue:" + string(c)) }
func (r *recorder) Play(_ context.Context, path string)      { r.add("play:" + path) }
func (r *recorder) Greet(context.Context) string             { r.add("greet"); return "" }
func (r *recorder) Help(context.Context) string              { r.add("help"); return "" }

type fakeActuator struct {
	calls atomic.Int32
	err   error
}

func (f *fakeActuator) RunFeedingSequence() error {
	f.calls.Add(1)
	return f.err
}

type fakeLauncher struct {
	rec      *recorder
	err      error
	launched []topic.Activity
	closes   int
}

func (f *fakeLauncher) Launch(_ context.Context, a topic.Activity) error {
	f.rec.add("launch:" + a.Path)
	if f.err != nil {
		return f.err
	}
	f.launched = append(f.launched, a)
	return nil
}

func (f *fakeLauncher) CloseAll(context.Context) {
	f.rec.add("closeAll")
	f.closes++
}

type fakePipeline struct {
	text  string
	err   error
	calls int
	panic bool
}

func (f *fakePipeline) CaptureAndRecognize(context.Context) (string, error) {
	f.calls++
	if f.panic {
		panic("camera driver exploded")
	}
	return f.text, f.err
}

func testRegistry(t *testing.T) *topic.Registry {
	t.Helper()
	reg, err := topic.NewRegistry([]topic.Topic{
		{Name: "addition", Audio: "audio/addition.wav", Activity: topic.Activity{Path: "games/addition.py", Kind: topic.KindScript}, Keywords: []string{"addition", "plus"}},
		{Name: "shapes", Audio: "audio/shapes.wav", Activity: topic.Activity{Path: "web/shapes.html", Kind: topic.KindPage}, Keywords: []string{"shape", "circle"}},
		{Name: "story", Audio: "audio/story.wav", Keywords: []string{"story"}},
	})
	require.NoError(t, err)
	return reg
}

type fixture struct {
	in       *Interpreter
	rec      *recorder
	act      *fakeActuator
	launcher *fakeLauncher
	pipe     *fakePipeline
	sink     *status.Sink
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		rec:  &recorder{},
		act:  &fakeActuator{},
		pipe: &fakePipeline{},
		sink: status.NewSink(64),
	}
	f.launcher = &fakeLauncher{rec: f.rec}
	reg := testRegistry(t)
	f.in = New(cfg, Deps{
		Actuator:   f.act,
		Launcher:   f.launcher,
		Pipeline:   f.pipe,
		Classifier: topic.NewClassifier(reg),
		Registry:   reg,
		Announcer:  f.rec,
		Status:     f.sink,
	})
	return f
}

func say(t *testing.T, text string) speech.Utterance {
	t.Helper()
	u, ok := speech.NewUtterance(text, speech.SourceControl)
	require.True(t, ok)
	return u
}

func TestRuleOrder(t *testing.T) {
	f := newFixture(t, Config{})
	assert.Equal(t, []string{
		RuleFeeding, RuleClose, RuleGreeting, RuleHelp, RuleLearn, RuleHomework, RuleNone,
	}, f.in.RuleNames())
}

func TestHandle_Routing(t *testing.T) {
	cases := map[string]string{
		"I am hungry":              RuleFeeding,
		"please feed the robot":    RuleFeeding,
		"hi, feed me":              RuleFeeding,
		"close the game":           RuleClose,
		"thank you robot":          RuleClose,
		"thanks hello":             RuleClose,
		"I'm done":                 RuleClose,
		"Hello there":              RuleGreeting,
		"hey!":                     RuleGreeting,
		"help me":                  RuleHelp,
		"teach me about shapes":    RuleLearn,
		"play the circle game":     RuleLearn,
		"check my homework":        RuleHomework,
		"solve this":               RuleHomework,
		"teach me about dinosaurs": RuleNone,
		"the sky is blue":          RuleNone,
		"this is hilarious":        RuleNone,
	}
	for text, want := range cases {
		f := newFixture(t, Config{})
		assert.Equal(t, want, f.in.Handle(context.Background(), say(t, text)), text)
	}
}

func TestFeeding_InvokedOnce(t *testing.T) {
	f := newFixture(t, Config{})
	f.in.Handle(context.Background(), say(t, "i am hungry"))

	assert.EqualValues(t, 1, f.act.calls.Load())
	assert.Equal(t, []string{"cue:feeding"}, f.rec.list())
}

func TestFeeding_InFlightRejected(t *testing.T) {
	f := newFixture(t, Config{})
	f.act.err = actuator.ErrFeedingInFlight

	assert.Equal(t, RuleFeeding, f.in.Handle(context.Background(), say(t, "feed me")))
	assert.Empty(t, f.rec.list())

	ev := <-f.sink.Events()
	assert.Equal(t, status.Actuator, ev.Category)
}

type slowServo struct {
	mu     sync.Mutex
	pulses []uint32
}

func (s *slowServo) SetPulseWidth(_, us uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulses = append(s.pulses, us)
	return nil
}

func (s *slowServo) Close() error { return nil }

func TestFeeding_DoesNotBlockDispatch(t *testing.T) {
	ctrl := actuator.NewController(&slowServo{}, actuator.Options{
		Pin:      12,
		Extended: 90,
		Settle:   time.Millisecond,
		Hold:     10 * time.Second,
	})
	defer ctrl.Wait()
	defer ctrl.Stop()

	f := newFixture(t, Config{})
	f.in.deps.Actuator = ctrl

	start := time.Now()
	assert.Equal(t, RuleFeeding, f.in.Handle(context.Background(), say(t, "i'm hungry")))
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, ctrl.Feeding())

	// A second request while the first is holding is rejected, not queued.
	assert.Equal(t, RuleFeeding, f.in.Handle(context.Background(), say(t, "feed me again")))
	assert.Equal(t, []string{"cue:feeding"}, f.rec.list())
}

func TestClose_Policy(t *testing.T) {
	f := newFixture(t, Config{})
	f.in.Handle(context.Background(), say(t, "close the game"))
	assert.Equal(t, 1, f.launcher.closes)
	assert.Zero(t, f.act.calls.Load())

	f = newFixture(t, Config{CloseTriggersFeeding: true})
	f.in.Handle(context.Background(), say(t, "thank you"))
	assert.Equal(t, 1, f.launcher.closes)
	assert.EqualValues(t, 1, f.act.calls.Load())
}

func TestClose_LeavesNoActivity(t *testing.T) {
	rec := &recorder{}
	launcher := activity.NewLauncher(activity.Options{
		Script: []string{"sh"},
		Grace:  200 * time.Millisecond,
	}, rec)

	game := filepath.Join(t.TempDir(), "game.sh")
	require.NoError(t, os.WriteFile(game, []byte("exec sleep 30\n"), 0o755))

	reg, err := topic.NewRegistry([]topic.Topic{
		{Name: "counting", Activity: topic.Activity{Path: game, Kind: topic.KindScript}, Keywords: []string{"count"}},
	})
	require.NoError(t, err)

	in := New(Config{}, Deps{
		Actuator:   &fakeActuator{},
		Launcher:   launcher,
		Pipeline:   &fakePipeline{},
		Classifier: topic.NewClassifier(reg),
		Registry:   reg,
		Announcer:  rec,
	})
	ctx := context.Background()

	// Nothing running: still safe, still announced.
	assert.Equal(t, RuleClose, in.Handle(ctx, say(t, "close the game")))
	_, live := launcher.Active()
	assert.False(t, live)

	assert.Equal(t, RuleLearn, in.Handle(ctx, say(t, "let's play count")))
	_, live = launcher.Active()
	require.True(t, live)

	assert.Equal(t, RuleClose, in.Handle(ctx, say(t, "I'm finished")))
	_, live = launcher.Active()
	assert.False(t, live)

	assert.Equal(t, []string{
		"cue:closing_game", "cue:thank_you",
		"play:",
		"cue:closing_game", "cue:thank_you",
	}, rec.list())
}

func TestLearn(t *testing.T) {
	f := newFixture(t, Config{})
	f.in.Handle(context.Background(), say(t, "teach me shapes"))

	require.Len(t, f.launcher.launched, 1)
	assert.Equal(t, "web/shapes.html", f.launcher.launched[0].Path)
	assert.Equal(t, []string{"play:audio/shapes.wav", "launch:web/shapes.html"}, f.rec.list())
}

func TestLearn_NoSession(t *testing.T) {
	f := newFixture(t, Config{})
	f.in.Handle(context.Background(), say(t, "start the story"))

	assert.Empty(t, f.launcher.launched)
	assert.Equal(t, []string{"play:audio/story.wav", "cue:no_session"}, f.rec.list())
}

func TestLearn_LaunchFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.launcher.err = activity.ErrUnsupportedKind

	assert.Equal(t, RuleLearn, f.in.Handle(context.Background(), say(t, "learn addition")))
	assert.Equal(t, []string{
		"play:audio/addition.wav", "launch:games/addition.py", "cue:error",
	}, f.rec.list())
}

func TestHomework(t *testing.T) {
	f := newFixture(t, Config{})
	f.pipe.text = "2 + 2 = ?"

	assert.Equal(t, RuleHelp, f.in.Handle(context.Background(), say(t, "help with my homework")))
	assert.Equal(t, []string{"help"}, f.rec.list(), "help precedes homework")

	f.in.Handle(context.Background(), say(t, "check my homework"))
	assert.Equal(t, 1, f.pipe.calls)
	assert.Equal(t, []string{
		"help",
		"cue:topic_found", "play:audio/addition.wav", "launch:games/addition.py",
	}, f.rec.list())
}

func TestHomework_Failures(t *testing.T) {
	cases := []struct {
		name string
		text string
		err  error
		want []string
	}{
		{"capture", "", capture.ErrCapture, nil},
		{"ocr", "", capture.ErrRecognize, []string{"cue:error"}},
		{"blank page", "", nil, []string{"cue:topic_not_found"}},
		{"unknown topic", "photosynthesis", nil, []string{"cue:topic_not_found"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			f.pipe.text, f.pipe.err = tc.text, tc.err

			assert.Equal(t, RuleHomework, f.in.Handle(context.Background(), say(t, "solve this worksheet")))
			assert.Equal(t, tc.want, f.rec.list())
			assert.Empty(t, f.launcher.launched)
		})
	}
}

func TestHandle_RecoversPanics(t *testing.T) {
	f := newFixture(t, Config{})
	f.pipe.panic = true

	assert.NotPanics(t, func() {
		assert.Equal(t, RuleHomework, f.in.Handle(context.Background(), say(t, "my homework")))
	})

	// The next utterance is still handled.
	assert.Equal(t, RuleGreeting, f.in.Handle(context.Background(), say(t, "hello")))
}

func TestHandle_ErrorsDoNotEscape(t *testing.T) {
	f := newFixture(t, Config{})
	f.act.err = errors.New("pigpio gone")

	assert.Equal(t, RuleFeeding, f.in.Handle(context.Background(), say(t, "hungry")))
	assert.Empty(t, f.rec.list())
}
