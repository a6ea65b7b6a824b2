package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homi/internal/topic"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{"--env", filepath.Join(t.TempDir(), "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, "localhost:8888", cfg.PigpioAddr)
	assert.Equal(t, 12, cfg.ServoPin)
	assert.Equal(t, "keytoken.json", cfg.Credentials)
	assert.Equal(t, OCRVision, cfg.OCRBackend)
	assert.False(t, cfg.CloseFeeds)
	assert.Empty(t, cfg.Replay)
}

func TestLoad_EnvFallback(t *testing.T) {
	t.Setenv("HOMI_PIGPIO", "10.0.0.5:8888")
	t.Setenv("HOMI_SERVO_PIN", "18")
	t.Setenv("HOMI_CLOSE_FEEDS", "true")

	cfg, err := Load([]string{"--env", filepath.Join(t.TempDir(), "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:8888", cfg.PigpioAddr)
	assert.Equal(t, 18, cfg.ServoPin)
	assert.True(t, cfg.CloseFeeds)
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	t.Setenv("HOMI_PIGPIO", "10.0.0.5:8888")

	cfg, err := Load([]string{
		"--env", filepath.Join(t.TempDir(), "missing.env"),
		"--pigpio", "127.0.0.1:9999",
		"--replay", "a.wav,b.mp3",
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.PigpioAddr)
	assert.Equal(t, []string{"a.wav", "b.mp3"}, cfg.Replay)
}

func TestLoad_EnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "kiosk.env")
	require.NoError(t, os.WriteFile(envFile, []byte("HOMI_PHOTO=/tmp/shot.jpg\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("HOMI_PHOTO") })

	cfg, err := Load([]string{"--env", envFile})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/shot.jpg", cfg.PhotoPath)
}

func TestValidate(t *testing.T) {
	base := Config{OCRBackend: OCRVision, ServoPin: 12, ModelPath: "m.bin"}
	require.NoError(t, base.Validate())

	bad := base
	bad.OCRBackend = "tesseract"
	assert.Error(t, bad.Validate())

	bad = base
	bad.ServoPin = 99
	assert.Error(t, bad.Validate())

	bad = base
	bad.OCRBackend = OCROpenAI
	assert.Error(t, bad.Validate(), "openai backend needs a key")

	bad.OpenAIKey = "sk-test"
	assert.NoError(t, bad.Validate())
}

func TestLoadKiosk_Default(t *testing.T) {
	k, err := LoadKiosk("")
	require.NoError(t, err)

	reg, err := k.Registry()
	require.NoError(t, err)

	names := make([]string, 0, reg.Len())
	for _, tp := range reg.Topics() {
		names = append(names, tp.Name)
	}
	assert.Equal(t, []string{
		"addition", "subtraction", "multiplication", "division",
		"colours", "shapes", "face", "parts", "finger", "counting",
	}, names)

	shapes, ok := reg.Lookup("shapes")
	require.True(t, ok)
	assert.Equal(t, topic.KindPage, shapes.Activity.Kind)

	colours, ok := reg.Lookup("colours")
	require.True(t, ok)
	assert.Equal(t, topic.KindScript, colours.Activity.Kind)

	assert.Equal(t, 90, k.Actuator.Extended)
	assert.Equal(t, 5*time.Second, k.Actuator.Hold)
	assert.Equal(t, "audio_files/ready.wav", k.Cues["ready"])
	assert.Len(t, k.Greetings, 2)
	assert.Len(t, k.Activities.Viewers, 3)
}

func TestParseKiosk_ExplicitKind(t *testing.T) {
	k, err := ParseKiosk([]byte(`
topics:
  - name: Puzzle
    activity: games/puzzle.bin
    kind: script
    keywords: [puzzle]
  - name: mystery
    activity: games/mystery.exe
    keywords: [mystery]
`))
	require.NoError(t, err)

	reg, err := k.Registry()
	require.NoError(t, err)

	p, ok := reg.Lookup("puzzle")
	require.True(t, ok)
	assert.Equal(t, topic.KindScript, p.Activity.Kind)

	m, ok := reg.Lookup("mystery")
	require.True(t, ok)
	assert.Equal(t, topic.KindUnknown, m.Activity.Kind)
}

func TestParseKiosk_Rejects(t *testing.T) {
	_, err := ParseKiosk([]byte("topics: []\n"))
	assert.Error(t, err)

	_, err = ParseKiosk([]byte("topics:\n  - name: a\nactuator:\n  extended: 200\n"))
	assert.Error(t, err)

	k, err := ParseKiosk([]byte("topics:\n  - name: a\n  - name: A\n"))
	require.NoError(t, err)
	_, err = k.Registry()
	assert.ErrorIs(t, err, topic.ErrDuplicateTopic)
}
