package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
)

const (
	OCRVision = "vision"
	OCROpenAI = "openai"
)

// Config holds process level settings: flags first, then HOMI_* variables
// from the environment or the env file.
type Config struct {
	EnvFile       string
	LogLevel      string
	KioskFile     string
	Credentials   string
	PigpioAddr    string
	ServoPin      int
	ModelPath     string
	Language      string
	DisplayURL    string
	ProxyAddr     string
	OCRBackend    string
	OpenAIKey     string
	OpenAIModel   string
	ControlSocket string
	PhotoPath     string
	Replay        []string
	CloseFeeds    bool
}

func Load(args []string) (*Config, error) {
	fs := cli.NewFlagSet("homi", cli.ContinueOnError)

	cfg := &Config{}
	fs.StringVarP(&cfg.EnvFile, "env", "e", ".env", "Env file path")
	fs.StringVarP(&cfg.LogLevel, "log", "l", "info", "Log level")
	fs.StringVarP(&cfg.KioskFile, "config", "c", "", "Kiosk YAML (topics, cues); embedded default when empty")
	fs.StringVar(&cfg.Credentials, "credentials", "keytoken.json", "Google Cloud credentials file")
	fs.StringVar(&cfg.PigpioAddr, "pigpio", "localhost:8888", "pigpio daemon address")
	fs.IntVar(&cfg.ServoPin, "servo-pin", 12, "BCM pin of the feeding servo")
	fs.StringVarP(&cfg.ModelPath, "model", "m", "models/ggml-base.en.bin", "Whisper model")
	fs.StringVar(&cfg.Language, "language", "en", "Speech language")
	fs.StringVar(&cfg.DisplayURL, "display", "", "Status display websocket URL")
	fs.StringVarP(&cfg.ProxyAddr, "proxy", "p", "", "Socks Proxy Address for cloud OCR")
	fs.StringVar(&cfg.OCRBackend, "ocr", OCRVision, "OCR backend: vision|openai")
	fs.StringVar(&cfg.ControlSocket, "control", "/tmp/homi.sock", "Control socket path, empty disables")
	fs.StringVar(&cfg.PhotoPath, "photo", "captured_homework.jpg", "Capture output path")
	fs.StringSliceVar(&cfg.Replay, "replay", nil, "Audio files to transcribe instead of the microphone")
	fs.BoolVar(&cfg.CloseFeeds, "close-feeds", false, "Run the feeding gesture after a close command")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// A missing env file is fine; the real environment still applies.
	_ = godotenv.Load(cfg.EnvFile)

	envString(fs, "log", "HOMI_LOG", &cfg.LogLevel)
	envString(fs, "config", "HOMI_CONFIG", &cfg.KioskFile)
	envString(fs, "credentials", "HOMI_CREDENTIALS", &cfg.Credentials)
	envString(fs, "pigpio", "HOMI_PIGPIO", &cfg.PigpioAddr)
	envInt(fs, "servo-pin", "HOMI_SERVO_PIN", &cfg.ServoPin)
	envString(fs, "model", "HOMI_MODEL", &cfg.ModelPath)
	envString(fs, "language", "HOMI_LANGUAGE", &cfg.Language)
	envString(fs, "display", "HOMI_DISPLAY", &cfg.DisplayURL)
	envString(fs, "proxy", "HOMI_PROXY", &cfg.ProxyAddr)
	envString(fs, "ocr", "HOMI_OCR", &cfg.OCRBackend)
	envString(fs, "control", "HOMI_CONTROL", &cfg.ControlSocket)
	envString(fs, "photo", "HOMI_PHOTO", &cfg.PhotoPath)
	envBool(fs, "close-feeds", "HOMI_CLOSE_FEEDS", &cfg.CloseFeeds)

	cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIModel = getEnv("HOMI_OPENAI_MODEL", "gpt-4o-mini")

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.OCRBackend {
	case OCRVision:
	case OCROpenAI:
		if c.OpenAIKey == "" {
			return errors.New("OPENAI_API_KEY not set for openai OCR backend")
		}
	default:
		return fmt.Errorf("unknown OCR backend %q", c.OCRBackend)
	}
	if c.ServoPin < 0 || c.ServoPin > 53 {
		return fmt.Errorf("servo pin must be 0-53, got %d", c.ServoPin)
	}
	if c.ModelPath == "" {
		return errors.New("whisper model path is empty")
	}
	return nil
}

func envString(fs *cli.FlagSet, flag, key string, dst *string) {
	if fs.Changed(flag) {
		return
	}
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(fs *cli.FlagSet, flag, key string, dst *int) {
	if fs.Changed(flag) {
		return
	}
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envBool(fs *cli.FlagSet, flag, key string, dst *bool) {
	if fs.Changed(flag) {
		return
	}
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
