package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"homi/internal/topic"
)

//go:embed homi.yaml
var defaultKiosk []byte

// Kiosk is the static content of the kiosk: topics, cue files and the
// tunables of the hardware and process collaborators.
type Kiosk struct {
	Topics     []TopicSpec       `yaml:"topics"`
	Cues       map[string]string `yaml:"cues"`
	Greetings  []string          `yaml:"greetings"`
	Help       []string          `yaml:"help"`
	Actuator   ActuatorSpec      `yaml:"actuator"`
	Camera     CameraSpec        `yaml:"camera"`
	Activities ActivitiesSpec    `yaml:"activities"`
}

type TopicSpec struct {
	Name     string   `yaml:"name"`
	Activity string   `yaml:"activity"`
	Kind     string   `yaml:"kind,omitempty"` // "script" | "page"; derived from the extension when empty
	Audio    string   `yaml:"audio"`
	Keywords []string `yaml:"keywords"`
}

type ActuatorSpec struct {
	Neutral  int           `yaml:"neutral"`
	Extended int           `yaml:"extended"`
	Settle   time.Duration `yaml:"settle"`
	Hold     time.Duration `yaml:"hold"`
}

type CameraSpec struct {
	Command      string        `yaml:"command"`
	Width        int           `yaml:"width"`
	Height       int           `yaml:"height"`
	PreviewDelay time.Duration `yaml:"preview_delay"`
	Preview      string        `yaml:"preview"`
}

type ActivitiesSpec struct {
	Script  []string      `yaml:"script"`
	Viewers [][]string    `yaml:"viewers"`
	Sweep   []string      `yaml:"sweep"`
	Grace   time.Duration `yaml:"grace"`
}

// LoadKiosk parses the kiosk YAML at path, or the embedded default when
// path is empty.
func LoadKiosk(path string) (*Kiosk, error) {
	data := defaultKiosk
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load kiosk %q: %w", path, err)
		}
		data = b
	}

	return ParseKiosk(data)
}

func ParseKiosk(data []byte) (*Kiosk, error) {
	var k Kiosk
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("parse kiosk: %w", err)
	}
	if len(k.Topics) == 0 {
		return nil, fmt.Errorf("parse kiosk: no topics")
	}
	if k.Actuator.Extended < 0 || k.Actuator.Extended > 180 || k.Actuator.Neutral < 0 || k.Actuator.Neutral > 180 {
		return nil, fmt.Errorf("parse kiosk: actuator angles must be 0-180")
	}
	return &k, nil
}

// Registry builds the topic table, deciding each activity kind once here.
func (k *Kiosk) Registry() (*topic.Registry, error) {
	topics := make([]topic.Topic, 0, len(k.Topics))
	for _, t := range k.Topics {
		topics = append(topics, topic.Topic{
			Name: t.Name,
			Activity: topic.Activity{
				Path: t.Activity,
				Kind: topic.ParseKind(t.Kind, t.Activity),
			},
			Audio:    t.Audio,
			Keywords: t.Keywords,
		})
	}
	return topic.NewRegistry(topics)
}
