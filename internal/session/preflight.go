package session

import (
	"errors"
	"fmt"
	log "log/slog"
	"os"

	"homi/internal/topic"
)

var ErrCredentials = errors.New("credentials file missing")

// Preflight checks what must exist before listening starts. A missing
// credentials file is fatal; missing activity scripts only warn.
func Preflight(credentials string, reg *topic.Registry) error {
	if credentials != "" {
		if _, err := os.Stat(credentials); err != nil {
			return fmt.Errorf("%w: %s", ErrCredentials, credentials)
		}
		log.Debug("Credentials found", "path", credentials)
	}

	if reg == nil {
		return nil
	}
	missing := 0
	for _, t := range reg.Topics() {
		if t.Activity.Path == "" || t.Activity.Kind != topic.KindScript {
			continue
		}
		if _, err := os.Stat(t.Activity.Path); err != nil {
			log.Warn("Activity script missing", "topic", t.Name, "path", t.Activity.Path)
			missing++
		}
	}
	if missing > 0 {
		log.Warn("Some topics cannot launch", "missing", missing)
	}
	return nil
}
