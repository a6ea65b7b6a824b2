package capture

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// StillCamera shells out to rpicam-still (or a compatible tool).
type StillCamera struct {
	Command      string
	Output       string
	Width        int
	Height       int
	PreviewDelay time.Duration
	Preview      string
}

// Capture writes a fresh photo to Output. The tool gets the preview delay
// plus one second; the whole call is bounded a few seconds beyond that.
func (c *StillCamera) Capture(ctx context.Context) (string, error) {
	shotMs := (c.PreviewDelay + time.Second).Milliseconds()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(shotMs)*time.Millisecond+10*time.Second)
	defer cancel()

	// A stale photo from an earlier request must not pass for a new one.
	_ = os.Remove(c.Output)

	args := []string{
		"-o", c.Output,
		"-t", strconv.FormatInt(shotMs, 10),
		"--width", strconv.Itoa(c.Width),
		"--height", strconv.Itoa(c.Height),
	}
	if c.Preview != "" {
		args = append(args, "--preview", c.Preview)
	}

	log.Info("Opening camera preview", "delay", c.PreviewDelay)
	cmd := exec.CommandContext(ctx, c.Command, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%s: %w (%s)", c.Command, err, lastLine(out))
	}

	if _, err := os.Stat(c.Output); err != nil {
		return "", fmt.Errorf("%s produced no image: %w", c.Command, err)
	}

	log.Info("Image captured", "path", c.Output)
	return c.Output, nil
}

func lastLine(out []byte) string {
	end := len(out)
	for end > 0 && (out[end-1] == '\n' || out[end-1] == '\r') {
		end--
	}
	start := end
	for start > 0 && out[start-1] != '\n' {
		start--
	}
	return string(out[start:end])
}
