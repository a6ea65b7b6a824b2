package notify

import (
	"context"
	log "log/slog"
	"math/rand/v2"
)

type Cue string

const (
	CueReady         Cue = "ready"
	CueGoodbye       Cue = "goodbye"
	CueError         Cue = "error"
	CueCameraError   Cue = "camera_error"
	CueClosing       Cue = "closing_game"
	CueThankYou      Cue = "thank_you"
	CueTopicFound    Cue = "topic_found"
	CueTopicNotFound Cue = "topic_not_found"
	CueTakingPhoto   Cue = "taking_photo"
	CueProcessing    Cue = "ocr_processing"
	CueNoSession     Cue = "no_session"
	CueFeeding       Cue = "feeding"
)

type Player interface {
	Play(ctx context.Context, path string)
}

// Announcer resolves named prompts to files and plays them.
type Announcer struct {
	player    Player
	cues      map[Cue]string
	greetings []string
	help      []string
	pick      func(n int) int
}

func NewAnnouncer(p Player, cues map[string]string, greetings, help []string) *Announcer {
	m := make(map[Cue]string, len(cues))
	for k, v := range cues {
		m[Cue(k)] = v
	}
	return &Announcer{
		player:    p,
		cues:      m,
		greetings: append([]string(nil), greetings...),
		help:      append([]string(nil), help...),
		pick:      rand.IntN,
	}
}

func (a *Announcer) Announce(ctx context.Context, c Cue) {
	path := a.cues[c]
	if path == "" {
		log.Debug("No audio for cue", "cue", c)
		return
	}
	a.player.Play(ctx, path)
}

func (a *Announcer) Play(ctx context.Context, path string) {
	if path == "" {
		return
	}
	a.player.Play(ctx, path)
}

// Greet plays one greeting at random and returns its path.
func (a *Announcer) Greet(ctx context.Context) string {
	return a.playRandom(ctx, a.greetings)
}

func (a *Announcer) Help(ctx context.Context) string {
	return a.playRandom(ctx, a.help)
}

func (a *Announcer) playRandom(ctx context.Context, paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	p := paths[a.pick(len(paths))]
	a.player.Play(ctx, p)
	return p
}
