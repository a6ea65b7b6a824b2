package speech

import (
	"strings"
	"time"
)

const (
	SourceMic     = "mic"
	SourceReplay  = "replay"
	SourceControl = "control"
)

// Utterance is one finalized unit of speech. Text is lowercase with single
// spaces.
type Utterance struct {
	Text   string
	At     time.Time
	Source string
}

// NewUtterance normalizes raw transcript text. It reports false when
// nothing is left.
func NewUtterance(raw, source string) (Utterance, bool) {
	text := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	if text == "" {
		return Utterance{}, false
	}
	return Utterance{Text: text, At: time.Now(), Source: source}, true
}

// Tokens splits on whitespace and strips sentence punctuation around
// each word.
func (u Utterance) Tokens() []string {
	fields := strings.Fields(u.Text)
	out := fields[:0:0]
	for _, f := range fields {
		if w := strings.Trim(f, `.,!?;:"'`); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// HasToken reports whether any of words is a whole token.
func (u Utterance) HasToken(words ...string) bool {
	for _, t := range u.Tokens() {
		for _, w := range words {
			if t == w {
				return true
			}
		}
	}
	return false
}

// ContainsAny reports whether any of subs occurs in the text.
func (u Utterance) ContainsAny(subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(u.Text, s) {
			return true
		}
	}
	return false
}

// ContainsAll reports whether every one of subs occurs in the text.
func (u Utterance) ContainsAll(subs ...string) bool {
	for _, s := range subs {
		if !strings.Contains(u.Text, s) {
			return false
		}
	}
	return true
}
