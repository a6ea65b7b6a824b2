package topic

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrDuplicateTopic = errors.New("duplicate topic")
	ErrEmptyTopic     = errors.New("empty topic name")
)

type Kind int

const (
	KindUnknown Kind = iota
	KindScript
	KindPage
)

func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindPage:
		return "page"
	default:
		return "unknown"
	}
}

// ParseKind maps an explicit tag to a Kind. An empty tag falls back to the
// extension of path.
func ParseKind(tag, path string) Kind {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "script":
		return KindScript
	case "page":
		return KindPage
	case "":
		return KindFromPath(path)
	default:
		return KindUnknown
	}
}

func KindFromPath(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py", ".sh":
		return KindScript
	case ".html", ".htm":
		return KindPage
	default:
		return KindUnknown
	}
}

// Activity is the launchable program behind a topic.
type Activity struct {
	Path string
	Kind Kind
}

type Topic struct {
	Name     string
	Activity Activity
	Audio    string
	Keywords []string
}

// Registry is the read-only topic table. Iteration always follows
// declaration order.
type Registry struct {
	topics []Topic
	index  map[string]int
}

func NewRegistry(topics []Topic) (*Registry, error) {
	r := &Registry{
		topics: make([]Topic, 0, len(topics)),
		index:  make(map[string]int, len(topics)),
	}

	for _, t := range topics {
		name := strings.ToLower(strings.TrimSpace(t.Name))
		if name == "" {
			return nil, ErrEmptyTopic
		}
		if _, ok := r.index[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTopic, name)
		}

		kw := make([]string, 0, len(t.Keywords))
		for _, k := range t.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k != "" {
				kw = append(kw, k)
			}
		}

		t.Name = name
		t.Keywords = kw
		r.index[name] = len(r.topics)
		r.topics = append(r.topics, t)
	}

	return r, nil
}

func (r *Registry) Topics() []Topic {
	return append([]Topic(nil), r.topics...)
}

func (r *Registry) Lookup(name string) (Topic, bool) {
	i, ok := r.index[strings.ToLower(name)]
	if !ok {
		return Topic{}, false
	}
	return r.topics[i], true
}

func (r *Registry) Len() int { return len(r.topics) }

// MatchKeyword returns the first topic, in declaration order, owning a keyword
// that occurs in text as a substring or as a whole token.
func (r *Registry) MatchKeyword(text string) (Topic, string, bool) {
	text = strings.ToLower(text)
	words := strings.Fields(text)

	for _, t := range r.topics {
		for _, kw := range t.Keywords {
			if strings.Contains(text, kw) || containsToken(words, kw) {
				return t, kw, true
			}
		}
	}

	return Topic{}, "", false
}

func containsToken(words []string, kw string) bool {
	for _, w := range words {
		if w == kw {
			return true
		}
	}
	return false
}
