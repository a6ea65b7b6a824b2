package topic

import (
	log "log/slog"
	"regexp"
)

type operatorPatterns struct {
	topic    string
	patterns []*regexp.Regexp
}

// Fixed order: addition, subtraction, multiplication, division.
var mathPatterns = []operatorPatterns{
	{"addition", []*regexp.Regexp{
		regexp.MustCompile(`\d+\s*\+\s*\d+`),
		regexp.MustCompile(`\+`),
	}},
	{"subtraction", []*regexp.Regexp{
		regexp.MustCompile(`\d+\s*[-−]\s*\d+`),
		regexp.MustCompile(`[-−]`),
	}},
	{"multiplication", []*regexp.Regexp{
		regexp.MustCompile(`\d+\s*[×x*·]\s*\d+`),
		regexp.MustCompile(`[×*]`),
	}},
	{"division", []*regexp.Regexp{
		regexp.MustCompile(`\d+\s*[÷/:]\s*\d+`),
		regexp.MustCompile(`[÷/]`),
	}},
}

type Classifier struct {
	registry *Registry
}

func NewClassifier(r *Registry) *Classifier {
	return &Classifier{registry: r}
}

// Classify maps free text to a topic name. Keywords are tried first; the
// operator patterns catch worksheets that are mostly digits and symbols.
func (c *Classifier) Classify(text string) (string, bool) {
	if text == "" {
		return "", false
	}

	if t, kw, ok := c.registry.MatchKeyword(text); ok {
		log.Debug("Topic matched keyword", "topic", t.Name, "keyword", kw)
		return t.Name, true
	}

	for _, op := range mathPatterns {
		if _, ok := c.registry.Lookup(op.topic); !ok {
			continue
		}
		for _, re := range op.patterns {
			if re.MatchString(text) {
				log.Debug("Topic matched pattern", "topic", op.topic, "pattern", re.String())
				return op.topic, true
			}
		}
	}

	return "", false
}
