package brain

import (
	"strings"
	"unicode"
)

// Classification is the tagged result of looking at one chunk's output:
// Found carries the text forward, NotFound drops it before the reduce step.
type Classification struct {
	Found bool
	Text  string
}

func Found(text string) Classification { return Classification{Found: true, Text: text} }

func NotFound() Classification { return Classification{} }

// Classifier decides whether a chunk-level output carries content.
type Classifier interface {
	Classify(text string) Classification
}

type ClassifierFunc func(text string) Classification

func (f ClassifierFunc) Classify(text string) Classification { return f(text) }

// KeepNonEmpty keeps every partial that has any text at all.
var KeepNonEmpty = ClassifierFunc(func(text string) Classification {
	text = strings.TrimSpace(text)
	if text == "" {
		return NotFound()
	}
	return Found(text)
})

// MarkerClassifier drops outputs whose first line is the agreed "nothing
// here" token. The prompt asks the model to answer with the token alone;
// decoration such as bold, quotes or a trailing period is ignored, and so
// is any explanation after the first line.
type MarkerClassifier struct {
	Marker string
}

func (c MarkerClassifier) Classify(text string) Classification {
	text = strings.TrimSpace(text)
	if text == "" {
		return NotFound()
	}
	first, _, _ := strings.Cut(text, "\n")
	if normalizeMarker(first) == normalizeMarker(c.Marker) {
		return NotFound()
	}
	return Found(text)
}

func normalizeMarker(s string) string {
	s = strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	return strings.ToUpper(s)
}

// PollClassifier drops partials that decode to the "no votable topic"
// error object. Anything else, even malformed JSON, is kept so the reduce
// step or the extractor gets to judge it.
var PollClassifier = ClassifierFunc(func(text string) Classification {
	text = strings.TrimSpace(text)
	if text == "" {
		return NotFound()
	}
	if res, err := ExtractPoll(text); err == nil && res.Proposal == nil {
		return NotFound()
	}
	return Found(text)
})
