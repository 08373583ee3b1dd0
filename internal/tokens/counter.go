package tokens

import (
	"regexp"

	"github.com/tiktoken-go/tokenizer"
)

// Counter turns generated text into a token count.
type Counter interface {
	Count(text string) int
}

// ForModel picks the most accurate counter available for a model: the
// encoding registered for the model name, cl100k_base when the model is
// unrecognized, or the word/punctuation heuristic when no encoding can
// be loaded at all.
func ForModel(model string) Counter {
	if codec, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
		return &encodingCounter{codec: codec}
	}
	if codec, err := tokenizer.Get(tokenizer.Cl100kBase); err == nil {
		return &encodingCounter{codec: codec}
	}
	return Heuristic()
}

// Heuristic returns the approximate counter that splits text into
// word-like runs and single punctuation marks. Its counts are
// deterministic but not tied to any model vocabulary.
func Heuristic() Counter {
	return heuristicCounter{}
}

type encodingCounter struct {
	codec tokenizer.Codec
}

func (c *encodingCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return heuristicCounter{}.Count(text)
	}
	return len(ids)
}

var wordPattern = regexp.MustCompile(`\w+|[^\s\w]`)

type heuristicCounter struct{}

func (heuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(wordPattern.FindAllString(text, -1))
}
