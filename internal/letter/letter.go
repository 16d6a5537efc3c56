package letter

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// Kind classifies a paragraph of the letter
type Kind string

const (
	KindQuestion  Kind = "question"
	KindSignature Kind = "signature"
	KindBody      Kind = "body"
)

var (
	questionMarkers  = []string{"Quieres ser mi novia"}
	signatureMarkers = []string{"Con todo mi amor", "Tu Juan"}
)

// Paragraph is one block of the letter
type Paragraph struct {
	Text string `json:"text"`
	Kind Kind   `json:"kind"`
}

// Letter is the special message shown on the proposal page
type Letter struct {
	Paragraphs []Paragraph `json:"paragraphs"`
}

// Parse splits text on blank lines and classifies every non-empty paragraph
func Parse(text string) Letter {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r", ""))

	letter := Letter{Paragraphs: []Paragraph{}}
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		letter.Paragraphs = append(letter.Paragraphs, Paragraph{Text: block, Kind: classify(block)})
	}
	return letter
}

func classify(paragraph string) Kind {
	for _, marker := range questionMarkers {
		if strings.Contains(paragraph, marker) {
			return KindQuestion
		}
	}
	for _, marker := range signatureMarkers {
		if strings.Contains(paragraph, marker) {
			return KindSignature
		}
	}
	return KindBody
}

// Load reads and parses the letter at path. A missing or blank file yields an empty letter.
func Load(path string) (Letter, error) {
	if path == "" {
		return Parse(""), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug().Str("path", path).Msg("Letter file not found, serving the empty letter")
		return Parse(""), nil
	}
	if err != nil {
		return Letter{}, fmt.Errorf("failed to read letter: %w", err)
	}
	return Parse(string(data)), nil
}
