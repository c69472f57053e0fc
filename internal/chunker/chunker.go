package chunker

import (
	"errors"
	"math"
	"strings"

	"github.com/dgallion1/docgloss/internal/doctree"
)

var ErrInvalidSize = errors.New("chunker: words per unit and units must be positive and at most MaxChunkWords together")

// MaxChunkWords bounds wordsPerUnit*units.
const MaxChunkWords = math.MaxInt32

// Config controls chunk sizing. A unit is a page-equivalent of words.
type Config struct {
	WordsPerUnit int
	Units        int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WordsPerUnit: 500,
		Units:        4,
	}
}

// Limit is the maximum number of words in one chunk.
func (c Config) Limit() int {
	return c.WordsPerUnit * c.Units
}

// Chunk splits text on whitespace runs and groups the words into chunks of
// wordsPerUnit*units words. The last chunk holds the remainder.
func Chunk(text string, wordsPerUnit, units int) ([]doctree.Chunk, error) {
	if wordsPerUnit <= 0 || units <= 0 || wordsPerUnit > MaxChunkWords/units {
		return nil, ErrInvalidSize
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return []doctree.Chunk{}, nil
	}

	limit := wordsPerUnit * units
	chunks := make([]doctree.Chunk, 0, (len(words)-1)/limit+1)
	for start := 0; start < len(words); start += limit {
		end := start + min(limit, len(words)-start)
		chunks = append(chunks, doctree.Chunk{
			Index:     len(chunks),
			Text:      strings.Join(words[start:end], " "),
			WordStart: start,
			Words:     end - start,
		})
	}
	return chunks, nil
}

// ChunkWith is Chunk using a Config.
func ChunkWith(text string, cfg Config) ([]doctree.Chunk, error) {
	return Chunk(text, cfg.WordsPerUnit, cfg.Units)
}
