package annotate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/suggestkit/suggestkit/pkg/triematch"
)

// DictionaryEntry is one phrase the dictionary annotator recognizes.
type DictionaryEntry struct {
	// Phrase is the literal text to match.
	Phrase string

	// Collection is the classification collection emitted for the phrase.
	Collection string

	// Score is the fixed classification confidence for the phrase.
	Score float64
}

// DictionaryAnnotator recognizes a fixed phrase list via double-array trie
// prefix matching. Matches must start and end on word boundaries. It is
// immutable after construction and safe for concurrent use.
type DictionaryAnnotator struct {
	trie    *triematch.Trie
	entries []DictionaryEntry
	logger  *zap.Logger
}

// NewDictionaryAnnotator builds the phrase trie. Entry order is preserved in
// match ids.
func NewDictionaryAnnotator(entries []DictionaryEntry, logger *zap.Logger) (*DictionaryAnnotator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	trieEntries := make([]triematch.Entry, len(entries))
	for i, entry := range entries {
		trieEntries[i] = triematch.Entry{Key: entry.Phrase, ID: i}
	}
	trie, err := triematch.Build(trieEntries, triematch.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("building dictionary trie: %w", err)
	}
	return &DictionaryAnnotator{trie: trie, entries: entries, logger: logger}, nil
}

// Annotate scans text for dictionary phrases and returns one annotation per
// occurrence, in increasing span order.
func (d *DictionaryAnnotator) Annotate(ctx context.Context, text string) ([]Annotation, error) {
	var annotations []Annotation
	for i := 0; i < len(text); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !isWordStart(text, i) {
			continue
		}
		matches, err := d.trie.FindAllPrefixMatches(text[i:])
		if err != nil {
			return nil, fmt.Errorf("dictionary lookup at offset %d: %w", i, err)
		}
		for _, match := range matches {
			if !isWordEnd(text, i+match.Length) {
				continue
			}
			entry := d.entries[match.ID]
			annotations = append(annotations, Annotation{
				Span: Span{Begin: i, End: i + match.Length},
				Classifications: []ClassificationResult{
					{Collection: entry.Collection, Score: entry.Score},
				},
			})
		}
	}
	return annotations, nil
}

func isWordByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c >= 0x80 // treat multi-byte runes as word bytes
}

func isWordStart(text string, i int) bool {
	if !isWordByte(text[i]) {
		return false
	}
	return i == 0 || !isWordByte(text[i-1])
}

func isWordEnd(text string, end int) bool {
	return end >= len(text) || !isWordByte(text[end])
}
