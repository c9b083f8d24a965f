// Package splitter chunks finding texts before embedding.
package splitter

import (
	"github.com/tmc/langchaingo/textsplitter"
)

type Splitter struct {
	inner textsplitter.TextSplitter
}

// New builds a recursive-character splitter with the given chunk size and
// overlap.
func New(chunkSize, chunkOverlap int) *Splitter {
	return &Splitter{
		inner: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Chunks splits text into overlapping chunks.
func (s *Splitter) Chunks(text string) ([]string, error) {
	return s.inner.SplitText(text)
}
