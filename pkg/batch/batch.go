// Package batch slices identifiers into groups sized to what a remote API
// accepts in a single call.
package batch

import (
	"fmt"
	"iter"
	"math"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

// Iterator lazily yields consecutive sub-slices of at most entriesPerBatch
// elements. Batches share the backing array of the input.
type Iterator[T any] struct {
	size            int
	currentBatch    int
	data            []T
	entriesPerBatch int
}

// NewIterator returns an Iterator over data, failing when size is not positive.
func NewIterator[T any](data []T, size int) (*Iterator[T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d: %w", size, model.ErrInvalidArgument)
	}

	return &Iterator[T]{
		size:            int(math.Ceil(float64(len(data)) / float64(size))),
		data:            data,
		entriesPerBatch: size,
	}, nil
}

// Size is the total number of batches.
func (s *Iterator[T]) Size() int {
	return s.size
}

func (s *Iterator[T]) HasMore() bool {
	return s.currentBatch < s.size
}

// Next returns the next batch, or nil once the data is exhausted.
func (s *Iterator[T]) Next() []T {
	if s.currentBatch >= s.size {
		return nil
	}

	startingIndex := s.currentBatch * s.entriesPerBatch
	endingIndex := startingIndex + s.entriesPerBatch
	if endingIndex > len(s.data) {
		endingIndex = len(s.data)
	}

	s.currentBatch++
	// Cap the capacity so appending to a batch never overwrites the next one.
	return s.data[startingIndex:endingIndex:endingIndex]
}

// All consumes the remaining batches as a sequence.
func (s *Iterator[T]) All() iter.Seq[[]T] {
	return func(yield func([]T) bool) {
		for s.HasMore() {
			if !yield(s.Next()) {
				return
			}
		}
	}
}

// Chunk eagerly splits data into batches of size elements, the last one
// possibly shorter.
func Chunk[T any](data []T, size int) ([][]T, error) {
	it, err := NewIterator(data, size)
	if err != nil {
		return nil, err
	}

	out := make([][]T, 0, it.Size())
	for b := range it.All() {
		out = append(out, b)
	}
	return out, nil
}
