package batch

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdswords/yet-another-resource-enumerator/pkg/model"
)

func TestNewIterator_RejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -1, -10} {
		_, err := NewIterator([]string{"a"}, size)
		require.ErrorIs(t, err, model.ErrInvalidArgument)

		_, err = Chunk([]string{"a"}, size)
		require.ErrorIs(t, err, model.ErrInvalidArgument)
	}
}

func TestIterator_IterateFlow(t *testing.T) {
	tests := []struct {
		name                               string
		entriesPerBatch                    int
		lengthOfData                       int
		expectedSizeAndNumberOfCallsToNext int
	}{
		{
			name:                               "empty input",
			entriesPerBatch:                    10,
			lengthOfData:                       0,
			expectedSizeAndNumberOfCallsToNext: 0,
		},
		{
			name:                               "1 per batch",
			entriesPerBatch:                    1,
			lengthOfData:                       10,
			expectedSizeAndNumberOfCallsToNext: 10,
		},
		{
			name:                               "divisible batches and requests",
			entriesPerBatch:                    5,
			lengthOfData:                       100,
			expectedSizeAndNumberOfCallsToNext: 20,
		},
		{
			name:                               "indivisible batches and requests",
			entriesPerBatch:                    5,
			lengthOfData:                       94,
			expectedSizeAndNumberOfCallsToNext: 19,
		},
		{
			name:                               "batch larger than input",
			entriesPerBatch:                    100,
			lengthOfData:                       7,
			expectedSizeAndNumberOfCallsToNext: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := make([]string, 0, tc.lengthOfData)
			for i := 0; i < tc.lengthOfData; i++ {
				data = append(data, strconv.Itoa(i))
			}

			it, err := NewIterator(data, tc.entriesPerBatch)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedSizeAndNumberOfCallsToNext, it.Size())

			var rebuilt []string
			numberOfCallsToNext := 0
			for it.HasMore() {
				numberOfCallsToNext++
				b := it.Next()
				if it.HasMore() {
					assert.Len(t, b, tc.entriesPerBatch, "every batch but the last must be full")
				} else {
					assert.LessOrEqual(t, len(b), tc.entriesPerBatch)
					assert.NotEmpty(t, b)
				}
				rebuilt = append(rebuilt, b...)
			}

			assert.Equal(t, tc.expectedSizeAndNumberOfCallsToNext, numberOfCallsToNext)
			assert.Equal(t, len(data), len(rebuilt))
			if len(data) > 0 {
				assert.Equal(t, data, rebuilt)
			}
			assert.Nil(t, it.Next())
		})
	}
}

func TestChunk(t *testing.T) {
	ids := make([]int, 25)
	for i := range ids {
		ids[i] = i
	}

	chunks, err := Chunk(ids, 10)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, chunks[0])
	assert.Equal(t, []int{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, chunks[1])
	assert.Equal(t, []int{20, 21, 22, 23, 24}, chunks[2])

	again, err := Chunk(ids, 10)
	require.NoError(t, err)
	assert.Equal(t, chunks, again)
}

func TestChunk_AppendDoesNotClobberNextBatch(t *testing.T) {
	chunks, err := Chunk([]string{"a", "b", "c", "d"}, 2)
	require.NoError(t, err)

	_ = append(chunks[0], "x")
	assert.Equal(t, []string{"c", "d"}, chunks[1])
}

func TestIterator_AllStopsEarly(t *testing.T) {
	it, err := NewIterator([]int{1, 2, 3, 4, 5}, 2)
	require.NoError(t, err)

	for b := range it.All() {
		assert.Equal(t, []int{1, 2}, b)
		break
	}
	assert.True(t, it.HasMore())
	assert.Equal(t, []int{3, 4}, it.Next())
}
