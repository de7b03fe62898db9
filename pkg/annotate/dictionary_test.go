package annotate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testAnnotator(t *testing.T) *DictionaryAnnotator {
	t.Helper()
	annotator, err := NewDictionaryAnnotator([]DictionaryEntry{
		{Phrase: "tomorrow", Collection: CollectionDate, Score: 0.7},
		{Phrase: "tomorrow morning", Collection: CollectionDate, Score: 0.8},
		{Phrase: "main street", Collection: CollectionAddress, Score: 0.6},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return annotator
}

func TestDictionaryAnnotate(t *testing.T) {
	annotator := testAnnotator(t)

	annotations, err := annotator.Annotate(context.Background(), "see you tomorrow morning!")
	require.NoError(t, err)
	require.Len(t, annotations, 2)

	assert.Equal(t, Span{Begin: 8, End: 16}, annotations[0].Span)
	top, ok := annotations[0].TopClassification()
	require.True(t, ok)
	assert.Equal(t, CollectionDate, top.Collection)
	assert.InDelta(t, 0.7, top.Score, 1e-9)

	assert.Equal(t, Span{Begin: 8, End: 24}, annotations[1].Span)
}

func TestDictionaryWordBoundaries(t *testing.T) {
	annotator := testAnnotator(t)

	// "tomorrows" must not match "tomorrow".
	annotations, err := annotator.Annotate(context.Background(), "tomorrows news")
	require.NoError(t, err)
	assert.Empty(t, annotations)

	// Mid-word starts are skipped.
	annotations, err = annotator.Annotate(context.Background(), "xtomorrow")
	require.NoError(t, err)
	assert.Empty(t, annotations)
}

func TestDictionaryNoMatches(t *testing.T) {
	annotator := testAnnotator(t)

	annotations, err := annotator.Annotate(context.Background(), "nothing of note here")
	require.NoError(t, err)
	assert.Empty(t, annotations)
}

func TestDictionaryContextCancelled(t *testing.T) {
	annotator := testAnnotator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := annotator.Annotate(ctx, "see you tomorrow")
	assert.ErrorIs(t, err, context.Canceled)
}
