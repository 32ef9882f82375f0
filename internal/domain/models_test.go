package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitionsAreMonotonic(t *testing.T) {
	assert.True(t, StatusDraft.CanTransition(StatusReviewPending))
	assert.True(t, StatusReviewPending.CanTransition(StatusWaiting))
	assert.True(t, StatusWaiting.CanTransition(StatusActive))
	assert.True(t, StatusActive.CanTransition(StatusCompleted))
	assert.True(t, StatusDraft.CanTransition(StatusActive), "demo rooms skip forward")

	assert.False(t, StatusActive.CanTransition(StatusWaiting))
	assert.False(t, StatusWaiting.CanTransition(StatusWaiting))
	assert.False(t, StatusCompleted.CanTransition(StatusExpired))
	assert.False(t, StatusExpired.CanTransition(StatusActive))

	for _, s := range []Status{StatusDraft, StatusReviewPending, StatusWaiting, StatusActive} {
		assert.True(t, s.CanTransition(StatusExpired), "expired reachable from %s", s)
	}
}

func TestQuestionValidate(t *testing.T) {
	ok := Question{Text: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: 1}
	require.NoError(t, ok.Validate())

	cases := []Question{
		{Text: "", Options: []string{"a", "b"}},
		{Text: "one option", Options: []string{"a"}},
		{Text: "bad index", Options: []string{"a", "b"}, CorrectAnswer: 2},
		{Text: "negative", Options: []string{"a", "b"}, CorrectAnswer: -1},
	}
	for _, q := range cases {
		err := q.Validate()
		assert.True(t, errors.Is(err, ErrInvalidQuestion), "%q: %v", q.Text, err)
	}
}

func TestQuestionSetIsImmutableSnapshot(t *testing.T) {
	source := []Question{{Text: "q", Options: []string{"a", "b"}, CorrectAnswer: 0}}
	set, err := NewQuestionSet(source)
	require.NoError(t, err)

	source[0].Options[0] = "mutated"
	q, ok := set.At(0)
	require.True(t, ok)
	assert.Equal(t, "a", q.Options[0])

	q.Options[1] = "also mutated"
	again, _ := set.At(0)
	assert.Equal(t, "b", again.Options[1])

	next, err := set.Replace([]Question{{Text: "r", Options: []string{"x", "y", "z"}, CorrectAnswer: 2}})
	require.NoError(t, err)
	assert.Equal(t, 1, set.Version())
	assert.Equal(t, 2, next.Version())
	assert.Equal(t, "q", set.Questions()[0].Text)

	_, err = set.Replace(nil)
	assert.ErrorIs(t, err, ErrInvalidQuestion)
}
