package domain

import "fmt"

// QuestionSet is an immutable, versioned snapshot of a room's questions.
// Edits produce a new set with a higher version; nothing aliases the caller's slices.
type QuestionSet struct {
	version   int
	questions []Question
}

// NewQuestionSet validates and copies questions into version 1.
func NewQuestionSet(questions []Question) (QuestionSet, error) {
	if len(questions) == 0 {
		return QuestionSet{}, fmt.Errorf("%w: question set is empty", ErrInvalidQuestion)
	}
	copied := make([]Question, len(questions))
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return QuestionSet{}, fmt.Errorf("question %d: %w", i, err)
		}
		copied[i] = q.clone()
	}
	return QuestionSet{version: 1, questions: copied}, nil
}

// Replace returns a new set holding questions at the next version.
func (s QuestionSet) Replace(questions []Question) (QuestionSet, error) {
	next, err := NewQuestionSet(questions)
	if err != nil {
		return QuestionSet{}, err
	}
	next.version = s.version + 1
	return next, nil
}

// Len returns the number of questions.
func (s QuestionSet) Len() int { return len(s.questions) }

// Version returns the edit version, starting at 1.
func (s QuestionSet) Version() int { return s.version }

// At returns a copy of question i.
func (s QuestionSet) At(i int) (Question, bool) {
	if i < 0 || i >= len(s.questions) {
		return Question{}, false
	}
	return s.questions[i].clone(), true
}

// Questions returns a deep copy of every question.
func (s QuestionSet) Questions() []Question {
	out := make([]Question, len(s.questions))
	for i, q := range s.questions {
		out[i] = q.clone()
	}
	return out
}
