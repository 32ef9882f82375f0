package domain

import (
	"fmt"
	"time"
)

// DemoHost is the hostId sentinel for self-driving practice sessions.
const DemoHost = "demo"

// Status is the lifecycle position of a quiz room.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusReviewPending Status = "review_pending"
	StatusWaiting       Status = "waiting"
	StatusActive        Status = "active"
	StatusCompleted     Status = "completed"
	StatusExpired       Status = "expired"
)

var statusOrder = map[Status]int{
	StatusDraft:         0,
	StatusReviewPending: 1,
	StatusWaiting:       2,
	StatusActive:        3,
	StatusCompleted:     4,
	StatusExpired:       5,
}

// AtLeast reports whether s is at or past other on the lifecycle sequence.
// Expired sorts after every other status.
func (s Status) AtLeast(other Status) bool {
	return statusOrder[s] >= statusOrder[other]
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// CanTransition reports whether moving from s to next keeps the status monotonic.
// Expired is reachable from any non-terminal status; nothing leaves a terminal status.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusExpired {
		return true
	}
	return statusOrder[next] > statusOrder[s]
}

// TimeMode selects the scope of the time limit.
type TimeMode string

const (
	TimePerQuestion TimeMode = "perQuestion"
	TimePerQuiz     TimeMode = "perQuiz"
)

// Valid reports whether m is a known mode.
func (m TimeMode) Valid() bool {
	return m == TimePerQuestion || m == TimePerQuiz
}

// ConnectionState tracks whether a participant currently has a live connection.
type ConnectionState string

const (
	Connected    ConnectionState = "connected"
	Disconnected ConnectionState = "disconnected"
)

// Question models an MCQ question with exactly one correct option.
type Question struct {
	Text          string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer int      `json:"correctAnswer" yaml:"correctAnswer"`
}

// Validate checks the question has text, at least two options and an in-range answer.
func (q Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("%w: empty question text", ErrInvalidQuestion)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: %q needs at least two options", ErrInvalidQuestion, q.Text)
	}
	if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
		return fmt.Errorf("%w: %q correct answer %d out of range", ErrInvalidQuestion, q.Text, q.CorrectAnswer)
	}
	return nil
}

func (q Question) clone() Question {
	q.Options = append([]string(nil), q.Options...)
	return q
}

// Participant is a roster entry. Participants are never removed, only disconnected.
type Participant struct {
	Identity        string          `json:"userId"`
	DisplayName     string          `json:"name"`
	JoinedAt        time.Time       `json:"joinedAt"`
	JoinOrder       int             `json:"joinOrder"`
	ConnectionState ConnectionState `json:"connectionState"`
}

// AnswerSubmission models the answer signal from clients.
// A nil SelectedOption means "no answer".
type AnswerSubmission struct {
	QuestionIndex  int
	SelectedOption *int
	TimeSpentMs    int64
}

// Answer is an immutable ledger record.
type Answer struct {
	ParticipantID  string    `json:"participantId"`
	QuestionIndex  int       `json:"questionIndex"`
	SelectedOption *int      `json:"selectedOption"`
	IsCorrect      bool      `json:"isCorrect"`
	TimeSpentMs    int64     `json:"timeSpentMs"`
	AutoSubmitted  bool      `json:"autoSubmitted"`
	RecordedAt     time.Time `json:"recordedAt"`
}

// ParticipantView is a roster entry enriched with its running score.
type ParticipantView struct {
	Identity        string          `json:"userId"`
	DisplayName     string          `json:"name"`
	Score           int             `json:"score"`
	TimeTaken       int64           `json:"timeTaken"`
	Answered        int             `json:"answered"`
	ConnectionState ConnectionState `json:"connectionState"`
	JoinedAt        time.Time       `json:"joinedAt"`
}

// Standing is one ranked row of a leaderboard.
type Standing struct {
	Rank        int    `json:"rank"`
	Identity    string `json:"userId"`
	DisplayName string `json:"name"`
	Score       int    `json:"score"`
	TimeTaken   int64  `json:"timeTaken"`
	Answered    int    `json:"answered"`
}

// Session is the snapshot of a quiz room handed to collaborators and clients.
type Session struct {
	RoomID          string            `json:"roomId"`
	Title           string            `json:"title"`
	Topic           string            `json:"topic"`
	Status          Status            `json:"status"`
	TimeMode        TimeMode          `json:"timeMode"`
	TimeLimit       int               `json:"timeLimit"`
	HostID          string            `json:"hostId"`
	Questions       []Question        `json:"questions,omitempty"`
	QuestionVersion int               `json:"questionVersion"`
	NumQuestions    int               `json:"numQuestions"`
	CurrentQuestion int               `json:"currentQuestion"`
	Participants    []ParticipantView `json:"participants"`
	Standings       []Standing        `json:"standings,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	StartedAt       *time.Time        `json:"startedAt,omitempty"`
	EndedAt         *time.Time        `json:"endedAt,omitempty"`
	Version         int64             `json:"version"`
}

// IsDemo reports whether the session is self-driving.
func (s Session) IsDemo() bool {
	return s.HostID == DemoHost
}

// Public strips question content so the snapshot can go to participants.
func (s Session) Public() Session {
	s.Questions = nil
	return s
}

// Results is the leaderboard view served to hosts and finished participants.
type Results struct {
	RoomID         string     `json:"roomId"`
	Title          string     `json:"title"`
	Status         Status     `json:"status"`
	TotalQuestions int        `json:"totalQuestions"`
	Participants   []Standing `json:"participants"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
}
