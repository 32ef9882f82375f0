package domain

import "time"

// Event names on the room channel.
const (
	EventJoinQuiz          = "join-quiz"
	EventStartQuiz         = "start-quiz"
	EventSubmitAnswer      = "submit-answer"
	EventQuizState         = "quiz-state"
	EventParticipantJoined = "participant-joined"
	EventQuizStarted       = "quiz-started"
	EventQuestion          = "question"
	EventTimer             = "timer"
	EventAnswerResult      = "answer-result"
	EventQuizCompleted     = "quiz-completed"
	EventError             = "error"
)

// Event is one server-to-client message.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type QuizStatePayload struct {
	Quiz Session `json:"quiz"`
}

type ParticipantsPayload struct {
	Participants []ParticipantView `json:"participants"`
}

type QuizStartedPayload struct{}

type QuestionPayload struct {
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	QuestionIndex  int      `json:"questionIndex"`
	TimeLimit      int      `json:"timeLimit"`
	TimeRemaining  int      `json:"timeRemaining"`
	TotalQuestions int      `json:"totalQuestions"`
}

type TimerPayload struct {
	QuestionIndex int `json:"questionIndex"`
	TimeRemaining int `json:"timeRemaining"`
}

type AnswerResultPayload struct {
	QuestionIndex  int  `json:"questionIndex"`
	SelectedAnswer *int `json:"selectedAnswer"`
	Correct        bool `json:"correct"`
	CorrectAnswer  int  `json:"correctAnswer"`
	Score          int  `json:"score"`
}

type QuizCompletedPayload struct {
	Participants   []Standing `json:"participants"`
	TotalQuestions int        `json:"totalQuestions"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Lifecycle event types published outside the process.
const (
	LifecycleCreated   = "RoomCreated"
	LifecycleOpened    = "RoomOpened"
	LifecycleStarted   = "QuizStarted"
	LifecycleCompleted = "QuizCompleted"
	LifecycleExpired   = "RoomExpired"
)

// LifecycleEvent records a status change for downstream consumers.
type LifecycleEvent struct {
	ID         string    `json:"eventId"`
	Type       string    `json:"eventType"`
	RoomID     string    `json:"roomId"`
	Status     Status    `json:"status"`
	OccurredAt time.Time `json:"timestamp"`
	Payload    any       `json:"payload,omitempty"`
}
