package domain

import "errors"

var (
	// ErrNotFound is returned when a roomId does not name a known room.
	ErrNotFound = errors.New("quiz room not found")
	// ErrInvalidState indicates the operation is not permitted in the room's current status.
	ErrInvalidState = errors.New("operation not permitted in current quiz state")
	// ErrNameTaken is returned when another identity already uses the display name.
	ErrNameTaken = errors.New("display name already taken in this room")
	// ErrAlreadyActive rejects a brand-new identity joining a room that has started.
	ErrAlreadyActive = errors.New("quiz already started")
	// ErrStaleSubmission is returned for answers to a question that is not current.
	ErrStaleSubmission = errors.New("answer is for a question that is not active")
	// ErrExpired indicates the room TTL elapsed before completion.
	ErrExpired = errors.New("quiz room expired")
	// ErrForbidden is returned when a non-host tries to control a room.
	ErrForbidden = errors.New("only the host may perform this action")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in quiz")
	// ErrInvalidName rejects empty or oversized display names.
	ErrInvalidName = errors.New("invalid display name")
	// ErrInvalidAnswer indicates a submitted option index is out of range.
	ErrInvalidAnswer = errors.New("selected option out of range")
	// ErrInvalidQuestion indicates a malformed question or question set.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrTopicNotFound indicates the question bank has nothing for a topic.
	ErrTopicNotFound = errors.New("no questions available for topic")
	// ErrRoomExists is returned by stores when a roomId is already registered.
	ErrRoomExists = errors.New("quiz room already exists")
	// ErrInvalidRequest covers malformed generation parameters.
	ErrInvalidRequest = errors.New("invalid request")
)
