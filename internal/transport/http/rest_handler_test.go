package http

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"promptquiz-service/internal/domain"
)

func TestRESTHostFlow(t *testing.T) {
	server := newTestServer(t)
	quiz := generateQuiz(t, server, "host-1", 3)
	if quiz.Status != domain.StatusReviewPending {
		t.Fatalf("expected review_pending, got %s", quiz.Status)
	}

	replacement := []domain.Question{
		{Text: "Capital of France?", Options: []string{"Paris", "Rome"}, CorrectAnswer: 0},
		{Text: "2 + 3?", Options: []string{"4", "5", "6"}, CorrectAnswer: 1},
	}
	resp := doRequest(t, server, http.MethodPut, "/api/quiz/room/"+quiz.RoomID+"/questions", "host-1",
		map[string]any{"questions": replacement})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replace: expected 200, got %d", resp.StatusCode)
	}
	var replaced struct {
		Quiz domain.Session `json:"quiz"`
	}
	decodeResponse(t, resp, &replaced)
	if replaced.Quiz.NumQuestions != 2 || replaced.Quiz.QuestionVersion <= quiz.QuestionVersion {
		t.Fatalf("unexpected replaced quiz %+v", replaced.Quiz)
	}

	resp = doRequest(t, server, http.MethodPost, "/api/quiz/room/"+quiz.RoomID+"/open", "host-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open: expected 200, got %d", resp.StatusCode)
	}

	resp = doRequest(t, server, http.MethodPost, "/api/quiz/join/"+quiz.RoomID, "u1", map[string]any{"name": "Alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", resp.StatusCode)
	}

	resp = doRequest(t, server, http.MethodGet, "/api/quiz/room/"+quiz.RoomID, "u1", nil)
	var public struct {
		Quiz domain.Session `json:"quiz"`
	}
	decodeResponse(t, resp, &public)
	if len(public.Quiz.Questions) != 0 {
		t.Fatalf("participants must not see questions")
	}

	resp = doRequest(t, server, http.MethodPost, "/api/quiz/start/"+quiz.RoomID, "host-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", resp.StatusCode)
	}

	resp = doRequest(t, server, http.MethodGet, "/api/quiz/live/"+quiz.RoomID, "host-1", nil)
	var live liveResponse
	decodeResponse(t, resp, &live)
	if len(live.Participants) != 1 || live.Participants[0].Identity != "u1" {
		t.Fatalf("unexpected live standings %+v", live.Participants)
	}

	resp = doRequest(t, server, http.MethodGet, "/api/quiz/results/"+quiz.RoomID, "host-1", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("results before end: expected 409, got %d", resp.StatusCode)
	}

	resp = doRequest(t, server, http.MethodPost, "/api/quiz/end/"+quiz.RoomID, "host-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end: expected 200, got %d", resp.StatusCode)
	}

	resp = doRequest(t, server, http.MethodGet, "/api/quiz/results/"+quiz.RoomID, "host-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("results: expected 200, got %d", resp.StatusCode)
	}
	var results domain.Results
	decodeResponse(t, resp, &results)
	if results.Status != domain.StatusCompleted || results.TotalQuestions != 2 || len(results.Participants) != 1 {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestRESTErrorStatuses(t *testing.T) {
	server := newTestServer(t)
	quiz := generateQuiz(t, server, "host-1", 2)
	room := "/api/quiz/room/" + quiz.RoomID

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		want   int
	}{
		{"unknown room", http.MethodGet, "/api/quiz/room/NOPE", "host-1", nil, http.StatusNotFound},
		{"unknown topic", http.MethodPost, "/api/quiz/generate", "host-1", map[string]any{"topic": "history"}, http.StatusNotFound},
		{"missing topic", http.MethodPost, "/api/quiz/generate", "host-1", map[string]any{}, http.StatusBadRequest},
		{"missing host", http.MethodPost, "/api/quiz/generate", "", map[string]any{"topic": "math"}, http.StatusBadRequest},
		{"join without identity", http.MethodPost, "/api/quiz/join/" + quiz.RoomID, "", map[string]any{"name": "Bob"}, http.StatusBadRequest},
		{"join with short name", http.MethodPost, "/api/quiz/join/" + quiz.RoomID, "u9", map[string]any{"name": "B"}, http.StatusBadRequest},
		{"start by participant", http.MethodPost, "/api/quiz/start/" + quiz.RoomID, "u1", nil, http.StatusForbidden},
		{"start with empty roster", http.MethodPost, "/api/quiz/start/" + quiz.RoomID, "host-1", nil, http.StatusConflict},
		{"bad questions", http.MethodPut, room + "/questions", "host-1", map[string]any{"questions": []map[string]any{{"question": "x", "options": []string{"a"}}}}, http.StatusBadRequest},
		{"live unknown room", http.MethodGet, "/api/quiz/live/NOPE", "host-1", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, server, tc.method, tc.path, tc.user, tc.body)
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
			var body map[string]string
			decodeResponse(t, resp, &body)
			if body["error"] == "" {
				t.Fatalf("expected error body")
			}
		})
	}
}

func TestRESTNameTaken(t *testing.T) {
	server := newTestServer(t)
	quiz := generateQuiz(t, server, "host-1", 2)

	resp := doRequest(t, server, http.MethodPost, "/api/quiz/join/"+quiz.RoomID, "u1", map[string]any{"name": "Alice"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", resp.StatusCode)
	}
	resp = doRequest(t, server, http.MethodPost, "/api/quiz/join/"+quiz.RoomID, "u2", map[string]any{"name": "ALICE"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate name: expected 409, got %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		domain.ErrExpired:                                 http.StatusGone,
		fmt.Errorf("wrap: %w", domain.ErrStaleSubmission): http.StatusConflict,
		domain.ErrAlreadyActive:                           http.StatusConflict,
		domain.ErrParticipantNotFound:                     http.StatusNotFound,
		domain.ErrInvalidAnswer:                           http.StatusBadRequest,
		errors.New("boom"):                                http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Fatalf("%v: expected %d, got %d", err, want, got)
		}
	}
}
