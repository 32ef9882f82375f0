package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"promptquiz-service/internal/app"
	"promptquiz-service/internal/domain"
	"promptquiz-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	service := app.NewQuizService(memory.NewRoomStore(), memory.NewBankRepository(
		memory.NewStaticBankLoader(map[string][]domain.Question{"math": sampleQuestions()}), time.Minute))
	t.Cleanup(service.Close)

	mux := http.NewServeMux()
	NewRESTHandler(service).Register(mux)
	mux.HandleFunc("GET /ws", NewWSHandler(service, DefaultLimits()).ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestWebSocketQuizFlow(t *testing.T) {
	server := newTestServer(t)
	quiz := generateQuiz(t, server, "host-1", 1)

	conn := dial(t, server, "u1")
	send(t, conn, domain.EventJoinQuiz, map[string]any{"roomId": quiz.RoomID, "participantName": "Alice"})

	_, state := readUntil(t, conn, domain.EventQuizState)
	var statePayload struct {
		Quiz domain.Session `json:"quiz"`
	}
	decodePayload(t, state, &statePayload)
	if statePayload.Quiz.RoomID != quiz.RoomID {
		t.Fatalf("expected room %s, got %s", quiz.RoomID, statePayload.Quiz.RoomID)
	}
	if len(statePayload.Quiz.Questions) != 0 {
		t.Fatalf("participant snapshot must not carry questions")
	}

	resp := doRequest(t, server, http.MethodPost, "/api/quiz/start/"+quiz.RoomID, "host-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", resp.StatusCode)
	}

	readUntil(t, conn, domain.EventQuizStarted)
	_, raw := readUntil(t, conn, domain.EventQuestion)
	var question domain.QuestionPayload
	decodePayload(t, raw, &question)
	if question.QuestionIndex != 0 || question.TotalQuestions != 1 {
		t.Fatalf("unexpected question payload %+v", question)
	}

	correct := quiz.Questions[0].CorrectAnswer
	send(t, conn, domain.EventSubmitAnswer, map[string]any{
		"roomId":         quiz.RoomID,
		"questionIndex":  0,
		"selectedAnswer": correct,
		"timeSpent":      1200,
	})

	_, raw = readUntil(t, conn, domain.EventAnswerResult)
	var result domain.AnswerResultPayload
	decodePayload(t, raw, &result)
	if !result.Correct || result.CorrectAnswer != correct || result.Score != 1 {
		t.Fatalf("unexpected answer result %+v", result)
	}

	_, raw = readUntil(t, conn, domain.EventQuizCompleted)
	var completed domain.QuizCompletedPayload
	decodePayload(t, raw, &completed)
	if len(completed.Participants) != 1 || completed.Participants[0].Identity != "u1" {
		t.Fatalf("unexpected standings %+v", completed.Participants)
	}
}

func TestWebSocketErrorsKeepConnectionOpen(t *testing.T) {
	server := newTestServer(t)
	quiz := generateQuiz(t, server, "host-1", 2)

	conn := dial(t, server, "u1")
	send(t, conn, domain.EventSubmitAnswer, map[string]any{"roomId": "NOPE", "questionIndex": 0})
	_, raw := readUntil(t, conn, domain.EventError)
	var payload domain.ErrorPayload
	decodePayload(t, raw, &payload)
	if payload.Message != domain.ErrNotFound.Error() {
		t.Fatalf("unexpected error message %q", payload.Message)
	}

	send(t, conn, "bogus", map[string]any{})
	readUntil(t, conn, domain.EventError)

	send(t, conn, domain.EventJoinQuiz, map[string]any{"roomId": quiz.RoomID, "participantName": "Alice"})
	readUntil(t, conn, domain.EventQuizState)
}

func TestWebSocketTruncatedFramesKeepConnectionOpen(t *testing.T) {
	server := newTestServer(t)
	quiz := generateQuiz(t, server, "host-1", 2)

	conn := dial(t, server, "u1")
	for _, frame := range []string{"", `{"type":`, "   "} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("write %q: %v", frame, err)
		}
		_, raw := readUntil(t, conn, domain.EventError)
		var payload domain.ErrorPayload
		decodePayload(t, raw, &payload)
		if payload.Message != "malformed message" {
			t.Fatalf("frame %q: unexpected error message %q", frame, payload.Message)
		}
	}

	send(t, conn, domain.EventJoinQuiz, map[string]any{"roomId": quiz.RoomID, "participantName": "Alice"})
	readUntil(t, conn, domain.EventQuizState)
}

func TestWebSocketStartRequiresHost(t *testing.T) {
	server := newTestServer(t)
	quiz := generateQuiz(t, server, "host-1", 2)

	player := dial(t, server, "u1")
	send(t, player, domain.EventJoinQuiz, map[string]any{"roomId": quiz.RoomID, "participantName": "Alice"})
	readUntil(t, player, domain.EventQuizState)

	send(t, player, domain.EventStartQuiz, map[string]any{"roomId": quiz.RoomID})
	_, raw := readUntil(t, player, domain.EventError)
	var payload domain.ErrorPayload
	decodePayload(t, raw, &payload)
	if payload.Message != domain.ErrForbidden.Error() {
		t.Fatalf("unexpected error message %q", payload.Message)
	}

	host := dial(t, server, "host-1")
	send(t, host, domain.EventStartQuiz, map[string]any{"roomId": quiz.RoomID})
	readUntil(t, host, domain.EventQuizStarted)
	readUntil(t, player, domain.EventQuestion)
}

func TestWebSocketDisconnectMarksParticipant(t *testing.T) {
	server := newTestServer(t)
	quiz := generateQuiz(t, server, "host-1", 2)

	conn := dial(t, server, "u1")
	send(t, conn, domain.EventJoinQuiz, map[string]any{"roomId": quiz.RoomID, "participantName": "Alice"})
	readUntil(t, conn, domain.EventQuizState)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		var body struct {
			Quiz domain.Session `json:"quiz"`
		}
		resp := doRequest(t, server, http.MethodGet, "/api/quiz/room/"+quiz.RoomID, "host-1", nil)
		decodeResponse(t, resp, &body)
		if len(body.Quiz.Participants) == 1 && body.Quiz.Participants[0].ConnectionState == domain.Disconnected {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("participant never marked disconnected: %+v", body.Quiz.Participants)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func dial(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil skips events until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, expect string) (string, json.RawMessage) {
	t.Helper()
	for {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", expect, err)
		}
		if msg.Type == expect {
			return msg.Type, msg.Payload
		}
	}
}

func decodePayload(t *testing.T, raw json.RawMessage, v any) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
}

func generateQuiz(t *testing.T, server *httptest.Server, hostID string, n int) domain.Session {
	t.Helper()
	resp := doRequest(t, server, http.MethodPost, "/api/quiz/generate", hostID, map[string]any{
		"topic":        "math",
		"numQuestions": n,
		"timeLimit":    30,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("generate: expected 201, got %d", resp.StatusCode)
	}
	var body struct {
		Quiz domain.Session `json:"quiz"`
	}
	decodeResponse(t, resp, &body)
	if len(body.Quiz.Questions) != n {
		t.Fatalf("host snapshot should carry %d questions, got %d", n, len(body.Quiz.Questions))
	}
	return body.Quiz
}

func doRequest(t *testing.T, server *httptest.Server, method, path, userID string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if userID != "" {
		req.Header.Set(UserHeader, userID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func sampleQuestions() []domain.Question {
	questions := make([]domain.Question, 5)
	for i := range questions {
		questions[i] = domain.Question{
			Text:          fmt.Sprintf("What is %d + %d?", i+1, i+1),
			Options:       []string{"0", fmt.Sprint(2 * (i + 1)), "100", "-1"},
			CorrectAnswer: 1,
		}
	}
	return questions
}
