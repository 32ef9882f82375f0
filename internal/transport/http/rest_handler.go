package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"promptquiz-service/internal/app"
	"promptquiz-service/internal/domain"
)

// UserHeader names the caller on REST requests.
const UserHeader = "X-User-ID"

const maxBody = 1 << 20

// RESTHandler serves the host and participant HTTP routes.
type RESTHandler struct {
	service *app.QuizService
}

func NewRESTHandler(service *app.QuizService) *RESTHandler {
	return &RESTHandler{service: service}
}

// Register mounts the REST routes on mux.
func (h *RESTHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/quiz/generate", h.generate)
	mux.HandleFunc("GET /api/quiz/room/{roomId}", h.room)
	mux.HandleFunc("POST /api/quiz/join/{roomId}", h.join)
	mux.HandleFunc("PUT /api/quiz/room/{roomId}/questions", h.replaceQuestions)
	mux.HandleFunc("POST /api/quiz/room/{roomId}/open", h.open)
	mux.HandleFunc("POST /api/quiz/start/{roomId}", h.start)
	mux.HandleFunc("POST /api/quiz/end/{roomId}", h.end)
	mux.HandleFunc("GET /api/quiz/results/{roomId}", h.results)
	mux.HandleFunc("GET /api/quiz/live/{roomId}", h.live)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

type generateRequest struct {
	Topic        string          `json:"topic"`
	Title        string          `json:"title"`
	NumQuestions int             `json:"numQuestions"`
	TimeLimit    int             `json:"timeLimit"`
	TimeMode     domain.TimeMode `json:"timeMode"`
	Demo         bool            `json:"demo"`
}

type joinRequest struct {
	Name string `json:"name"`
}

type questionsRequest struct {
	Questions []domain.Question `json:"questions"`
}

type quizResponse struct {
	Quiz domain.Session `json:"quiz"`
}

type participantResponse struct {
	Participant domain.Participant `json:"participant"`
}

type liveResponse struct {
	RoomID       string            `json:"roomId"`
	Participants []domain.Standing `json:"participants"`
}

func (h *RESTHandler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := h.service.Generate(r.Context(), app.GenerateRequest{
		HostID:       r.Header.Get(UserHeader),
		Topic:        req.Topic,
		Title:        req.Title,
		NumQuestions: req.NumQuestions,
		TimeLimit:    req.TimeLimit,
		TimeMode:     req.TimeMode,
		Demo:         req.Demo,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quizResponse{Quiz: session})
}

func (h *RESTHandler) room(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Room(r.Context(), r.PathValue("roomId"), r.Header.Get(UserHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizResponse{Quiz: session})
}

func (h *RESTHandler) join(w http.ResponseWriter, r *http.Request) {
	identity := r.Header.Get(UserHeader)
	if identity == "" {
		writeMessage(w, http.StatusBadRequest, UserHeader+" header is required")
		return
	}
	var req joinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.service.Join(r.Context(), r.PathValue("roomId"), identity, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participantResponse{Participant: p})
}

func (h *RESTHandler) replaceQuestions(w http.ResponseWriter, r *http.Request) {
	var req questionsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := h.service.ReplaceQuestions(r.Context(), r.PathValue("roomId"), r.Header.Get(UserHeader), req.Questions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizResponse{Quiz: session})
}

func (h *RESTHandler) open(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Open(r.Context(), r.PathValue("roomId"), r.Header.Get(UserHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizResponse{Quiz: session})
}

func (h *RESTHandler) start(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Start(r.Context(), r.PathValue("roomId"), r.Header.Get(UserHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizResponse{Quiz: session})
}

func (h *RESTHandler) end(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.Terminate(r.Context(), r.PathValue("roomId"), r.Header.Get(UserHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizResponse{Quiz: session})
}

func (h *RESTHandler) results(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.Results(r.Context(), r.PathValue("roomId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *RESTHandler) live(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")
	standings, err := h.service.Live(r.Context(), roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, liveResponse{RoomID: roomID, Participants: standings})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrTopicNotFound),
		errors.Is(err, domain.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNameTaken), errors.Is(err, domain.ErrAlreadyActive),
		errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrStaleSubmission):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidAnswer), errors.Is(err, domain.ErrInvalidQuestion):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		writeMessage(w, status, "internal error")
		return
	}
	writeMessage(w, status, err.Error())
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}
