package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"promptquiz-service/internal/app"
	"promptquiz-service/internal/domain"
)

const (
	sendBuffer   = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	maxMessage   = 4096
	opTimeout    = 5 * time.Second
)

// Limits bounds how fast a single connection may send messages.
type Limits struct {
	Rate  float64
	Burst int
}

func DefaultLimits() Limits {
	return Limits{Rate: 10, Burst: 20}
}

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	limits   Limits
}

func NewWSHandler(service *app.QuizService, limits Limits) *WSHandler {
	if limits.Rate <= 0 || limits.Burst <= 0 {
		limits = DefaultLimits()
	}
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		limits: limits,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	RoomID          string `json:"roomId"`
	ParticipantName string `json:"participantName"`
}

type startPayload struct {
	RoomID string `json:"roomId"`
}

type submitPayload struct {
	RoomID         string `json:"roomId"`
	QuestionIndex  *int   `json:"questionIndex"`
	SelectedAnswer *int   `json:"selectedAnswer"`
	TimeSpent      int64  `json:"timeSpent"`
}

// wsClient is one websocket connection. It may hold subscriptions on several
// rooms; all of them feed the single writer goroutine.
type wsClient struct {
	h        *WSHandler
	conn     *websocket.Conn
	identity string
	limiter  *rate.Limiter

	send chan domain.Event
	done chan struct{}

	mu   sync.Mutex
	subs map[string]*app.Subscription
	wg   sync.WaitGroup
}

// ServeWS upgrades HTTP requests to websockets and wires them into the quiz use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("userId")
	if identity == "" {
		identity = "guest-" + uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	c := &wsClient{
		h:        h,
		conn:     conn,
		identity: identity,
		limiter:  rate.NewLimiter(rate.Limit(h.limits.Rate), h.limits.Burst),
		send:     make(chan domain.Event, sendBuffer),
		done:     make(chan struct{}),
		subs:     make(map[string]*app.Subscription),
	}
	log.Debug().Str("identity", identity).Msg("ws connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	c.readLoop()

	close(c.done)
	c.mu.Lock()
	for _, sub := range c.subs {
		sub.Cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
	close(c.send)
	<-writerDone
	log.Debug().Str("identity", identity).Msg("ws disconnected")
}

func (c *wsClient) readLoop() {
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var inbound inboundMessage
		if err := c.conn.ReadJSON(&inbound); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			// Empty and truncated frames surface as io.ErrUnexpectedEOF; a closed
			// socket surfaces as a CloseError or a net error instead.
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
				c.fail(errors.New("malformed message"))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("identity", c.identity).Msg("ws read error")
			}
			return
		}
		if !c.limiter.Allow() {
			c.fail(errors.New("rate limit exceeded"))
			continue
		}
		c.dispatch(inbound)
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(evt); err != nil {
				log.Debug().Err(err).Str("identity", c.identity).Msg("ws write error")
				c.conn.Close()
				c.discard()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				c.discard()
				return
			}
		}
	}
}

// discard drains the send queue after the connection broke so forwarders
// never block on a dead writer.
func (c *wsClient) discard() {
	for range c.send {
	}
}

func (c *wsClient) dispatch(inbound inboundMessage) {
	var err error
	switch inbound.Type {
	case domain.EventJoinQuiz:
		var p joinPayload
		if err = decode(inbound.Payload, &p); err == nil {
			err = c.join(p)
		}
	case domain.EventStartQuiz:
		var p startPayload
		if err = decode(inbound.Payload, &p); err == nil {
			err = c.start(p)
		}
	case domain.EventSubmitAnswer:
		var p submitPayload
		if err = decode(inbound.Payload, &p); err == nil {
			err = c.submit(p)
		}
	default:
		err = errors.New("unsupported message type")
	}
	if err != nil {
		c.fail(err)
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.New("invalid payload")
	}
	return nil
}

func (c *wsClient) join(p joinPayload) error {
	if p.RoomID == "" {
		return errors.New("roomId is required")
	}
	ctx, cancel := c.ctx()
	defer cancel()

	if c.subscribed(p.RoomID) {
		if _, err := c.h.service.Join(ctx, p.RoomID, c.identity, p.ParticipantName); err != nil {
			return err
		}
		session, err := c.h.service.Room(ctx, p.RoomID, "")
		if err != nil {
			return err
		}
		c.push(domain.Event{Type: domain.EventQuizState, Payload: domain.QuizStatePayload{Quiz: session}})
		return nil
	}

	sub, _, err := c.h.service.JoinAndSubscribe(ctx, p.RoomID, c.identity, p.ParticipantName)
	if err != nil {
		return err
	}
	c.track(sub)
	return nil
}

// start also subscribes the host so it receives the room events it triggers.
func (c *wsClient) start(p startPayload) error {
	if p.RoomID == "" {
		return errors.New("roomId is required")
	}
	ctx, cancel := c.ctx()
	defer cancel()

	if !c.subscribed(p.RoomID) {
		sub, err := c.h.service.Subscribe(ctx, p.RoomID, c.identity)
		if err != nil {
			return err
		}
		c.track(sub)
	}
	_, err := c.h.service.Start(ctx, p.RoomID, c.identity)
	return err
}

func (c *wsClient) submit(p submitPayload) error {
	if p.RoomID == "" || p.QuestionIndex == nil {
		return errors.New("roomId and questionIndex are required")
	}
	ctx, cancel := c.ctx()
	defer cancel()
	_, err := c.h.service.SubmitAnswer(ctx, p.RoomID, c.identity, domain.AnswerSubmission{
		QuestionIndex:  *p.QuestionIndex,
		SelectedOption: p.SelectedAnswer,
		TimeSpentMs:    p.TimeSpent,
	})
	return err
}

func (c *wsClient) subscribed(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[roomID]
	return ok
}

// track forwards a subscription's events to the writer until the subscription
// ends or the connection closes.
func (c *wsClient) track(sub *app.Subscription) {
	c.mu.Lock()
	c.subs[sub.RoomID()] = sub
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.untrack(sub)
		for evt := range sub.Events() {
			select {
			case c.send <- evt:
			case <-c.done:
				return
			}
		}
	}()
}

func (c *wsClient) untrack(sub *app.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[sub.RoomID()] == sub {
		delete(c.subs, sub.RoomID())
	}
}

func (c *wsClient) push(evt domain.Event) {
	select {
	case c.send <- evt:
	case <-c.done:
	}
}

func (c *wsClient) fail(err error) {
	c.push(domain.Event{Type: domain.EventError, Payload: domain.ErrorPayload{Message: err.Error()}})
}

func (c *wsClient) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}
