package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"promptquiz-service/internal/clock"
	"promptquiz-service/internal/domain"
)

const (
	defaultNumQuestions = 5
	maxNumQuestions     = 50
	defaultTimeLimit    = 30
	minTimeLimit        = 5
	maxTimeLimit        = 3600
	roomIDAttempts      = 5
)

// GenerateRequest describes the question set a host asks for.
type GenerateRequest struct {
	HostID       string
	Topic        string
	Title        string
	NumQuestions int
	TimeLimit    int
	TimeMode     domain.TimeMode
	Demo         bool
}

// QuizService contains the core quiz use cases.
type QuizService struct {
	rooms     RoomRepository
	banks     BankRepository
	snapshots SnapshotStore
	publisher EventPublisher
	observer  Observer
	clk       clockwork.Clock
	hosted    clock.Authority
	local     clock.Authority
	roomTTL   time.Duration
	newRoomID func() string

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu     sync.Mutex
	reaper map[string]clockwork.Timer
}

// Option customises a QuizService.
type Option func(*QuizService)

func WithSnapshotStore(store SnapshotStore) Option {
	return func(s *QuizService) { s.snapshots = store }
}

func WithPublisher(pub EventPublisher) Option {
	return func(s *QuizService) { s.publisher = pub }
}

func WithObserver(o Observer) Option {
	return func(s *QuizService) { s.observer = o }
}

// WithClock is mostly for tests; every timer in the service derives from it.
func WithClock(clk clockwork.Clock) Option {
	return func(s *QuizService) { s.clk = clk }
}

// WithRoomTTL sets how long a room may live before it expires. Zero disables expiry.
func WithRoomTTL(ttl time.Duration) Option {
	return func(s *QuizService) { s.roomTTL = ttl }
}

func WithRoomIDs(gen func() string) Option {
	return func(s *QuizService) { s.newRoomID = gen }
}

func NewQuizService(rooms RoomRepository, banks BankRepository, opts ...Option) *QuizService {
	s := &QuizService{
		rooms:     rooms,
		banks:     banks,
		observer:  nopObserver{},
		clk:       clockwork.NewRealClock(),
		newRoomID: newRoomID,
		reaper:    make(map[string]clockwork.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hosted = clock.NewTicker(s.clk)
	s.local = clock.NewDeadline(s.clk)
	s.rnd = rand.New(rand.NewSource(s.clk.Now().UnixNano()))
	return s
}

func newRoomID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Generate draws a question set for the topic and opens a room for it. The
// returned snapshot includes the questions so the host can review them.
func (s *QuizService) Generate(ctx context.Context, req GenerateRequest) (domain.Session, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return domain.Session{}, err
	}
	questions, err := s.drawQuestions(ctx, req.Topic, req.NumQuestions)
	if err != nil {
		return domain.Session{}, err
	}
	set, err := domain.NewQuestionSet(questions)
	if err != nil {
		return domain.Session{}, err
	}

	authority := s.hosted
	if req.HostID == domain.DemoHost {
		authority = s.local
	}

	var room *Room
	for attempt := 0; ; attempt++ {
		room = newRoom(roomConfig{
			id:        s.newRoomID(),
			title:     req.Title,
			topic:     req.Topic,
			hostID:    req.HostID,
			timeMode:  req.TimeMode,
			timeLimit: req.TimeLimit,
			questions: set,
			clk:       s.clk,
			authority: authority,
			observer:  s.observer,
			snapshots: s.snapshots,
			publisher: s.publisher,
		})
		err = s.rooms.Create(room)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrRoomExists) || attempt+1 >= roomIDAttempts {
			return domain.Session{}, fmt.Errorf("register room: %w", err)
		}
	}

	room.launch()
	s.observer.RoomCreated(room.IsDemo())
	s.scheduleReap(room.ID())
	log.Info().
		Str("room_id", room.ID()).
		Str("topic", req.Topic).
		Int("questions", set.Len()).
		Bool("demo", room.IsDemo()).
		Msg("room generated")
	return room.Snapshot(), nil
}

func normalizeRequest(req GenerateRequest) (GenerateRequest, error) {
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return req, fmt.Errorf("%w: topic is required", domain.ErrInvalidRequest)
	}
	if req.Demo {
		req.HostID = domain.DemoHost
	}
	if req.HostID == "" {
		return req, fmt.Errorf("%w: host identity is required", domain.ErrInvalidRequest)
	}
	if req.NumQuestions == 0 {
		req.NumQuestions = defaultNumQuestions
	}
	if req.NumQuestions < 1 || req.NumQuestions > maxNumQuestions {
		return req, fmt.Errorf("%w: numQuestions must be 1-%d", domain.ErrInvalidRequest, maxNumQuestions)
	}
	if req.TimeLimit == 0 {
		req.TimeLimit = defaultTimeLimit
	}
	if req.TimeLimit < minTimeLimit || req.TimeLimit > maxTimeLimit {
		return req, fmt.Errorf("%w: timeLimit must be %d-%d seconds", domain.ErrInvalidRequest, minTimeLimit, maxTimeLimit)
	}
	if req.TimeMode == "" {
		req.TimeMode = domain.TimePerQuestion
	}
	if !req.TimeMode.Valid() {
		return req, fmt.Errorf("%w: unknown timeMode %q", domain.ErrInvalidRequest, req.TimeMode)
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = req.Topic + " quiz"
	}
	return req, nil
}

// drawQuestions shuffles the topic's bank and keeps the first n.
func (s *QuizService) drawQuestions(ctx context.Context, topic string, n int) ([]domain.Question, error) {
	bank, err := s.banks.GetBank(ctx, topic)
	if err != nil {
		return nil, err
	}
	if len(bank) == 0 {
		return nil, domain.ErrTopicNotFound
	}
	picked := append([]domain.Question(nil), bank...)
	s.rndMu.Lock()
	s.rnd.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	s.rndMu.Unlock()
	if n < len(picked) {
		picked = picked[:n]
	}
	return picked, nil
}

func (s *QuizService) room(roomID string) (*Room, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return room, nil
}

// Room returns the room snapshot. Only the host sees the questions. A room
// that was already evicted is served from the snapshot store when configured.
func (s *QuizService) Room(ctx context.Context, roomID, identity string) (domain.Session, error) {
	var session domain.Session
	if room, ok := s.rooms.Get(roomID); ok {
		session = room.Snapshot()
	} else {
		stored, err := s.loadSnapshot(ctx, roomID)
		if err != nil {
			return domain.Session{}, err
		}
		session = stored
	}
	if identity != session.HostID {
		return session.Public(), nil
	}
	return session, nil
}

// Join registers or reconnects a participant without opening a subscription.
func (s *QuizService) Join(_ context.Context, roomID, identity, name string) (domain.Participant, error) {
	room, err := s.room(roomID)
	if err != nil {
		return domain.Participant{}, err
	}
	return room.Join(identity, name)
}

// JoinAndSubscribe joins and subscribes atomically. The caller must Cancel the subscription.
func (s *QuizService) JoinAndSubscribe(_ context.Context, roomID, identity, name string) (*Subscription, domain.Participant, error) {
	room, err := s.room(roomID)
	if err != nil {
		return nil, domain.Participant{}, err
	}
	return room.JoinAndSubscribe(identity, name)
}

// Subscribe returns a subscription to a room's events. The caller must Cancel it.
func (s *QuizService) Subscribe(_ context.Context, roomID, identity string) (*Subscription, error) {
	room, err := s.room(roomID)
	if err != nil {
		return nil, err
	}
	return room.Subscribe(identity)
}

func (s *QuizService) ReplaceQuestions(_ context.Context, roomID, identity string, questions []domain.Question) (domain.Session, error) {
	room, err := s.room(roomID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := room.ReplaceQuestions(identity, questions); err != nil {
		return domain.Session{}, err
	}
	return room.Snapshot(), nil
}

func (s *QuizService) Open(_ context.Context, roomID, identity string) (domain.Session, error) {
	room, err := s.room(roomID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := room.Open(identity); err != nil {
		return domain.Session{}, err
	}
	return room.Snapshot(), nil
}

func (s *QuizService) Start(_ context.Context, roomID, identity string) (domain.Session, error) {
	room, err := s.room(roomID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := room.Start(identity); err != nil {
		return domain.Session{}, err
	}
	return room.Snapshot(), nil
}

func (s *QuizService) SubmitAnswer(_ context.Context, roomID, identity string, submission domain.AnswerSubmission) (domain.Answer, error) {
	room, err := s.room(roomID)
	if err != nil {
		return domain.Answer{}, err
	}
	return room.SubmitAnswer(identity, submission)
}

func (s *QuizService) Terminate(_ context.Context, roomID, identity string) (domain.Session, error) {
	room, err := s.room(roomID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := room.Terminate(identity); err != nil {
		return domain.Session{}, err
	}
	return room.Snapshot(), nil
}

// Results returns the final leaderboard, falling back to a persisted snapshot
// for rooms no longer held in memory.
func (s *QuizService) Results(ctx context.Context, roomID string) (domain.Results, error) {
	if room, ok := s.rooms.Get(roomID); ok {
		return room.Results()
	}
	session, err := s.loadSnapshot(ctx, roomID)
	if err != nil {
		return domain.Results{}, err
	}
	if !session.Status.Terminal() {
		return domain.Results{}, fmt.Errorf("%w: results are available once the quiz ends", domain.ErrInvalidState)
	}
	standings := session.Standings
	if standings == nil {
		standings = []domain.Standing{}
	}
	return domain.Results{
		RoomID:         session.RoomID,
		Title:          session.Title,
		Status:         session.Status,
		TotalQuestions: session.NumQuestions,
		Participants:   standings,
		StartedAt:      session.StartedAt,
		EndedAt:        session.EndedAt,
	}, nil
}

// Live returns the current ranking of a room in progress.
func (s *QuizService) Live(_ context.Context, roomID string) ([]domain.Standing, error) {
	room, err := s.room(roomID)
	if err != nil {
		return nil, err
	}
	return room.Live(), nil
}

func (s *QuizService) loadSnapshot(ctx context.Context, roomID string) (domain.Session, error) {
	if s.snapshots == nil {
		return domain.Session{}, domain.ErrNotFound
	}
	session, err := s.snapshots.LoadSnapshot(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Session{}, err
		}
		return domain.Session{}, fmt.Errorf("load snapshot %s: %w", roomID, err)
	}
	return session, nil
}

func (s *QuizService) scheduleReap(roomID string) {
	if s.roomTTL <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reaper[roomID] = s.clk.AfterFunc(s.roomTTL, func() { s.reap(roomID) })
}

// reap expires a room whose TTL elapsed. A room that already ended is dropped
// once idle; the snapshot store, if any, keeps serving its results.
func (s *QuizService) reap(roomID string) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		s.forgetReap(roomID)
		return
	}
	if room.Expire() {
		// Keep the expired room readable for one more period.
		log.Info().Str("room_id", roomID).Msg("room expired")
		s.scheduleReap(roomID)
		return
	}
	if s.rooms.DeleteIfIdle(roomID) {
		s.forgetReap(roomID)
		room.shutdown()
		log.Debug().Str("room_id", roomID).Msg("room evicted")
		return
	}
	s.scheduleReap(roomID)
}

func (s *QuizService) forgetReap(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reaper, roomID)
}

// Close stops TTL timers and flushes every room's pending side effects.
func (s *QuizService) Close() {
	s.mu.Lock()
	for id, t := range s.reaper {
		t.Stop()
		delete(s.reaper, id)
	}
	s.mu.Unlock()

	s.rooms.Range(func(room *Room) bool {
		room.shutdown()
		return true
	})
}
