package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"promptquiz-service/internal/clock"
	"promptquiz-service/internal/domain"
)

type roomConfig struct {
	id        string
	title     string
	topic     string
	hostID    string
	timeMode  domain.TimeMode
	timeLimit int
	questions domain.QuestionSet
	clk       clockwork.Clock
	authority clock.Authority
	observer  Observer
	snapshots SnapshotStore
	publisher EventPublisher
}

// armed is one countdown plus the channel that retires its watcher.
type armed struct {
	gen  uint64
	cd   clock.Countdown
	stop chan struct{}
}

// Room is the state machine of one quiz session. Every mutation of status,
// questions, roster and ledger happens under mu, so each room has exactly one
// logical writer no matter how many connections feed it.
type Room struct {
	id        string
	title     string
	topic     string
	hostID    string
	timeMode  domain.TimeMode
	timeLimit int
	createdAt time.Time

	clk       clockwork.Clock
	authority clock.Authority
	observer  Observer
	snapshots SnapshotStore
	publisher EventPublisher

	mu        sync.Mutex
	effects   *effects
	status    domain.Status
	questions domain.QuestionSet
	current   int
	roster    *roster
	ledger    *ledger
	subs      map[string]*Subscription
	detached  []string
	timer     *armed
	gen       uint64
	startedAt *time.Time
	endedAt   *time.Time
	standings []domain.Standing
	version   int64
}

func newRoom(cfg roomConfig) *Room {
	observer := cfg.observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Room{
		id:        cfg.id,
		title:     cfg.title,
		topic:     cfg.topic,
		hostID:    cfg.hostID,
		timeMode:  cfg.timeMode,
		timeLimit: cfg.timeLimit,
		createdAt: cfg.clk.Now(),
		clk:       cfg.clk,
		authority: cfg.authority,
		observer:  observer,
		snapshots: cfg.snapshots,
		publisher: cfg.publisher,
		status:    domain.StatusDraft,
		questions: cfg.questions,
		current:   -1,
		roster:    newRoster(),
		ledger:    newLedger(),
		subs:      make(map[string]*Subscription),
	}
}

func (r *Room) ID() string     { return r.id }
func (r *Room) HostID() string { return r.hostID }
func (r *Room) IsDemo() bool   { return r.hostID == domain.DemoHost }

// launch starts the side-effect worker and moves the freshly generated room
// out of draft. Demo rooms go straight to active with question 0 current.
func (r *Room) launch() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.effects = newEffects(r.id, r.snapshots, r.publisher)
	if !r.IsDemo() {
		_ = r.transitionLocked(domain.StatusReviewPending, nil)
		r.changedLocked()
		return
	}

	now := r.clk.Now()
	_ = r.transitionLocked(domain.StatusActive, nil)
	r.startedAt = &now
	r.current = 0
	r.revealLocked()
	r.changedLocked()
}

// Snapshot returns the full room view, questions included.
func (r *Room) Snapshot() domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Join adds identity to the roster, or reconnects it if already known.
func (r *Room) Join(identity, name string) (domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.joinLocked(identity, name)
	r.settleLocked()
	return p, err
}

// JoinAndSubscribe joins and registers a subscription in one step, so the joiner
// receives the room state while everyone else receives the roster update.
func (r *Room) JoinAndSubscribe(identity, name string) (*Subscription, domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.joinLocked(identity, name)
	if err != nil {
		r.settleLocked()
		return nil, domain.Participant{}, err
	}
	sub := r.attachLocked(identity)
	r.sendLocked(sub, r.stateEventLocked())
	r.resumeLocked(sub)
	r.settleLocked()
	return sub, p, nil
}

// Subscribe registers a connection without joining. The subscriber receives
// the room state and, if a question is live, that question with the time left.
func (r *Room) Subscribe(identity string) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == domain.StatusExpired {
		return nil, domain.ErrExpired
	}
	sub := r.attachLocked(identity)
	r.sendLocked(sub, r.stateEventLocked())
	r.resumeLocked(sub)
	r.settleLocked()
	return sub, nil
}

// ReplaceQuestions swaps the question list while the host is still reviewing.
func (r *Room) ReplaceQuestions(identity string, questions []domain.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if identity != r.hostID {
		return domain.ErrForbidden
	}
	if err := r.requireLocked(domain.StatusReviewPending); err != nil {
		return err
	}
	next, err := r.questions.Replace(questions)
	if err != nil {
		return err
	}
	r.questions = next
	log.Info().Str("room_id", r.id).Int("questions", next.Len()).Int("version", next.Version()).Msg("questions replaced")
	r.broadcastLocked(r.stateEventLocked())
	r.changedLocked()
	r.settleLocked()
	return nil
}

// Open ends the review: questions freeze and the room waits for the host to start.
func (r *Room) Open(identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if identity != r.hostID {
		return domain.ErrForbidden
	}
	if err := r.requireLocked(domain.StatusReviewPending); err != nil {
		return err
	}
	_ = r.transitionLocked(domain.StatusWaiting, nil)
	r.broadcastLocked(r.stateEventLocked())
	r.changedLocked()
	r.settleLocked()
	return nil
}

// Start activates the room. A room still in review is frozen first.
func (r *Room) Start(identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if identity != r.hostID {
		return domain.ErrForbidden
	}
	switch r.status {
	case domain.StatusExpired:
		return domain.ErrExpired
	case domain.StatusReviewPending, domain.StatusWaiting:
	default:
		return fmt.Errorf("%w: cannot start a %s quiz", domain.ErrInvalidState, r.status)
	}
	if r.roster.len() == 0 {
		return fmt.Errorf("%w: no participants have joined", domain.ErrInvalidState)
	}

	if r.status == domain.StatusReviewPending {
		_ = r.transitionLocked(domain.StatusWaiting, nil)
	}
	_ = r.transitionLocked(domain.StatusActive, nil)
	now := r.clk.Now()
	r.startedAt = &now
	r.current = 0
	r.armLocked()

	r.broadcastLocked(domain.Event{Type: domain.EventQuizStarted, Payload: domain.QuizStartedPayload{}})
	r.revealLocked()
	r.changedLocked()
	r.settleLocked()
	return nil
}

// SubmitAnswer records one answer. Repeats for the same question return the
// first record untouched.
func (r *Room) SubmitAnswer(identity string, submission domain.AnswerSubmission) (domain.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.ledger.get(identity, submission.QuestionIndex); ok {
		return existing, nil
	}
	switch r.status {
	case domain.StatusActive:
	case domain.StatusExpired:
		return domain.Answer{}, domain.ErrExpired
	default:
		return domain.Answer{}, fmt.Errorf("%w: quiz is %s", domain.ErrInvalidState, r.status)
	}
	if submission.QuestionIndex != r.current {
		return domain.Answer{}, fmt.Errorf("%w: got %d, current is %d", domain.ErrStaleSubmission, submission.QuestionIndex, r.current)
	}
	if _, ok := r.roster.get(identity); !ok {
		return domain.Answer{}, domain.ErrParticipantNotFound
	}
	q, _ := r.questions.At(r.current)
	if sel := submission.SelectedOption; sel != nil && (*sel < 0 || *sel >= len(q.Options)) {
		return domain.Answer{}, fmt.Errorf("%w: %d", domain.ErrInvalidAnswer, *sel)
	}

	answer, _ := r.recordLocked(identity, q, submission.SelectedOption, r.clampSpent(submission.TimeSpentMs), false)
	r.sendAnswerResultLocked(answer, q)
	r.maybeAdvanceLocked()
	r.settleLocked()
	return answer, nil
}

// Terminate is the host's explicit end. An active quiz completes with its
// ranking; a quiz that never started expires.
func (r *Room) Terminate(identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if identity != r.hostID {
		return domain.ErrForbidden
	}
	switch {
	case r.status.Terminal():
		return nil
	case r.status == domain.StatusActive:
		r.completeLocked()
	default:
		r.expireLocked("quiz ended by host")
	}
	r.settleLocked()
	return nil
}

// Expire moves a non-terminal room to expired and reports whether it did.
func (r *Room) Expire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return false
	}
	r.expireLocked("quiz room expired")
	r.settleLocked()
	return true
}

// Results returns the final ranking once the room has ended.
func (r *Room) Results() (domain.Results, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var standings []domain.Standing
	switch r.status {
	case domain.StatusCompleted:
		standings = append([]domain.Standing(nil), r.standings...)
	case domain.StatusExpired:
		standings = domain.Rank(r.roster.list(), r.ledger.answers())
	default:
		return domain.Results{}, fmt.Errorf("%w: results are available once the quiz ends", domain.ErrInvalidState)
	}
	return domain.Results{
		RoomID:         r.id,
		Title:          r.title,
		Status:         r.status,
		TotalQuestions: r.questions.Len(),
		Participants:   standings,
		StartedAt:      copyTime(r.startedAt),
		EndedAt:        copyTime(r.endedAt),
	}, nil
}

// Live ranks the room as it stands right now.
func (r *Room) Live() []domain.Standing {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.Rank(r.roster.list(), r.ledger.answers())
}

// Idle reports whether the room has ended and has no subscribers left.
func (r *Room) Idle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.Terminal() && len(r.subs) == 0
}

// shutdown releases the room's goroutines and flushes pending side effects.
func (r *Room) shutdown() {
	r.mu.Lock()
	r.disarmLocked()
	for _, sub := range r.subs {
		r.dropLocked(sub)
	}
	r.detached = nil
	eff := r.effects
	r.mu.Unlock()
	eff.close()
}

func (r *Room) requireLocked(want domain.Status) error {
	if r.status == want {
		return nil
	}
	if r.status == domain.StatusExpired {
		return domain.ErrExpired
	}
	return fmt.Errorf("%w: quiz is %s, want %s", domain.ErrInvalidState, r.status, want)
}

func (r *Room) joinLocked(identity, name string) (domain.Participant, error) {
	if r.status == domain.StatusExpired {
		return domain.Participant{}, domain.ErrExpired
	}
	if p, ok := r.roster.get(identity); ok {
		if r.roster.setConnection(identity, domain.Connected) {
			log.Info().Str("room_id", r.id).Str("identity", identity).Msg("participant reconnected")
			r.broadcastRosterLocked()
			r.changedLocked()
		}
		return *p, nil
	}
	if r.status.AtLeast(domain.StatusActive) && !r.admitsDemoPlayerLocked() {
		return domain.Participant{}, domain.ErrAlreadyActive
	}
	name, err := normalizeName(name)
	if err != nil {
		return domain.Participant{}, err
	}
	if r.roster.nameTaken(name, identity) {
		return domain.Participant{}, domain.ErrNameTaken
	}

	p := r.roster.add(identity, name, r.clk.Now())
	log.Info().Str("room_id", r.id).Str("identity", identity).Str("name", name).Msg("participant joined")
	if r.IsDemo() && r.timer == nil {
		// The sole player's clock starts when they arrive, not when the room was generated.
		r.armLocked()
	}
	r.broadcastRosterLocked()
	r.changedLocked()
	return *p, nil
}

func (r *Room) admitsDemoPlayerLocked() bool {
	return r.IsDemo() && r.status == domain.StatusActive && r.roster.len() == 0
}

func (r *Room) recordLocked(identity string, q domain.Question, selected *int, spentMs int64, auto bool) (domain.Answer, bool) {
	correct := selected != nil && *selected == q.CorrectAnswer
	answer, stored := r.ledger.record(domain.Answer{
		ParticipantID:  identity,
		QuestionIndex:  r.current,
		SelectedOption: selected,
		IsCorrect:      correct,
		TimeSpentMs:    spentMs,
		AutoSubmitted:  auto,
		RecordedAt:     r.clk.Now(),
	})
	if stored {
		r.observer.AnswerRecorded(auto, correct)
		r.changedLocked()
	}
	return answer, stored
}

func (r *Room) clampSpent(ms int64) int64 {
	limit := int64(r.timeLimit) * 1000
	switch {
	case ms < 0:
		return 0
	case ms > limit:
		return limit
	}
	return ms
}

// maybeAdvanceLocked moves on once every connected participant has answered
// the current question. With nobody connected the timer decides.
func (r *Room) maybeAdvanceLocked() {
	if r.status != domain.StatusActive {
		return
	}
	connected := r.roster.connected()
	if len(connected) == 0 {
		return
	}
	for _, identity := range connected {
		if !r.ledger.has(identity, r.current) {
			return
		}
	}
	r.advanceLocked()
}

func (r *Room) advanceLocked() {
	if r.status != domain.StatusActive {
		return
	}
	next := r.current + 1
	if next >= r.questions.Len() {
		r.completeLocked()
		return
	}
	r.current = next
	if r.timeMode == domain.TimePerQuestion {
		r.armLocked()
	}
	r.revealLocked()
	r.changedLocked()
}

func (r *Room) completeLocked() {
	if r.status != domain.StatusActive {
		return
	}
	r.disarmLocked()
	now := r.clk.Now()
	r.endedAt = &now
	r.standings = domain.Rank(r.roster.list(), r.ledger.answers())
	payload := domain.QuizCompletedPayload{
		Participants:   append([]domain.Standing(nil), r.standings...),
		TotalQuestions: r.questions.Len(),
	}
	_ = r.transitionLocked(domain.StatusCompleted, payload)
	r.broadcastLocked(domain.Event{Type: domain.EventQuizCompleted, Payload: payload})
	r.changedLocked()
}

func (r *Room) expireLocked(reason string) {
	r.disarmLocked()
	if err := r.transitionLocked(domain.StatusExpired, nil); err != nil {
		return
	}
	now := r.clk.Now()
	r.endedAt = &now
	r.broadcastLocked(domain.Event{Type: domain.EventError, Payload: domain.ErrorPayload{Message: reason}})
	r.broadcastLocked(r.stateEventLocked())
	for _, sub := range r.subs {
		r.dropLocked(sub)
	}
	r.changedLocked()
}

func (r *Room) autoSubmitLocked() {
	q, ok := r.questions.At(r.current)
	if !ok {
		return
	}
	spent := int64(r.timeLimit) * 1000
	for _, p := range r.roster.ordered {
		if r.ledger.has(p.Identity, r.current) {
			continue
		}
		if answer, stored := r.recordLocked(p.Identity, q, nil, spent, true); stored {
			r.sendAnswerResultLocked(answer, q)
		}
	}
}

func (r *Room) transitionLocked(next domain.Status, payload any) error {
	if !r.status.CanTransition(next) {
		return fmt.Errorf("%w: %s to %s", domain.ErrInvalidState, r.status, next)
	}
	prev := r.status
	r.status = next
	r.observer.StatusChanged(prev, next)
	log.Info().Str("room_id", r.id).Str("from", string(prev)).Str("to", string(next)).Msg("room status changed")
	r.effects.publish(domain.LifecycleEvent{
		ID:         uuid.NewString(),
		Type:       lifecycleType(next),
		RoomID:     r.id,
		Status:     next,
		OccurredAt: r.clk.Now(),
		Payload:    payload,
	})
	return nil
}

func lifecycleType(s domain.Status) string {
	switch s {
	case domain.StatusReviewPending:
		return domain.LifecycleCreated
	case domain.StatusWaiting:
		return domain.LifecycleOpened
	case domain.StatusActive:
		return domain.LifecycleStarted
	case domain.StatusCompleted:
		return domain.LifecycleCompleted
	default:
		return domain.LifecycleExpired
	}
}

// changedLocked bumps the snapshot version and hands it to the side-effect worker.
func (r *Room) changedLocked() {
	r.version++
	if r.effects != nil {
		r.effects.snapshot(r.snapshotLocked())
	}
}

// armLocked replaces the running countdown. Per-question rooms arm on every
// reveal; per-quiz rooms arm once for the whole session.
func (r *Room) armLocked() {
	scope := clock.ScopeQuestion
	if r.timeMode == domain.TimePerQuiz {
		if r.timer != nil {
			return
		}
		scope = clock.ScopeSession
	}
	r.disarmLocked()
	r.gen++
	a := &armed{
		gen:  r.gen,
		cd:   r.authority.Start(r.id, scope, r.timeLimit),
		stop: make(chan struct{}),
	}
	r.timer = a
	go r.watch(a)
}

func (r *Room) disarmLocked() {
	if r.timer == nil {
		return
	}
	r.timer.cd.Stop()
	close(r.timer.stop)
	r.timer = nil
}

func (r *Room) watch(a *armed) {
	for {
		select {
		case rem := <-a.cd.Ticks():
			r.onTick(a.gen, rem)
		case <-a.cd.Expired():
			r.onExpire(a.gen)
			return
		case <-a.stop:
			return
		}
	}
}

// onTick forwards the countdown to observers still working on the question.
func (r *Room) onTick(gen uint64, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer == nil || r.timer.gen != gen || r.status != domain.StatusActive {
		return
	}
	evt := domain.Event{Type: domain.EventTimer, Payload: domain.TimerPayload{QuestionIndex: r.current, TimeRemaining: remaining}}
	for _, sub := range r.subs {
		if r.ledger.has(sub.identity, r.current) {
			continue
		}
		r.sendLocked(sub, evt)
	}
	r.settleLocked()
}

// onExpire auto-submits for everyone still missing an answer, then advances
// or, for a per-quiz clock, completes the room.
func (r *Room) onExpire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer == nil || r.timer.gen != gen || r.status != domain.StatusActive {
		return
	}
	log.Debug().Str("room_id", r.id).Int("question", r.current).Msg("time up")
	r.disarmLocked()
	r.autoSubmitLocked()
	if r.timeMode == domain.TimePerQuiz {
		r.completeLocked()
	} else {
		r.advanceLocked()
	}
	r.settleLocked()
}

func (r *Room) remainingLocked() int {
	if r.timer != nil {
		return r.timer.cd.Remaining()
	}
	return r.timeLimit
}

func (r *Room) revealLocked() {
	if evt, ok := r.questionEventLocked(); ok {
		r.broadcastLocked(evt)
	}
}

// resumeLocked re-delivers only the live question to a (re)connecting subscriber.
func (r *Room) resumeLocked(sub *Subscription) {
	if r.status != domain.StatusActive {
		return
	}
	if evt, ok := r.questionEventLocked(); ok {
		r.sendLocked(sub, evt)
	}
}

func (r *Room) questionEventLocked() (domain.Event, bool) {
	q, ok := r.questions.At(r.current)
	if !ok {
		return domain.Event{}, false
	}
	return domain.Event{Type: domain.EventQuestion, Payload: domain.QuestionPayload{
		Question:       q.Text,
		Options:        q.Options,
		QuestionIndex:  r.current,
		TimeLimit:      r.timeLimit,
		TimeRemaining:  r.remainingLocked(),
		TotalQuestions: r.questions.Len(),
	}}, true
}

func (r *Room) sendAnswerResultLocked(answer domain.Answer, q domain.Question) {
	r.sendToLocked(answer.ParticipantID, domain.Event{Type: domain.EventAnswerResult, Payload: domain.AnswerResultPayload{
		QuestionIndex:  answer.QuestionIndex,
		SelectedAnswer: answer.SelectedOption,
		Correct:        answer.IsCorrect,
		CorrectAnswer:  q.CorrectAnswer,
		Score:          domain.TallyAnswers(r.ledger.answers())[answer.ParticipantID].Score,
	}})
}

func (r *Room) stateEventLocked() domain.Event {
	return domain.Event{Type: domain.EventQuizState, Payload: domain.QuizStatePayload{Quiz: r.snapshotLocked().Public()}}
}

func (r *Room) broadcastRosterLocked() {
	r.broadcastLocked(domain.Event{Type: domain.EventParticipantJoined, Payload: domain.ParticipantsPayload{Participants: r.viewsLocked()}})
}

func (r *Room) viewsLocked() []domain.ParticipantView {
	tallies := domain.TallyAnswers(r.ledger.answers())
	views := make([]domain.ParticipantView, 0, r.roster.len())
	for _, p := range r.roster.ordered {
		t := tallies[p.Identity]
		views = append(views, domain.ParticipantView{
			Identity:        p.Identity,
			DisplayName:     p.DisplayName,
			Score:           t.Score,
			TimeTaken:       t.TimeTaken,
			Answered:        t.Answered,
			ConnectionState: p.ConnectionState,
			JoinedAt:        p.JoinedAt,
		})
	}
	return views
}

func (r *Room) snapshotLocked() domain.Session {
	return domain.Session{
		RoomID:          r.id,
		Title:           r.title,
		Topic:           r.topic,
		Status:          r.status,
		TimeMode:        r.timeMode,
		TimeLimit:       r.timeLimit,
		HostID:          r.hostID,
		Questions:       r.questions.Questions(),
		QuestionVersion: r.questions.Version(),
		NumQuestions:    r.questions.Len(),
		CurrentQuestion: r.current,
		Participants:    r.viewsLocked(),
		Standings:       append([]domain.Standing(nil), r.standings...),
		CreatedAt:       r.createdAt,
		StartedAt:       copyTime(r.startedAt),
		EndedAt:         copyTime(r.endedAt),
		Version:         r.version,
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
