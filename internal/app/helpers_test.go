package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"promptquiz-service/internal/app"
	"promptquiz-service/internal/domain"
	"promptquiz-service/internal/infra/memory"
)

const eventWait = 2 * time.Second

type fixture struct {
	t         *testing.T
	ctx       context.Context
	clk       *clockwork.FakeClock
	rooms     *memory.RoomStore
	snapshots *memory.SnapshotStore
	publisher *recordingPublisher
	observer  *recordingObserver
	service   *app.QuizService
}

func newFixture(t *testing.T, opts ...app.Option) *fixture {
	t.Helper()
	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		clk:       clockwork.NewFakeClock(),
		rooms:     memory.NewRoomStore(),
		snapshots: memory.NewSnapshotStore(),
		publisher: &recordingPublisher{},
		observer:  &recordingObserver{},
	}
	base := []app.Option{
		app.WithClock(f.clk),
		app.WithSnapshotStore(f.snapshots),
		app.WithPublisher(f.publisher),
		app.WithObserver(f.observer),
	}
	f.service = app.NewQuizService(f.rooms, testBanks(), append(base, opts...)...)
	t.Cleanup(f.service.Close)
	return f
}

func testBanks() *memory.BankRepository {
	general := make([]domain.Question, 10)
	for i := range general {
		general[i] = domain.Question{
			Text:          fmt.Sprintf("Question %d", i),
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: i % 4,
		}
	}
	return memory.NewBankRepository(memory.NewStaticBankLoader(map[string][]domain.Question{
		"general": general,
	}), time.Minute)
}

func (f *fixture) generate(n, limit int, mode domain.TimeMode) domain.Session {
	f.t.Helper()
	session, err := f.service.Generate(f.ctx, app.GenerateRequest{
		HostID:       "host",
		Topic:        "general",
		NumQuestions: n,
		TimeLimit:    limit,
		TimeMode:     mode,
	})
	require.NoError(f.t, err)
	return session
}

func (f *fixture) join(roomID, identity, name string) *app.Subscription {
	f.t.Helper()
	sub, _, err := f.service.JoinAndSubscribe(f.ctx, roomID, identity, name)
	require.NoError(f.t, err)
	f.t.Cleanup(sub.Cancel)
	return sub
}

func (f *fixture) start(roomID string) {
	f.t.Helper()
	_, err := f.service.Start(f.ctx, roomID, "host")
	require.NoError(f.t, err)
}

func (f *fixture) submit(roomID, identity string, question int, selected *int, spentMs int64) domain.Answer {
	f.t.Helper()
	answer, err := f.service.SubmitAnswer(f.ctx, roomID, identity, domain.AnswerSubmission{
		QuestionIndex:  question,
		SelectedOption: selected,
		TimeSpentMs:    spentMs,
	})
	require.NoError(f.t, err)
	return answer
}

// waitFor reads events until one of type typ arrives, skipping anything else.
func waitFor(t *testing.T, sub *app.Subscription, typ string) domain.Event {
	t.Helper()
	timeout := time.After(eventWait)
	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				t.Fatalf("subscription closed while waiting for %s", typ)
			}
			if evt.Type == typ {
				return evt
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func waitQuestion(t *testing.T, sub *app.Subscription, index int) domain.QuestionPayload {
	t.Helper()
	for {
		q := waitFor(t, sub, domain.EventQuestion).Payload.(domain.QuestionPayload)
		if q.QuestionIndex == index {
			return q
		}
	}
}

func waitClosed(t *testing.T, sub *app.Subscription) {
	t.Helper()
	timeout := time.After(eventWait)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatalf("subscription was not closed")
		}
	}
}

func intPtr(v int) *int { return &v }

type recordingObserver struct {
	mu          sync.Mutex
	transitions []domain.Status
	answers     int
	autos       int
}

func (o *recordingObserver) RoomCreated(bool) {}

func (o *recordingObserver) StatusChanged(_, to domain.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, to)
}

func (o *recordingObserver) AnswerRecorded(auto, _ bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.answers++
	if auto {
		o.autos++
	}
}

func (o *recordingObserver) SubscriptionOpened() {}
func (o *recordingObserver) SubscriptionClosed() {}

func (o *recordingObserver) seen() []domain.Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.Status(nil), o.transitions...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt domain.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, evt := range p.events {
		out[i] = evt.Type
	}
	return out
}
