package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"promptquiz-service/internal/domain"
	"promptquiz-service/internal/infra/memory"
)

func TestBankRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		BankLoader: memory.NewStaticBankLoader(map[string][]domain.Question{
			"math": sampleBank(),
		}),
	}
	repo := NewBankRepository(client, loader, time.Minute)

	qs, err := repo.GetBank(context.Background(), "Math")
	if err != nil {
		t.Fatalf("get bank: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if len(qs) != 1 || qs[0].CorrectAnswer != 1 {
		t.Fatalf("unexpected bank %+v", qs)
	}
	if !mr.Exists("quiz:bank:math") {
		t.Fatalf("expected bank cached in redis")
	}

	// Second call should hit cache, loader not incremented.
	cached, _ := repo.GetBank(context.Background(), "math")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if len(cached) != 1 || cached[0].Options[1] != "4" {
		t.Fatalf("cached bank lost content: %+v", cached)
	}

	mr.FastForward(2 * time.Minute)
	_, _ = repo.GetBank(context.Background(), "math")
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls=%d", loader.calls)
	}
}

type countingLoader struct {
	BankLoader
	calls int
}

func (l *countingLoader) LoadBank(ctx context.Context, topic string) ([]domain.Question, error) {
	l.calls++
	return l.BankLoader.LoadBank(ctx, topic)
}

func sampleBank() []domain.Question {
	return []domain.Question{
		{Text: "What is 2 + 2?", Options: []string{"3", "4"}, CorrectAnswer: 1},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
