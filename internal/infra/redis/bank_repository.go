package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"promptquiz-service/internal/domain"
)

// BankLoader fetches a topic's question bank from a backing store (e.g., Postgres).
type BankLoader interface {
	LoadBank(ctx context.Context, topic string) ([]domain.Question, error)
}

// BankRepository caches question banks in Redis and falls back to a loader on cache miss.
// Banks are stored as JSON: SET quiz:bank:{topic} [{question, options, correctAnswer}, ...]
type BankRepository struct {
	client *redis.Client
	loader BankLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewBankRepository(client *redis.Client, loader BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *BankRepository) GetBank(ctx context.Context, topic string) ([]domain.Question, error) {
	key := r.key(topic)
	if qs, ok := r.cached(ctx, key); ok {
		return qs, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := r.cached(ctx, key); ok {
			return qs, nil
		}
		qs, err := r.loader.LoadBank(ctx, topic)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(qs)
		if err != nil {
			return nil, err
		}
		if err := r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err(); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("cache question bank")
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *BankRepository) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("read question bank cache")
		}
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil || len(qs) == 0 {
		return nil, false
	}
	return qs, true
}

func (r *BankRepository) key(topic string) string {
	return "quiz:bank:" + strings.ToLower(strings.TrimSpace(topic))
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
