package memory

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"promptquiz-service/internal/domain"
)

// BankLoader fetches a topic's question bank from a backing store (e.g., Postgres).
type BankLoader interface {
	LoadBank(ctx context.Context, topic string) ([]domain.Question, error)
}

// BankRepository caches question banks with TTL to avoid repeated DB hits.
type BankRepository struct {
	loader BankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedBank
}

type cachedBank struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewBankRepository(loader BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedBank),
	}
}

func (r *BankRepository) GetBank(ctx context.Context, topic string) ([]domain.Question, error) {
	key := topicKey(topic)
	if qs, ok := r.cached(key); ok {
		return qs, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Another caller may have filled the cache while we waited.
		if qs, ok := r.cached(key); ok {
			return qs, nil
		}
		qs, err := r.loader.LoadBank(ctx, topic)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[key] = cachedBank{
			questions: qs,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *BankRepository) cached(key string) ([]domain.Question, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[key]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return nil, false
	}
	return entry.questions, true
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

func topicKey(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// StaticBankLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticBankLoader struct {
	banks map[string][]domain.Question
}

func NewStaticBankLoader(banks map[string][]domain.Question) *StaticBankLoader {
	normalized := make(map[string][]domain.Question, len(banks))
	for topic, qs := range banks {
		normalized[topicKey(topic)] = qs
	}
	return &StaticBankLoader{banks: normalized}
}

func (l *StaticBankLoader) LoadBank(_ context.Context, topic string) ([]domain.Question, error) {
	if qs, ok := l.banks[topicKey(topic)]; ok && len(qs) > 0 {
		return qs, nil
	}
	return nil, domain.ErrTopicNotFound
}

// Topics lists the topics the loader knows, for seeding other stores.
func (l *StaticBankLoader) Topics() map[string][]domain.Question {
	out := make(map[string][]domain.Question, len(l.banks))
	for topic, qs := range l.banks {
		out[topic] = qs
	}
	return out
}

type bankFile struct {
	Topics map[string][]domain.Question `yaml:"topics"`
}

// LoadBankFile reads a YAML question bank:
//
//	topics:
//	  geography:
//	    - question: Capital of France?
//	      options: [Berlin, Paris]
//	      correctAnswer: 1
func LoadBankFile(path string) (*StaticBankLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bank file: %w", err)
	}
	var file bankFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse bank file: %w", err)
	}
	for topic, qs := range file.Topics {
		for i, q := range qs {
			if err := q.Validate(); err != nil {
				return nil, fmt.Errorf("topic %q question %d: %w", topic, i, err)
			}
		}
	}
	return NewStaticBankLoader(file.Topics), nil
}
