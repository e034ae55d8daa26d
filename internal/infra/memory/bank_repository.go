package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizduel-service/internal/domain"
)

// BankLoader fetches question-bank content from a backing store.
type BankLoader interface {
	LoadBank(ctx context.Context, bankID string) (domain.QuestionBank, error)
}

// BankRepository caches question banks with TTL to avoid repeated DB hits.
type BankRepository struct {
	loader BankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedBank
}

type cachedBank struct {
	bank      domain.QuestionBank
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

func (r *BankRepository) GetBank(ctx context.Context, bankID string) (domain.QuestionBank, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[bankID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.bank, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(bankID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[bankID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.bank, nil
		}
		r.mu.RUnlock()

		bank, err := r.loader.LoadBank(ctx, bankID)
		if err != nil {
			return domain.QuestionBank{}, err
		}

		r.mu.Lock()
		r.cache[bankID] = cachedBank{
			bank:      bank,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return domain.QuestionBank{}, err
	}
	return result.(domain.QuestionBank), nil
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticBankLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticBankLoader struct {
	banks map[string]domain.QuestionBank
}

func NewStaticBankLoader(banks map[string]domain.QuestionBank) *StaticBankLoader {
	return &StaticBankLoader{banks: banks}
}

func (l *StaticBankLoader) LoadBank(_ context.Context, bankID string) (domain.QuestionBank, error) {
	if bank, ok := l.banks[bankID]; ok {
		return bank, nil
	}
	return domain.QuestionBank{}, domain.ErrQuestionBankNotFound
}
