package redis

import (
	"context"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizduel-service/internal/domain"
)

// BankLoader fetches question-bank content from a backing store (e.g., Postgres).
type BankLoader interface {
	LoadBank(ctx context.Context, bankID string) (domain.QuestionBank, error)
}

// BankRepository caches question banks in Redis (two hashes per bank) and
// falls back to a loader on cache miss.
// Answers are stored as: HSET bank:{bankID}:answers {questionID} {answerText}
// Prompts are stored as: HSET bank:{bankID}:prompts {questionID} {prompt}
type BankRepository struct {
	client *redis.Client
	loader BankLoader
	ttl    time.Duration
	sf     singleflight.Group
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

func (r *BankRepository) GetBank(ctx context.Context, bankID string) (domain.QuestionBank, error) {
	answerKey := r.answersKey(bankID)
	promptKey := r.promptsKey(bankID)

	answers, err := r.client.HGetAll(ctx, answerKey).Result()
	if err == nil && len(answers) > 0 {
		prompts, _ := r.client.HGetAll(ctx, promptKey).Result()
		return buildBankFromCache(bankID, answers, prompts), nil
	}

	result, err, _ := r.sf.Do(bankID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		answers, err := r.client.HGetAll(ctx, answerKey).Result()
		if err == nil && len(answers) > 0 {
			prompts, _ := r.client.HGetAll(ctx, promptKey).Result()
			return buildBankFromCache(bankID, answers, prompts), nil
		}

		bank, err := r.loader.LoadBank(ctx, bankID)
		if err != nil {
			return domain.QuestionBank{}, err
		}

		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		for _, q := range bank.Questions {
			pipe.HSet(ctx, answerKey, q.ID, q.AnswerText)
			pipe.HSet(ctx, promptKey, q.ID, q.Prompt)
		}
		if ttl > 0 {
			pipe.Expire(ctx, answerKey, ttl)
			pipe.Expire(ctx, promptKey, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return bank, nil
	})
	if err != nil {
		return domain.QuestionBank{}, err
	}
	return result.(domain.QuestionBank), nil
}

func (r *BankRepository) answersKey(bankID string) string {
	return "bank:" + bankID + ":answers"
}

func (r *BankRepository) promptsKey(bankID string) string {
	return "bank:" + bankID + ":prompts"
}

func buildBankFromCache(bankID string, answers, prompts map[string]string) domain.QuestionBank {
	questions := make([]domain.Question, 0, len(answers))
	for questionID, answerText := range answers {
		questions = append(questions, domain.Question{
			ID:         questionID,
			Prompt:     prompts[questionID],
			AnswerText: answerText,
		})
	}
	return domain.QuestionBank{ID: bankID, Questions: questions}
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
