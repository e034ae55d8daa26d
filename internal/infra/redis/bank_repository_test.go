package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quizduel-service/internal/domain"
	"quizduel-service/internal/infra/memory"
)

func TestBankRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		BankLoader: memory.NewStaticBankLoader(map[string]domain.QuestionBank{
			"bank-1": sampleBank(),
		}),
	}
	repo := NewBankRepository(client, loader, time.Minute)

	bank, err := repo.GetBank(context.Background(), "bank-1")
	if err != nil {
		t.Fatalf("get bank: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if len(bank.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(bank.Questions))
	}
	if !mr.Exists("bank:bank-1:answers") {
		t.Fatalf("expected answers hash cached in redis")
	}

	// Second call should hit the cache; loader not incremented and the
	// cached form keeps prompts and answers intact.
	bank, err = repo.GetBank(context.Background(), "bank-1")
	if err != nil {
		t.Fatalf("get bank 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	q, ok := bank.Question("q2")
	if !ok || q.AnswerText != "Paris" || q.Prompt != "Capital of France?" {
		t.Fatalf("cached question corrupted: %+v", q)
	}
}

type countingLoader struct {
	memory.BankLoader
	calls int
}

func (l *countingLoader) LoadBank(ctx context.Context, bankID string) (domain.QuestionBank, error) {
	l.calls++
	return l.BankLoader.LoadBank(ctx, bankID)
}

func sampleBank() domain.QuestionBank {
	return domain.QuestionBank{
		ID: "bank-1",
		Questions: []domain.Question{
			{ID: "q1", Prompt: "What is 2 + 2?", AnswerText: "4"},
			{ID: "q2", Prompt: "Capital of France?", AnswerText: "Paris"},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
