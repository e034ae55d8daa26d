package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"quizduel-service/internal/app"
	"quizduel-service/internal/domain"
	"quizduel-service/internal/infra/memory"
)

func TestCreateGameAssignsSequenceAndSchedulesJob(t *testing.T) {
	ctx := context.Background()
	store := memory.NewGameStore()
	jobs := &schedulerRecorder{}
	service := newTestService(store, jobs)

	game, err := service.CreateGame(ctx, "bank-1", "alice", "bob")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if len(game.Questions) != domain.QuestionsPerGame {
		t.Fatalf("expected %d questions, got %d", domain.QuestionsPerGame, len(game.Questions))
	}
	for i, q := range game.Questions {
		if q.Position != i {
			t.Fatalf("assignment %d has position %d", i, q.Position)
		}
	}
	if game.First.PlayerID != "alice" || game.Second.PlayerID != "bob" {
		t.Fatalf("players not paired: %+v", game)
	}
	if jobs.scheduled["game-1"] == 0 {
		t.Fatalf("completion job not scheduled")
	}
}

func TestCreateGameRejectsSmallBank(t *testing.T) {
	store := memory.NewGameStore()
	banks := memory.NewBankRepository(memory.NewStaticBankLoader(map[string]domain.QuestionBank{
		"tiny": {ID: "tiny", Questions: []domain.Question{{ID: "q1", AnswerText: "a"}}},
	}), time.Minute)
	service := app.NewGameService(store, banks, &schedulerRecorder{})

	_, err := service.CreateGame(context.Background(), "tiny", "alice", "bob")
	if !errors.Is(err, domain.ErrBankTooSmall) {
		t.Fatalf("expected ErrBankTooSmall, got %v", err)
	}
}

func TestSubmitAnswerScoresAndCompletes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewGameStore()
	jobs := &schedulerRecorder{}
	service := newTestService(store, jobs)

	game, err := service.CreateGame(ctx, "bank-1", "alice", "bob")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	// Answer every question correctly except the third.
	for i, q := range game.Questions {
		text := answerFor(q.QuestionID)
		if i == 2 {
			text = "wrong"
		}
		result, err := service.SubmitAnswer(ctx, game.ID, "alice", text)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		wantCorrect := i != 2
		if result.Correct != wantCorrect {
			t.Fatalf("submission %d correctness = %v, want %v", i, result.Correct, wantCorrect)
		}
		if wantComplete := i == len(game.Questions)-1; result.Completed != wantComplete {
			t.Fatalf("submission %d completed = %v, want %v", i, result.Completed, wantComplete)
		}
	}

	got := loadGame(t, store, game.ID)
	if got.First.Score != 4 || got.First.AnswersCount != 5 {
		t.Fatalf("expected score 4 over 5 answers, got %d over %d", got.First.Score, got.First.AnswersCount)
	}
	if !got.First.Completion.Done {
		t.Fatalf("fifth answer did not mark completion")
	}
	prev := time.Time{}
	for i, answer := range got.First.Answers {
		if !answer.CreatedAt.After(prev) {
			t.Fatalf("answer %d timestamp not strictly increasing", i)
		}
		prev = answer.CreatedAt
	}

	// Each submission defensively re-arms the job.
	if jobs.scheduled[game.ID] < 2 {
		t.Fatalf("expected job re-armed on submissions, got %d", jobs.scheduled[game.ID])
	}
}

func TestSubmitAnswerGuards(t *testing.T) {
	ctx := context.Background()
	store := memory.NewGameStore()
	service := newTestService(store, &schedulerRecorder{})

	game, err := service.CreateGame(ctx, "bank-1", "alice", "bob")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	if _, err := service.SubmitAnswer(ctx, game.ID, "mallory", "x"); !errors.Is(err, domain.ErrProgressNotFound) {
		t.Fatalf("expected ErrProgressNotFound, got %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, "missing", "alice", "x"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}

	for range game.Questions {
		if _, err := service.SubmitAnswer(ctx, game.ID, "alice", "x"); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if _, err := service.SubmitAnswer(ctx, game.ID, "alice", "x"); !errors.Is(err, domain.ErrSequenceComplete) {
		t.Fatalf("expected ErrSequenceComplete, got %v", err)
	}
}

func TestSubmitAnswerRejectsFinishedGame(t *testing.T) {
	ctx := context.Background()
	store := memory.NewGameStore()
	service := newTestService(store, &schedulerRecorder{})

	game, err := service.CreateGame(ctx, "bank-1", "alice", "bob")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	err = store.InTx(ctx, func(ctx context.Context, s app.GameStore) error {
		return s.FinishGame(ctx, game.ID, nil, time.Now())
	})
	if err != nil {
		t.Fatalf("force finish: %v", err)
	}

	if _, err := service.SubmitAnswer(ctx, game.ID, "alice", "x"); !errors.Is(err, domain.ErrGameAlreadyCompleted) {
		t.Fatalf("expected ErrGameAlreadyCompleted, got %v", err)
	}
}

// TestLifecycleEndToEnd runs the real registry and engine against the
// in-memory store on short intervals: the faster player wins after the
// slower one is forfeited.
func TestLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := memory.NewGameStore()

	engine := app.NewCompletionEngine(store, 30*time.Millisecond)
	registry := app.NewJobRegistry(engine, 10*time.Millisecond)
	defer registry.Close()
	engine.AttachJobs(registry)

	service := app.NewGameService(store, testBanks(), registry)

	game, err := service.CreateGame(ctx, "bank-1", "alice", "bob")
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	// Bob answers first so his submissions land before alice's completion
	// opens the grace window.
	for _, q := range game.Questions[:2] {
		if _, err := service.SubmitAnswer(ctx, game.ID, "bob", answerFor(q.QuestionID)); err != nil {
			t.Fatalf("bob submit: %v", err)
		}
	}
	for _, q := range game.Questions {
		if _, err := service.SubmitAnswer(ctx, game.ID, "alice", answerFor(q.QuestionID)); err != nil {
			t.Fatalf("alice submit: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	var got *domain.Game
	for time.Now().Before(deadline) {
		got, err = service.GetGame(ctx, game.ID)
		if err != nil {
			t.Fatalf("get game: %v", err)
		}
		if got.Finished() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got == nil || !got.Finished() {
		t.Fatalf("game never finalized")
	}
	if got.WinnerID == nil || *got.WinnerID != "alice" {
		t.Fatalf("expected alice to win, got %v", got.WinnerID)
	}
	if got.First.Score != 6 || got.Second.Score != 2 {
		t.Fatalf("expected 6-2 (5 correct + bonus vs 2), got %d-%d", got.First.Score, got.Second.Score)
	}
	if registry.Active(game.ID) {
		t.Fatalf("job still registered after finalization")
	}
}

func newTestService(store *memory.GameStore, jobs app.JobScheduler) *app.GameService {
	ids := 0
	newID := func() string {
		ids++
		return fmt.Sprintf("game-%d", ids)
	}
	current := gameStart
	now := func() time.Time {
		current = current.Add(time.Second)
		return current
	}
	return app.NewGameServiceWithClock(store, testBanks(), jobs, now, newID)
}

func testBanks() app.BankRepository {
	questions := make([]domain.Question, 0, 8)
	for i := 1; i <= 8; i++ {
		id := fmt.Sprintf("q%d", i)
		questions = append(questions, domain.Question{
			ID:         id,
			Prompt:     "Prompt " + id,
			AnswerText: answerFor(id),
		})
	}
	return memory.NewBankRepository(memory.NewStaticBankLoader(map[string]domain.QuestionBank{
		"bank-1": {ID: "bank-1", Questions: questions},
	}), time.Minute)
}

func answerFor(questionID string) string {
	return "answer-" + questionID
}

type schedulerRecorder struct {
	scheduled map[string]int
}

func (s *schedulerRecorder) Schedule(gameID string) {
	if s.scheduled == nil {
		s.scheduled = make(map[string]int)
	}
	s.scheduled[gameID]++
}
