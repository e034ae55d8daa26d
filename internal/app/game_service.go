package app

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"quizduel-service/internal/domain"
)

// BankRepository loads question banks (from cache/backing store).
type BankRepository interface {
	GetBank(ctx context.Context, bankID string) (domain.QuestionBank, error)
}

// JobScheduler is the slice of the job registry the lifecycle flow uses to
// arm a game's completion job.
type JobScheduler interface {
	Schedule(gameID string)
}

// AnswerResult summarizes the outcome of one submission for the caller.
type AnswerResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Score      int    `json:"score"`
	Completed  bool   `json:"completed"`
}

// GameService is the game-lifecycle flow surrounding the completion engine:
// it pairs two players into a game, records player-submitted answers and
// keeps the per-game completion job armed.
type GameService struct {
	tx    Transactor
	banks BankRepository
	jobs  JobScheduler
	now   func() time.Time
	newID func() string
}

func NewGameService(tx Transactor, banks BankRepository, jobs JobScheduler) *GameService {
	return &GameService{
		tx:    tx,
		banks: banks,
		jobs:  jobs,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// NewGameServiceWithClock is test-only for deterministic timestamps and IDs.
func NewGameServiceWithClock(tx Transactor, banks BankRepository, jobs JobScheduler, now func() time.Time, newID func() string) *GameService {
	s := NewGameService(tx, banks, jobs)
	s.now = now
	s.newID = newID
	return s
}

// CreateGame pairs two players over a fresh question sequence drawn from the
// bank, persists the game and arms its completion job.
func (s *GameService) CreateGame(ctx context.Context, bankID, firstPlayerID, secondPlayerID string) (*domain.Game, error) {
	bank, err := s.banks.GetBank(ctx, bankID)
	if err != nil {
		return nil, err
	}
	if len(bank.Questions) < domain.QuestionsPerGame {
		return nil, domain.ErrBankTooSmall
	}

	game := &domain.Game{
		ID:        s.newID(),
		BankID:    bankID,
		First:     domain.PlayerProgress{PlayerID: firstPlayerID},
		Second:    domain.PlayerProgress{PlayerID: secondPlayerID},
		Questions: s.drawQuestions(bank),
		StartedAt: s.now(),
	}

	err = s.tx.InTx(ctx, func(ctx context.Context, store GameStore) error {
		return store.CreateGame(ctx, game)
	})
	if err != nil {
		return nil, err
	}

	s.jobs.Schedule(game.ID)
	return game, nil
}

// SubmitAnswer records one player answer against the next unanswered question
// in the shared sequence. The fifth answer marks the player's completion.
// The completion job is re-armed afterwards in case the process restarted
// between game creation and now.
func (s *GameService) SubmitAnswer(ctx context.Context, gameID, playerID, text string) (AnswerResult, error) {
	var result AnswerResult
	err := s.tx.InTx(ctx, func(ctx context.Context, store GameStore) error {
		game, err := store.GetGameByID(ctx, gameID)
		if err != nil {
			return err
		}
		if game.Finished() {
			return domain.ErrGameAlreadyCompleted
		}
		progress, ok := game.ProgressOf(playerID)
		if !ok {
			return domain.ErrProgressNotFound
		}
		if progress.AnswersCount >= len(game.Questions) {
			return domain.ErrSequenceComplete
		}

		bank, err := s.banks.GetBank(ctx, game.BankID)
		if err != nil {
			return err
		}
		assignment := game.Questions[progress.AnswersCount]
		question, ok := bank.Question(assignment.QuestionID)
		if !ok {
			return domain.ErrQuestionNotFound
		}

		now := s.now()
		// Answer timestamps within one progress are strictly increasing.
		if last := progress.LastAnswerAt(); !now.After(last) {
			now = last.Add(time.Millisecond)
		}

		submitted := text
		answer := domain.Answer{
			QuestionID: question.ID,
			Text:       &submitted,
			Correct:    answerMatches(text, question.AnswerText),
			CreatedAt:  now,
		}
		if err := store.SaveAnswer(ctx, gameID, playerID, answer); err != nil {
			return err
		}

		progress.Answers = append(progress.Answers, answer)
		progress.AnswersCount++
		if answer.Correct {
			progress.Score++
		}
		if progress.AnswersCount == len(game.Questions) {
			progress.Completion = domain.CompletedAt(now)
		}
		if err := store.SaveProgress(ctx, gameID, progress); err != nil {
			return err
		}

		result = AnswerResult{
			QuestionID: question.ID,
			Correct:    answer.Correct,
			Score:      progress.Score,
			Completed:  progress.Completion.Done,
		}
		return nil
	})
	if err != nil {
		return AnswerResult{}, err
	}

	s.jobs.Schedule(gameID)
	return result, nil
}

// GetGame returns the current state of a game.
func (s *GameService) GetGame(ctx context.Context, gameID string) (*domain.Game, error) {
	var game *domain.Game
	err := s.tx.InTx(ctx, func(ctx context.Context, store GameStore) error {
		var err error
		game, err = store.GetGameByID(ctx, gameID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return game, nil
}

// drawQuestions picks a random question sequence of the fixed game length.
func (s *GameService) drawQuestions(bank domain.QuestionBank) []domain.QuestionAssignment {
	picked := rand.Perm(len(bank.Questions))[:domain.QuestionsPerGame]
	assignments := make([]domain.QuestionAssignment, 0, domain.QuestionsPerGame)
	for position, idx := range picked {
		assignments = append(assignments, domain.QuestionAssignment{
			Position:   position,
			QuestionID: bank.Questions[idx].ID,
		})
	}
	return assignments
}

func answerMatches(submitted, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(expected))
}
