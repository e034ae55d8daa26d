package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quizduel-service/internal/app"
	"quizduel-service/internal/domain"
)

// GameStore is an in-memory implementation of app.GameStore and
// app.Transactor, useful for tests and demo runs. A transaction holds the
// store-wide mutex for its duration, which also serializes overlapping
// completion ticks the way Postgres row locks do; rollback restores
// snapshots of every game the work touched.
type GameStore struct {
	mu    sync.Mutex
	games map[string]*domain.Game
}

func NewGameStore() *GameStore {
	return &GameStore{games: make(map[string]*domain.Game)}
}

// InTx implements app.Transactor.
func (s *GameStore) InTx(ctx context.Context, fn func(ctx context.Context, store app.GameStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txStore{store: s, snapshots: make(map[string]*domain.Game)}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// txStore gives transactional work direct access to the locked store while
// remembering the pre-image of every game it mutates.
type txStore struct {
	store     *GameStore
	snapshots map[string]*domain.Game
}

func (t *txStore) CreateGame(_ context.Context, game *domain.Game) error {
	if _, ok := t.store.games[game.ID]; ok {
		return fmt.Errorf("game %s already exists", game.ID)
	}
	t.snapshots[game.ID] = nil
	t.store.games[game.ID] = cloneGame(game)
	return nil
}

func (t *txStore) GetGameByID(_ context.Context, gameID string) (*domain.Game, error) {
	game, ok := t.store.games[gameID]
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	return cloneGame(game), nil
}

func (t *txStore) SaveAnswer(_ context.Context, gameID, playerID string, answer domain.Answer) error {
	game, err := t.mutable(gameID)
	if err != nil {
		return err
	}
	progress, ok := game.ProgressOf(playerID)
	if !ok {
		return domain.ErrProgressNotFound
	}
	progress.Answers = append(progress.Answers, answer)
	progress.AnswersCount = len(progress.Answers)
	return nil
}

func (t *txStore) SaveProgress(_ context.Context, gameID string, progress *domain.PlayerProgress) error {
	game, err := t.mutable(gameID)
	if err != nil {
		return err
	}
	stored, ok := game.ProgressOf(progress.PlayerID)
	if !ok {
		return domain.ErrProgressNotFound
	}
	stored.Score = progress.Score
	stored.AnswersCount = progress.AnswersCount
	stored.Completion = progress.Completion
	return nil
}

func (t *txStore) FinishGame(_ context.Context, gameID string, winnerID *string, finishedAt time.Time) error {
	game, err := t.mutable(gameID)
	if err != nil {
		return err
	}
	at := finishedAt
	game.FinishedAt = &at
	if winnerID != nil {
		id := *winnerID
		game.WinnerID = &id
	}
	return nil
}

// mutable returns the live game record, snapshotting it on first mutation
// and rejecting terminal games.
func (t *txStore) mutable(gameID string) (*domain.Game, error) {
	game, ok := t.store.games[gameID]
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	if game.Finished() {
		return nil, domain.ErrGameAlreadyCompleted
	}
	if _, seen := t.snapshots[gameID]; !seen {
		t.snapshots[gameID] = cloneGame(game)
	}
	return game, nil
}

func (t *txStore) rollback() {
	for gameID, snapshot := range t.snapshots {
		if snapshot == nil {
			delete(t.store.games, gameID)
			continue
		}
		t.store.games[gameID] = snapshot
	}
}

func cloneGame(game *domain.Game) *domain.Game {
	clone := *game
	clone.First = cloneProgress(game.First)
	clone.Second = cloneProgress(game.Second)
	clone.Questions = append([]domain.QuestionAssignment(nil), game.Questions...)
	if game.FinishedAt != nil {
		at := *game.FinishedAt
		clone.FinishedAt = &at
	}
	if game.WinnerID != nil {
		id := *game.WinnerID
		clone.WinnerID = &id
	}
	return &clone
}

func cloneProgress(progress domain.PlayerProgress) domain.PlayerProgress {
	clone := progress
	clone.Answers = make([]domain.Answer, len(progress.Answers))
	for i, answer := range progress.Answers {
		clone.Answers[i] = answer
		if answer.Text != nil {
			text := *answer.Text
			clone.Answers[i].Text = &text
		}
	}
	return clone
}
