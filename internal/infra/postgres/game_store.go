package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quizduel-service/internal/app"
	"quizduel-service/internal/domain"
)

// GameStore persists games in Postgres via bun and doubles as the
// app.Transactor. Every unit of work runs inside a database transaction;
// GetGameByID takes a row lock on the game so overlapping completion ticks
// for one game serialize on the store.
type GameStore struct {
	db *bun.DB
}

func NewGameStore(db *bun.DB) *GameStore {
	return &GameStore{db: db}
}

// InTx implements app.Transactor on top of bun's RunInTx.
func (s *GameStore) InTx(ctx context.Context, fn func(ctx context.Context, store app.GameStore) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &txStore{db: tx})
	})
}

type txStore struct {
	db bun.IDB
}

type gameRecord struct {
	bun.BaseModel `bun:"table:games,alias:g"`

	ID         string     `bun:"id,pk"`
	BankID     string     `bun:"bank_id,notnull"`
	StartedAt  time.Time  `bun:"started_at,notnull"`
	FinishedAt *time.Time `bun:"finished_at"`
	WinnerID   *string    `bun:"winner_id"`
}

type progressRecord struct {
	bun.BaseModel `bun:"table:player_progress,alias:pp"`

	ID           int64      `bun:"id,pk,autoincrement"`
	GameID       string     `bun:"game_id,notnull"`
	PlayerID     string     `bun:"player_id,notnull"`
	Slot         int        `bun:"slot,notnull"`
	Score        int        `bun:"score,notnull"`
	AnswersCount int        `bun:"answers_count,notnull"`
	CompletedAt  *time.Time `bun:"completed_at"`
}

type answerRecord struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID         int64     `bun:"id,pk,autoincrement"`
	GameID     string    `bun:"game_id,notnull"`
	PlayerID   string    `bun:"player_id,notnull"`
	QuestionID string    `bun:"question_id,notnull"`
	Text       *string   `bun:"text"`
	Correct    bool      `bun:"correct,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

type assignmentRecord struct {
	bun.BaseModel `bun:"table:game_questions,alias:gq"`

	GameID     string `bun:"game_id,notnull"`
	Position   int    `bun:"position,notnull"`
	QuestionID string `bun:"question_id,notnull"`
}

func (t *txStore) CreateGame(ctx context.Context, game *domain.Game) error {
	record := &gameRecord{
		ID:         game.ID,
		BankID:     game.BankID,
		StartedAt:  game.StartedAt,
		FinishedAt: game.FinishedAt,
		WinnerID:   game.WinnerID,
	}
	if _, err := t.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return fmt.Errorf("insert game: %w", err)
	}

	progresses := []progressRecord{
		{GameID: game.ID, PlayerID: game.First.PlayerID, Slot: 0},
		{GameID: game.ID, PlayerID: game.Second.PlayerID, Slot: 1},
	}
	if _, err := t.db.NewInsert().Model(&progresses).Exec(ctx); err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}

	assignments := make([]assignmentRecord, 0, len(game.Questions))
	for _, q := range game.Questions {
		assignments = append(assignments, assignmentRecord{
			GameID:     game.ID,
			Position:   q.Position,
			QuestionID: q.QuestionID,
		})
	}
	if _, err := t.db.NewInsert().Model(&assignments).Exec(ctx); err != nil {
		return fmt.Errorf("insert assignments: %w", err)
	}
	return nil
}

func (t *txStore) GetGameByID(ctx context.Context, gameID string) (*domain.Game, error) {
	record := new(gameRecord)
	err := t.db.NewSelect().Model(record).Where("g.id = ?", gameID).For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}

	var progresses []progressRecord
	err = t.db.NewSelect().Model(&progresses).
		Where("pp.game_id = ?", gameID).
		Order("pp.slot ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if len(progresses) != 2 {
		return nil, fmt.Errorf("game %s has %d progress rows, want 2", gameID, len(progresses))
	}

	var answers []answerRecord
	err = t.db.NewSelect().Model(&answers).
		Where("a.game_id = ?", gameID).
		Order("a.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	var assignments []assignmentRecord
	err = t.db.NewSelect().Model(&assignments).
		Where("gq.game_id = ?", gameID).
		Order("gq.position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}

	game := &domain.Game{
		ID:         record.ID,
		BankID:     record.BankID,
		StartedAt:  record.StartedAt,
		FinishedAt: record.FinishedAt,
		WinnerID:   record.WinnerID,
		First:      toProgress(progresses[0], answers),
		Second:     toProgress(progresses[1], answers),
	}
	game.Questions = make([]domain.QuestionAssignment, 0, len(assignments))
	for _, a := range assignments {
		game.Questions = append(game.Questions, domain.QuestionAssignment{
			Position:   a.Position,
			QuestionID: a.QuestionID,
		})
	}
	return game, nil
}

func (t *txStore) SaveAnswer(ctx context.Context, gameID, playerID string, answer domain.Answer) error {
	record := &answerRecord{
		GameID:     gameID,
		PlayerID:   playerID,
		QuestionID: answer.QuestionID,
		Text:       answer.Text,
		Correct:    answer.Correct,
		CreatedAt:  answer.CreatedAt,
	}
	if _, err := t.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (t *txStore) SaveProgress(ctx context.Context, gameID string, progress *domain.PlayerProgress) error {
	var completedAt *time.Time
	if progress.Completion.Done {
		at := progress.Completion.At
		completedAt = &at
	}
	res, err := t.db.NewUpdate().Model((*progressRecord)(nil)).
		Set("score = ?", progress.Score).
		Set("answers_count = ?", progress.AnswersCount).
		Set("completed_at = ?", completedAt).
		Where("game_id = ? AND player_id = ?", gameID, progress.PlayerID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return domain.ErrProgressNotFound
	}
	return nil
}

// FinishGame sets the terminal state exactly once: the conditional update
// makes a second finalize attempt observable as ErrGameAlreadyCompleted even
// if two transactions raced to this point.
func (t *txStore) FinishGame(ctx context.Context, gameID string, winnerID *string, finishedAt time.Time) error {
	res, err := t.db.NewUpdate().Model((*gameRecord)(nil)).
		Set("finished_at = ?", finishedAt).
		Set("winner_id = ?", winnerID).
		Where("id = ? AND finished_at IS NULL", gameID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("finish game: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return domain.ErrGameAlreadyCompleted
	}
	return nil
}

func toProgress(record progressRecord, answers []answerRecord) domain.PlayerProgress {
	progress := domain.PlayerProgress{
		PlayerID:     record.PlayerID,
		Score:        record.Score,
		AnswersCount: record.AnswersCount,
	}
	if record.CompletedAt != nil {
		progress.Completion = domain.CompletedAt(*record.CompletedAt)
	}
	for _, a := range answers {
		if a.PlayerID != record.PlayerID {
			continue
		}
		progress.Answers = append(progress.Answers, domain.Answer{
			QuestionID: a.QuestionID,
			Text:       a.Text,
			Correct:    a.Correct,
			CreatedAt:  a.CreatedAt,
		})
	}
	return progress
}
