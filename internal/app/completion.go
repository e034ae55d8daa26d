package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quizduel-service/internal/domain"
)

// GameStore abstracts game persistence (in-memory, Postgres, etc). All
// mutators must reject terminal games with domain.ErrGameAlreadyCompleted.
type GameStore interface {
	CreateGame(ctx context.Context, game *domain.Game) error
	GetGameByID(ctx context.Context, gameID string) (*domain.Game, error)
	SaveAnswer(ctx context.Context, gameID, playerID string, answer domain.Answer) error
	SaveProgress(ctx context.Context, gameID string, progress *domain.PlayerProgress) error
	FinishGame(ctx context.Context, gameID string, winnerID *string, finishedAt time.Time) error
}

// Transactor runs a unit of work against the store atomically: the work's
// writes commit only when it returns nil, otherwise they roll back.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, store GameStore) error) error
}

// JobCanceller is the slice of the job registry the engine needs to retire
// its own timer once a game is finalized.
type JobCanceller interface {
	Cancel(gameID string)
}

const (
	// DefaultGracePeriod is how long a straggler may keep answering after
	// the other player has completed the sequence.
	DefaultGracePeriod = 10 * time.Second

	// forfeitStep spaces autocompleted answer timestamps so ordering within
	// a progress stays strict without colliding with real submissions.
	forfeitStep = 100 * time.Millisecond

	// bonusPoints is awarded to a player who completed strictly first.
	bonusPoints = 1
)

// CompletionEngine decides when a game has ended, forfeits the straggler's
// remaining answers after the grace period, applies the first-finisher bonus
// and records the winner. Every tick runs as one transaction, so a failed
// tick leaves the game untouched and the next tick retries from scratch.
type CompletionEngine struct {
	tx    Transactor
	jobs  JobCanceller
	grace time.Duration
	now   func() time.Time
}

func NewCompletionEngine(tx Transactor, grace time.Duration) *CompletionEngine {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &CompletionEngine{tx: tx, grace: grace, now: time.Now}
}

// NewCompletionEngineWithClock is test-only for deterministic timestamps.
func NewCompletionEngineWithClock(tx Transactor, grace time.Duration, now func() time.Time) *CompletionEngine {
	engine := NewCompletionEngine(tx, grace)
	engine.now = now
	return engine
}

// AttachJobs wires the registry the engine cancels its timer through. The
// registry is attached after construction because it in turn ticks the engine.
func (e *CompletionEngine) AttachJobs(jobs JobCanceller) {
	e.jobs = jobs
}

// CheckCompletion is the per-tick entry point. It returns
// domain.ErrGameAlreadyCompleted when the game was already terminal, which
// callers may treat as benign; any other error means the tick rolled back
// and will be retried on the next interval.
func (e *CompletionEngine) CheckCompletion(ctx context.Context, gameID string) error {
	finalized := false
	err := e.tx.InTx(ctx, func(ctx context.Context, store GameStore) error {
		done, err := e.tick(ctx, store, gameID)
		finalized = done
		return err
	})

	if errors.Is(err, domain.ErrGameAlreadyCompleted) {
		// A previous tick (or a concurrent one) already finalized the game;
		// make sure our timer is gone and report the terminal state upward.
		e.cancelJob(gameID)
		return err
	}
	if err != nil {
		return err
	}
	if finalized {
		e.cancelJob(gameID)
	}
	return nil
}

// tick runs the completion check for one game inside an open transaction and
// reports whether it finalized the game.
func (e *CompletionEngine) tick(ctx context.Context, store GameStore, gameID string) (bool, error) {
	game, err := store.GetGameByID(ctx, gameID)
	if err != nil {
		return false, err
	}
	if game.Finished() {
		return false, domain.ErrGameAlreadyCompleted
	}

	finisher, straggler, ok := splitByCompletion(game)
	if !ok {
		// Neither player has completed; the game simply continues.
		return false, nil
	}

	now := e.now()
	if !straggler.Completion.Done {
		deadline := finisher.Completion.At.Add(e.grace)
		if now.Before(deadline) {
			return false, nil
		}
		if err := e.autocomplete(ctx, store, game, straggler, now); err != nil {
			return false, err
		}
		straggler.Completion = domain.CompletedAt(now)
	}

	// Bonus goes to a player who genuinely finished first; a dead-heat
	// double completion awards nothing.
	if finisher.Completion.Before(straggler.Completion) {
		finisher.Score += bonusPoints
	}

	if err := store.SaveProgress(ctx, game.ID, finisher); err != nil {
		return false, fmt.Errorf("save finisher progress: %w", err)
	}
	if err := store.SaveProgress(ctx, game.ID, straggler); err != nil {
		return false, fmt.Errorf("save straggler progress: %w", err)
	}
	if err := store.FinishGame(ctx, game.ID, winnerID(game), now); err != nil {
		return false, fmt.Errorf("finish game: %w", err)
	}
	return true, nil
}

// autocomplete fills the straggler's unanswered slots with forfeited answers:
// no text, incorrect, timestamps strictly after the last recorded answer.
func (e *CompletionEngine) autocomplete(ctx context.Context, store GameStore, game *domain.Game, straggler *domain.PlayerProgress, now time.Time) error {
	ts := now
	if last := straggler.LastAnswerAt(); !last.Before(ts) {
		ts = last
	}
	for i := straggler.AnswersCount; i < len(game.Questions); i++ {
		ts = ts.Add(forfeitStep)
		answer := domain.Answer{
			QuestionID: game.Questions[i].QuestionID,
			Text:       nil,
			Correct:    false,
			CreatedAt:  ts,
		}
		if err := store.SaveAnswer(ctx, game.ID, straggler.PlayerID, answer); err != nil {
			return fmt.Errorf("save forfeited answer: %w", err)
		}
		straggler.Answers = append(straggler.Answers, answer)
		straggler.AnswersCount++
	}
	return nil
}

func (e *CompletionEngine) cancelJob(gameID string) {
	if e.jobs != nil {
		e.jobs.Cancel(gameID)
	}
}

// splitByCompletion labels the game's players for the finalize pass. With a
// single completion that player is the finisher; with two, the earlier one.
// ok is false while neither player has completed.
func splitByCompletion(game *domain.Game) (finisher, straggler *domain.PlayerProgress, ok bool) {
	first, second := &game.First, &game.Second
	switch {
	case first.Completion.Done && second.Completion.Done:
		if second.Completion.Before(first.Completion) {
			return second, first, true
		}
		return first, second, true
	case first.Completion.Done:
		return first, second, true
	case second.Completion.Done:
		return second, first, true
	}
	return nil, nil, false
}

// winnerID compares post-bonus scores; nil means a draw.
func winnerID(game *domain.Game) *string {
	switch {
	case game.First.Score > game.Second.Score:
		id := game.First.PlayerID
		return &id
	case game.Second.Score > game.First.Score:
		id := game.Second.PlayerID
		return &id
	}
	return nil
}
