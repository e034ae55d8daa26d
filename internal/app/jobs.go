package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"quizduel-service/internal/domain"
)

// CompletionChecker is the per-tick entry point a job drives.
type CompletionChecker interface {
	CheckCompletion(ctx context.Context, gameID string) error
}

// DefaultCheckInterval is how often a game's completion job ticks.
const DefaultCheckInterval = time.Second

// JobRegistry associates at most one recurring completion job with a game.
// Scheduling is idempotent and cancellation of an unknown game is a no-op;
// absence of a job is a normal state, never an error. The registry only
// guards against duplicate timers — overlapping tick executions for one game
// are serialized by the store's transaction, not here.
type JobRegistry struct {
	checker  CompletionChecker
	interval time.Duration

	mu   sync.Mutex
	jobs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

func NewJobRegistry(checker CompletionChecker, interval time.Duration) *JobRegistry {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &JobRegistry{
		checker:  checker,
		interval: interval,
		jobs:     make(map[string]context.CancelFunc),
	}
}

// Schedule starts a recurring completion job for the game unless one is
// already registered.
func (r *JobRegistry) Schedule(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[gameID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.jobs[gameID] = cancel
	r.wg.Add(1)
	go r.run(ctx, gameID)
}

// Cancel stops and removes the game's job, if any.
func (r *JobRegistry) Cancel(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.jobs[gameID]
	if !ok {
		return
	}
	cancel()
	delete(r.jobs, gameID)
}

// Active reports whether a job is currently registered for the game.
func (r *JobRegistry) Active(gameID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[gameID]
	return ok
}

// Close cancels every job and waits for in-flight ticks to drain.
func (r *JobRegistry) Close() {
	r.mu.Lock()
	for gameID, cancel := range r.jobs {
		cancel()
		delete(r.jobs, gameID)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *JobRegistry) run(ctx context.Context, gameID string) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := r.checker.CheckCompletion(ctx, gameID)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrGameAlreadyCompleted):
				// The engine observed a terminal game and already asked
				// for this job's cancellation.
			case errors.Is(err, context.Canceled):
			default:
				// A failed tick never kills the job; the state is re-read
				// on the next interval.
				log.Printf("completion check for game %s failed: %v", gameID, err)
			}
		}
	}
}
