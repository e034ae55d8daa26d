package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"quizduel-service/internal/app"
	"quizduel-service/internal/domain"
)

func TestScheduleIsIdempotent(t *testing.T) {
	checker := &countingChecker{}
	registry := app.NewJobRegistry(checker, 5*time.Millisecond)
	defer registry.Close()

	registry.Schedule("g1")
	registry.Schedule("g1")
	registry.Schedule("g1")

	time.Sleep(40 * time.Millisecond)
	registry.Cancel("g1")
	ticks := checker.count("g1")
	time.Sleep(20 * time.Millisecond)

	if ticks == 0 {
		t.Fatalf("expected at least one tick")
	}
	// A duplicate schedule must not have spawned a second timer; ticks stop
	// after cancellation.
	if after := checker.count("g1"); after > ticks+1 {
		t.Fatalf("ticks continued after cancel: %d -> %d", ticks, after)
	}
}

func TestCancelUnknownGameIsNoop(t *testing.T) {
	registry := app.NewJobRegistry(&countingChecker{}, time.Second)
	defer registry.Close()

	// Absence is a normal state, not an error.
	registry.Cancel("never-scheduled")
	if registry.Active("never-scheduled") {
		t.Fatalf("cancel created a job")
	}
}

func TestRescheduleAfterCancel(t *testing.T) {
	checker := &countingChecker{}
	registry := app.NewJobRegistry(checker, 5*time.Millisecond)
	defer registry.Close()

	registry.Schedule("g1")
	if !registry.Active("g1") {
		t.Fatalf("expected job registered")
	}
	registry.Cancel("g1")
	if registry.Active("g1") {
		t.Fatalf("expected job removed")
	}

	registry.Schedule("g1")
	if !registry.Active("g1") {
		t.Fatalf("expected job re-registered")
	}
}

func TestFailingTicksKeepTheJobAlive(t *testing.T) {
	checker := &countingChecker{err: context.DeadlineExceeded}
	registry := app.NewJobRegistry(checker, 5*time.Millisecond)
	defer registry.Close()

	registry.Schedule("g1")
	time.Sleep(40 * time.Millisecond)

	if checker.count("g1") < 2 {
		t.Fatalf("expected retries after failed ticks, got %d", checker.count("g1"))
	}
	if !registry.Active("g1") {
		t.Fatalf("failed tick killed the job")
	}
}

func TestTerminalGameTickDoesNotKillOtherJobs(t *testing.T) {
	checker := &countingChecker{err: domain.ErrGameAlreadyCompleted}
	registry := app.NewJobRegistry(checker, 5*time.Millisecond)
	defer registry.Close()

	registry.Schedule("g1")
	registry.Schedule("g2")
	time.Sleep(30 * time.Millisecond)

	if !registry.Active("g1") || !registry.Active("g2") {
		t.Fatalf("terminal-state report cancelled a job on the registry's behalf")
	}
}

type countingChecker struct {
	err error

	mu    sync.Mutex
	ticks map[string]int
}

func (c *countingChecker) CheckCompletion(_ context.Context, gameID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticks == nil {
		c.ticks = make(map[string]int)
	}
	c.ticks[gameID]++
	return c.err
}

func (c *countingChecker) count(gameID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks[gameID]
}
