package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTimersFireFromRunOnce(t *testing.T) {
	c, _, clock := newTestCore(t, 1)

	fired := 0
	if _, err := c.Scheduler().AddTimeout(10*time.Millisecond, 20*time.Millisecond, func(any) bool {
		fired++
		return false
	}, nil); err != nil {
		t.Fatalf("AddTimeout() error = %v", err)
	}

	runOnce(t, c)
	if fired != 0 {
		t.Fatalf("fired = %d before the window opened", fired)
	}

	clock.Advance(20 * time.Millisecond)
	runOnce(t, c)
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
	if c.Iterations() != 2 {
		t.Errorf("Iterations() = %d, want 2", c.Iterations())
	}
}

func TestRunStopsOnQuit(t *testing.T) {
	c, _, _ := newTestCore(t, 1)

	if _, err := c.Scheduler().AddTimeout(0, 0, func(any) bool {
		c.Quit()
		return false
	}, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if c.Iterations() == 0 {
		t.Error("Run() returned without iterating")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	c, _, _ := newTestCore(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRunAfterClose(t *testing.T) {
	c, _, _ := newTestCore(t, 1)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Run(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Run() error = %v, want ErrClosed", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
