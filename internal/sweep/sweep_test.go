package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskRunsUntilStopped(t *testing.T) {
	var calls atomic.Int64
	task := New("test", 5*time.Millisecond, func(context.Context) (int64, error) {
		calls.Add(1)
		return 1, nil
	}, nil)

	task.Start(context.Background())
	task.Start(context.Background())
	if !task.Running() {
		t.Fatalf("expected task to be running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("sweep did not run, calls=%d", calls.Load())
		}
		time.Sleep(2 * time.Millisecond)
	}

	task.Stop()
	if task.Running() {
		t.Fatalf("expected task to be stopped")
	}
	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != after {
		t.Fatalf("sweep ran after Stop")
	}

	task.Stop()
}

func TestTaskStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := New("parent", time.Millisecond, func(context.Context) (int64, error) {
		return 0, errors.New("transient")
	}, nil)
	task.Start(ctx)
	cancel()
	task.Stop()
}

func TestDisabledTaskNeverStarts(t *testing.T) {
	task := New("off", 0, func(context.Context) (int64, error) { return 0, nil }, nil)
	task.Start(context.Background())
	if task.Running() {
		t.Fatalf("zero interval must not start")
	}

	var nilTask *Task
	nilTask.Start(context.Background())
	nilTask.Stop()
	if n, err := nilTask.RunOnce(context.Background()); n != 0 || err != nil {
		t.Fatalf("nil task RunOnce: %d %v", n, err)
	}
}
