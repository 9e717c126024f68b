package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/VanDung-dev/root2avro/root2avro-engine/data"
	"github.com/VanDung-dev/root2avro/root2avro-engine/tree"
)

func echo(row tree.Row) (data.Record, error) {
	return data.NewRecord(row.Entry, []string{"v"}, []any{row.Values["v"]}), nil
}

func TestNewWorkerPool(t *testing.T) {
	pool := NewWorkerPool(context.Background(), "test", 4, echo)
	defer pool.Shutdown()

	stats := pool.GetStats()
	if stats.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", stats.Workers)
	}
	if stats.Name != "test" {
		t.Errorf("Expected name 'test', got %s", stats.Name)
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running")
	}
}

func TestWorkerPoolDefaultsToOneWorker(t *testing.T) {
	pool := NewWorkerPool(context.Background(), "test", 0, echo)
	defer pool.Shutdown()

	if pool.GetStats().Workers != 1 {
		t.Errorf("Expected 1 worker, got %d", pool.GetStats().Workers)
	}
}

func TestWorkerPoolSubmit(t *testing.T) {
	pool := NewWorkerPool(context.Background(), "test", 2, echo)
	defer pool.Shutdown()

	row := tree.Row{Entry: 5, Values: map[string]any{"v": int32(9)}}
	if err := pool.Submit(context.Background(), NewTask(row)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case result := <-pool.Results():
		if result.Error != nil {
			t.Fatalf("Unexpected error: %v", result.Error)
		}
		if result.Entry != 5 {
			t.Errorf("Expected entry 5, got %d", result.Entry)
		}
		if v, _ := result.Record.Get("v"); v != int32(9) {
			t.Errorf("Expected value 9, got %v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for result")
	}
}

func TestWorkerPoolSubmitWithError(t *testing.T) {
	expected := errors.New("bad row")
	pool := NewWorkerPool(context.Background(), "test", 2, func(row tree.Row) (data.Record, error) {
		return data.Record{}, expected
	})
	defer pool.Shutdown()

	_ = pool.Submit(context.Background(), NewTask(tree.Row{Entry: 1}))

	select {
	case result := <-pool.Results():
		if !errors.Is(result.Error, expected) {
			t.Errorf("Expected %v, got %v", expected, result.Error)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for result")
	}

	if stats := pool.GetStats(); stats.Failed != 1 {
		t.Errorf("Expected 1 failed, got %d", stats.Failed)
	}
}

func TestWorkerPoolRecoversPanic(t *testing.T) {
	pool := NewWorkerPool(context.Background(), "test", 1, func(row tree.Row) (data.Record, error) {
		panic("boom")
	})
	defer pool.Shutdown()

	_ = pool.Submit(context.Background(), NewTask(tree.Row{Entry: 3}))

	select {
	case result := <-pool.Results():
		if result.Error == nil {
			t.Fatal("Expected error from panicking projection")
		}
		if result.Entry != 3 {
			t.Errorf("Expected entry 3, got %d", result.Entry)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for result")
	}
}

func TestWorkerPoolDrainDeliversEverything(t *testing.T) {
	pool := NewWorkerPool(context.Background(), "test", 8, func(row tree.Row) (data.Record, error) {
		time.Sleep(time.Duration(row.Entry%3) * time.Millisecond)
		return echo(row)
	})

	const n = 200
	var received int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range pool.Results() {
			atomic.AddInt64(&received, 1)
		}
	}()

	for i := int64(0); i < n; i++ {
		if err := pool.Submit(context.Background(), NewTask(tree.Row{Entry: i})); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}
	pool.Drain()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for results channel to close")
	}
	if received != n {
		t.Errorf("Expected %d results, got %d", n, received)
	}
	if pool.GetStats().Completed != n {
		t.Errorf("Expected %d completed, got %d", n, pool.GetStats().Completed)
	}
}

func TestWorkerPoolSubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(context.Background(), "test", 2, echo)
	pool.Shutdown()

	if pool.IsRunning() {
		t.Error("Pool should not be running")
	}
	if err := pool.Submit(context.Background(), NewTask(tree.Row{})); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed, got %v", err)
	}
	// A second shutdown is a no-op.
	pool.Shutdown()
	pool.Drain()
}

func TestWorkerPoolSubmitCancelled(t *testing.T) {
	block := make(chan struct{})
	pool := NewWorkerPool(context.Background(), "test", 1, func(row tree.Row) (data.Record, error) {
		<-block
		return echo(row)
	})
	defer func() {
		close(block)
		pool.Shutdown()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var err error
	for i := 0; i < 1000 && err == nil; i++ {
		err = pool.Submit(ctx, NewTask(tree.Row{Entry: int64(i)}))
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
