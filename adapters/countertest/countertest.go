// Package countertest provides a conformance suite for ports.CounterStore
// implementations.
package countertest

import (
	"context"
	"sync"
	"testing"

	"github.com/aveeno350-ctrl/hook-script-studio/ports"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) ports.CounterStore

// Run exercises the CounterStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetNeverSetIsZero", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Get(context.Background(), "never:set")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != 0 {
			t.Errorf("Get = %d, want 0", got)
		}
	})

	t.Run("IncrementDefaultsToZero", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.Increment(ctx, "evt:a", 1); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
		if err := s.Increment(ctx, "evt:a", 41); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}

		got, err := s.Get(ctx, "evt:a")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != 42 {
			t.Errorf("Get = %d, want 42", got)
		}
	})

	t.Run("KeysWithSpecialCharacters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := "evt:generate_success:platform:YouTube Shorts/äö?#"

		if err := s.Increment(ctx, key, 3); err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != 3 {
			t.Errorf("Get = %d, want 3", got)
		}
	})

	t.Run("GetManyAbsentKeysAreZero", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		s.Increment(ctx, "k1", 5)
		s.Increment(ctx, "k3", 7)

		got, err := s.GetMany(ctx, []string{"k1", "k2", "k3"})
		if err != nil {
			t.Fatalf("GetMany failed: %v", err)
		}
		want := map[string]int64{"k1": 5, "k2": 0, "k3": 7}
		if len(got) != len(want) {
			t.Fatalf("GetMany returned %d keys, want %d: %v", len(got), len(want), got)
		}
		for k, v := range want {
			if got[k] != v {
				t.Errorf("GetMany[%q] = %d, want %d", k, got[k], v)
			}
		}
	})

	t.Run("GetManyEmpty", func(t *testing.T) {
		s := newStore(t)
		got, err := s.GetMany(context.Background(), nil)
		if err != nil {
			t.Fatalf("GetMany failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("GetMany(nil) = %v, want empty", got)
		}
	})

	t.Run("ConcurrentIncrementsAreAtomic", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		const workers, perWorker = 8, 25

		var wg sync.WaitGroup
		errs := make(chan error, workers*perWorker)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					if err := s.Increment(ctx, "evt:concurrent", 1); err != nil {
						errs <- err
					}
				}
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Fatalf("concurrent Increment failed: %v", err)
		}

		got, err := s.Get(ctx, "evt:concurrent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != workers*perWorker {
			t.Errorf("Get = %d, want %d", got, workers*perWorker)
		}
	})
}
