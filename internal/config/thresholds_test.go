package config

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestSnapshotIsStable(t *testing.T) {
	t.Parallel()

	store := NewStore(DefaultThresholds, nil)

	snap := store.Snapshot()
	_, err := store.Adjust(context.Background(), func(th Thresholds) Thresholds {
		th.Similarity = 0.9
		return th
	})
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	if snap.Similarity != DefaultThresholds.Similarity {
		t.Errorf("snapshot mutated after Adjust: got %v", snap.Similarity)
	}
	if got := store.Snapshot().Similarity; got != 0.9 {
		t.Errorf("Snapshot after Adjust = %v, want 0.9", got)
	}
}

func TestAdjustClamps(t *testing.T) {
	t.Parallel()

	store := NewStore(DefaultThresholds, nil)

	next, err := store.Adjust(context.Background(), func(th Thresholds) Thresholds {
		th.Similarity = 1.4
		th.LLMConfidence = -0.2
		return th
	})
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	if next.Similarity != 1 {
		t.Errorf("Similarity = %v, want clamped to 1", next.Similarity)
	}
	if next.LLMConfidence != 0 {
		t.Errorf("LLMConfidence = %v, want clamped to 0", next.LLMConfidence)
	}
}

type fakePersister struct {
	mu     sync.Mutex
	saved  []Thresholds
	stored *Thresholds
	err    error
}

func (p *fakePersister) LoadThresholds(context.Context) (Thresholds, bool, error) {
	if p.stored == nil {
		return Thresholds{}, false, p.err
	}
	return *p.stored, true, p.err
}

func (p *fakePersister) SaveThresholds(_ context.Context, t Thresholds) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, t)
	return p.err
}

func TestAdjustWritesThrough(t *testing.T) {
	t.Parallel()

	persister := &fakePersister{}
	store := NewStore(DefaultThresholds, persister)

	if _, err := store.Adjust(context.Background(), func(th Thresholds) Thresholds {
		th.PatternConfidence = 0.8
		return th
	}); err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	if len(persister.saved) != 1 {
		t.Fatalf("expected one persisted write, got %d", len(persister.saved))
	}
	if persister.saved[0].PatternConfidence != 0.8 {
		t.Errorf("persisted PatternConfidence = %v, want 0.8", persister.saved[0].PatternConfidence)
	}
}

func TestLoadPersisted(t *testing.T) {
	t.Parallel()

	stored := DefaultThresholds
	stored.Similarity = 0.55
	persister := &fakePersister{stored: &stored}
	store := NewStore(DefaultThresholds, persister)

	if err := store.LoadPersisted(context.Background()); err != nil {
		t.Fatalf("LoadPersisted: %v", err)
	}
	if got := store.Snapshot().Similarity; got != 0.55 {
		t.Errorf("Similarity = %v, want persisted 0.55", got)
	}
}

func TestLoadPersistedPropagatesError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("db down")
	store := NewStore(DefaultThresholds, &fakePersister{err: wantErr})

	if err := store.LoadPersisted(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("LoadPersisted error = %v, want wrapped %v", err, wantErr)
	}
}

func TestConcurrentSnapshotAndAdjust(t *testing.T) {
	t.Parallel()

	store := NewStore(DefaultThresholds, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 100 {
				snap := store.Snapshot()
				if snap.Similarity < 0 || snap.Similarity > 1 {
					t.Errorf("snapshot out of range: %v", snap.Similarity)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				_, _ = store.Adjust(context.Background(), func(th Thresholds) Thresholds {
					th.Similarity += 0.001
					return th
				})
			}
		}()
	}
	wg.Wait()
}

func TestThresholdsValidate(t *testing.T) {
	t.Parallel()

	if err := DefaultThresholds.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}

	bad := DefaultThresholds
	bad.Similarity = 1.2
	if err := bad.Validate(); !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("expected ErrInvalidThreshold, got %v", err)
	}
}
