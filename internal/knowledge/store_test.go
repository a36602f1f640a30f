package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora/internal/genai"
	"github.com/lumora-ai/lumora/internal/log"
)

// fakeQuerier implements Querier in memory for unit tests.
type fakeQuerier struct {
	docs      map[uuid.UUID]Document
	results   []Result
	searchErr error
	upsertErr error

	lastSourceType string
	lastLimit      int
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{docs: make(map[uuid.UUID]Document)}
}

func (f *fakeQuerier) UpsertDocument(_ context.Context, doc Document, _ []float32) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeQuerier) SearchDocuments(_ context.Context, _ uuid.UUID, _ []float32, sourceType string, limit int) ([]Result, error) {
	f.lastSourceType = sourceType
	f.lastLimit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.results) > limit {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func (f *fakeQuerier) GetDocument(_ context.Context, _ uuid.UUID, id uuid.UUID) (Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (f *fakeQuerier) DeleteDocument(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	if _, ok := f.docs[id]; !ok {
		return ErrNotFound
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeQuerier) CountDocuments(context.Context, uuid.UUID) (int64, error) {
	return int64(len(f.docs)), nil
}

func newTestStore(t *testing.T, q Querier) *Store {
	t.Helper()
	store, err := New(q, genai.NewFakeEmbedder(), log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestAddRequiresTenant(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, newFakeQuerier())
	err := store.Add(context.Background(), Document{Content: "no tenant"})
	if err == nil {
		t.Fatal("expected error for missing tenant ID")
	}
}

func TestAddAssignsID(t *testing.T) {
	t.Parallel()

	q := newFakeQuerier()
	store := newTestStore(t, q)

	doc := Document{TenantID: uuid.New(), Content: "refund policy"}
	if err := store.Add(context.Background(), doc); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(q.docs) != 1 {
		t.Fatalf("stored %d docs, want 1", len(q.docs))
	}
	for id := range q.docs {
		if id == uuid.Nil {
			t.Error("document stored with nil ID")
		}
	}
}

func TestSearchFiltersBySimilarity(t *testing.T) {
	t.Parallel()

	q := newFakeQuerier()
	q.results = []Result{
		{Document: Document{Title: "close"}, Similarity: 0.92},
		{Document: Document{Title: "medium"}, Similarity: 0.74},
		{Document: Document{Title: "far"}, Similarity: 0.41},
	}
	store := newTestStore(t, q)

	results, err := store.Search(context.Background(), uuid.New(), "refunds",
		WithTopK(5), WithMinSimilarity(0.7))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Document.Title != "close" || results[1].Document.Title != "medium" {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestSearchEmptyIsNotError(t *testing.T) {
	t.Parallel()

	q := newFakeQuerier()
	q.results = []Result{{Document: Document{Title: "weak"}, Similarity: 0.2}}
	store := newTestStore(t, q)

	results, err := store.Search(context.Background(), uuid.New(), "unrelated",
		WithMinSimilarity(0.7))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestSearchPassesSourceTypeAndLimit(t *testing.T) {
	t.Parallel()

	q := newFakeQuerier()
	store := newTestStore(t, q)

	_, err := store.Search(context.Background(), uuid.New(), "q",
		WithTopK(3), WithSourceType(SourceTypeLearned))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if q.lastSourceType != SourceTypeLearned {
		t.Errorf("sourceType = %q, want %q", q.lastSourceType, SourceTypeLearned)
	}
	if q.lastLimit != 3 {
		t.Errorf("limit = %d, want 3", q.lastLimit)
	}
}

func TestSearchPropagatesEmbedderFailure(t *testing.T) {
	t.Parallel()

	embedder := genai.NewFakeEmbedder()
	embedder.Err = errors.New("provider down")
	store, err := New(newFakeQuerier(), embedder, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := store.Search(context.Background(), uuid.New(), "q"); err == nil {
		t.Fatal("expected error when embedder fails")
	}
}

func TestDeleteMissingDocument(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, newFakeQuerier())
	err := store.Delete(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete = %v, want ErrNotFound", err)
	}
}
