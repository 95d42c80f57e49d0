package keyword

import (
	"context"
	"path/filepath"
	"testing"
)

func seedCaptions(t *testing.T, idx *BleveIndex) {
	t.Helper()
	ctx := context.Background()
	docs := map[string]*CaptionDoc{
		"cat-1": {Caption: "a tabby cat sleeping on a windowsill", Species: "cat"},
		"cat-2": {Caption: "an orange cat chasing a toy", Species: "cat"},
		"dog-1": {Caption: "a golden retriever running on the beach", Species: "dog", Extra: `{"action":"running"}`},
	}
	for id, doc := range docs {
		if err := idx.Index(ctx, id, doc); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBleveIndex_Search(t *testing.T) {
	idx, err := NewMemoryBleveIndex()
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	seedCaptions(t, idx)

	hits, err := idx.Search(context.Background(), "sleeping", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "cat-1" {
		t.Fatalf("got %+v, want only cat-1", hits)
	}

	// Species field is searchable too.
	hits, err = idx.Search(context.Background(), "cat", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("got %d hits for cat, want 2", len(hits))
	}

	// Extra metadata is searchable.
	hits, err = idx.Search(context.Background(), "running", 10)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, h := range hits {
		if h.ID == "dog-1" {
			found = true
		}
	}
	if !found {
		t.Error("dog-1 not found via extra metadata")
	}
}

func TestBleveIndex_SearchLimit(t *testing.T) {
	idx, err := NewMemoryBleveIndex()
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	seedCaptions(t, idx)

	hits, err := idx.Search(context.Background(), "cat", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("got %d hits, want 1", len(hits))
	}
}

func TestBleveIndex_Delete(t *testing.T) {
	idx, err := NewMemoryBleveIndex()
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	seedCaptions(t, idx)
	ctx := context.Background()

	if err := idx.Delete(ctx, "cat-1"); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, "sleeping", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("deleted doc still matches: %+v", hits)
	}
}

func TestBleveIndex_ReopenExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captions.bleve")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := idx.Index(ctx, "cat-1", &CaptionDoc{Caption: "a sleeping cat", Species: "cat"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	hits, err := reopened.Search(ctx, "sleeping", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "cat-1" {
		t.Errorf("index contents lost across reopen: %+v", hits)
	}
}
