package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mirusearch/miru/internal/config"
	"github.com/mirusearch/miru/internal/embedding"
	"github.com/mirusearch/miru/internal/index"
	"github.com/mirusearch/miru/internal/keyword"
	"github.com/mirusearch/miru/internal/storage"
)

// stubCaptioner answers the species question with a fixed label and every
// other question with a canned string.
type stubCaptioner struct {
	species string
	calls   int
}

func (s *stubCaptioner) Describe(ctx context.Context, image []byte, question string) (string, error) {
	s.calls++
	if strings.Contains(question, "What animal is this") {
		return s.species, nil
	}
	return "unknown", nil
}

func writeCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

type harness struct {
	indexer  *Indexer
	index    *index.MemoryIndex
	catalog  *storage.SQLiteCatalog
	captions *keyword.BleveIndex
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	idx, err := index.NewMemoryIndex(8)
	if err != nil {
		t.Fatal(err)
	}
	catalog, err := storage.NewSQLiteCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { catalog.Close() })
	captions, err := keyword.NewMemoryBleveIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { captions.Close() })

	cfg := &config.IndexingConfig{EncodeBatchSize: 2, UpsertBatchSize: 3}
	ix := NewIndexer(embedding.NewMockEmbedder(8), idx, catalog, captions, cfg, opts...)
	return &harness{indexer: ix, index: idx, catalog: catalog, captions: captions}
}

func TestPointIDForPath(t *testing.T) {
	a := PointIDForPath("cat/1.jpg")
	b := PointIDForPath("cat/1.jpg")
	c := PointIDForPath("cat/2.jpg")
	if a != b {
		t.Error("point id not deterministic")
	}
	if a == c {
		t.Error("distinct paths share a point id")
	}
}

func TestInferSpeciesFromPath(t *testing.T) {
	tests := []struct {
		root, path, want string
	}{
		{"/data", "/data/Cat/1.jpg", "cat"},
		{"/data", "/data/dog/puppies/2.jpg", "dog"},
		{"/data", "/data/solo.jpg", ""},
		{"/data/", "/data/bird/3.png", "bird"},
	}
	for _, tt := range tests {
		if got := InferSpeciesFromPath(tt.root, tt.path); got != tt.want {
			t.Errorf("InferSpeciesFromPath(%q, %q) = %q, want %q", tt.root, tt.path, got, tt.want)
		}
	}
}

func TestIndexCorpus(t *testing.T) {
	root := writeCorpus(t, map[string]string{
		"cat/1.jpg":  "cat one",
		"cat/2.jpg":  "cat two",
		"dog/1.png":  "dog one",
		"notes.txt":  "not an image",
		"dog/b.webp": "dog two",
	})
	h := newHarness(t)
	ctx := context.Background()

	report, err := h.indexer.IndexCorpus(ctx, root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Scanned != 4 || report.Indexed != 4 || report.Failed != 0 {
		t.Fatalf("report: %+v", report)
	}

	count, err := h.index.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 4 {
		t.Errorf("indexed points: got %d, want 4", count)
	}

	// Species comes from the folder name, lowercased.
	catPath := filepath.Join(root, "cat", "1.jpg")
	_, attrs, err := h.index.FetchVector(ctx, PointIDForPath(catPath))
	if err != nil {
		t.Fatal(err)
	}
	if attrs.Species != "cat" {
		t.Errorf("species: got %q", attrs.Species)
	}
	if attrs.File != catPath {
		t.Errorf("file: got %q", attrs.File)
	}

	rec, err := h.catalog.Get(ctx, catPath)
	if err != nil {
		t.Fatal(err)
	}
	if rec.PointID != PointIDForPath(catPath) || rec.Species != "cat" {
		t.Errorf("catalog record: %+v", rec)
	}
}

func TestIndexCorpus_IncrementalSkip(t *testing.T) {
	root := writeCorpus(t, map[string]string{
		"cat/1.jpg": "cat one",
		"dog/1.jpg": "dog one",
	})
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.indexer.IndexCorpus(ctx, root, Options{}); err != nil {
		t.Fatal(err)
	}

	// Unchanged files are skipped on the second run.
	report, err := h.indexer.IndexCorpus(ctx, root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Skipped != 2 || report.Indexed != 0 {
		t.Fatalf("second run report: %+v", report)
	}

	// A grown file is re-indexed.
	if err := os.WriteFile(filepath.Join(root, "cat", "1.jpg"), []byte("cat one, updated"), 0644); err != nil {
		t.Fatal(err)
	}
	report, err = h.indexer.IndexCorpus(ctx, root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 1 || report.Skipped != 1 {
		t.Fatalf("third run report: %+v", report)
	}
}

func TestIndexCorpus_PrunesVanishedFiles(t *testing.T) {
	root := writeCorpus(t, map[string]string{
		"cat/1.jpg": "cat one",
		"dog/1.jpg": "dog one",
	})
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.indexer.IndexCorpus(ctx, root, Options{}); err != nil {
		t.Fatal(err)
	}
	dogPath := filepath.Join(root, "dog", "1.jpg")
	if err := os.Remove(dogPath); err != nil {
		t.Fatal(err)
	}

	report, err := h.indexer.IndexCorpus(ctx, root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.Removed != 1 {
		t.Fatalf("report: %+v", report)
	}
	if _, _, err := h.index.FetchVector(ctx, PointIDForPath(dogPath)); err == nil {
		t.Error("vanished file still in index")
	}
	if _, err := h.catalog.Get(ctx, dogPath); err == nil {
		t.Error("vanished file still in catalog")
	}
}

func TestIndexCorpus_DryRun(t *testing.T) {
	root := writeCorpus(t, map[string]string{"cat/1.jpg": "cat one"})
	h := newHarness(t)
	ctx := context.Background()

	report, err := h.indexer.IndexCorpus(ctx, root, Options{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if report.Indexed != 1 {
		t.Fatalf("report: %+v", report)
	}
	count, _ := h.index.Count(ctx)
	if count != 0 {
		t.Error("dry run wrote to the index")
	}
	n, _ := h.catalog.Count(ctx)
	if n != 0 {
		t.Error("dry run wrote to the catalog")
	}
}

func TestIndexCorpus_Limit(t *testing.T) {
	root := writeCorpus(t, map[string]string{
		"cat/1.jpg": "a", "cat/2.jpg": "b", "cat/3.jpg": "c",
	})
	h := newHarness(t)

	report, err := h.indexer.IndexCorpus(context.Background(), root, Options{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if report.Scanned != 2 || report.Indexed != 2 {
		t.Fatalf("report: %+v", report)
	}
}

func TestIndexCorpus_VQAMetadata(t *testing.T) {
	root := writeCorpus(t, map[string]string{
		"cat/1.jpg": "nested",
		"solo.jpg":  "at root",
	})
	vqa := &stubCaptioner{species: "Elephant"}
	h := newHarness(t, WithCaptioner(vqa))
	ctx := context.Background()

	if _, err := h.indexer.IndexCorpus(ctx, root, Options{}); err != nil {
		t.Fatal(err)
	}

	// Folder species wins for nested files.
	_, attrs, err := h.index.FetchVector(ctx, PointIDForPath(filepath.Join(root, "cat", "1.jpg")))
	if err != nil {
		t.Fatal(err)
	}
	if attrs.Species != "cat" {
		t.Errorf("nested species: got %q", attrs.Species)
	}
	if attrs.Caption != "Elephant" {
		t.Errorf("caption: got %q", attrs.Caption)
	}
	if !strings.Contains(attrs.Extra, "folder_name") {
		t.Errorf("extra missing folder_name: %q", attrs.Extra)
	}

	// Root-level files fall back to the lowercased VQA answer.
	_, attrs, err = h.index.FetchVector(ctx, PointIDForPath(filepath.Join(root, "solo.jpg")))
	if err != nil {
		t.Fatal(err)
	}
	if attrs.Species != "elephant" {
		t.Errorf("root-level species: got %q", attrs.Species)
	}

	// Captions become keyword-searchable.
	hits, err := h.captions.Search(ctx, "elephant", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("caption hits: got %d, want 2", len(hits))
	}

	// Basic mode asks 5 questions per image.
	if vqa.calls != 10 {
		t.Errorf("vqa calls: got %d, want 10", vqa.calls)
	}
}

func TestRemoveFile_UnknownPath(t *testing.T) {
	h := newHarness(t)
	if err := h.indexer.RemoveFile(context.Background(), "/nowhere/x.jpg"); err != nil {
		t.Fatal(err)
	}
}
