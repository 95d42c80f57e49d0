package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	indexed []string
	removed []string
}

func (r *recorder) onIndex(path string) {
	r.mu.Lock()
	r.indexed = append(r.indexed, path)
	r.mu.Unlock()
}

func (r *recorder) onRemove(path string) {
	r.mu.Lock()
	r.removed = append(r.removed, path)
	r.mu.Unlock()
}

func (r *recorder) waitIndexed(t *testing.T, path string, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for _, p := range r.indexed {
			if p == path {
				r.mu.Unlock()
				return true
			}
		}
		r.mu.Unlock()
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestWatcher_IndexesNewImage(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "cat")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".jpg"}, true, rec.onIndex, rec.onRemove,
		WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	imgPath := filepath.Join(sub, "1.jpg")
	if err := os.WriteFile(imgPath, []byte("image"), 0644); err != nil {
		t.Fatal(err)
	}
	if !rec.waitIndexed(t, imgPath, 3*time.Second) {
		t.Fatal("new image not indexed")
	}

	// Non-image files are ignored.
	txtPath := filepath.Join(sub, "notes.txt")
	if err := os.WriteFile(txtPath, []byte("text"), 0644); err != nil {
		t.Fatal(err)
	}
	if rec.waitIndexed(t, txtPath, 500*time.Millisecond) {
		t.Error("non-image file indexed")
	}
}

func TestWatcher_RemoveEvent(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "1.jpg")
	if err := os.WriteFile(imgPath, []byte("image"), 0644); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".jpg"}, false, rec.onIndex, rec.onRemove,
		WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(imgPath); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec.mu.Lock()
		n := len(rec.removed)
		rec.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("remove event not delivered")
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "dog")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	imgPath := filepath.Join(sub, "1.png")
	if err := os.WriteFile(imgPath, []byte("image"), 0644); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".png"}, true, rec.onIndex, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	w.SyncExistingFiles()
	if !rec.waitIndexed(t, imgPath, time.Second) {
		t.Fatal("existing image not synced")
	}
}

func TestWatcher_CreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "corpus")

	w := NewWatcher([]string{root}, nil, true, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if _, err := os.Stat(root); err != nil {
		t.Fatalf("root not created: %v", err)
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	w := NewWatcher([]string{t.TempDir()}, nil, false, nil, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func TestMatchExtension(t *testing.T) {
	w := NewWatcher(nil, []string{".jpg", "PNG"}, false, nil, nil)
	tests := []struct {
		path string
		want bool
	}{
		{"a/b.jpg", true},
		{"a/b.JPG", true},
		{"a/b.png", true},
		{"a/b.gif", false},
		{"a/b", false},
	}
	for _, tt := range tests {
		if got := w.matchExtension(tt.path); got != tt.want {
			t.Errorf("matchExtension(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
