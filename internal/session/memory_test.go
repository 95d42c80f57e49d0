package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mirusearch/miru/internal/models"
)

func TestMemoryStore_QueryVectorLifecycle(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	vec, err := s.QueryVector(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if vec != nil {
		t.Errorf("fresh session should have nil vector, got %v", vec)
	}

	if err := s.SetQueryVector(ctx, "s1", []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	vec, err = s.QueryVector(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 2 || vec[0] != 1 {
		t.Errorf("vector: got %v", vec)
	}

	// Overwrite replaces, never appends.
	if err := s.SetQueryVector(ctx, "s1", []float32{0, 1}); err != nil {
		t.Fatal(err)
	}
	vec, _ = s.QueryVector(ctx, "s1")
	if vec[0] != 0 || vec[1] != 1 {
		t.Errorf("vector after overwrite: got %v", vec)
	}
}

func TestMemoryStore_QueryVectorIsolatedFromCaller(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()
	in := []float32{1, 0}
	_ = s.SetQueryVector(ctx, "s1", in)
	in[0] = 99
	vec, _ := s.QueryVector(ctx, "s1")
	if vec[0] != 1 {
		t.Errorf("store shares backing array with caller: %v", vec)
	}
}

func TestMemoryStore_HistoryNewestFirstAndCapped(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < HistoryCap+20; i++ {
		entry := &models.HistoryEntry{
			SessionID: "s1",
			UserID:    "u1",
			QueryText: fmt.Sprintf("query %d", i),
			QueryType: models.QueryTypeText,
			Timestamp: time.Now(),
		}
		if err := s.AppendHistory(ctx, "u1", entry); err != nil {
			t.Fatal(err)
		}
	}

	history, err := s.History(ctx, "u1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != HistoryCap {
		t.Errorf("history length: got %d, want %d", len(history), HistoryCap)
	}
	if history[0].QueryText != fmt.Sprintf("query %d", HistoryCap+19) {
		t.Errorf("newest first: got %q", history[0].QueryText)
	}

	limited, err := s.History(ctx, "u1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 5 {
		t.Errorf("limited history: got %d", len(limited))
	}
}

func TestMemoryStore_UserIDs(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()
	_ = s.AppendHistory(ctx, "u1", &models.HistoryEntry{UserID: "u1"})
	_ = s.AppendHistory(ctx, "u2", &models.HistoryEntry{UserID: "u2"})
	users, err := s.UserIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Errorf("users: got %v", users)
	}
}
