package index

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func TestBuildFilter_Empty(t *testing.T) {
	if got := buildFilter(Filter{}); got != nil {
		t.Errorf("empty filter should be nil, got %v", got)
	}
}

func TestBuildFilter_SingleSpecies(t *testing.T) {
	f := buildFilter(Filter{Species: []string{"cat"}})
	if f == nil || len(f.Must) != 1 {
		t.Fatalf("filter: got %v", f)
	}
	field := f.Must[0].GetField()
	if field == nil || field.Key != "species" {
		t.Fatalf("field condition: got %v", f.Must[0])
	}
	if kw := field.Match.GetKeyword(); kw != "cat" {
		t.Errorf("keyword: got %q", kw)
	}
}

func TestBuildFilter_MultipleSpeciesIsOr(t *testing.T) {
	f := buildFilter(Filter{Species: []string{"cat", "dog"}})
	if f == nil || len(f.Must) != 1 {
		t.Fatalf("filter: got %v", f)
	}
	field := f.Must[0].GetField()
	if field == nil {
		t.Fatal("expected field condition")
	}
	kws := field.Match.GetKeywords()
	if kws == nil || len(kws.Strings) != 2 {
		t.Fatalf("keywords: got %v", kws)
	}
	if kws.Strings[0] != "cat" || kws.Strings[1] != "dog" {
		t.Errorf("keywords: got %v", kws.Strings)
	}
}

func TestPointIDString(t *testing.T) {
	if got := pointIDString(nil); got != "" {
		t.Errorf("nil id: got %q", got)
	}
	if got := pointIDString(qdrant.NewIDUUID("abc-123")); got != "abc-123" {
		t.Errorf("uuid id: got %q", got)
	}
	if got := pointIDString(qdrant.NewIDNum(42)); got != "42" {
		t.Errorf("num id: got %q", got)
	}
}

func TestAttributesFromPayload(t *testing.T) {
	payload := qdrant.NewValueMap(map[string]any{
		"file":    "cat/1.jpg",
		"caption": "a cat",
		"species": "cat",
		"extra":   `{"lighting":"day"}`,
	})
	attrs := attributesFromPayload(payload)
	if attrs.File != "cat/1.jpg" || attrs.Caption != "a cat" || attrs.Species != "cat" {
		t.Errorf("attrs: got %+v", attrs)
	}
	if attrs.Extra != `{"lighting":"day"}` {
		t.Errorf("extra: got %q", attrs.Extra)
	}

	if got := attributesFromPayload(nil); got == nil {
		t.Error("nil payload should yield empty attributes")
	}
}

func TestNewQdrantIndex_Validation(t *testing.T) {
	if _, err := NewQdrantIndex(QdrantConfig{Collection: "x"}); err == nil {
		t.Error("missing url should fail")
	}
	if _, err := NewQdrantIndex(QdrantConfig{URL: "http://localhost:6334"}); err == nil {
		t.Error("missing collection should fail")
	}
}
