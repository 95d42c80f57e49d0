package main

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestSplitIDs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty", "", nil},
		{"single id", "cat-1", []string{"cat-1"}},
		{"multiple ids", "cat-1,dog-2", []string{"cat-1", "dog-2"}},
		{"spaces trimmed", " cat-1 , dog-2 ", []string{"cat-1", "dog-2"}},
		{"blank entries dropped", "cat-1,,  ,dog-2", []string{"cat-1", "dog-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitIDs(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("splitIDs(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRootFor(t *testing.T) {
	roots := []string{"/data/corpus", "/data/extra"}
	tests := []struct {
		path     string
		expected string
	}{
		{"/data/corpus/cat/1.jpg", "/data/corpus"},
		{"/data/extra/solo.jpg", "/data/extra"},
		{"/elsewhere/dog/2.jpg", filepath.Dir("/elsewhere/dog/2.jpg")},
	}
	for _, tt := range tests {
		if got := rootFor(roots, tt.path); got != tt.expected {
			t.Errorf("rootFor(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}
