package jsonpath

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw       string
		rootKey   string
		segments  []string
		canonical string
	}{
		{"a", "a", []string{"a"}, "{a}"},
		{"a/b/c/d", "a", []string{"a", "b", "c", "d"}, "{a,b,c,d}"},
		{"users/alan", "users", []string{"users", "alan"}, "{users,alan}"},
		{"x-1/y_2", "x-1", []string{"x-1", "y_2"}, "{x-1,y_2}"},
	}
	for _, tt := range tests {
		p, err := Parse(tt.raw)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tt.raw, err)
		}
		if p.RootKey() != tt.rootKey {
			t.Errorf("Parse(%q).RootKey() = %q, want %q", tt.raw, p.RootKey(), tt.rootKey)
		}
		if !reflect.DeepEqual(p.Segments(), tt.segments) {
			t.Errorf("Parse(%q).Segments() = %v, want %v", tt.raw, p.Segments(), tt.segments)
		}
		if p.Canonical() != tt.canonical {
			t.Errorf("Parse(%q).Canonical() = %q, want %q", tt.raw, p.Canonical(), tt.canonical)
		}
		if p.String() != tt.raw {
			t.Errorf("Parse(%q).String() = %q", tt.raw, p.String())
		}
	}
}

func TestParseEmptyIsWholeDocument(t *testing.T) {
	p, err := Parse("")
	if err != nil {
		t.Fatalf("Parse(\"\") error: %v", err)
	}
	if p != nil {
		t.Errorf("Parse(\"\") = %v, want nil sentinel", p)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"/a", "a/", "a//b", "/", "a/\x00b", "a\tb/c"} {
		if _, err := Parse(raw); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", raw)
		}
	}
}

func TestJoin(t *testing.T) {
	p, err := Parse("posts")
	if err != nil {
		t.Fatal(err)
	}
	q := p.Join("abc123")
	if q.String() != "posts/abc123" {
		t.Errorf("Join = %q, want posts/abc123", q.String())
	}
	// Original path must be unchanged.
	if p.String() != "posts" {
		t.Errorf("Join mutated receiver: %q", p.String())
	}
}

func TestSkeleton(t *testing.T) {
	p, err := Parse("a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	got := p.Skeleton(float64(1))
	want := map[string]any{"a": map[string]any{"b": map[string]any{"c": float64(1)}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Skeleton = %#v, want %#v", got, want)
	}

	single, _ := Parse("f")
	got = single.Skeleton("leaf")
	if !reflect.DeepEqual(got, map[string]any{"f": "leaf"}) {
		t.Errorf("single-segment Skeleton = %#v", got)
	}
}
