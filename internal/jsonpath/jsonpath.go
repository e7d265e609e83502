// Package jsonpath translates slash-delimited REST paths into the pieces the
// storage engine needs: the root key (first segment), the full segment list,
// and the canonical Postgres JSON path selector of the form {a,b,c}.
//
// A nil *Path is the "whole document" sentinel: Parse returns it for an empty
// or absent path, and callers treat it as a request for the merged union of
// every root-key row.
package jsonpath

import (
	"fmt"
	"strings"
)

// Path is a parsed, validated document path.
type Path struct {
	segments []string
}

// Parse splits raw on "/" and validates every segment. An empty raw path
// returns (nil, nil): the whole-document sentinel. Empty segments (leading,
// trailing, or doubled slashes) and segments containing control characters
// are rejected.
func Parse(raw string) (*Path, error) {
	if raw == "" {
		return nil, nil
	}
	segments := strings.Split(raw, "/")
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("jsonpath: empty segment in %q", raw)
		}
		for _, r := range seg {
			if r < 0x20 || r == 0x7f {
				return nil, fmt.Errorf("jsonpath: control character in segment %q", seg)
			}
		}
	}
	return &Path{segments: segments}, nil
}

// Join builds a Path directly from segments, without re-validation.
// Used when extending an already-parsed path with a generated push ID.
func (p *Path) Join(segment string) *Path {
	segs := make([]string, 0, len(p.segments)+1)
	segs = append(segs, p.segments...)
	segs = append(segs, segment)
	return &Path{segments: segs}
}

// RootKey returns the first segment, the physical primary key of the row
// that owns this path's subtree.
func (p *Path) RootKey() string {
	return p.segments[0]
}

// Segments returns the path's segments. Callers must not mutate the slice.
func (p *Path) Segments() []string {
	return p.segments
}

// Canonical returns the Postgres JSON path selector, e.g. {a,b,c}.
func (p *Path) Canonical() string {
	return "{" + strings.Join(p.segments, ",") + "}"
}

// String returns the slash-joined form.
func (p *Path) String() string {
	return strings.Join(p.segments, "/")
}

// Depth returns the number of segments.
func (p *Path) Depth() int {
	return len(p.segments)
}

// Skeleton returns the minimal nested object placing leaf at the path's
// segments: Skeleton of a/b with leaf 1 is {"a":{"b":1}}.
func (p *Path) Skeleton(leaf any) any {
	return skeleton(p.segments, leaf)
}

func skeleton(segments []string, leaf any) any {
	if len(segments) == 0 {
		return leaf
	}
	return map[string]any{segments[0]: skeleton(segments[1:], leaf)}
}
