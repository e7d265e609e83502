package jsonval

import (
	"reflect"
	"testing"
)

func TestDeepSetCreatesIntermediates(t *testing.T) {
	got := DeepSet(nil, []string{"a", "b", "c"}, float64(1))
	want := map[string]any{"a": map[string]any{"b": map[string]any{"c": float64(1)}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeepSet = %#v, want %#v", got, want)
	}
}

func TestDeepSetReplacesScalarIntermediate(t *testing.T) {
	// f is a scalar; setting f/b/c must replace it with an object.
	target := map[string]any{"f": 0.01}
	got := DeepSet(target, []string{"f", "b", "c"}, 1.05)
	want := map[string]any{"f": map[string]any{"b": map[string]any{"c": 1.05}}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeepSet = %#v, want %#v", got, want)
	}
}

func TestDeepSetReplacesObjectWithScalar(t *testing.T) {
	target := map[string]any{
		"f": map[string]any{"b": map[string]any{"c": 1.05}, "d": 1.05},
	}
	got := DeepSet(target, []string{"f", "b"}, 1.05)
	want := map[string]any{"f": map[string]any{"b": 1.05, "d": 1.05}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeepSet = %#v, want %#v", got, want)
	}
}

func TestDeepSetPreservesSiblings(t *testing.T) {
	target := map[string]any{"a": map[string]any{"x": "keep"}, "z": true}
	got := DeepSet(target, []string{"a", "y"}, "new")
	want := map[string]any{"a": map[string]any{"x": "keep", "y": "new"}, "z": true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeepSet = %#v, want %#v", got, want)
	}
}

func TestDeepSetDoesNotMutateInput(t *testing.T) {
	target := map[string]any{"a": map[string]any{"b": float64(1)}}
	DeepSet(target, []string{"a", "b"}, float64(2))
	if target["a"].(map[string]any)["b"] != float64(1) {
		t.Error("DeepSet mutated its input")
	}
}

func TestDeepSetNoSegments(t *testing.T) {
	if got := DeepSet(map[string]any{"a": 1}, nil, "v"); got != "v" {
		t.Errorf("DeepSet with no segments = %#v, want leaf", got)
	}
}

func TestDeepMergeObjects(t *testing.T) {
	a := map[string]any{
		"name":     "Alan Turing",
		"birthday": "June 23, 1912",
		"nested":   map[string]any{"x": float64(1), "y": float64(2)},
	}
	b := map[string]any{
		"nickname": "The Machine",
		"nested":   map[string]any{"y": float64(3)},
	}
	got := DeepMerge(a, b)
	want := map[string]any{
		"name":     "Alan Turing",
		"birthday": "June 23, 1912",
		"nickname": "The Machine",
		"nested":   map[string]any{"x": float64(1), "y": float64(3)},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeepMerge = %#v, want %#v", got, want)
	}
}

func TestDeepMergeNonObjectWins(t *testing.T) {
	if got := DeepMerge(map[string]any{"a": 1}, "scalar"); got != "scalar" {
		t.Errorf("DeepMerge(obj, scalar) = %#v", got)
	}
	want := map[string]any{"a": 1}
	if got := DeepMerge("scalar", want); !reflect.DeepEqual(got, want) {
		t.Errorf("DeepMerge(scalar, obj) = %#v", got)
	}
}

func TestExtract(t *testing.T) {
	doc := map[string]any{"a": map[string]any{"b": map[string]any{"c": map[string]any{"d": float64(1)}}}}

	got := Extract(doc, []string{"a", "b"})
	want := map[string]any{"c": map[string]any{"d": float64(1)}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract a/b = %#v, want %#v", got, want)
	}

	if got := Extract(doc, []string{"a", "missing", "c"}); got != nil {
		t.Errorf("Extract through missing key = %#v, want nil", got)
	}
	if got := Extract("scalar", []string{"a"}); got != nil {
		t.Errorf("Extract through scalar = %#v, want nil", got)
	}
	if got := Extract(doc, nil); !reflect.DeepEqual(got, doc) {
		t.Errorf("Extract with no segments = %#v", got)
	}
}
