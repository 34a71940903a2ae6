package merge

import "reflect"

import "testing"

func TestDocumentsAddsMissingKeys(t *testing.T) {
	dst := map[string]interface{}{"a": 1}
	src := map[string]interface{}{"b": 2}

	got := Documents(dst, src)
	want := map[string]interface{}{"a": 1, "b": 2}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDocumentsRecursesIntoNestedMaps(t *testing.T) {
	dst := map[string]interface{}{
		"runners": map[string]interface{}{
			"a": map[string]interface{}{"results": map[string]interface{}{"1": "new"}},
		},
	}
	src := map[string]interface{}{
		"runners": map[string]interface{}{
			"a": map[string]interface{}{"results": map[string]interface{}{"0": "old"}},
			"b": map[string]interface{}{"results": map[string]interface{}{"0": "kept"}},
		},
	}

	got := Documents(dst, src)

	runners := got["runners"].(map[string]interface{})
	a := runners["a"].(map[string]interface{})["results"].(map[string]interface{})
	if len(a) != 2 {
		t.Fatalf("expected run indexes 0 and 1 to coexist, got %v", a)
	}

	if _, ok := runners["b"]; !ok {
		t.Fatalf("expected on-disk-only runner 'b' to survive the merge")
	}
}

func TestDocumentsInMemoryWinsOnLeafConflict(t *testing.T) {
	dst := map[string]interface{}{"value": "in-memory"}
	src := map[string]interface{}{"value": "on-disk"}

	got := Documents(dst, src)

	if got["value"] != "in-memory" {
		t.Fatalf("expected in-memory value to win conflict, got %v", got["value"])
	}
}

func TestDocumentsNilDestination(t *testing.T) {
	got := Documents(nil, map[string]interface{}{"a": 1})
	if got["a"] != 1 {
		t.Fatalf("expected nil dst to be treated as empty map, got %v", got)
	}
}
