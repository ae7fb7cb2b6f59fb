package platform

import (
	"bytes"
	"testing"
)

func TestIndexValuesSinglePath(t *testing.T) {
	spec := IndexSpec{Name: "by-email", KeyPaths: []string{"email"}}

	vals := IndexValues(spec, Document{"email": "a@example.com"})
	if len(vals) != 1 {
		t.Fatalf("expected one index entry, got %d", len(vals))
	}
	want, _ := EncodeKey("a@example.com")
	if !bytes.Equal(vals[0], want) {
		t.Errorf("index value must use the key encoding")
	}

	if vals := IndexValues(spec, Document{"name": "no email"}); vals != nil {
		t.Errorf("document without the indexed path must not be indexed, got %v", vals)
	}
	if vals := IndexValues(spec, Document{"email": []byte("bad type")}); vals != nil {
		t.Errorf("unencodable value must not be indexed, got %v", vals)
	}
}

func TestIndexValuesComposite(t *testing.T) {
	spec := IndexSpec{Name: "by-name", KeyPaths: []string{"last", "first"}}

	vals := IndexValues(spec, Document{"last": "Doe", "first": "Jane"})
	if len(vals) != 1 {
		t.Fatalf("expected one composite entry, got %d", len(vals))
	}

	// A document missing any component path contributes nothing.
	if vals := IndexValues(spec, Document{"last": "Doe"}); vals != nil {
		t.Errorf("partial composite document must not be indexed, got %v", vals)
	}

	// Different component splits must not collide.
	a := IndexValues(spec, Document{"last": "ab", "first": "c"})
	b := IndexValues(spec, Document{"last": "a", "first": "bc"})
	if bytes.Equal(a[0], b[0]) {
		t.Errorf("composite encoding must keep component boundaries distinct")
	}
}

func TestIndexValuesMultiEntry(t *testing.T) {
	spec := IndexSpec{Name: "by-tag", KeyPaths: []string{"tags"}, MultiEntry: true}

	vals := IndexValues(spec, Document{"tags": []any{"go", "db", "go", 42}})
	if len(vals) != 3 {
		t.Fatalf("expected 3 deduplicated entries, got %d", len(vals))
	}

	// A non-array value under a multi-entry index indexes as one entry.
	vals = IndexValues(spec, Document{"tags": "solo"})
	if len(vals) != 1 {
		t.Errorf("expected single entry for scalar value, got %d", len(vals))
	}
}
