package platform

import "testing"

func TestExtractPath(t *testing.T) {
	doc := Document{
		"id": "top",
		"meta": map[string]any{
			"owner": map[string]any{"id": "nested"},
		},
		"flat": "value",
	}

	v, ok := ExtractPath(doc, "id")
	if !ok || v != "top" {
		t.Errorf("expected 'top', got %v (ok=%v)", v, ok)
	}

	v, ok = ExtractPath(doc, "meta.owner.id")
	if !ok || v != "nested" {
		t.Errorf("expected 'nested', got %v (ok=%v)", v, ok)
	}

	if _, ok := ExtractPath(doc, "meta.missing.id"); ok {
		t.Errorf("missing path segment should report not found")
	}
	if _, ok := ExtractPath(doc, "flat.deeper"); ok {
		t.Errorf("descending into a non-map should report not found")
	}
	if _, ok := ExtractPath(nil, "id"); ok {
		t.Errorf("nil document should report not found")
	}
	if _, ok := ExtractPath(doc, ""); ok {
		t.Errorf("empty path should report not found")
	}
}

func TestMergePath(t *testing.T) {
	doc := Document{"keep": "me"}

	MergePath(doc, "id", "k1")
	if doc["id"] != "k1" {
		t.Errorf("expected top-level merge, got %v", doc)
	}

	MergePath(doc, "meta.owner.id", "k2")
	v, ok := ExtractPath(doc, "meta.owner.id")
	if !ok || v != "k2" {
		t.Errorf("expected nested merge to create intermediates, got %v", doc)
	}

	if doc["keep"] != "me" {
		t.Errorf("unrelated fields must survive the merge")
	}

	// A non-map intermediate is replaced.
	MergePath(doc, "keep.inner", "deep")
	v, ok = ExtractPath(doc, "keep.inner")
	if !ok || v != "deep" {
		t.Errorf("expected non-map intermediate to be replaced, got %v", doc)
	}
}
