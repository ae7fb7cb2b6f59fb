package codec

import (
	"testing"

	"github.com/dylan-green/promise-idb/lib/platform"
)

func runCodecTest(t *testing.T, c ICodec) {
	doc := platform.Document{
		"id":    "k1",
		"count": float64(3),
		"done":  true,
		"meta": map[string]any{
			"tags": []any{"a", "b"},
		},
	}

	b, err := c.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	out, err := c.Unmarshal(b)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if out["id"] != "k1" || out["count"] != float64(3) || out["done"] != true {
		t.Errorf("top-level fields mismatch: %v", out)
	}
	meta, ok := out["meta"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map, got %T", out["meta"])
	}
	tags, ok := meta["tags"].([]any)
	if !ok || len(tags) != 2 || tags[0] != "a" {
		t.Errorf("nested array mismatch: %v", meta["tags"])
	}
}

func TestJSONCodec(t *testing.T) {
	c := NewJSONCodec()
	if c.Name() != "json" {
		t.Errorf("expected name 'json', got %s", c.Name())
	}
	runCodecTest(t, c)
}

func TestGOBCodec(t *testing.T) {
	c := NewGOBCodec()
	if c.Name() != "gob" {
		t.Errorf("expected name 'gob', got %s", c.Name())
	}
	runCodecTest(t, c)
}

func TestUnmarshalGarbage(t *testing.T) {
	for _, c := range []ICodec{NewJSONCodec(), NewGOBCodec()} {
		if _, err := c.Unmarshal([]byte{0xde, 0xad}); err == nil {
			t.Errorf("codec %s should reject garbage input", c.Name())
		}
	}
}
