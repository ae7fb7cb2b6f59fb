package platform

import (
	"bytes"
	"math"
	"testing"
)

func TestNormalizeKey(t *testing.T) {
	norm, err := NormalizeKey(int32(42))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if norm != float64(42) {
		t.Errorf("expected int32 to normalize to float64(42), got %v (%T)", norm, norm)
	}

	norm, err = NormalizeKey("hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if norm != "hello" {
		t.Errorf("expected string to pass through, got %v", norm)
	}

	if _, err := NormalizeKey(nil); err == nil {
		t.Errorf("expected nil key to be rejected")
	}
	if _, err := NormalizeKey(math.NaN()); err == nil {
		t.Errorf("expected NaN key to be rejected")
	}
	if _, err := NormalizeKey([]byte("nope")); err == nil {
		t.Errorf("expected non-key type to be rejected")
	}
}

func TestEncodeKeyOrdering(t *testing.T) {
	// Already in the expected order: numbers first (numeric order), then
	// strings (lexicographic order).
	ordered := []Key{
		math.Inf(-1),
		float64(-1000.5),
		float64(-1),
		float64(0),
		float64(0.001),
		float64(1),
		float64(999999),
		math.Inf(1),
		"",
		"a",
		"aa",
		"b",
		"z",
	}

	encoded := make([][]byte, len(ordered))
	for i, k := range ordered {
		enc, err := EncodeKey(k)
		if err != nil {
			t.Fatalf("encoding %v failed: %v", k, err)
		}
		encoded[i] = enc
	}

	for i := 1; i < len(encoded); i++ {
		if bytes.Compare(encoded[i-1], encoded[i]) >= 0 {
			t.Errorf("encoding order violated: %v should sort before %v",
				ordered[i-1], ordered[i])
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, k := range []Key{float64(-42.5), float64(0), float64(7), "", "key", "äöü"} {
		enc, err := EncodeKey(k)
		if err != nil {
			t.Fatalf("encoding %v failed: %v", k, err)
		}
		dec, err := DecodeKey(enc)
		if err != nil {
			t.Fatalf("decoding %v failed: %v", k, err)
		}
		if dec != k {
			t.Errorf("round trip mismatch: put %v, got %v", k, dec)
		}
	}

	// Integer keys come back as their normalized float64 form.
	enc, err := EncodeKey(7)
	if err != nil {
		t.Fatalf("encoding int failed: %v", err)
	}
	dec, err := DecodeKey(enc)
	if err != nil {
		t.Fatalf("decoding failed: %v", err)
	}
	if dec != float64(7) {
		t.Errorf("expected normalized float64(7), got %v (%T)", dec, dec)
	}
}

func TestDecodeKeyInvalid(t *testing.T) {
	if _, err := DecodeKey(nil); err == nil {
		t.Errorf("expected empty encoding to be rejected")
	}
	if _, err := DecodeKey([]byte{keyTagNumber, 1, 2}); err == nil {
		t.Errorf("expected truncated number encoding to be rejected")
	}
	if _, err := DecodeKey([]byte{0xff, 1}); err == nil {
		t.Errorf("expected unknown tag to be rejected")
	}
}
