package platform

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Type tags for the ordered key encoding. Numbers order before strings,
// matching the host key ordering contract.
const (
	keyTagNumber byte = 0x10
	keyTagString byte = 0x20
)

// NormalizeKey validates a key and reduces it to one of the two canonical
// dynamic types: float64 for all numeric keys, string for string keys.
func NormalizeKey(k Key) (Key, error) {
	switch v := k.(type) {
	case string:
		return v, nil
	case float64:
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: NaN", ErrInvalidKey)
		}
		return v, nil
	case float32:
		return NormalizeKey(float64(v))
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrInvalidKey)
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidKey, k)
	}
}

// EncodeKey converts a key into an order-preserving byte representation:
// bytes.Compare on two encoded keys agrees with the key ordering
// (all numbers before all strings, numeric order, lexicographic order).
func EncodeKey(k Key) ([]byte, error) {
	norm, err := NormalizeKey(k)
	if err != nil {
		return nil, err
	}

	switch v := norm.(type) {
	case float64:
		// Standard float trick: flipping the sign bit of non-negative
		// values and all bits of negative values makes the big-endian
		// bit pattern sort like the number.
		bits := math.Float64bits(v)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		out := make([]byte, 9)
		out[0] = keyTagNumber
		binary.BigEndian.PutUint64(out[1:], bits)
		return out, nil
	case string:
		out := make([]byte, 0, 1+len(v))
		out = append(out, keyTagString)
		out = append(out, v...)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidKey, k)
	}
}

// DecodeKey reverses EncodeKey.
func DecodeKey(b []byte) (Key, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty encoding", ErrInvalidKey)
	}
	switch b[0] {
	case keyTagNumber:
		if len(b) != 9 {
			return nil, fmt.Errorf("%w: truncated number encoding", ErrInvalidKey)
		}
		bits := binary.BigEndian.Uint64(b[1:])
		if bits&(1<<63) != 0 {
			bits &^= 1 << 63
		} else {
			bits = ^bits
		}
		return math.Float64frombits(bits), nil
	case keyTagString:
		return string(b[1:]), nil
	default:
		return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrInvalidKey, b[0])
	}
}
