package platform

import "strings"

// --------------------------------------------------------------------------
// Key Path Helpers (shared by engines and the facade)
// --------------------------------------------------------------------------

// ExtractPath resolves a dotted key path inside a document. The boolean
// return value indicates whether the full path was present.
func ExtractPath(doc Document, path string) (any, bool) {
	if doc == nil || path == "" {
		return nil, false
	}

	var cur any = doc
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// MergePath writes a value into a document under a dotted key path,
// creating intermediate maps as needed. Existing non-map intermediates are
// replaced. The document is modified in place.
func MergePath(doc Document, path string, value any) {
	if doc == nil || path == "" {
		return
	}

	segs := strings.Split(path, ".")
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
}
