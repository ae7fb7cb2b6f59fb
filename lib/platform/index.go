package platform

// IndexValues computes the encoded index value(s) a document contributes to
// an index. A record that lacks one of the indexed paths, or whose value is
// not a valid key type, is simply not indexed (no error).
//
// Composite indexes (more than one key path) concatenate the per-path
// encodings with a 0x00 separator. MultiEntry indexes over an array value
// produce one entry per element.
func IndexValues(spec IndexSpec, doc Document) [][]byte {
	if len(spec.KeyPaths) == 0 {
		return nil
	}

	if len(spec.KeyPaths) > 1 {
		var composite []byte
		for i, path := range spec.KeyPaths {
			raw, ok := ExtractPath(doc, path)
			if !ok {
				return nil
			}
			enc, err := EncodeKey(raw)
			if err != nil {
				return nil
			}
			if i > 0 {
				composite = append(composite, 0x00)
			}
			composite = append(composite, enc...)
		}
		return [][]byte{composite}
	}

	raw, ok := ExtractPath(doc, spec.KeyPaths[0])
	if !ok {
		return nil
	}

	if spec.MultiEntry {
		if arr, isArr := raw.([]any); isArr {
			seen := make(map[string]struct{}, len(arr))
			var out [][]byte
			for _, elem := range arr {
				enc, err := EncodeKey(elem)
				if err != nil {
					continue
				}
				// Duplicate elements collapse to one entry.
				if _, dup := seen[string(enc)]; dup {
					continue
				}
				seen[string(enc)] = struct{}{}
				out = append(out, enc)
			}
			return out
		}
	}

	enc, err := EncodeKey(raw)
	if err != nil {
		return nil
	}
	return [][]byte{enc}
}
