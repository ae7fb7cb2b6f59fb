package pebble

// Keyspace layout. Stores, collections and index names share the keyspace
// through disjoint prefixes, separated by 0x00 (names must not contain NUL):
//
//	'm' 0x00 store                                   -> manifest (JSON)
//	'r' 0x00 store 0x00 coll 0x00 encKey             -> encoded document
//	'i' 0x00 store 0x00 coll 0x00 idx 0x00 val 0x00 encKey -> encKey
//
// Record keys use the order-preserving key encoding, so iteration over a
// record prefix yields key order.

const sep = 0x00

func join(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	out := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			out = append(out, sep)
		}
		out = append(out, p...)
	}
	return out
}

func metaKey(store string) []byte {
	return join([]byte{'m'}, []byte(store))
}

func recordKey(store, coll string, encKey []byte) []byte {
	return join([]byte{'r'}, []byte(store), []byte(coll), encKey)
}

func recordPrefix(store, coll string) []byte {
	return append(join([]byte{'r'}, []byte(store), []byte(coll)), sep)
}

func indexEntryKey(store, coll, idx string, val, encKey []byte) []byte {
	return join([]byte{'i'}, []byte(store), []byte(coll), []byte(idx), val, encKey)
}

// indexValuePrefix bounds all entries of one index with one indexed value.
func indexValuePrefix(store, coll, idx string, val []byte) []byte {
	return append(join([]byte{'i'}, []byte(store), []byte(coll), []byte(idx), val), sep)
}

// indexPrefix bounds all entries of one index.
func indexPrefix(store, coll, idx string) []byte {
	return append(join([]byte{'i'}, []byte(store), []byte(coll), []byte(idx)), sep)
}

// collIndexPrefix bounds all index entries of one collection.
func collIndexPrefix(store, coll string) []byte {
	return append(join([]byte{'i'}, []byte(store), []byte(coll)), sep)
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, or nil if no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
