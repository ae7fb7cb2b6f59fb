package codec

import "github.com/dylan-green/promise-idb/lib/platform"

// ICodec is the interface for all document codecs. Engines use a codec to
// encode documents for persistence and to decode them on reads.
type ICodec interface {
	// Marshal encodes a document into a byte array.
	// It returns the encoded byte array and an error if any.
	Marshal(doc platform.Document) ([]byte, error)
	// Unmarshal decodes a byte array into a document.
	// It returns the decoded document and an error if any.
	Unmarshal(b []byte) (platform.Document, error)
	// Name returns the codec identifier (e.g. "json").
	Name() string
}
