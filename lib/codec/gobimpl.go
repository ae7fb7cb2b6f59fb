package codec

import (
	"bytes"
	"encoding/gob"

	"github.com/dylan-green/promise-idb/lib/platform"
)

func init() {
	// Documents hold nested values behind interfaces; gob needs the
	// concrete container types registered to transmit them.
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// NewGOBCodec creates a new codec using Go's binary gob format
func NewGOBCodec() ICodec {
	return &gobCodecImpl{}
}

// gobCodecImpl implements the ICodec interface using gob encoding
type gobCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (g gobCodecImpl) Marshal(doc platform.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobCodecImpl) Unmarshal(b []byte) (platform.Document, error) {
	var doc platform.Document
	dec := gob.NewDecoder(bytes.NewBuffer(b))
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (g gobCodecImpl) Name() string {
	return "gob"
}
