package codec

import (
	"encoding/json"

	"github.com/dylan-green/promise-idb/lib/platform"
)

// NewJSONCodec creates a new codec using json encoding
func NewJSONCodec() ICodec {
	return &jsonCodecImpl{}
}

// jsonCodecImpl implements the ICodec interface using json encoding
type jsonCodecImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (j jsonCodecImpl) Marshal(doc platform.Document) ([]byte, error) {
	return json.Marshal(doc)
}

func (j jsonCodecImpl) Unmarshal(b []byte) (platform.Document, error) {
	var doc platform.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (j jsonCodecImpl) Name() string {
	return "json"
}
