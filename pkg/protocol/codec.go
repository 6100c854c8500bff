package protocol

import (
	"github.com/fxamacker/cbor/v2"
)

// The codec uses canonical CBOR so that encoding a value always produces the
// same bytes, and strict decoding so that duplicate or unknown map keys are
// failures rather than silent drops.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("protocol: building CBOR encode mode: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("protocol: building CBOR decode mode: " + err.Error())
	}
}

// envelope is the externally-tagged wrapper around every message and node:
// a two-entry map of variant tag and variant body.
type envelope struct {
	Tag  string          `cbor:"t"`
	Body cbor.RawMessage `cbor:"b"`
}

// marshalTagged encodes body inside a tagged envelope.
func marshalTagged(tag string, body any) ([]byte, error) {
	raw, err := encMode.Marshal(body)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(envelope{Tag: tag, Body: raw})
}
