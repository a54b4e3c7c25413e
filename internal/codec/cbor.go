// Package codec configures CBOR encoding and decoding for the label
// subscription wire protocol. All frame headers and bodies on the event
// stream are DAG-CBOR maps; this package pins one decoder configuration so
// every consumer interprets them identically.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder used by tests and tooling that synthesize
// frames. Core Deterministic Encoding keeps the bytes stable.
var encMode cbor.EncMode

// decMode is the CBOR decoder for inbound frames. Unknown fields are
// ignored so that lexicon additions do not break decoding.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// The subscription protocol only uses string map keys. When the
		// decode target is any (diagnostic paths), produce map[string]any
		// rather than the CBOR default map[interface{}]interface{}.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Decoder is a CBOR stream decoder. Type alias so consumers import only
// internal/codec, not fxamacker/cbor directly.
type Decoder = cbor.Decoder

// NewDecoder returns a CBOR decoder reading from r with the standard
// subscription decoding configuration. A binary websocket message holds a
// sequence of two data items (header, body); decode them one at a time.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
