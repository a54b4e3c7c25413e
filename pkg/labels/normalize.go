package labels

import (
	"time"

	"github.com/agentstation/labelview/pkg/errors"
)

// supportedVersion is the only label schema version this pipeline accepts.
const supportedVersion = 1

// Wire is one label entry as it appears inside a #labels frame body,
// before normalization. Field names follow the com.atproto.label lexicon.
type Wire struct {
	Ver *int64 `cbor:"ver,omitempty" json:"ver,omitempty"`
	Src string `cbor:"src" json:"src"`
	URI string `cbor:"uri" json:"uri"`
	CID string `cbor:"cid,omitempty" json:"cid,omitempty"`
	Val string `cbor:"val" json:"val"`
	Neg *bool  `cbor:"neg,omitempty" json:"neg,omitempty"`
	CTS string `cbor:"cts" json:"cts"`
	Exp string `cbor:"exp,omitempty" json:"exp,omitempty"`
	Sig []byte `cbor:"sig,omitempty" json:"sig,omitempty"`
}

// Normalize converts one wire entry, paired with the sequence number of
// the frame that carried it, into a canonical Record. A missing required
// field or an unparseable timestamp yields a MalformedRecordError; the
// caller drops the record, counts it, and keeps consuming the stream.
//
// Signature bytes are copied through opaquely and never validated.
func Normalize(w Wire, seq int64) (Record, error) {
	if seq < 1 {
		return Record{}, errors.NewMalformedRecordError("seq", seq, "non-positive sequence number")
	}
	if w.Ver == nil || *w.Ver != supportedVersion {
		return Record{}, errors.NewMalformedRecordError("ver", seq, "unsupported or missing label version")
	}
	if w.Src == "" {
		return Record{}, errors.NewMalformedRecordError("src", seq, "missing issuer DID")
	}
	if w.Val == "" {
		return Record{}, errors.NewMalformedRecordError("val", seq, "missing label value")
	}
	if w.URI == "" {
		return Record{}, errors.NewMalformedRecordError("uri", seq, "missing target URI")
	}
	if w.CTS == "" {
		return Record{}, errors.NewMalformedRecordError("cts", seq, "missing creation timestamp")
	}

	createdAt, err := time.Parse(time.RFC3339, w.CTS)
	if err != nil {
		return Record{}, errors.NewMalformedRecordError("cts", seq, "unparseable creation timestamp: "+w.CTS)
	}

	var expiresAt *time.Time
	if w.Exp != "" {
		exp, err := time.Parse(time.RFC3339, w.Exp)
		if err != nil {
			return Record{}, errors.NewMalformedRecordError("exp", seq, "unparseable expiry timestamp: "+w.Exp)
		}
		expiresAt = &exp
	}

	neg := false
	if w.Neg != nil {
		neg = *w.Neg
	}

	rec := Record{
		Src:       w.Src,
		Seq:       seq,
		Val:       w.Val,
		TargetURI: w.URI,
		TargetCID: w.CID,
		Neg:       neg,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}
	if len(w.Sig) > 0 {
		rec.Signature = append([]byte(nil), w.Sig...)
	}
	return rec, nil
}
