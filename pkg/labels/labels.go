// Package labels defines the canonical label record types shared by the
// stream client, the reconciliation engine, and the persistence layer.
//
// A label record is one assertion by an issuer (src) that a label value
// applies, or with neg set no longer applies, to a target. Records arrive
// over an untrusted stream: timestamps are not trusted for ordering, and
// only the per-issuer sequence number is used as a recency signal.
package labels

import "time"

// Record is one normalized label assertion. It is immutable after
// creation and uniquely identified in the persisted log by
// (Src, Val, TargetURI, Seq).
type Record struct {
	// Src is the DID of the issuing labeler.
	Src string `json:"src"`

	// Seq is the subscription sequence number the record arrived under.
	// Seq is assumed strictly increasing per Src in issuance order.
	Seq int64 `json:"seq"`

	// Val is the label value, e.g. "spam" or "!hide".
	Val string `json:"val"`

	// TargetURI names the labeled subject: an account DID or an at:// URI.
	TargetURI string `json:"target_uri"`

	// TargetCID optionally pins the target to a specific record version.
	TargetCID string `json:"target_cid,omitempty"`

	// Neg marks a negation: the label no longer applies to the target.
	Neg bool `json:"neg"`

	// CreatedAt is the issuer-declared creation timestamp. Untrusted;
	// carried for reporting only, never used for recency.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is the optional issuer-declared expiry timestamp.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Signature is the issuer's signature over the record, carried
	// opaquely. It is never validated.
	Signature []byte `json:"-"`
}

// GroupKey identifies the unit over which recency competition happens:
// all records sharing a key supersede one another by Seq.
type GroupKey struct {
	Src       string `json:"src"`
	TargetURI string `json:"target_uri"`
	Val       string `json:"val"`
}

// Key returns the record's group key.
func (r Record) Key() GroupKey {
	return GroupKey{Src: r.Src, TargetURI: r.TargetURI, Val: r.Val}
}

// Expired reports whether the record's expiry has passed at the given
// evaluation instant. The comparison is strict: a record expiring exactly
// at now is expired. Records without an expiry never expire.
func (r Record) Expired(now time.Time) bool {
	if r.ExpiresAt == nil {
		return false
	}
	return !r.ExpiresAt.After(now)
}

// Same reports whether two records carry identical content. Records with
// equal identity (Src, Val, TargetURI, Seq) but differing content indicate
// an upstream data-quality anomaly.
func (r Record) Same(o Record) bool {
	if r.Src != o.Src || r.Seq != o.Seq || r.Val != o.Val ||
		r.TargetURI != o.TargetURI || r.TargetCID != o.TargetCID ||
		r.Neg != o.Neg {
		return false
	}
	if !r.CreatedAt.Equal(o.CreatedAt) {
		return false
	}
	switch {
	case r.ExpiresAt == nil && o.ExpiresAt == nil:
		return true
	case r.ExpiresAt == nil || o.ExpiresAt == nil:
		return false
	default:
		return r.ExpiresAt.Equal(*o.ExpiresAt)
	}
}

// Effective is a label currently in force for a target, derived by the
// reconciliation engine. It is recomputed on demand and never persisted
// as authoritative state.
type Effective struct {
	Src       string    `json:"src"`
	Val       string    `json:"val"`
	TargetURI string    `json:"target_uri"`
	TargetCID string    `json:"target_cid,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
