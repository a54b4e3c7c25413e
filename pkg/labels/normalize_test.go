package labels

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/labelview/pkg/errors"
)

func ptr[T any](v T) *T { return &v }

func validWire() Wire {
	return Wire{
		Ver: ptr(int64(1)),
		Src: "did:plc:labeler",
		URI: "at://did:plc:subject/app.bsky.feed.post/3k2a",
		CID: "bafyreib2rxk3rw6f",
		Val: "spam",
		CTS: "2026-08-01T12:00:00Z",
		Sig: []byte{0x01, 0x02},
	}
}

func TestNormalize(t *testing.T) {
	rec, err := Normalize(validWire(), 42)
	require.NoError(t, err)

	assert.Equal(t, "did:plc:labeler", rec.Src)
	assert.Equal(t, int64(42), rec.Seq)
	assert.Equal(t, "spam", rec.Val)
	assert.Equal(t, "at://did:plc:subject/app.bsky.feed.post/3k2a", rec.TargetURI)
	assert.Equal(t, "bafyreib2rxk3rw6f", rec.TargetCID)
	assert.False(t, rec.Neg)
	assert.Nil(t, rec.ExpiresAt)
	assert.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), rec.CreatedAt.UTC())
	assert.Equal(t, []byte{0x01, 0x02}, rec.Signature)
}

func TestNormalizeNegationAndExpiry(t *testing.T) {
	w := validWire()
	w.Neg = ptr(true)
	w.Exp = "2026-09-01T00:00:00Z"

	rec, err := Normalize(w, 7)
	require.NoError(t, err)
	assert.True(t, rec.Neg)
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), rec.ExpiresAt.UTC())
}

func TestNormalizeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Wire)
		seq    int64
		field  string
	}{
		{name: "non-positive seq", mutate: func(*Wire) {}, seq: 0, field: "seq"},
		{name: "missing version", mutate: func(w *Wire) { w.Ver = nil }, seq: 1, field: "ver"},
		{name: "wrong version", mutate: func(w *Wire) { w.Ver = ptr(int64(2)) }, seq: 1, field: "ver"},
		{name: "missing src", mutate: func(w *Wire) { w.Src = "" }, seq: 1, field: "src"},
		{name: "missing val", mutate: func(w *Wire) { w.Val = "" }, seq: 1, field: "val"},
		{name: "missing uri", mutate: func(w *Wire) { w.URI = "" }, seq: 1, field: "uri"},
		{name: "missing cts", mutate: func(w *Wire) { w.CTS = "" }, seq: 1, field: "cts"},
		{name: "bad cts", mutate: func(w *Wire) { w.CTS = "yesterday" }, seq: 1, field: "cts"},
		{name: "bad exp", mutate: func(w *Wire) { w.Exp = "soon" }, seq: 1, field: "exp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := validWire()
			tt.mutate(&w)

			_, err := Normalize(w, tt.seq)
			require.Error(t, err)
			require.True(t, errors.IsMalformedRecord(err))

			var me *errors.MalformedRecordError
			require.True(t, errors.As(err, &me))
			assert.Equal(t, tt.field, me.Field)
		})
	}
}

func TestNormalizeCopiesSignature(t *testing.T) {
	w := validWire()
	rec, err := Normalize(w, 1)
	require.NoError(t, err)

	// Mutating the wire entry's signature must not affect the record.
	w.Sig[0] = 0xFF
	assert.Equal(t, []byte{0x01, 0x02}, rec.Signature)
}

func TestRecordExpired(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		expires *time.Time
		expired bool
	}{
		{name: "no expiry", expires: nil, expired: false},
		{name: "future expiry", expires: ptr(now.Add(time.Second)), expired: false},
		{name: "past expiry", expires: ptr(now.Add(-time.Second)), expired: true},
		// Boundary: expiry exactly at the evaluation instant counts as
		// expired; only a strictly later expiry keeps the label in force.
		{name: "expiry at evaluation instant", expires: ptr(now), expired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Record{ExpiresAt: tt.expires}
			assert.Equal(t, tt.expired, rec.Expired(now))
		})
	}
}

func TestTargetKind(t *testing.T) {
	tests := []struct {
		uri  string
		kind string
	}{
		{"did:plc:abc123", KindAccount},
		{"did:web:example.com", KindAccount},
		{"at://did:plc:abc123", KindAccount},
		{"at://did:plc:abc123/", KindAccount},
		{"at://did:plc:abc123/app.bsky.feed.post/3k2a", "app.bsky.feed.post"},
		{"at://did:plc:abc123/app.bsky.actor.profile/self", "app.bsky.actor.profile"},
		{"https://example.com", KindUnknown},
		{"at://", KindUnknown},
		{"", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.kind, TargetKind(tt.uri))
		})
	}
}

func TestRecordSame(t *testing.T) {
	base, err := Normalize(validWire(), 5)
	require.NoError(t, err)

	identical := base
	assert.True(t, base.Same(identical))

	differentCID := base
	differentCID.TargetCID = "bafyother"
	assert.False(t, base.Same(differentCID))

	differentNeg := base
	differentNeg.Neg = true
	assert.False(t, base.Same(differentNeg))

	exp := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	withExpiry := base
	withExpiry.ExpiresAt = &exp
	assert.False(t, base.Same(withExpiry))
}
