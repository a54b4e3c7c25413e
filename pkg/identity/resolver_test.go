package identity

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/labelview/pkg/errors"
)

// fakeTXT is a canned DNS TXT lookup.
type fakeTXT struct {
	records map[string][]string
	err     error
	calls   []string
}

func (f *fakeTXT) LookupTXT(_ context.Context, name string) ([]string, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return nil, f.err
	}
	return f.records[name], nil
}

// roundTripperFunc lets tests serve canned HTTP responses per URL and
// observe exactly which URLs were requested.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type fakeHTTP struct {
	mu        sync.Mutex
	responses map[string]string // URL -> body (200); missing -> 404
	requests  []string
}

func (f *fakeHTTP) client() *http.Client {
	return &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		f.mu.Lock()
		f.requests = append(f.requests, req.URL.String())
		body, ok := f.responses[req.URL.String()]
		f.mu.Unlock()
		if !ok {
			return &http.Response{
				StatusCode: http.StatusNotFound,
				Body:       io.NopCloser(strings.NewReader("not found")),
				Header:     make(http.Header),
			}, nil
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}, nil
	})}
}

func (f *fakeHTTP) requested(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.requests {
		if u == url {
			return true
		}
	}
	return false
}

const testDocument = `{
	"id": "did:plc:abc123",
	"alsoKnownAs": ["at://alice.example.com"],
	"service": [
		{
			"id": "#atproto_pds",
			"type": "AtprotoPersonalDataServer",
			"serviceEndpoint": "https://pds.example.com"
		},
		{
			"id": "#atproto_labeler",
			"type": "AtprotoLabeler",
			"serviceEndpoint": "https://labeler.example.com"
		}
	]
}`

func TestResolveDID(t *testing.T) {
	web := &fakeHTTP{responses: map[string]string{
		"https://plc.directory/did:plc:abc123": testDocument,
	}}
	resolver := New(WithHTTPClient(web.client()))

	identity, err := resolver.Resolve(context.Background(), "did:plc:abc123")
	require.NoError(t, err)

	assert.Equal(t, "did:plc:abc123", identity.DID)
	assert.Equal(t, "alice.example.com", identity.Handle)

	pds, ok := identity.Endpoint(ServicePDS)
	require.True(t, ok)
	assert.Equal(t, "https://pds.example.com", pds)

	labeler, err := identity.RequireEndpoint(ServiceLabeler)
	require.NoError(t, err)
	assert.Equal(t, "https://labeler.example.com", labeler)
}

func TestResolveHandleViaDNS(t *testing.T) {
	dns := &fakeTXT{records: map[string][]string{
		"_atproto.alice.example.com": {"did=did:plc:abc123"},
	}}
	web := &fakeHTTP{responses: map[string]string{
		"https://plc.directory/did:plc:abc123": testDocument,
	}}
	resolver := New(WithHTTPClient(web.client()), WithTXTLookup(dns))

	identity, err := resolver.Resolve(context.Background(), "alice.example.com")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:abc123", identity.DID)

	// DNS won, so the HTTPS well-known strategy was never attempted.
	assert.Equal(t, []string{"_atproto.alice.example.com"}, dns.calls)
	assert.False(t, web.requested("https://alice.example.com/.well-known/atproto-did"))
}

func TestResolveHandleFallsBackToWellKnown(t *testing.T) {
	dns := &fakeTXT{records: map[string][]string{}}
	web := &fakeHTTP{responses: map[string]string{
		"https://alice.example.com/.well-known/atproto-did": "did:plc:abc123\n",
		"https://plc.directory/did:plc:abc123":              testDocument,
	}}
	resolver := New(WithHTTPClient(web.client()), WithTXTLookup(dns))

	identity, err := resolver.Resolve(context.Background(), "alice.example.com")
	require.NoError(t, err)
	assert.Equal(t, "did:plc:abc123", identity.DID)
	assert.True(t, web.requested("https://alice.example.com/.well-known/atproto-did"))
}

func TestResolveHandleExhausted(t *testing.T) {
	dns := &fakeTXT{err: errors.New("NXDOMAIN")}
	web := &fakeHTTP{responses: map[string]string{}}
	resolver := New(WithHTTPClient(web.client()), WithTXTLookup(dns))

	_, err := resolver.Resolve(context.Background(), "alice.example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrHandleUnresolved))
	assert.True(t, errors.IsResolution(err))
}

func TestResolveInvalidIdentifier(t *testing.T) {
	resolver := New()

	for _, input := range []string{"", "no-dots", "bad handle.com", "https://x.com", ".leading.dot"} {
		t.Run(input, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidIdentifier))
		})
	}
}

func TestResolveUnsupportedDIDMethod(t *testing.T) {
	resolver := New()

	_, err := resolver.Resolve(context.Background(), "did:key:z6MkhaXgBZD")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedDIDMethod))
}

func TestResolveDIDWeb(t *testing.T) {
	web := &fakeHTTP{responses: map[string]string{
		"https://labeler.example.com/.well-known/did.json": strings.ReplaceAll(
			testDocument, "did:plc:abc123", "did:web:labeler.example.com"),
	}}
	resolver := New(WithHTTPClient(web.client()))

	identity, err := resolver.Resolve(context.Background(), "did:web:labeler.example.com")
	require.NoError(t, err)
	assert.Equal(t, "did:web:labeler.example.com", identity.DID)
}

func TestResolveDocumentNotFound(t *testing.T) {
	web := &fakeHTTP{responses: map[string]string{}}
	resolver := New(WithHTTPClient(web.client()))

	_, err := resolver.Resolve(context.Background(), "did:plc:missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRequireEndpointMissing(t *testing.T) {
	identity := &Identity{Input: "did:plc:abc123", DID: "did:plc:abc123", Services: map[ServiceKind]string{}}

	_, err := identity.RequireEndpoint(ServiceLabeler)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrServiceNotDeclared))
}

func TestDIDWebURL(t *testing.T) {
	tests := []struct {
		did  string
		want string
		err  bool
	}{
		{did: "did:web:example.com", want: "https://example.com/.well-known/did.json"},
		{did: "did:web:example.com:labeler:alpha", want: "https://example.com/labeler/alpha/did.json"},
		{did: "did:web:example.com%3A8443", want: "https://example.com:8443/.well-known/did.json"},
		{did: "did:web:", err: true},
		{did: "did:web:example.com::bad", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.did, func(t *testing.T) {
			got, err := didWebURL(tt.did)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCustomPLCDirectory(t *testing.T) {
	web := &fakeHTTP{responses: map[string]string{
		"https://plc.internal.test/did:plc:abc123": testDocument,
	}}
	resolver := New(WithHTTPClient(web.client()), WithPLCDirectory("https://plc.internal.test/"))

	_, err := resolver.Resolve(context.Background(), "did:plc:abc123")
	require.NoError(t, err)
	assert.True(t, web.requested("https://plc.internal.test/did:plc:abc123"))
}
