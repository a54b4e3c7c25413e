package identity

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/agentstation/labelview/pkg/errors"
	"github.com/agentstation/labelview/pkg/logging"
)

// DefaultPLCDirectory is the directory service queried for did:plc
// identity documents.
const DefaultPLCDirectory = "https://plc.directory"

// DefaultHTTPTimeout bounds each individual resolution network call.
const DefaultHTTPTimeout = 30 * time.Second

// Resolver turns a handle-or-DID string into an Identity.
type Resolver struct {
	http         *http.Client
	plcDirectory string
	strategies   []handleStrategy
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets the HTTP client used for well-known and document
// fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) { r.http = client }
}

// WithPLCDirectory overrides the did:plc directory service URL.
func WithPLCDirectory(url string) Option {
	return func(r *Resolver) { r.plcDirectory = strings.TrimSuffix(url, "/") }
}

// WithTXTLookup overrides the DNS TXT lookup used by the first handle
// resolution strategy. net.DefaultResolver is used when unset.
func WithTXTLookup(lookup TXTLookup) Option {
	return func(r *Resolver) {
		r.strategies = append([]handleStrategy(nil), r.strategies...)
		for i, s := range r.strategies {
			if dns, ok := s.(*dnsStrategy); ok {
				r.strategies[i] = &dnsStrategy{lookup: lookup, timeout: dns.timeout}
			}
		}
	}
}

// New creates a Resolver with the default strategy chain: DNS TXT first,
// HTTPS well-known second.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		http:         &http.Client{Timeout: DefaultHTTPTimeout},
		plcDirectory: DefaultPLCDirectory,
	}
	r.strategies = []handleStrategy{
		&dnsStrategy{lookup: net.DefaultResolver, timeout: DefaultHTTPTimeout},
		&wellKnownStrategy{resolver: r},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve turns identifier into an Identity. An identifier that is
// syntactically a DID skips handle resolution and goes straight to
// document fetch. Each sub-step is a single attempt; the first handle
// strategy to produce a DID wins and later strategies are never tried.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*Identity, error) {
	logger := logging.FromContext(ctx)
	identifier = strings.TrimSpace(identifier)

	var did string
	switch {
	case strings.HasPrefix(identifier, "did:"):
		did = identifier
	case validHandle(identifier):
		resolved, err := r.resolveHandle(ctx, strings.ToLower(identifier))
		if err != nil {
			return nil, err
		}
		did = resolved
	default:
		return nil, errors.NewResolutionError(identifier, "syntax",
			"neither a DID nor a plausible handle", errors.ErrInvalidIdentifier)
	}

	logger.Debug().Str("did", did).Msg("Fetching identity document")
	doc, err := r.fetchDocument(ctx, identifier, did)
	if err != nil {
		return nil, err
	}

	return &Identity{
		Input:    identifier,
		DID:      doc.ID,
		Handle:   doc.primaryHandle(),
		Services: doc.endpoints(),
	}, nil
}

// resolveHandle walks the strategy chain in order. A strategy that yields
// nothing, whether by a clean miss or a lookup failure, falls through to
// the next; exhausting the chain fails with ErrHandleUnresolved.
func (r *Resolver) resolveHandle(ctx context.Context, handle string) (string, error) {
	logger := logging.FromContext(ctx)

	for _, strategy := range r.strategies {
		did, err := strategy.resolve(ctx, handle)
		if err != nil {
			logger.Debug().
				Err(err).
				Str("strategy", strategy.name()).
				Str("handle", handle).
				Msg("Handle strategy yielded nothing")
			continue
		}
		if did != "" {
			logger.Debug().
				Str("strategy", strategy.name()).
				Str("did", did).
				Msg("Handle resolved")
			return did, nil
		}
	}

	return "", errors.NewResolutionError(handle, "handle",
		"all resolution strategies exhausted", errors.ErrHandleUnresolved)
}

// validHandle reports whether s is plausibly a handle: a dotted hostname
// with no scheme, path, or whitespace.
func validHandle(s string) bool {
	if s == "" || !strings.Contains(s, ".") {
		return false
	}
	if strings.ContainsAny(s, "/ \t@:?#") {
		return false
	}
	if strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return false
	}
	return true
}
