package identity

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// dnsTXTPrefix is the subdomain queried for handle verification records.
const dnsTXTPrefix = "_atproto."

// didTXTValue is the expected form of the TXT record payload.
const didTXTValue = "did="

// maxWellKnownBody bounds the well-known response read; DIDs are short.
const maxWellKnownBody = 8 << 10

// TXTLookup is the part of net.Resolver the DNS strategy depends on.
type TXTLookup interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// handleStrategy is one way of turning a handle into a DID. Strategies
// share an output contract so the chain can be reordered or extended
// without touching call sites: a ("", nil) result is a clean miss, an
// error is a failed attempt, and both fall through to the next strategy.
type handleStrategy interface {
	resolve(ctx context.Context, handle string) (string, error)
	name() string
}

// dnsStrategy resolves a handle via a DNS TXT record at
// _atproto.<handle> whose payload is did=<value>.
type dnsStrategy struct {
	lookup  TXTLookup
	timeout time.Duration
}

func (s *dnsStrategy) name() string { return "dns_txt" }

func (s *dnsStrategy) resolve(ctx context.Context, handle string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	values, err := s.lookup.LookupTXT(ctx, dnsTXTPrefix+handle)
	if err != nil {
		return "", err
	}
	for _, value := range values {
		if did, ok := strings.CutPrefix(strings.TrimSpace(value), didTXTValue); ok {
			if strings.HasPrefix(did, "did:") {
				return did, nil
			}
		}
	}
	return "", nil
}

// wellKnownStrategy resolves a handle by fetching
// https://<handle>/.well-known/atproto-did, whose body is the bare DID.
type wellKnownStrategy struct {
	resolver *Resolver
}

func (s *wellKnownStrategy) name() string { return "https_well_known" }

func (s *wellKnownStrategy) resolve(ctx context.Context, handle string) (string, error) {
	url := "https://" + handle + "/.well-known/atproto-did"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.resolver.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWellKnownBody))
	if err != nil {
		return "", err
	}
	did := strings.TrimSpace(string(body))
	if !strings.HasPrefix(did, "did:") {
		return "", nil
	}
	return did, nil
}
