package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/agentstation/labelview/pkg/errors"
)

// document is the subset of a W3C DID document the resolver consumes.
type document struct {
	ID          string       `json:"id"`
	AlsoKnownAs []string     `json:"alsoKnownAs"`
	Service     []docService `json:"service"`
}

type docService struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// Service entry conventions from the atproto identity spec: fragment and
// type pairs identifying the endpoints this tool cares about.
var serviceKinds = map[ServiceKind]struct{ fragment, typ string }{
	ServicePDS:     {fragment: "#atproto_pds", typ: "AtprotoPersonalDataServer"},
	ServiceLabeler: {fragment: "#atproto_labeler", typ: "AtprotoLabeler"},
}

// endpoints extracts the recognized service endpoints from the document.
func (d *document) endpoints() map[ServiceKind]string {
	services := make(map[ServiceKind]string)
	for kind, want := range serviceKinds {
		for _, svc := range d.Service {
			if strings.HasSuffix(svc.ID, want.fragment) && svc.Type == want.typ && svc.ServiceEndpoint != "" {
				services[kind] = svc.ServiceEndpoint
				break
			}
		}
	}
	return services
}

// primaryHandle returns the first at:// alias in alsoKnownAs, stripped of
// its scheme.
func (d *document) primaryHandle() string {
	for _, alias := range d.AlsoKnownAs {
		if handle, ok := strings.CutPrefix(alias, "at://"); ok {
			return handle
		}
	}
	return ""
}

// fetchDocument dereferences a DID to its identity document. did:plc
// queries the configured directory service; did:web derives the document
// URL deterministically from the identifier and fetches it directly. Any
// other method is unsupported.
func (r *Resolver) fetchDocument(ctx context.Context, identifier, did string) (*document, error) {
	var docURL string
	switch {
	case strings.HasPrefix(did, "did:plc:"):
		docURL = r.plcDirectory + "/" + url.PathEscape(did)
	case strings.HasPrefix(did, "did:web:"):
		derived, err := didWebURL(did)
		if err != nil {
			return nil, errors.NewResolutionError(identifier, "syntax", err.Error(), errors.ErrInvalidIdentifier)
		}
		docURL = derived
	default:
		return nil, errors.NewResolutionError(identifier, "document",
			"no resolver for DID method of "+did, errors.ErrUnsupportedDIDMethod)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, errors.WrapResolution(identifier, "document", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, errors.WrapResolution(identifier, "document", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NewResolutionError(identifier, "document",
			"no identity document for "+did, errors.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.NewResolutionError(identifier, "document",
			fmt.Sprintf("document fetch returned status %d", resp.StatusCode), nil)
	}

	var doc document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, errors.NewResolutionError(identifier, "document",
			"unparseable identity document: "+err.Error(), err)
	}
	if doc.ID == "" {
		doc.ID = did
	}
	return &doc, nil
}

// didWebURL derives the document URL for a did:web identifier: the method
// specific part is a percent-encoded host optionally followed by path
// segments. A bare host maps to /.well-known/did.json; a host with path
// segments maps to <path>/did.json.
func didWebURL(did string) (string, error) {
	rest := strings.TrimPrefix(did, "did:web:")
	if rest == "" {
		return "", fmt.Errorf("empty did:web identifier")
	}
	parts := strings.Split(rest, ":")
	host, err := url.PathUnescape(parts[0])
	if err != nil || host == "" {
		return "", fmt.Errorf("invalid did:web host %q", parts[0])
	}
	if len(parts) == 1 {
		return "https://" + host + "/.well-known/did.json", nil
	}
	for _, seg := range parts[1:] {
		if seg == "" {
			return "", fmt.Errorf("empty path segment in %s", did)
		}
	}
	return "https://" + host + "/" + strings.Join(parts[1:], "/") + "/did.json", nil
}
