package labels

import "strings"

// Target kinds for reporting breakdowns. An account target is a bare DID
// or an at:// URI with no collection; a record target carries the
// collection NSID it points into.
const (
	// KindAccount is a label applied to a whole account.
	KindAccount = "account"

	// KindUnknown is a target URI in no recognized form.
	KindUnknown = "unknown"
)

// TargetKind derives the reporting kind of a target URI: "account" for a
// bare DID or an at:// authority with no path, the collection NSID (e.g.
// "app.bsky.feed.post") for a record URI, and "unknown" otherwise.
func TargetKind(uri string) string {
	if strings.HasPrefix(uri, "did:") {
		return KindAccount
	}
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return KindUnknown
	}
	parts := strings.SplitN(rest, "/", 3)
	if parts[0] == "" {
		return KindUnknown
	}
	if len(parts) == 1 || parts[1] == "" {
		return KindAccount
	}
	return parts[1]
}
