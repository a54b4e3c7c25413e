package reconcile

import (
	"fmt"

	"github.com/agentstation/labelview/pkg/labels"
)

// AnomalyKind classifies a data-quality condition observed during
// reconciliation. Anomalies are surfaced in the result, never silently
// normalized away and never fatal.
type AnomalyKind string

const (
	// AnomalyConflictingRecord marks two records with the same identity
	// (src, val, target_uri, seq) but different content, e.g. a reused
	// seq pointing at a different target version.
	AnomalyConflictingRecord AnomalyKind = "conflicting_record"

	// AnomalyDuplicateWinnerSeq marks a group whose maximum seq is held
	// by more than one distinct record. The winner cannot be chosen, so
	// the group contributes nothing to the effective set.
	AnomalyDuplicateWinnerSeq AnomalyKind = "duplicate_winner_seq"

	// AnomalyMultipleSources marks a record collection carrying more
	// than one distinct issuer DID where a single logical subscription
	// target was expected.
	AnomalyMultipleSources AnomalyKind = "multiple_sources"
)

// Anomaly is one flagged data-quality condition.
type Anomaly struct {
	Kind   AnomalyKind     `json:"kind"`
	Key    labels.GroupKey `json:"key,omitempty"`
	Seq    int64           `json:"seq,omitempty"`
	Detail string          `json:"detail"`
}

// String renders the anomaly for logs and summaries.
func (a Anomaly) String() string {
	if a.Key == (labels.GroupKey{}) {
		return fmt.Sprintf("%s: %s", a.Kind, a.Detail)
	}
	return fmt.Sprintf("%s for (%s, %s, %s) at seq %d: %s",
		a.Kind, a.Key.Src, a.Key.TargetURI, a.Key.Val, a.Seq, a.Detail)
}
