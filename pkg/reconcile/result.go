package reconcile

import (
	"sort"
	"time"

	"github.com/agentstation/labelview/pkg/labels"
)

// ValKind is a breakdown bucket: one label value applied to one kind of
// target (an account, or a record collection NSID).
type ValKind struct {
	Val  string `json:"val"`
	Kind string `json:"kind"`
}

// Result holds the effective label set and aggregate statistics computed
// by one reconciliation pass. Reconciling the same record collection
// twice yields an identical Result apart from EvaluatedAt.
type Result struct {
	// Effective is the set of labels currently in force, keyed by group.
	Effective map[labels.GroupKey]labels.Effective `json:"effective"`

	// TotalRecords is the number of records ingested, duplicates included.
	TotalRecords int `json:"total_records"`

	// MalformedDrops is the number of entries dropped during
	// normalization, as reported by the ingest stage.
	MalformedDrops int `json:"malformed_drops"`

	// EffectiveCount is the number of distinct effective labels.
	EffectiveCount int `json:"effective_count"`

	// ByValKind counts effective labels per (value, target kind).
	ByValKind map[ValKind]int `json:"-"`

	// Sources lists the distinct issuer DIDs observed, sorted.
	Sources []string `json:"sources"`

	// Anomalies lists flagged data-quality conditions, deterministically
	// ordered.
	Anomalies []Anomaly `json:"anomalies,omitempty"`

	// EvaluatedAt is the instant expiry was evaluated against.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// EffectiveList returns the effective labels sorted by
// (src, target URI, val) for deterministic rendering.
func (r *Result) EffectiveList() []labels.Effective {
	list := make([]labels.Effective, 0, len(r.Effective))
	for _, eff := range r.Effective {
		list = append(list, eff)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Src != list[j].Src {
			return list[i].Src < list[j].Src
		}
		if list[i].TargetURI != list[j].TargetURI {
			return list[i].TargetURI < list[j].TargetURI
		}
		return list[i].Val < list[j].Val
	})
	return list
}

// Breakdown returns the (value, kind) buckets sorted by value then kind,
// each paired with its count.
func (r *Result) Breakdown() []BreakdownEntry {
	entries := make([]BreakdownEntry, 0, len(r.ByValKind))
	for vk, n := range r.ByValKind {
		entries = append(entries, BreakdownEntry{ValKind: vk, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Val != entries[j].Val {
			return entries[i].Val < entries[j].Val
		}
		return entries[i].Kind < entries[j].Kind
	})
	return entries
}

// BreakdownEntry is one (value, kind) bucket with its effective count.
type BreakdownEntry struct {
	ValKind
	Count int `json:"count"`
}
