// Package reconcile computes the set of labels currently in force from an
// accumulated, possibly contradictory collection of label records.
//
// The rule is last-writer-wins per (issuer, target, label value), with
// negation and expiry as terminal overrides. The per-issuer sequence
// number is the sole recency signal: record timestamps come from an
// untrusted source and are not guaranteed monotonic. Reconciliation is a
// pure function over its inputs so it can be exercised independent of any
// network, stream, or storage concern.
package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/agentstation/labelview/pkg/labels"
)

// Option configures a reconciliation pass.
type Option func(*options)

type options struct {
	now   time.Time
	drops int
}

// WithNow sets the evaluation instant used for expiry comparison.
// Defaults to the wall-clock time of the call.
func WithNow(now time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMalformedDrops records the number of entries the ingest stage
// dropped during normalization, so the result reports them alongside the
// counts derived from the records themselves.
func WithMalformedDrops(n int) Option {
	return func(o *options) { o.drops = n }
}

// Reconcile computes the effective label set and aggregate statistics for
// any collection of records: one run's worth, or the union of all
// historically persisted records. The input is never mutated.
//
// Within each (src, target_uri, val) group the record with the maximum
// seq wins. The group contributes an effective label iff the winner is
// not a negation and its expiry, if any, is strictly after the evaluation
// instant. Exact duplicate records (expected across independent runs) are
// collapsed silently; records sharing an identity but differing in
// content, and groups whose maximum seq is contested, are flagged as
// anomalies rather than resolved arbitrarily.
func Reconcile(records []labels.Record, opts ...Option) *Result {
	o := options{now: time.Now()}
	for _, opt := range opts {
		opt(&o)
	}

	result := &Result{
		Effective:      make(map[labels.GroupKey]labels.Effective),
		TotalRecords:   len(records),
		MalformedDrops: o.drops,
		ByValKind:      make(map[ValKind]int),
		EvaluatedAt:    o.now,
	}

	groups := make(map[labels.GroupKey][]labels.Record)
	srcs := make(map[string]struct{})
	var anomalies []Anomaly

	for _, rec := range records {
		srcs[rec.Src] = struct{}{}
		key := rec.Key()

		// Collapse exact duplicates: re-ingestion of a record already
		// seen in a prior run is expected and not an anomaly. A record
		// with the same (src, val, target_uri, seq) but different
		// content is flagged and kept out of the group.
		duplicate := false
		for _, existing := range groups[key] {
			if existing.Seq != rec.Seq {
				continue
			}
			duplicate = true
			if !existing.Same(rec) {
				anomalies = append(anomalies, Anomaly{
					Kind:   AnomalyConflictingRecord,
					Key:    key,
					Seq:    rec.Seq,
					Detail: fmt.Sprintf("seq %d reused with different content (cid %q vs %q)", rec.Seq, existing.TargetCID, rec.TargetCID),
				})
			}
			break
		}
		if !duplicate {
			groups[key] = append(groups[key], rec)
		}
	}

	// Conflicting identities also contest the winner when they hold the
	// group's maximum seq; track which (key, seq) pairs conflicted.
	contested := make(map[labels.GroupKey]map[int64]bool)
	for _, a := range anomalies {
		if a.Kind != AnomalyConflictingRecord {
			continue
		}
		if contested[a.Key] == nil {
			contested[a.Key] = make(map[int64]bool)
		}
		contested[a.Key][a.Seq] = true
	}

	for key, group := range groups {
		winner := group[0]
		for _, rec := range group[1:] {
			if rec.Seq > winner.Seq {
				winner = rec
			}
		}

		if contested[key][winner.Seq] {
			anomalies = append(anomalies, Anomaly{
				Kind:   AnomalyDuplicateWinnerSeq,
				Key:    key,
				Seq:    winner.Seq,
				Detail: "maximum seq is contested; no winner selected",
			})
			continue
		}

		if winner.Neg || winner.Expired(o.now) {
			continue
		}

		result.Effective[key] = labels.Effective{
			Src:       winner.Src,
			Val:       winner.Val,
			TargetURI: winner.TargetURI,
			TargetCID: winner.TargetCID,
			CreatedAt: winner.CreatedAt,
		}
		result.ByValKind[ValKind{Val: winner.Val, Kind: labels.TargetKind(winner.TargetURI)}]++
	}

	result.EffectiveCount = len(result.Effective)

	result.Sources = make([]string, 0, len(srcs))
	for src := range srcs {
		result.Sources = append(result.Sources, src)
	}
	sort.Strings(result.Sources)

	if len(result.Sources) > 1 {
		anomalies = append(anomalies, Anomaly{
			Kind:   AnomalyMultipleSources,
			Detail: fmt.Sprintf("%d distinct issuer DIDs observed for one subscription target", len(result.Sources)),
		})
	}

	sort.Slice(anomalies, func(i, j int) bool {
		a, b := anomalies[i], anomalies[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Key != b.Key {
			if a.Key.Src != b.Key.Src {
				return a.Key.Src < b.Key.Src
			}
			if a.Key.TargetURI != b.Key.TargetURI {
				return a.Key.TargetURI < b.Key.TargetURI
			}
			return a.Key.Val < b.Key.Val
		}
		return a.Seq < b.Seq
	})
	result.Anomalies = anomalies

	return result
}
