package output

import (
	"strconv"
	"time"

	"github.com/agentstation/labelview/pkg/identity"
	"github.com/agentstation/labelview/pkg/labels"
	"github.com/agentstation/labelview/pkg/reconcile"
)

// Summary is the full result of a lookup: who the labeler is, what the
// ingest saw, and what labels are in force.
type Summary struct {
	Labeler   Labeler     `json:"labeler" yaml:"labeler"`
	Ingest    Ingest      `json:"ingest" yaml:"ingest"`
	Labels    []Label     `json:"labels" yaml:"labels"`
	Breakdown []Breakdown `json:"breakdown,omitempty" yaml:"breakdown,omitempty"`
	Anomalies []string    `json:"anomalies,omitempty" yaml:"anomalies,omitempty"`
}

// Labeler identifies the service the labels came from.
type Labeler struct {
	Input    string `json:"input" yaml:"input"`
	DID      string `json:"did" yaml:"did"`
	Handle   string `json:"handle,omitempty" yaml:"handle,omitempty"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// Ingest carries the stream and normalization statistics for one run.
type Ingest struct {
	TotalRecords   int   `json:"total_records" yaml:"total_records"`
	MalformedDrops int   `json:"malformed_drops" yaml:"malformed_drops"`
	DecodeFailures int   `json:"decode_failures" yaml:"decode_failures"`
	StoreConflicts int   `json:"store_conflicts,omitempty" yaml:"store_conflicts,omitempty"`
	LastSeq        int64 `json:"last_seq" yaml:"last_seq"`
	Effective      int   `json:"effective" yaml:"effective"`
}

// Label is one effective label row.
type Label struct {
	Src       string    `json:"src" yaml:"src"`
	Val       string    `json:"val" yaml:"val"`
	Target    string    `json:"target" yaml:"target"`
	Kind      string    `json:"kind" yaml:"kind"`
	CID       string    `json:"cid,omitempty" yaml:"cid,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Breakdown is one (value, target kind) bucket count.
type Breakdown struct {
	Val   string `json:"val" yaml:"val"`
	Kind  string `json:"kind" yaml:"kind"`
	Count int    `json:"count" yaml:"count"`
}

// NewSummary assembles a Summary from the resolved identity, the
// reconciliation result, and the ingest statistics.
func NewSummary(id identity.Identity, endpoint string, res *reconcile.Result, ingest Ingest) Summary {
	ingest.TotalRecords = res.TotalRecords
	ingest.MalformedDrops = res.MalformedDrops
	ingest.Effective = res.EffectiveCount

	s := Summary{
		Labeler: Labeler{
			Input:    id.Input,
			DID:      id.DID,
			Handle:   id.Handle,
			Endpoint: endpoint,
		},
		Ingest: ingest,
	}

	for _, eff := range res.EffectiveList() {
		s.Labels = append(s.Labels, Label{
			Src:       eff.Src,
			Val:       eff.Val,
			Target:    eff.TargetURI,
			Kind:      labels.TargetKind(eff.TargetURI),
			CID:       eff.TargetCID,
			CreatedAt: eff.CreatedAt,
		})
	}
	for _, entry := range res.Breakdown() {
		s.Breakdown = append(s.Breakdown, Breakdown{Val: entry.Val, Kind: entry.Kind, Count: entry.Count})
	}
	for _, a := range res.Anomalies {
		s.Anomalies = append(s.Anomalies, a.String())
	}
	return s
}

// TableData implements Tabler.
func (s Summary) TableData(wide bool) []Data {
	sections := []Data{
		{
			Headers: []string{"Labeler", "DID", "Handle", "Endpoint"},
			Rows: [][]string{{
				s.Labeler.Input, s.Labeler.DID, s.Labeler.Handle, s.Labeler.Endpoint,
			}},
		},
		s.labelSection(wide),
	}
	if len(s.Breakdown) > 0 {
		sections = append(sections, s.breakdownSection())
	}
	if len(s.Anomalies) > 0 {
		rows := make([][]string, 0, len(s.Anomalies))
		for _, a := range s.Anomalies {
			rows = append(rows, []string{a})
		}
		sections = append(sections, Data{Headers: []string{"Anomaly"}, Rows: rows})
	}
	sections = append(sections, s.ingestSection())
	return sections
}

func (s Summary) labelSection(wide bool) Data {
	headers := []string{"Val", "Target", "Kind"}
	if wide {
		headers = append(headers, "Src", "CID", "Created")
	}
	rows := make([][]string, 0, len(s.Labels))
	for _, l := range s.Labels {
		row := []string{l.Val, l.Target, l.Kind}
		if wide {
			row = append(row, l.Src, l.CID, l.CreatedAt.UTC().Format(time.RFC3339))
		}
		rows = append(rows, row)
	}
	return Data{Title: "Effective labels", Headers: headers, Rows: rows}
}

func (s Summary) breakdownSection() Data {
	rows := make([][]string, 0, len(s.Breakdown))
	for _, b := range s.Breakdown {
		rows = append(rows, []string{b.Val, b.Kind, strconv.Itoa(b.Count)})
	}
	return Data{Title: "Breakdown", Headers: []string{"Val", "Kind", "Count"}, Rows: rows}
}

func (s Summary) ingestSection() Data {
	rows := [][]string{
		{"records", strconv.Itoa(s.Ingest.TotalRecords)},
		{"effective", strconv.Itoa(s.Ingest.Effective)},
		{"malformed drops", strconv.Itoa(s.Ingest.MalformedDrops)},
		{"decode failures", strconv.Itoa(s.Ingest.DecodeFailures)},
		{"last seq", strconv.FormatInt(s.Ingest.LastSeq, 10)},
	}
	if s.Ingest.StoreConflicts > 0 {
		rows = append(rows, []string{"store conflicts", strconv.Itoa(s.Ingest.StoreConflicts)})
	}
	return Data{Title: "Ingest", Headers: []string{"Stat", "Value"}, Rows: rows}
}
