package cmd

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentstation/labelview/internal/output"
	"github.com/agentstation/labelview/pkg/errors"
	"github.com/agentstation/labelview/pkg/identity"
	"github.com/agentstation/labelview/pkg/reconcile"
)

// summaryCmd reports over stored records without touching the network.
var summaryCmd = &cobra.Command{
	Use:   "summary [DID]",
	Short: "Reconcile stored records without streaming",
	Long: `Summary reads the local database and reports on what previous runs
have collected. With a DID argument it reconciles that labeler's stored
records into the labels currently in force; without one it lists the
labelers with stored records.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if flagNoStore {
		return errors.New("summary reads the database and cannot run with --no-db")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	formatter := output.NewFormatter(output.Format(flagOutput))

	if len(args) == 0 {
		stats, err := st.Sources(ctx)
		if err != nil {
			return err
		}
		report := sourcesReport{Sources: make([]sourceRow, 0, len(stats))}
		for _, stat := range stats {
			handle, _, err := st.HandleFor(ctx, stat.Src)
			if err != nil {
				return err
			}
			report.Sources = append(report.Sources, sourceRow{
				Src:     stat.Src,
				Handle:  handle,
				Records: stat.Records,
				MaxSeq:  stat.MaxSeq,
			})
		}
		return formatter.Format(os.Stdout, report)
	}

	src := args[0]
	records, err := st.AllRecords(ctx, src)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.NewPersistenceError("summary", "no stored records for "+src, errors.ErrNotFound)
	}

	id := identity.Identity{Input: src, DID: src}
	if handle, ok, err := st.HandleFor(ctx, src); err != nil {
		return err
	} else if ok {
		id.Handle = handle
	}

	var ingest output.Ingest
	if seq, ok, err := st.LastSeq(ctx, src); err != nil {
		return err
	} else if ok {
		ingest.LastSeq = seq
	}

	res := reconcile.Reconcile(records)
	return formatter.Format(os.Stdout, output.NewSummary(id, "", res, ingest))
}

// sourcesReport lists the labelers with stored records.
type sourcesReport struct {
	Sources []sourceRow `json:"sources" yaml:"sources"`
}

type sourceRow struct {
	Src     string `json:"src" yaml:"src"`
	Handle  string `json:"handle,omitempty" yaml:"handle,omitempty"`
	Records int    `json:"records" yaml:"records"`
	MaxSeq  int64  `json:"max_seq" yaml:"max_seq"`
}

// TableData implements output.Tabler.
func (r sourcesReport) TableData(_ bool) []output.Data {
	rows := make([][]string, 0, len(r.Sources))
	for _, s := range r.Sources {
		rows = append(rows, []string{
			s.Src, s.Handle, strconv.Itoa(s.Records), strconv.FormatInt(s.MaxSeq, 10),
		})
	}
	return []output.Data{{
		Title:   "Stored labelers",
		Headers: []string{"Src", "Handle", "Records", "Max Seq"},
		Rows:    rows,
	}}
}
