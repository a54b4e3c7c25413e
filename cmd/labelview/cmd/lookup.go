package cmd

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/labelview/internal/output"
	"github.com/agentstation/labelview/internal/store"
	"github.com/agentstation/labelview/pkg/errors"
	"github.com/agentstation/labelview/pkg/identity"
	"github.com/agentstation/labelview/pkg/labels"
	"github.com/agentstation/labelview/pkg/logging"
	"github.com/agentstation/labelview/pkg/reconcile"
	"github.com/agentstation/labelview/pkg/stream"
)

var (
	lookupCursor  int64
	lookupResume  bool
	lookupLabeler string
	lookupTimeout time.Duration
)

// lookupCmd streams a labeler's records and reports the effective set.
var lookupCmd = &cobra.Command{
	Use:   "lookup IDENTIFIER",
	Short: "Stream a labeler's records and show the labels in force",
	Long: `Lookup resolves IDENTIFIER (a handle like mod.example.com or a DID) to
its labeler service endpoint, streams the label records it has issued,
and reconciles them into the set of labels currently in force.

The stream is read until the remote side closes it, the idle timeout
elapses, or the run is interrupted. Data gathered up to that point is
reported either way.`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

func init() {
	lookupCmd.Flags().Int64Var(&lookupCursor, "cursor", -1, "start streaming after this sequence number")
	lookupCmd.Flags().BoolVar(&lookupResume, "resume", false, "resume from the highest sequence already stored")
	lookupCmd.Flags().StringVar(&lookupLabeler, "labeler", "", "labeler service endpoint, skipping identity resolution")
	lookupCmd.Flags().DurationVar(&lookupTimeout, "timeout", 30*time.Second, "give up after this long without a frame (0 to wait forever)")
	rootCmd.AddCommand(lookupCmd)
}

func runLookup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	identifier := args[0]

	id, endpoint, err := resolveLabeler(ctx, identifier)
	if err != nil {
		return err
	}
	ctx = logging.WithLabeler(ctx, id.DID)
	ctx = logging.WithEndpoint(ctx, endpoint)
	log := logging.FromContext(ctx)

	st, err := openStore()
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	var runID int64
	if st != nil {
		runID, err = st.BeginRun(ctx, time.Now(), os.Args[1:])
		if err != nil {
			return err
		}
		ctx = logging.WithRun(ctx, runID)
		log = logging.FromContext(ctx)

		if id.DID != "" && id.Handle != "" {
			if err := st.WitnessHandle(ctx, id.DID, id.Handle, time.Now()); err != nil {
				return err
			}
		}
	}

	cursor := lookupCursor
	if cursor < 0 && lookupResume && st != nil && id.DID != "" {
		seq, ok, err := st.LastSeq(ctx, id.DID)
		if err != nil {
			return err
		}
		if ok {
			cursor = seq
			log.Debug().Int64("cursor", cursor).Msg("resuming from stored sequence")
		}
	}

	log.Info().Str("identifier", identifier).Msg("subscribing to label stream")
	client := stream.New(
		stream.WithIdleTimeout(lookupTimeout),
		stream.WithUserAgent("labelview/"+Version),
	)
	sub, err := client.Subscribe(ctx, endpoint, cursor)
	if err != nil {
		return err
	}
	defer sub.Close()

	records, ingest, err := ingestFrames(ctx, sub, st, runID)
	if err != nil {
		return err
	}
	streamErr := sub.Err()
	if streamErr != nil && len(records) == 0 {
		return streamErr
	}

	// With a store, reconcile across everything seen for this labeler,
	// this run included. Without one, the session's records stand alone.
	all := records
	if st != nil {
		all, err = st.AllRecords(ctx, id.DID)
		if err != nil {
			return err
		}
	}

	res := reconcile.Reconcile(all, reconcile.WithMalformedDrops(ingest.MalformedDrops))
	summary := output.NewSummary(*id, endpoint, res, ingest)

	formatter := output.NewFormatter(output.Format(flagOutput))
	if err := formatter.Format(os.Stdout, summary); err != nil {
		return err
	}
	if streamErr == nil {
		return nil
	}
	// A connection lost after records arrived is an early but valid end
	// of the stream. A terminal error frame from the remote side is not.
	if errors.IsTransport(streamErr) {
		log.Warn().Err(streamErr).Msg("connection lost, reporting records received so far")
		return nil
	}
	log.Error().Err(streamErr).Msg("stream ended abnormally")
	return streamErr
}

// resolveLabeler turns the identifier into an identity and a labeler
// service endpoint. The --labeler flag short-circuits resolution.
func resolveLabeler(ctx context.Context, identifier string) (*identity.Identity, string, error) {
	if lookupLabeler != "" {
		id := &identity.Identity{Input: identifier}
		if strings.HasPrefix(identifier, "did:") {
			id.DID = identifier
		}
		return id, lookupLabeler, nil
	}

	id, err := identity.New().Resolve(ctx, identifier)
	if err != nil {
		return nil, "", err
	}
	endpoint, err := id.RequireEndpoint(identity.ServiceLabeler)
	if err != nil {
		return nil, "", err
	}
	return id, endpoint, nil
}

// ingestFrames drains the subscription, normalizing and optionally
// persisting every record. Bad frames and malformed records are counted
// and skipped; persistence failures are fatal.
func ingestFrames(ctx context.Context, sub *stream.Subscription, st *store.Store, runID int64) ([]labels.Record, output.Ingest, error) {
	log := logging.FromContext(ctx)

	var (
		records []labels.Record
		ingest  output.Ingest
	)
	for frame := range sub.Frames() {
		switch f := frame.(type) {
		case stream.LabelsFrame:
			if f.Seq > ingest.LastSeq {
				ingest.LastSeq = f.Seq
			}
			for _, w := range f.Labels {
				rec, err := labels.Normalize(w, f.Seq)
				if err != nil {
					ingest.MalformedDrops++
					log.Warn().Err(err).Int64("seq", f.Seq).Msg("dropping malformed record")
					continue
				}
				records = append(records, rec)

				if st == nil {
					continue
				}
				up, err := st.UpsertRecord(ctx, runID, rec, time.Now())
				if err != nil {
					return nil, ingest, err
				}
				if up.Outcome == store.OutcomeConflict {
					ingest.StoreConflicts++
					log.Warn().
						Int64("seq", rec.Seq).
						Str("val", rec.Val).
						Str("target", rec.TargetURI).
						Msg("stored record with same identity but different content")
				}
			}
		case stream.InfoFrame:
			log.Info().Str("name", f.Name).Str("message", f.Message).Msg("info from labeler")
		case stream.DecodeFailure:
			ingest.DecodeFailures++
			log.Warn().Err(f.Err).Msg("skipping undecodable frame")
		}
	}
	return records, ingest, nil
}

// openStore opens the record database unless --no-db was given.
func openStore() (*store.Store, error) {
	if flagNoStore {
		return nil, nil
	}
	path := flagDBPath
	if path == "" {
		var err error
		path, err = store.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(path)
}
