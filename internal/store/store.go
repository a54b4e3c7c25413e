package store

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/agentstation/labelview/pkg/errors"
	"github.com/agentstation/labelview/pkg/labels"
)

// Store wraps the SQLite database holding runs, label records, and
// witnessed handles.
type Store struct {
	db *sql.DB
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertOutcome says what happened to one record during ingestion.
type UpsertOutcome int

const (
	// OutcomeInserted means the record was new.
	OutcomeInserted UpsertOutcome = iota
	// OutcomeRefreshed means an identical record was already stored and
	// its last-seen timestamp was bumped.
	OutcomeRefreshed
	// OutcomeConflict means a record with the same identity but
	// different content was already stored. The stored row is kept and
	// the conflict is surfaced to the caller.
	OutcomeConflict
)

// Upsert is the result of storing one record.
type Upsert struct {
	Outcome UpsertOutcome
	// Prior holds the previously stored record when Outcome is
	// OutcomeConflict.
	Prior *labels.Record
}

// BeginRun records an invocation and returns its run id. Every record
// stored during the run references it.
func (s *Store) BeginRun(ctx context.Context, startTime time.Time, args []string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (start_time, invocation_args) VALUES (?, ?)`,
		formatTime(startTime), strings.Join(args, " "))
	if err != nil {
		return 0, errors.WrapPersistence("begin run", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.WrapPersistence("begin run", err)
	}
	return id, nil
}

// UpsertRecord stores one label record. An exact duplicate of a stored
// row only bumps its last-seen timestamp; a row with the same identity
// but different content is left untouched and reported as a conflict.
func (s *Store) UpsertRecord(ctx context.Context, runID int64, rec labels.Record, seenAt time.Time) (Upsert, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO label_records
			(src, seq, val, target_uri, target_cid, neg,
			 create_timestamp, expiry_timestamp, signature, run_id, last_seen_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Src, rec.Seq, rec.Val, rec.TargetURI, nullString(rec.TargetCID), rec.Neg,
		formatTime(rec.CreatedAt), formatTimePtr(rec.ExpiresAt), rec.Signature, runID, formatTime(seenAt))
	if err != nil {
		return Upsert{}, errors.WrapPersistence("insert record", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return Upsert{Outcome: OutcomeInserted}, nil
	}

	prior, err := s.recordByIdentity(ctx, rec.Src, rec.Val, rec.TargetURI, rec.Seq)
	if err != nil {
		return Upsert{}, err
	}
	if !prior.Same(rec) {
		return Upsert{Outcome: OutcomeConflict, Prior: &prior}, nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE label_records SET last_seen_timestamp = ?
		WHERE src = ? AND val = ? AND target_uri = ? AND seq = ?`,
		formatTime(seenAt), rec.Src, rec.Val, rec.TargetURI, rec.Seq)
	if err != nil {
		return Upsert{}, errors.WrapPersistence("refresh record", err)
	}
	return Upsert{Outcome: OutcomeRefreshed}, nil
}

const recordColumns = `src, seq, val, target_uri, target_cid, neg,
	create_timestamp, expiry_timestamp, signature`

func (s *Store) recordByIdentity(ctx context.Context, src, val, targetURI string, seq int64) (labels.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM label_records
		WHERE src = ? AND val = ? AND target_uri = ? AND seq = ?`,
		src, val, targetURI, seq)
	rec, err := scanRecord(row)
	if err != nil {
		return labels.Record{}, errors.WrapPersistence("load record", err)
	}
	return rec, nil
}

// AllRecords returns every stored record, optionally restricted to one
// labeler DID. Order is (src, seq, val, target_uri) for determinism.
func (s *Store) AllRecords(ctx context.Context, src string) ([]labels.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM label_records`
	args := []any{}
	if src != "" {
		query += ` WHERE src = ?`
		args = append(args, src)
	}
	query += ` ORDER BY src, seq, val, target_uri`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapPersistence("load records", err)
	}
	defer rows.Close()

	var records []labels.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.WrapPersistence("scan record", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapPersistence("load records", err)
	}
	return records, nil
}

// LastSeq returns the highest sequence stored for a labeler DID, used
// as the resume cursor. ok is false when nothing is stored for it.
func (s *Store) LastSeq(ctx context.Context, src string) (int64, bool, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM label_records WHERE src = ?`, src).Scan(&seq)
	if err != nil {
		return 0, false, errors.WrapPersistence("load cursor", err)
	}
	if !seq.Valid {
		return 0, false, nil
	}
	return seq.Int64, true, nil
}

// WitnessHandle records the handle a DID presented as, replacing any
// earlier witness.
func (s *Store) WitnessHandle(ctx context.Context, did, handle string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO known_handles (did, handle, witnessed_timestamp) VALUES (?, ?, ?)
		ON CONFLICT (did) DO UPDATE SET
			handle = excluded.handle,
			witnessed_timestamp = excluded.witnessed_timestamp`,
		did, handle, formatTime(at))
	return errors.WrapPersistence("witness handle", err)
}

// HandleFor returns the last witnessed handle for a DID, if any.
func (s *Store) HandleFor(ctx context.Context, did string) (string, bool, error) {
	var handle string
	err := s.db.QueryRowContext(ctx,
		`SELECT handle FROM known_handles WHERE did = ?`, did).Scan(&handle)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.WrapPersistence("load handle", err)
	}
	return handle, true, nil
}

// SourceStat summarizes the stored records for one labeler DID.
type SourceStat struct {
	Src     string
	Records int
	MaxSeq  int64
}

// Sources lists every labeler DID with stored records.
func (s *Store) Sources(ctx context.Context) ([]SourceStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT src, COUNT(*), MAX(seq) FROM label_records
		GROUP BY src ORDER BY src`)
	if err != nil {
		return nil, errors.WrapPersistence("load sources", err)
	}
	defer rows.Close()

	var stats []SourceStat
	for rows.Next() {
		var st SourceStat
		if err := rows.Scan(&st.Src, &st.Records, &st.MaxSeq); err != nil {
			return nil, errors.WrapPersistence("scan source", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapPersistence("load sources", err)
	}
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (labels.Record, error) {
	var (
		rec labels.Record
		cid sql.NullString
		cts string
		exp sql.NullString
		sig []byte
	)
	if err := row.Scan(&rec.Src, &rec.Seq, &rec.Val, &rec.TargetURI, &cid, &rec.Neg,
		&cts, &exp, &sig); err != nil {
		return labels.Record{}, err
	}
	rec.TargetCID = cid.String

	created, err := parseTime(cts)
	if err != nil {
		return labels.Record{}, err
	}
	rec.CreatedAt = created

	if exp.Valid {
		expires, err := parseTime(exp.String)
		if err != nil {
			return labels.Record{}, err
		}
		rec.ExpiresAt = &expires
	}
	if len(sig) > 0 {
		rec.Signature = bytes.Clone(sig)
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
