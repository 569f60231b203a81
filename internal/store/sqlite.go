package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/conviction-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS artifacts (
	artifact_id    TEXT PRIMARY KEY,
	artifact_type  TEXT NOT NULL,
	schema_version TEXT NOT NULL,
	created_at     DATETIME NOT NULL,
	payload        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lifecycle_events (
	event_id    TEXT PRIMARY KEY,
	belief_id   TEXT NOT NULL,
	occurred_at DATETIME NOT NULL,
	payload     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS proposals (
	proposal_id   TEXT PRIMARY KEY,
	proposal_type TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	created_at    DATETIME NOT NULL,
	payload       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_artifacts_type ON artifacts(artifact_type);
CREATE INDEX IF NOT EXISTS idx_lifecycle_events_belief_id ON lifecycle_events(belief_id);
CREATE INDEX IF NOT EXISTS idx_proposals_type_status ON proposals(proposal_type, status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveArtifact(ctx context.Context, a model.Artifact) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM artifacts WHERE artifact_id = ?`, a.ArtifactID(),
	).Scan(&exists)
	if err != nil {
		return eris.Wrap(err, "sqlite: check artifact exists")
	}
	if exists > 0 {
		return eris.Wrapf(ErrImmutableViolation, "artifact %s", a.ArtifactID())
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal artifact")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (artifact_id, artifact_type, schema_version, created_at, payload) VALUES (?, ?, ?, ?, ?)`,
		a.ArtifactID(), string(a.Kind()), a.SchemaVersion(), a.CreatedStamp().UTC(), string(payload),
	)
	return eris.Wrapf(err, "sqlite: insert artifact %s", a.ArtifactID())
}

func (s *SQLiteStore) GetArtifact(ctx context.Context, id string) (model.Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT artifact_type, payload FROM artifacts WHERE artifact_id = ?`, id,
	)
	var tag, payload string
	err := row.Scan(&tag, &payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get artifact")
	}
	return rehydrate(tag, []byte(payload))
}

func (s *SQLiteStore) ListByKind(ctx context.Context, kind model.ArtifactKind) ([]model.Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT artifact_type, payload FROM artifacts WHERE artifact_type = ?`, string(kind),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list artifacts")
	}
	defer rows.Close()

	var out []model.Artifact
	for rows.Next() {
		var tag, payload string
		if err := rows.Scan(&tag, &payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan artifact")
		}
		a, err := rehydrate(tag, []byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list artifacts iterate")
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev model.LifecycleEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal event")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lifecycle_events (event_id, belief_id, occurred_at, payload) VALUES (?, ?, ?, ?)`,
		ev.EventID, ev.BeliefID, ev.OccurredAt.UTC(), string(payload),
	)
	return eris.Wrapf(err, "sqlite: insert event for belief %s", ev.BeliefID)
}

func (s *SQLiteStore) ListForBelief(ctx context.Context, beliefID string) ([]model.LifecycleEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM lifecycle_events WHERE belief_id = ? ORDER BY occurred_at ASC`,
		beliefID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var out []model.LifecycleEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		var ev model.LifecycleEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal event")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

func (s *SQLiteStore) CreateProposal(ctx context.Context, p model.Proposal) error {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal proposal payload")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO proposals (proposal_id, proposal_type, status, created_at, payload) VALUES (?, ?, ?, ?, ?)`,
		p.ProposalID, string(p.Type), string(p.Status), p.CreatedAt.UTC(), string(payload),
	)
	return eris.Wrapf(err, "sqlite: insert proposal %s", p.ProposalID)
}

func (s *SQLiteStore) GetProposal(ctx context.Context, id string) (*model.Proposal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT proposal_id, proposal_type, status, created_at, payload FROM proposals WHERE proposal_id = ?`,
		id,
	)
	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get proposal")
	}
	return p, nil
}

func (s *SQLiteStore) ListProposals(ctx context.Context, filter ProposalFilter) ([]model.Proposal, error) {
	query := `SELECT proposal_id, proposal_type, status, created_at, payload FROM proposals WHERE 1=1`
	var args []any

	if filter.Type != "" {
		query += ` AND proposal_type = ?`
		args = append(args, string(filter.Type))
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (?` + repeatPlaceholder(len(filter.Statuses)-1) + `)`
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list proposals")
	}
	defer rows.Close()

	var out []model.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan proposal")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list proposals iterate")
}

func (s *SQLiteStore) UpdateProposalStatus(ctx context.Context, id string, status model.ProposalStatus) error {
	var current string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM proposals WHERE proposal_id = ?`, id,
	).Scan(&current)
	if err == sql.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "proposal %s", id)
	}
	if err != nil {
		return eris.Wrap(err, "sqlite: get proposal status")
	}
	if !model.CanTransition(model.ProposalStatus(current), status) {
		// Disallowed transitions are no-ops: repeated accept on an
		// already-accepted proposal must not error.
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE proposals SET status = ? WHERE proposal_id = ?`,
		string(status), id,
	)
	return eris.Wrapf(err, "sqlite: update proposal status %s", id)
}

func (s *SQLiteStore) ExpirePendingOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE proposals SET status = ? WHERE status = ? AND created_at < ?`,
		string(model.ProposalExpired), string(model.ProposalPending), cutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: expire pending proposals")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) ResetAll(ctx context.Context) error {
	for _, table := range []string{"artifacts", "lifecycle_events", "proposals"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return eris.Wrapf(err, "sqlite: reset %s", table)
		}
	}
	return nil
}

// helpers

func unmarshalPayload(payload []byte, v any) error {
	return eris.Wrap(json.Unmarshal(payload, v), "store: unmarshal payload")
}

// repeatPlaceholder returns n copies of ", ?" for IN clauses.
func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProposal(row scannable) (*model.Proposal, error) {
	var p model.Proposal
	var ptype, status, payload string

	err := row.Scan(&p.ProposalID, &ptype, &status, &p.CreatedAt, &payload)
	if err != nil {
		return nil, err
	}
	p.Type = model.ProposalType(ptype)
	p.Status = model.ProposalStatus(status)
	if err := json.Unmarshal([]byte(payload), &p.Payload); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal proposal payload")
	}
	return &p, nil
}
