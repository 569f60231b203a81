package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/conviction-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS artifacts (
	artifact_id    TEXT PRIMARY KEY,
	artifact_type  TEXT NOT NULL,
	schema_version TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	payload        JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS lifecycle_events (
	event_id    TEXT PRIMARY KEY,
	belief_id   TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS proposals (
	proposal_id   TEXT PRIMARY KEY,
	proposal_type TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	created_at    TIMESTAMPTZ NOT NULL,
	payload       JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_artifacts_type ON artifacts(artifact_type);
CREATE INDEX IF NOT EXISTS idx_lifecycle_events_belief_id ON lifecycle_events(belief_id);
CREATE INDEX IF NOT EXISTS idx_proposals_type_status ON proposals(proposal_type, status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveArtifact(ctx context.Context, a model.Artifact) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal artifact")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO artifacts (artifact_id, artifact_type, schema_version, created_at, payload) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (artifact_id) DO NOTHING`,
		a.ArtifactID(), string(a.Kind()), a.SchemaVersion(), a.CreatedStamp().UTC(), payload,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert artifact %s", a.ArtifactID())
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrImmutableViolation, "artifact %s", a.ArtifactID())
	}
	return nil
}

func (s *PostgresStore) GetArtifact(ctx context.Context, id string) (model.Artifact, error) {
	var tag string
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT artifact_type, payload FROM artifacts WHERE artifact_id = $1`, id,
	).Scan(&tag, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get artifact")
	}
	return rehydrate(tag, payload)
}

func (s *PostgresStore) ListByKind(ctx context.Context, kind model.ArtifactKind) ([]model.Artifact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT artifact_type, payload FROM artifacts WHERE artifact_type = $1`, string(kind),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list artifacts")
	}
	defer rows.Close()

	var out []model.Artifact
	for rows.Next() {
		var tag string
		var payload []byte
		if err := rows.Scan(&tag, &payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan artifact")
		}
		a, err := rehydrate(tag, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list artifacts iterate")
}

func (s *PostgresStore) AppendEvent(ctx context.Context, ev model.LifecycleEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal event")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO lifecycle_events (event_id, belief_id, occurred_at, payload) VALUES ($1, $2, $3, $4)`,
		ev.EventID, ev.BeliefID, ev.OccurredAt.UTC(), payload,
	)
	return eris.Wrapf(err, "postgres: insert event for belief %s", ev.BeliefID)
}

func (s *PostgresStore) ListForBelief(ctx context.Context, beliefID string) ([]model.LifecycleEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM lifecycle_events WHERE belief_id = $1 ORDER BY occurred_at ASC`,
		beliefID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var out []model.LifecycleEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		var ev model.LifecycleEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal event")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

func (s *PostgresStore) CreateProposal(ctx context.Context, p model.Proposal) error {
	payload, err := json.Marshal(p.Payload)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal proposal payload")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO proposals (proposal_id, proposal_type, status, created_at, payload) VALUES ($1, $2, $3, $4, $5)`,
		p.ProposalID, string(p.Type), string(p.Status), p.CreatedAt.UTC(), payload,
	)
	return eris.Wrapf(err, "postgres: insert proposal %s", p.ProposalID)
}

func (s *PostgresStore) GetProposal(ctx context.Context, id string) (*model.Proposal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT proposal_id, proposal_type, status, created_at, payload FROM proposals WHERE proposal_id = $1`,
		id,
	)
	p, err := scanPGProposal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get proposal")
	}
	return p, nil
}

func (s *PostgresStore) ListProposals(ctx context.Context, filter ProposalFilter) ([]model.Proposal, error) {
	query := `SELECT proposal_id, proposal_type, status, created_at, payload FROM proposals WHERE 1=1`
	var args []any

	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += ` AND proposal_type = $1`
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		query += ` AND status = ANY($` + strconv.Itoa(len(args)) + `)`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list proposals")
	}
	defer rows.Close()

	var out []model.Proposal
	for rows.Next() {
		p, err := scanPGProposal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan proposal")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list proposals iterate")
}

func (s *PostgresStore) UpdateProposalStatus(ctx context.Context, id string, status model.ProposalStatus) error {
	var current string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM proposals WHERE proposal_id = $1`, id,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "proposal %s", id)
	}
	if err != nil {
		return eris.Wrap(err, "postgres: get proposal status")
	}
	if !model.CanTransition(model.ProposalStatus(current), status) {
		return nil
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE proposals SET status = $1 WHERE proposal_id = $2`,
		string(status), id,
	)
	return eris.Wrapf(err, "postgres: update proposal status %s", id)
}

func (s *PostgresStore) ExpirePendingOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE proposals SET status = $1 WHERE status = $2 AND created_at < $3`,
		string(model.ProposalExpired), string(model.ProposalPending), cutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: expire pending proposals")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ResetAll(ctx context.Context) error {
	for _, table := range []string{"artifacts", "lifecycle_events", "proposals"} {
		if _, err := s.pool.Exec(ctx, `DELETE FROM `+table); err != nil {
			return eris.Wrapf(err, "postgres: reset %s", table)
		}
	}
	return nil
}

func scanPGProposal(row pgx.Row) (*model.Proposal, error) {
	var p model.Proposal
	var ptype, status string
	var payload []byte

	err := row.Scan(&p.ProposalID, &ptype, &status, &p.CreatedAt, &payload)
	if err != nil {
		return nil, err
	}
	p.Type = model.ProposalType(ptype)
	p.Status = model.ProposalStatus(status)
	if err := json.Unmarshal(payload, &p.Payload); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal proposal payload")
	}
	return &p, nil
}
