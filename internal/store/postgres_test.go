package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/conviction-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetArtifact_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT artifact_type, payload FROM artifacts WHERE artifact_id = \$1`).
		WithArgs("missing-id").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetArtifact(context.Background(), "missing-id")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetArtifact_RehydratesSnapshot(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	asOf := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	snap := testSnapshot(t, "snap-1", "ACME", asOf)
	payload, err := json.Marshal(snap)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT artifact_type, payload FROM artifacts`).
		WithArgs("snap-1").
		WillReturnRows(pgxmock.NewRows([]string{"artifact_type", "payload"}).
			AddRow(string(model.KindSnapshot), payload))

	got, err := s.GetArtifact(context.Background(), "snap-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	loaded, ok := got.(*model.Snapshot)
	require.True(t, ok, "expected *model.Snapshot, got %T", got)
	assert.Equal(t, "ACME", loaded.Company.Ticker)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveArtifact_DuplicateRejected(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// ON CONFLICT DO NOTHING reports zero rows affected for a duplicate.
	mock.ExpectExec(`INSERT INTO artifacts`).
		WithArgs("snap-dup", string(model.KindSnapshot), model.SchemaV1, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	err := s.SaveArtifact(context.Background(), testSnapshot(t, "snap-dup", "ACME", asOf))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrImmutableViolation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveArtifact_Inserts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO artifacts`).
		WithArgs("snap-1", string(model.KindSnapshot), model.SchemaV1, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	err := s.SaveArtifact(context.Background(), testSnapshot(t, "snap-1", "ACME", asOf))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateProposalStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status FROM proposals WHERE proposal_id = \$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	err := s.UpdateProposalStatus(context.Background(), "ghost", model.ProposalAccepted)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateProposalStatus_DisallowedSkipsWrite(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status FROM proposals WHERE proposal_id = \$1`).
		WithArgs("prop-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(string(model.ProposalExpired)))

	// No ExpectExec: a terminal proposal must not be updated.
	err := s.UpdateProposalStatus(context.Background(), "prop-1", model.ProposalAccepted)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateProposalStatus_Allowed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status FROM proposals WHERE proposal_id = \$1`).
		WithArgs("prop-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(string(model.ProposalPending)))
	mock.ExpectExec(`UPDATE proposals SET status = \$1 WHERE proposal_id = \$2`).
		WithArgs(string(model.ProposalAccepted), "prop-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateProposalStatus(context.Background(), "prop-1", model.ProposalAccepted)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExpirePendingOlderThan(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cutoff := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE proposals SET status = \$1 WHERE status = \$2 AND created_at < \$3`).
		WithArgs(string(model.ProposalExpired), string(model.ProposalPending), cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := s.ExpirePendingOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
