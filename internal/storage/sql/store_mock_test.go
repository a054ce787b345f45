package sql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"

	"ecs/backend/internal/config"
	"ecs/backend/internal/domain"
	"ecs/backend/internal/storage"
)

// setupMockStore 基于 sqlmock 的 PostgreSQL 方言存储
func setupMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	// gorm.Open 会先探活一次
	mock.ExpectPing()
	store, err := NewStoreWithDialector(postgres.New(postgres.Config{
		Conn:                 mockDB,
		PreferSimpleProtocol: true,
	}), config.DatabaseConfig{Driver: "postgres"}, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = mockDB.Close() })
	return store, mock
}

func TestHealth(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectPing()
	assert.NoError(t, store.Health(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, store.Health(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCorrespondenceMapsNotFound(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "correspondences" WHERE "correspondences"."id" = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetCorrespondence(context.Background(), 7)
	assert.ErrorIs(t, err, storage.ErrCorrespondenceNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCorrespondenceTranslatesUniqueViolation(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "correspondences"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "correspondences" WHERE reference_number`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	c := newCorrespondence("Clash", domain.DirectionIncoming, domain.StatusPending)
	err := store.CreateCorrespondence(context.Background(), c, nil)
	assert.ErrorIs(t, err, storage.ErrDuplicateReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCorrespondenceOtherUniqueViolation(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "correspondences"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_attachments_stored_name"})
	mock.ExpectRollback()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "correspondences" WHERE reference_number`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	c := newCorrespondence("Clash", domain.DirectionIncoming, domain.StatusPending)
	err := store.CreateCorrespondence(context.Background(), c, nil)
	assert.ErrorIs(t, err, storage.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsPropagatesQueryError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "correspondences"`).
		WillReturnError(errors.New("relation does not exist"))

	_, err := store.Stats(context.Background(), time.Now())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
