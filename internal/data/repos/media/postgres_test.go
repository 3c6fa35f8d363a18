package media

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/video-gateway/internal/data/repos/testutil"
	types "github.com/yungbote/video-gateway/internal/domain/media"
	"github.com/yungbote/video-gateway/internal/platform/dbctx"
)

// newMockPostgres pins the SQL the repositories emit under the postgres dialect.
func newMockPostgres(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb, mock
}

func TestPostgresStatusTransitionIsConditionalUpdate(t *testing.T) {
	gdb, mock := newMockPostgres(t)
	repo := NewFileRecordRepo(gdb, testutil.Logger(t))
	id := uuid.New()
	dbc := dbctx.From(context.Background())

	mock.ExpectExec(`UPDATE "file_record" SET .*"processing_status"=\$\d+.* WHERE id = \$\d+ AND processing_status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	moved, err := repo.TransitionStatus(dbc, id, types.StatusPending, types.StatusProcessing, nil)
	require.NoError(t, err)
	assert.True(t, moved)

	// A row already claimed elsewhere matches nothing.
	mock.ExpectExec(`UPDATE "file_record" SET .* WHERE id = \$\d+ AND processing_status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	moved, err = repo.TransitionStatus(dbc, id, types.StatusPending, types.StatusProcessing, nil)
	require.NoError(t, err)
	assert.False(t, moved)

	// Backwards moves never reach the database.
	moved, err = repo.TransitionStatus(dbc, id, types.StatusCompleted, types.StatusPending, nil)
	require.NoError(t, err)
	assert.False(t, moved)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresJobTransitionIsConditionalUpdate(t *testing.T) {
	gdb, mock := newMockPostgres(t)
	repo := NewTranscodingJobRepo(gdb, testutil.Logger(t))
	dbc := dbctx.From(context.Background())

	mock.ExpectExec(`UPDATE "transcoding_job" SET .* WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	moved, err := repo.Transition(dbc, uuid.New(), types.JobQueued, types.JobProcessing, map[string]interface{}{"progress": 0})
	require.NoError(t, err)
	assert.True(t, moved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMissingKeyMapsToErrNotFound(t *testing.T) {
	gdb, mock := newMockPostgres(t)
	repo := NewFileRecordRepo(gdb, testutil.Logger(t))

	mock.ExpectQuery(`SELECT \* FROM "file_record" WHERE stored_key = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "stored_key"}))
	_, err := repo.GetByStoredKey(dbctx.From(context.Background()), "360-videos/missing.mp4")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
