package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polydoc/models"
)

func newLedgerWithMock(t *testing.T) (*DatabaseService, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewDatabaseServiceWithDB(db), mock, db
}

const claimQuery = `(?s)^UPDATE\s+files\s+SET\s+status\s*=\s*'processing'.*WHERE\s+id\s*=\s*\$1\s+AND\s+user_id\s*=\s*\$2\s+AND\s+status\s+IN\s*\('uploaded',\s*'completed',\s*'failed'\)$`

func TestClaimFile_Wins(t *testing.T) {
	ledger, mock, db := newLedgerWithMock(t)
	defer db.Close()

	mock.ExpectExec(claimQuery).
		WithArgs(7, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, ledger.ClaimFile(context.Background(), 7, "u1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimFile_ConflictWhenAlreadyProcessing(t *testing.T) {
	ledger, mock, db := newLedgerWithMock(t)
	defer db.Close()

	// Zero rows affected: the conditional transition lost the race.
	mock.ExpectExec(claimQuery).
		WithArgs(7, "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ledger.ClaimFile(context.Background(), 7, "u1")
	require.ErrorIs(t, err, models.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimFile_DBError(t *testing.T) {
	ledger, mock, db := newLedgerWithMock(t)
	defer db.Close()

	mock.ExpectExec(claimQuery).
		WithArgs(7, "u1").
		WillReturnError(errors.New("connection reset"))

	err := ledger.ClaimFile(context.Background(), 7, "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrConflict)
}

func TestGetFile_ScopedByOwner(t *testing.T) {
	ledger, mock, db := newLedgerWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "original_name", "filename", "mime_type", "size",
		"source_language", "status", "conversion_progress", "created_at", "updated_at",
	}).AddRow(3, "u1", "deck.pptx", "uploads/3_deck.pptx", "application/vnd.ms-powerpoint",
		int64(2048), "en", "uploaded", 0.0, now, now)

	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM\s+files\s+WHERE\s+id\s*=\s*\$1\s+AND\s+user_id\s*=\s*\$2$`).
		WithArgs(3, "u1").
		WillReturnRows(rows)

	f, err := ledger.GetFile(context.Background(), 3, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, f.ID)
	assert.Equal(t, models.FileStatusUploaded, f.Status)
	assert.Equal(t, "en", f.SourceLanguage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFile_NotFoundForMissingOrForeign(t *testing.T) {
	ledger, mock, db := newLedgerWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM\s+files\s+WHERE\s+id\s*=\s*\$1\s+AND\s+user_id\s*=\s*\$2$`).
		WithArgs(3, "intruder").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := ledger.GetFile(context.Background(), 3, "intruder")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateFile(t *testing.T) {
	ledger, mock, db := newLedgerWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+files\s*\(user_id,\s*original_name,\s*filename,\s*mime_type,\s*size,\s*source_language,\s*status,\s*conversion_progress\)`).
		WithArgs("u1", "deck.pptx", "uploads/3_deck.pptx", "application/vnd.ms-powerpoint",
			int64(2048), "en", "uploaded", 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(3, now, now))

	f := &models.File{
		UserID:         "u1",
		OriginalName:   "deck.pptx",
		Filename:       "uploads/3_deck.pptx",
		MimeType:       "application/vnd.ms-powerpoint",
		Size:           2048,
		SourceLanguage: "en",
	}
	require.NoError(t, ledger.CreateFile(context.Background(), f))
	assert.Equal(t, 3, f.ID)
	assert.Equal(t, models.FileStatusUploaded, f.Status, "status defaults to uploaded")
	assert.Equal(t, now, f.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJob(t *testing.T) {
	ledger, mock, db := newLedgerWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+conversion_jobs\s*\(file_id,\s*status,\s*progress\)\s+VALUES\s*\(\$1,\s*'pending',\s*0\)\s+RETURNING\s+id,\s*created_at$`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(11, now))

	job, err := ledger.CreateJob(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 11, job.ID)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 3, job.FileID)
}

func TestFailJob_RecordsErrorMessage(t *testing.T) {
	ledger, mock, db := newLedgerWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+conversion_jobs\s+SET\s+status\s*=\s*'failed',\s*error_message\s*=\s*\$1,\s*completed_at\s*=\s*now\(\)\s+WHERE\s+id\s*=\s*\$2$`).
		WithArgs(`conversion to "fr" failed: engine crashed`, 11).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, ledger.FailJob(context.Background(), 11, `conversion to "fr" failed: engine crashed`))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobs_MostRecentFirstAndNullableTimes(t *testing.T) {
	ledger, mock, db := newLedgerWithMock(t)
	defer db.Close()

	now := time.Now()
	started := now.Add(-time.Minute)
	rows := sqlmock.NewRows([]string{
		"id", "file_id", "status", "progress", "error_message", "started_at", "completed_at", "created_at",
	}).
		AddRow(12, 3, "processing", 50.0, "", started, nil, now).
		AddRow(11, 3, "failed", 0.0, "conversion failed", started, now, now.Add(-time.Hour))

	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM\s+conversion_jobs\s+WHERE\s+file_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC,\s*id\s+DESC$`).
		WithArgs(3).
		WillReturnRows(rows)

	jobs, err := ledger.ListJobs(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, 12, jobs[0].ID)
	assert.Equal(t, models.JobStatusProcessing, jobs[0].Status)
	assert.Equal(t, 50, jobs[0].Progress)
	assert.NotNil(t, jobs[0].StartedAt)
	assert.Nil(t, jobs[0].CompletedAt)

	assert.Equal(t, models.JobStatusFailed, jobs[1].Status)
	assert.Equal(t, "conversion failed", jobs[1].ErrorMessage)
	assert.NotNil(t, jobs[1].CompletedAt)
}

func TestCreateConvertedFile(t *testing.T) {
	ledger, mock, db := newLedgerWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+converted_files\s*\(original_file_id,\s*target_language,\s*filename,\s*output_format,\s*size,\s*download_url\)`).
		WithArgs(3, "es", "converted/abc_es.pdf", "pdf", int64(4096), "/downloads/converted/abc_es.pdf").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(21, now))

	cf := &models.ConvertedFile{
		OriginalFileID: 3,
		TargetLanguage: "es",
		Filename:       "converted/abc_es.pdf",
		OutputFormat:   "pdf",
		Size:           4096,
		DownloadURL:    "/downloads/converted/abc_es.pdf",
	}
	require.NoError(t, ledger.CreateConvertedFile(context.Background(), cf))
	assert.Equal(t, 21, cf.ID)
}

func TestGetConvertedFile_OwnershipThroughJoin(t *testing.T) {
	ledger, mock, db := newLedgerWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM\s+converted_files\s+cf\s+JOIN\s+files\s+f\s+ON\s+f\.id\s*=\s*cf\.original_file_id\s+WHERE\s+cf\.id\s*=\s*\$1\s+AND\s+f\.user_id\s*=\s*\$2$`).
		WithArgs(21, "intruder").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := ledger.GetConvertedFile(context.Background(), 21, "intruder")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestListArtifactKeys(t *testing.T) {
	ledger, mock, db := newLedgerWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"filename"}).
		AddRow("uploads/3_deck.pptx").
		AddRow("converted/abc_es.pdf").
		AddRow("converted/abc_es.pdf.log.txt")

	mock.ExpectQuery(`(?s)^SELECT\s+filename\s+FROM\s+files\s+WHERE\s+id\s*=\s*\$1\s+UNION\s+ALL`).
		WithArgs(3).
		WillReturnRows(rows)

	keys, err := ledger.ListArtifactKeys(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"uploads/3_deck.pptx",
		"converted/abc_es.pdf",
		"converted/abc_es.pdf.log.txt",
	}, keys)
}
