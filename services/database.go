package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"polydoc/migrations"
	"polydoc/models"
)

// DatabaseService is the job ledger: the persistent record of files,
// conversion jobs and converted outputs. All state transitions of the
// conversion pipeline go through here.
type DatabaseService struct {
	db *sql.DB
}

func NewDatabaseService(databaseURL string) (*DatabaseService, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseService{db: db}, nil
}

// NewDatabaseServiceWithDB wraps an existing connection. Used by tests.
func NewDatabaseServiceWithDB(db *sql.DB) *DatabaseService {
	return &DatabaseService{db: db}
}

// Migrate applies the embedded goose migrations.
func (d *DatabaseService) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, d.db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (d *DatabaseService) Close() error {
	return d.db.Close()
}

// --- files ---

// CreateFile inserts a fully-validated upload record. The upload handler
// is responsible for size/mime checks; the ledger only records the row.
func (d *DatabaseService) CreateFile(ctx context.Context, f *models.File) error {
	if f.Status == "" {
		f.Status = models.FileStatusUploaded
	}
	query := `INSERT INTO files (user_id, original_name, filename, mime_type, size, source_language, status, conversion_progress)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		RETURNING id, created_at, updated_at`
	err := d.db.QueryRowContext(ctx, query,
		f.UserID, f.OriginalName, f.Filename, f.MimeType, f.Size, f.SourceLanguage, f.Status, f.ConversionProgress,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// GetFile loads a file scoped by owner. A missing row and a row owned by
// someone else are both ErrNotFound.
func (d *DatabaseService) GetFile(ctx context.Context, id int, userID string) (*models.File, error) {
	query := `SELECT id, user_id, original_name, filename, mime_type, size, COALESCE(source_language, ''), status, conversion_progress, created_at, updated_at
		FROM files WHERE id = $1 AND user_id = $2`
	f, err := scanFile(d.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

func (d *DatabaseService) ListFiles(ctx context.Context, userID string) ([]models.File, error) {
	query := `SELECT id, user_id, original_name, filename, mime_type, size, COALESCE(source_language, ''), status, conversion_progress, created_at, updated_at
		FROM files WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := d.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var result []models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *f)
	}
	return result, rows.Err()
}

// ClaimFile atomically transitions a file into processing. The conditional
// status predicate is the mutual-exclusion guard: two concurrent convert
// requests race on this UPDATE and exactly one wins; the loser gets
// ErrConflict. Ownership must already have been checked via GetFile, so a
// zero-row outcome here means the file is currently processing.
func (d *DatabaseService) ClaimFile(ctx context.Context, id int, userID string) error {
	query := `UPDATE files SET status = 'processing', conversion_progress = 0, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND status IN ('uploaded', 'completed', 'failed')`
	res, err := d.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to claim file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return models.ErrConflict
	}
	return nil
}

func (d *DatabaseService) UpdateFileProgress(ctx context.Context, id int, progress int) error {
	query := `UPDATE files SET conversion_progress = $1, updated_at = now() WHERE id = $2`
	_, err := d.db.ExecContext(ctx, query, progress, id)
	return err
}

// SetFileStatus records a terminal (or recovery) transition of the file
// state machine together with its final progress value.
func (d *DatabaseService) SetFileStatus(ctx context.Context, id int, status models.FileStatus, progress int) error {
	query := `UPDATE files SET status = $1, conversion_progress = $2, updated_at = now() WHERE id = $3`
	_, err := d.db.ExecContext(ctx, query, status, progress, id)
	return err
}

// DeleteFile removes the file row; jobs, converted files and translation
// logs go with it via ON DELETE CASCADE.
func (d *DatabaseService) DeleteFile(ctx context.Context, id int) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	return err
}

// --- conversion jobs ---

func (d *DatabaseService) CreateJob(ctx context.Context, fileID int) (*models.ConversionJob, error) {
	job := &models.ConversionJob{FileID: fileID, Status: models.JobStatusPending}
	query := `INSERT INTO conversion_jobs (file_id, status, progress) VALUES ($1, 'pending', 0)
		RETURNING id, created_at`
	if err := d.db.QueryRowContext(ctx, query, fileID).Scan(&job.ID, &job.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create conversion job: %w", err)
	}
	return job, nil
}

func (d *DatabaseService) MarkJobProcessing(ctx context.Context, jobID int) error {
	query := `UPDATE conversion_jobs SET status = 'processing', started_at = now() WHERE id = $1`
	_, err := d.db.ExecContext(ctx, query, jobID)
	return err
}

func (d *DatabaseService) UpdateJobProgress(ctx context.Context, jobID int, progress int) error {
	query := `UPDATE conversion_jobs SET progress = $1 WHERE id = $2`
	_, err := d.db.ExecContext(ctx, query, progress, jobID)
	return err
}

func (d *DatabaseService) CompleteJob(ctx context.Context, jobID int) error {
	query := `UPDATE conversion_jobs SET status = 'completed', progress = 100, completed_at = now() WHERE id = $1`
	_, err := d.db.ExecContext(ctx, query, jobID)
	return err
}

func (d *DatabaseService) FailJob(ctx context.Context, jobID int, errorMsg string) error {
	query := `UPDATE conversion_jobs SET status = 'failed', error_message = $1, completed_at = now() WHERE id = $2`
	_, err := d.db.ExecContext(ctx, query, errorMsg, jobID)
	return err
}

func (d *DatabaseService) ListJobs(ctx context.Context, fileID int) ([]models.ConversionJob, error) {
	query := `SELECT id, file_id, status, progress, COALESCE(error_message, ''), started_at, completed_at, created_at
		FROM conversion_jobs WHERE file_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := d.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var result []models.ConversionJob
	for rows.Next() {
		var j models.ConversionJob
		var started, completed sql.NullTime
		var progress float64
		if err := rows.Scan(&j.ID, &j.FileID, &j.Status, &progress, &j.ErrorMessage, &started, &completed, &j.CreatedAt); err != nil {
			return nil, err
		}
		j.Progress = int(progress)
		if started.Valid {
			t := started.Time
			j.StartedAt = &t
		}
		if completed.Valid {
			t := completed.Time
			j.CompletedAt = &t
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

// --- converted files ---

func (d *DatabaseService) CreateConvertedFile(ctx context.Context, cf *models.ConvertedFile) error {
	query := `INSERT INTO converted_files (original_file_id, target_language, filename, output_format, size, download_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err := d.db.QueryRowContext(ctx, query,
		cf.OriginalFileID, cf.TargetLanguage, cf.Filename, cf.OutputFormat, cf.Size, cf.DownloadURL,
	).Scan(&cf.ID, &cf.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create converted file: %w", err)
	}
	return nil
}

// GetConvertedFile loads one output, ownership-checked through the owning
// file. Missing and foreign rows are both ErrNotFound.
func (d *DatabaseService) GetConvertedFile(ctx context.Context, id int, userID string) (*models.ConvertedFile, error) {
	query := `SELECT cf.id, cf.original_file_id, cf.target_language, cf.filename, cf.output_format, cf.size, COALESCE(cf.download_url, ''), cf.created_at
		FROM converted_files cf
		JOIN files f ON f.id = cf.original_file_id
		WHERE cf.id = $1 AND f.user_id = $2`
	var cf models.ConvertedFile
	err := d.db.QueryRowContext(ctx, query, id, userID).Scan(
		&cf.ID, &cf.OriginalFileID, &cf.TargetLanguage, &cf.Filename, &cf.OutputFormat, &cf.Size, &cf.DownloadURL, &cf.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get converted file: %w", err)
	}
	return &cf, nil
}

func (d *DatabaseService) ListConvertedFiles(ctx context.Context, fileID int) ([]models.ConvertedFile, error) {
	query := `SELECT id, original_file_id, target_language, filename, output_format, size, COALESCE(download_url, ''), created_at
		FROM converted_files WHERE original_file_id = $1 ORDER BY created_at DESC, id DESC`
	return d.queryConvertedFiles(ctx, query, fileID)
}

func (d *DatabaseService) ListConvertedFilesByUser(ctx context.Context, userID string) ([]models.ConvertedFile, error) {
	query := `SELECT cf.id, cf.original_file_id, cf.target_language, cf.filename, cf.output_format, cf.size, COALESCE(cf.download_url, ''), cf.created_at
		FROM converted_files cf
		JOIN files f ON f.id = cf.original_file_id
		WHERE f.user_id = $1 ORDER BY cf.created_at DESC, cf.id DESC`
	return d.queryConvertedFiles(ctx, query, userID)
}

func (d *DatabaseService) queryConvertedFiles(ctx context.Context, query string, arg interface{}) ([]models.ConvertedFile, error) {
	rows, err := d.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list converted files: %w", err)
	}
	defer rows.Close()

	var result []models.ConvertedFile
	for rows.Next() {
		var cf models.ConvertedFile
		if err := rows.Scan(&cf.ID, &cf.OriginalFileID, &cf.TargetLanguage, &cf.Filename, &cf.OutputFormat, &cf.Size, &cf.DownloadURL, &cf.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, cf)
	}
	return result, rows.Err()
}

// ListArtifactKeys returns every storage object name connected to a file:
// the original, all converted outputs and all translation logs. Used to
// purge artifact bytes before the row is deleted.
func (d *DatabaseService) ListArtifactKeys(ctx context.Context, fileID int) ([]string, error) {
	query := `SELECT filename FROM files WHERE id = $1
		UNION ALL
		SELECT filename FROM converted_files WHERE original_file_id = $1
		UNION ALL
		SELECT tl.log_filename FROM translation_logs tl
		JOIN converted_files cf ON cf.id = tl.converted_file_id
		WHERE cf.original_file_id = $1`
	rows, err := d.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifact keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- translation logs ---

func (d *DatabaseService) CreateTranslationLog(ctx context.Context, tl *models.TranslationLog) error {
	query := `INSERT INTO translation_logs (converted_file_id, log_filename, download_url)
		VALUES ($1, $2, $3) RETURNING id, created_at`
	err := d.db.QueryRowContext(ctx, query, tl.ConvertedFileID, tl.LogFilename, tl.DownloadURL).
		Scan(&tl.ID, &tl.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create translation log: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(row rowScanner) (*models.File, error) {
	var f models.File
	var progress float64
	err := row.Scan(&f.ID, &f.UserID, &f.OriginalName, &f.Filename, &f.MimeType, &f.Size,
		&f.SourceLanguage, &f.Status, &progress, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.ConversionProgress = int(progress)
	return &f, nil
}
