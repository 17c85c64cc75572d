// Package orchestrator owns the conversion state machine: it accepts
// convert requests, claims the file, fans out one execution per target
// language and keeps the job ledger consistent while doing so.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/google/uuid"

	"polydoc/langcat"
	"polydoc/models"
	"polydoc/services"
)

// Ledger is the subset of the database service the orchestrator drives.
type Ledger interface {
	GetFile(ctx context.Context, id int, userID string) (*models.File, error)
	ListFiles(ctx context.Context, userID string) ([]models.File, error)
	ClaimFile(ctx context.Context, id int, userID string) error
	SetFileStatus(ctx context.Context, id int, status models.FileStatus, progress int) error
	UpdateFileProgress(ctx context.Context, id int, progress int) error
	DeleteFile(ctx context.Context, id int) error
	ListArtifactKeys(ctx context.Context, fileID int) ([]string, error)

	CreateJob(ctx context.Context, fileID int) (*models.ConversionJob, error)
	MarkJobProcessing(ctx context.Context, jobID int) error
	UpdateJobProgress(ctx context.Context, jobID int, progress int) error
	CompleteJob(ctx context.Context, jobID int) error
	FailJob(ctx context.Context, jobID int, errorMsg string) error
	ListJobs(ctx context.Context, fileID int) ([]models.ConversionJob, error)

	CreateConvertedFile(ctx context.Context, cf *models.ConvertedFile) error
	GetConvertedFile(ctx context.Context, id int, userID string) (*models.ConvertedFile, error)
	ListConvertedFiles(ctx context.Context, fileID int) ([]models.ConvertedFile, error)
	ListConvertedFilesByUser(ctx context.Context, userID string) ([]models.ConvertedFile, error)
	CreateTranslationLog(ctx context.Context, tl *models.TranslationLog) error
}

// ArtifactStore is the durable byte store for originals and outputs.
type ArtifactStore interface {
	Download(ctx context.Context, key string) (string, error)
	Upload(ctx context.Context, localPath string, key string, contentType string) error
	Delete(ctx context.Context, key string) error
	PresignDownload(key string, ttl time.Duration) (string, error)
	Cleanup(path string) error
}

// Executor turns (local artifact, target language) into a translated
// artifact. Implementations may be HTTP services, subprocesses or
// in-process engines; the orchestrator does not care.
type Executor interface {
	Translate(ctx context.Context, inputPath string, targetLang string, opts services.TranslateOptions) (*services.TranslationResult, error)
}

// TaskQueue hands accepted jobs to the worker pool.
type TaskQueue interface {
	Enqueue(ctx context.Context, task models.ConversionTask) error
}

// TaskQueueFunc adapts a function to the TaskQueue interface.
type TaskQueueFunc func(ctx context.Context, task models.ConversionTask) error

func (f TaskQueueFunc) Enqueue(ctx context.Context, task models.ConversionTask) error {
	return f(ctx, task)
}

// ConvertRequest is the client-facing convert payload.
type ConvertRequest struct {
	TargetLanguages    []string `json:"targetLanguages"`
	OutputFormat       string   `json:"outputFormat,omitempty"`
	PreserveFormatting bool     `json:"preserveFormatting,omitempty"`
}

// Status is the poll answer: the file's own status/progress verbatim plus
// the related rows, most recent first.
type Status struct {
	Status         models.FileStatus      `json:"status"`
	Progress       int                    `json:"progress"`
	Jobs           []models.ConversionJob `json:"jobs"`
	ConvertedFiles []models.ConvertedFile `json:"convertedFiles"`
}

type Orchestrator struct {
	ledger   Ledger
	store    ArtifactStore
	executor Executor
	queue    TaskQueue

	convTimeout time.Duration
	presignTTL  time.Duration
}

func New(ledger Ledger, store ArtifactStore, executor Executor, queue TaskQueue, convTimeout, presignTTL time.Duration) *Orchestrator {
	return &Orchestrator{
		ledger:      ledger,
		store:       store,
		executor:    executor,
		queue:       queue,
		convTimeout: convTimeout,
		presignTTL:  presignTTL,
	}
}

// RequestConversion validates and accepts a convert request: it claims the
// file (at most one active job per file), records the job and enqueues the
// task. Validation and precondition failures leave the ledger untouched.
func (o *Orchestrator) RequestConversion(ctx context.Context, fileID int, requesterID string, req ConvertRequest) (int, error) {
	if err := langcat.Validate(req.TargetLanguages); err != nil {
		return 0, err
	}

	f, err := o.ledger.GetFile(ctx, fileID, requesterID)
	if err != nil {
		return 0, err
	}

	if err := o.ledger.ClaimFile(ctx, fileID, requesterID); err != nil {
		return 0, err
	}

	job, err := o.ledger.CreateJob(ctx, fileID)
	if err != nil {
		// Undo the claim so the file is not wedged in processing.
		o.releaseClaim(ctx, f)
		return 0, fmt.Errorf("failed to record conversion job: %w", err)
	}

	task := models.ConversionTask{
		JobID:              job.ID,
		FileID:             fileID,
		UserID:             requesterID,
		Filename:           f.Filename,
		SourceLanguage:     f.SourceLanguage,
		TargetLanguages:    req.TargetLanguages,
		OutputFormat:       outputFormatOrDefault(req.OutputFormat),
		PreserveFormatting: req.PreserveFormatting,
		Timeout:            int(o.convTimeout.Seconds()),
		CreatedAt:          time.Now().UTC(),
	}

	if err := o.queue.Enqueue(ctx, task); err != nil {
		_ = o.ledger.FailJob(ctx, job.ID, "failed to enqueue conversion task")
		o.releaseClaim(ctx, f)
		return 0, fmt.Errorf("failed to enqueue conversion task: %w", err)
	}

	return job.ID, nil
}

func (o *Orchestrator) releaseClaim(ctx context.Context, f *models.File) {
	if err := o.ledger.SetFileStatus(ctx, f.ID, f.Status, f.ConversionProgress); err != nil {
		log.Printf("[Orchestrator] Failed to release claim on file %d: %v", f.ID, err)
	}
}

// RunJob executes one conversion job: download the original once, then
// translate into each target language sequentially, in request order.
// The first failing language fails the whole job; earlier outputs remain.
func (o *Orchestrator) RunJob(ctx context.Context, task models.ConversionTask) error {
	if err := o.ledger.MarkJobProcessing(ctx, task.JobID); err != nil {
		// A bookkeeping failure must still release the file's claim,
		// or no later convert request could ever be accepted.
		ferr := fmt.Errorf("failed to mark job processing: %w", err)
		o.failJob(ctx, task, 0, ferr)
		return ferr
	}

	inputPath, err := o.store.Download(ctx, task.Filename)
	if err != nil {
		ferr := fmt.Errorf("failed to fetch original: %w", err)
		o.failJob(ctx, task, 0, ferr)
		return ferr
	}
	defer o.store.Cleanup(inputPath)

	opts := services.TranslateOptions{
		SourceLanguage:     task.SourceLanguage,
		OutputFormat:       task.OutputFormat,
		PreserveFormatting: task.PreserveFormatting,
	}

	total := len(task.TargetLanguages)
	progress := 0
	for i, lang := range task.TargetLanguages {
		if err := o.convertLanguage(ctx, task, inputPath, lang, opts); err != nil {
			o.failJob(ctx, task, progress, err)
			return err
		}

		progress = int(math.Round(100 * float64(i+1) / float64(total)))
		if err := o.ledger.UpdateJobProgress(ctx, task.JobID, progress); err != nil {
			log.Printf("[Orchestrator] Failed to update job %d progress: %v", task.JobID, err)
		}
		if err := o.ledger.UpdateFileProgress(ctx, task.FileID, progress); err != nil {
			log.Printf("[Orchestrator] Failed to update file %d progress: %v", task.FileID, err)
		}
	}

	if err := o.ledger.CompleteJob(ctx, task.JobID); err != nil {
		ferr := fmt.Errorf("failed to complete job: %w", err)
		o.failJob(ctx, task, progress, ferr)
		return ferr
	}
	// The file transition is the last ledger write for the job. If it
	// fails, fall back to failed so the file does not sit in processing.
	if err := o.ledger.SetFileStatus(ctx, task.FileID, models.FileStatusCompleted, 100); err != nil {
		ferr := fmt.Errorf("failed to complete file: %w", err)
		o.failJob(ctx, task, progress, ferr)
		return ferr
	}
	return nil
}

// convertLanguage runs one (file, language) execution end to end. The
// ledger row is only written after the output bytes are durably stored.
func (o *Orchestrator) convertLanguage(ctx context.Context, task models.ConversionTask, inputPath, lang string, opts services.TranslateOptions) error {
	langCtx, cancel := context.WithTimeout(ctx, o.taskTimeout(task))
	defer cancel()

	res, err := o.executor.Translate(langCtx, inputPath, lang, opts)
	if err != nil {
		return &models.ExecutionError{Language: lang, Err: err}
	}
	defer o.store.Cleanup(res.OutputPath)
	if res.LogPath != "" {
		defer o.store.Cleanup(res.LogPath)
	}

	size := int64(0)
	if info, err := os.Stat(res.OutputPath); err == nil {
		size = info.Size()
	}

	key := fmt.Sprintf("converted/%s_%s.%s", uuid.NewString(), lang, task.OutputFormat)
	if err := o.store.Upload(langCtx, res.OutputPath, key, contentTypeFor(task.OutputFormat)); err != nil {
		return &models.StorageError{Language: lang, Err: err}
	}

	cf := &models.ConvertedFile{
		OriginalFileID: task.FileID,
		TargetLanguage: lang,
		Filename:       key,
		OutputFormat:   task.OutputFormat,
		Size:           size,
		DownloadURL:    "/downloads/" + key,
	}
	if err := o.ledger.CreateConvertedFile(ctx, cf); err != nil {
		return &models.StorageError{Language: lang, Err: err}
	}

	if res.LogPath != "" {
		logKey := key + ".log.txt"
		if err := o.store.Upload(langCtx, res.LogPath, logKey, "text/plain"); err != nil {
			return &models.StorageError{Language: lang, Err: err}
		}
		tl := &models.TranslationLog{
			ConvertedFileID: cf.ID,
			LogFilename:     logKey,
			DownloadURL:     "/downloads/" + logKey,
		}
		if err := o.ledger.CreateTranslationLog(ctx, tl); err != nil {
			return &models.StorageError{Language: lang, Err: err}
		}
	}

	return nil
}

// failJob records a mid-job failure: error message on the job, then the
// file transition last. Progress keeps whatever the completed languages
// earned; their outputs stay downloadable.
func (o *Orchestrator) failJob(ctx context.Context, task models.ConversionTask, progress int, cause error) {
	if err := o.ledger.FailJob(ctx, task.JobID, cause.Error()); err != nil {
		log.Printf("[Orchestrator] Failed to fail job %d: %v", task.JobID, err)
	}
	if err := o.ledger.SetFileStatus(ctx, task.FileID, models.FileStatusFailed, progress); err != nil {
		log.Printf("[Orchestrator] Failed to fail file %d: %v", task.FileID, err)
	}
}

// AbandonTask fails a job whose worker was lost (crash, stale processing
// entry). Called by the recovery sweep; never by the request path.
func (o *Orchestrator) AbandonTask(ctx context.Context, task models.ConversionTask, reason string) {
	o.failJob(ctx, task, 0, errors.New(reason))
}

// GetStatus is the poll read: file status and progress verbatim plus jobs
// and outputs, most recent first. Pure read; NotFound is the only error.
func (o *Orchestrator) GetStatus(ctx context.Context, fileID int, requesterID string) (*Status, error) {
	f, err := o.ledger.GetFile(ctx, fileID, requesterID)
	if err != nil {
		return nil, err
	}

	jobs, err := o.ledger.ListJobs(ctx, fileID)
	if err != nil {
		return nil, err
	}
	converted, err := o.ledger.ListConvertedFiles(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if jobs == nil {
		jobs = []models.ConversionJob{}
	}
	if converted == nil {
		converted = []models.ConvertedFile{}
	}

	return &Status{
		Status:         f.Status,
		Progress:       f.ConversionProgress,
		Jobs:           jobs,
		ConvertedFiles: converted,
	}, nil
}

// ListFiles returns the requester's uploads, newest first.
func (o *Orchestrator) ListFiles(ctx context.Context, requesterID string) ([]models.File, error) {
	return o.ledger.ListFiles(ctx, requesterID)
}

// ListConvertedFiles returns the requester's outputs across all files.
func (o *Orchestrator) ListConvertedFiles(ctx context.Context, requesterID string) ([]models.ConvertedFile, error) {
	return o.ledger.ListConvertedFilesByUser(ctx, requesterID)
}

// DeleteFile removes a file, its artifact bytes and, via cascade, all of
// its jobs, outputs and logs.
func (o *Orchestrator) DeleteFile(ctx context.Context, fileID int, requesterID string) error {
	if _, err := o.ledger.GetFile(ctx, fileID, requesterID); err != nil {
		return err
	}

	keys, err := o.ledger.ListArtifactKeys(ctx, fileID)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := o.store.Delete(ctx, key); err != nil {
			// Best effort: an unreachable store must not block the delete.
			log.Printf("[Orchestrator] Failed to delete artifact %q: %v", key, err)
		}
	}

	return o.ledger.DeleteFile(ctx, fileID)
}

// DownloadURL returns a time-limited URL for one converted output.
func (o *Orchestrator) DownloadURL(ctx context.Context, convertedFileID int, requesterID string) (string, error) {
	cf, err := o.ledger.GetConvertedFile(ctx, convertedFileID, requesterID)
	if err != nil {
		return "", err
	}
	return o.store.PresignDownload(cf.Filename, o.presignTTL)
}

// taskTimeout prefers the per-language timeout stamped into the task by
// the accepting node; the local configuration is only a fallback for
// tasks enqueued without one.
func (o *Orchestrator) taskTimeout(task models.ConversionTask) time.Duration {
	if task.Timeout > 0 {
		return time.Duration(task.Timeout) * time.Second
	}
	return o.convTimeout
}

func outputFormatOrDefault(format string) string {
	if format == "" {
		return "pdf"
	}
	return format
}

func contentTypeFor(format string) string {
	switch format {
	case "pdf":
		return "application/pdf"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case "pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case "txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
