package models

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ConversionJob is one fan-out execution record covering all target
// languages of a single convert request. Immutable once completed/failed.
type ConversionJob struct {
	ID           int        `json:"id"`
	FileID       int        `json:"fileId"`
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// ConvertedFile is one successful per-language output artifact.
type ConvertedFile struct {
	ID             int       `json:"id"`
	OriginalFileID int       `json:"originalFileId"`
	TargetLanguage string    `json:"targetLanguage"`
	Filename       string    `json:"filename"`
	OutputFormat   string    `json:"outputFormat"`
	Size           int64     `json:"size"`
	DownloadURL    string    `json:"downloadUrl"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TranslationLog is the human-readable changelog produced alongside one
// ConvertedFile.
type TranslationLog struct {
	ID              int       `json:"id"`
	ConvertedFileID int       `json:"convertedFileId"`
	LogFilename     string    `json:"logFilename"`
	DownloadURL     string    `json:"downloadUrl"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ConversionTask is the queue payload handed from the orchestrator to a
// worker. It carries everything a worker needs so that picking a task up
// costs a single ledger read for the job row, not the whole request.
type ConversionTask struct {
	JobID              int       `json:"jobId"`
	FileID             int       `json:"fileId"`
	UserID             string    `json:"userId"`
	Filename           string    `json:"filename"`
	SourceLanguage     string    `json:"sourceLanguage"`
	TargetLanguages    []string  `json:"targetLanguages"`
	OutputFormat       string    `json:"outputFormat"`
	PreserveFormatting bool      `json:"preserveFormatting"`
	Timeout            int       `json:"timeout"`
	CreatedAt          time.Time `json:"createdAt"`
}
