package models

import "time"

type FileStatus string

const (
	FileStatusUploaded   FileStatus = "uploaded"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
)

// File is an uploaded source document owned by a user. Status and
// ConversionProgress are maintained exclusively by the orchestrator.
type File struct {
	ID                 int        `json:"id"`
	UserID             string     `json:"userId"`
	OriginalName       string     `json:"originalName"`
	Filename           string     `json:"filename"`
	MimeType           string     `json:"mimeType"`
	Size               int64      `json:"size"`
	SourceLanguage     string     `json:"sourceLanguage,omitempty"`
	Status             FileStatus `json:"status"`
	ConversionProgress int        `json:"conversionProgress"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}
