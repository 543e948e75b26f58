package domain

import (
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusQueued     DocumentStatus = "queued"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// IsTerminal reports whether no further pipeline transition follows.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Document struct {
	ID               int64          `json:"id"`
	Title            string         `json:"title,omitempty"`
	OriginalFilename string         `json:"original_filename,omitempty"`
	FilePath         string         `json:"file_path"`
	Thumbnail        string         `json:"thumbnail,omitempty"`
	Content          string         `json:"content,omitempty"`
	Summary          string         `json:"summary,omitempty"`
	CreatedDate      *time.Time     `json:"created_date,omitempty"`
	FileHash         string         `json:"file_hash,omitempty"`
	Status           DocumentStatus `json:"status"`
	StatusMessage    string         `json:"status_message,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	Provided         UploadMetadata `json:"provided,omitzero"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// UploadMetadata holds the values a user supplied with the upload. They win
// over enrichment output, which in turn wins over the OCR date.
type UploadMetadata struct {
	Title       string     `json:"title,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	CreatedDate *time.Time `json:"created_date,omitempty"`
}

// ExtractionInput is one queued payload handed to the extraction stage.
type ExtractionInput struct {
	DocumentID int64
	Extension  string
	Data       []byte
}

type ExtractionResult struct {
	Text          string
	ThumbnailPath string
	ExtractedDate *time.Time
	FileHash      string
}

// Enrichment is the analysis collaborator output. Every field is optional.
type Enrichment struct {
	Title         string
	ExtractedDate *time.Time
	Tags          []string
	Summary       string
}

func (e Enrichment) IsEmpty() bool {
	return e.Title == "" && e.ExtractedDate == nil && len(e.Tags) == 0 && e.Summary == ""
}

// FinalizeInput is written in the single phase-two update.
type FinalizeInput struct {
	Content     string
	Thumbnail   string
	Title       string
	Summary     string
	CreatedDate *time.Time
}

// NormalizeTagName trims and lower-cases a tag name.
func NormalizeTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeTags normalizes names, dropping empty and repeated entries.
func NormalizeTags(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		normalized := NormalizeTagName(name)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
