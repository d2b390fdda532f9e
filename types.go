package filedock

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle status of a file record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAvailable Status = "AVAILABLE"
	StatusDeleting  Status = "DELETING"
	StatusDeleted   Status = "DELETED"
	StatusFailed    Status = "FAILED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAvailable, StatusDeleting, StatusDeleted, StatusFailed:
		return true
	default:
		return false
	}
}

func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid status: %s (valid: PENDING, AVAILABLE, DELETING, DELETED, FAILED)", s)
	}
	return status, nil
}

// FileRecord is the metadata row for one file.
type FileRecord struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// ObjectKey returns the object store key holding the record's bytes.
func (f FileRecord) ObjectKey() string {
	return ObjectKey(f.OwnerID, f.ID)
}

// UploadRequest describes one file the caller wants to upload.
type UploadRequest struct {
	Filename    string `json:"filename" validate:"required"`
	Size        int64  `json:"size" validate:"min=0"`
	ContentType string `json:"contentType"`
}

// UploadSlot is the per-file outcome of CreateUploads. Err is set when the
// record was created but no write URL could be issued for it.
type UploadSlot struct {
	ID        uuid.UUID
	Filename  string
	UploadURL string
	Err       error
}

// Patch holds the columns written by a status transition.
// Nil fields are left unchanged.
type Patch struct {
	Status      Status
	UpdatedAt   time.Time
	Size        *int64
	CompletedAt *time.Time
	DeletedAt   *time.Time
}

type ListQuery struct {
	Limit  int
	Cursor string
}

type ListResult struct {
	Items      []FileRecord `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// StaleQuery selects records that have stayed in Status since before Before.
type StaleQuery struct {
	Status Status
	Before time.Time
	Limit  int
	Cursor string
}

// Tables holds configurable table names for metadata storage.
// This allows multi-tenant deployments to use different table names.
type Tables struct {
	Files string `mapstructure:"files"`
}

var validTableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsValidTableName checks if a table name is valid (lowercase, alphanumeric with underscores, max 63 chars).
func IsValidTableName(name string) bool {
	return validTableNameRegex.MatchString(name) && len(name) <= 63
}

// Validate checks that all required table names are set and valid.
func (t Tables) Validate() error {
	if t.Files == "" {
		return errors.New("validate tables: files table name cannot be empty")
	}

	if !IsValidTableName(t.Files) {
		return fmt.Errorf("validate tables: invalid files table name: %s (must match ^[a-z_][a-z0-9_]*$ and be <= 63 chars)", t.Files)
	}

	return nil
}
