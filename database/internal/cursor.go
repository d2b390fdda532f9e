// Package internal holds helpers shared by the database backends.
package internal

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sagarc03/filedock"
)

// Cursor is the position of the last row of a page: the ordering timestamp
// and the record id that breaks ties.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

// EncodeCursor encodes cursor data to a base64 string for pagination.
func EncodeCursor(at time.Time, id uuid.UUID) string {
	data := at.UTC().Format(time.RFC3339Nano) + "|" + id.String()
	return base64.URLEncoding.EncodeToString([]byte(data))
}

// DecodeCursor decodes a pagination cursor string back to cursor data.
// Malformed cursors are reported as filedock.ErrInvalidRequest.
func DecodeCursor(cursor string) (Cursor, error) {
	if cursor == "" {
		return Cursor{}, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w: invalid encoding: %w", filedock.ErrInvalidRequest, err)
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("decode cursor: %w: invalid format", filedock.ErrInvalidRequest)
	}

	if parts[1] == "" {
		return Cursor{}, fmt.Errorf("decode cursor: %w: empty id", filedock.ErrInvalidRequest)
	}

	at, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w: invalid timestamp: %w", filedock.ErrInvalidRequest, err)
	}

	id, err := uuid.Parse(parts[1])
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w: invalid id: %w", filedock.ErrInvalidRequest, err)
	}

	return Cursor{At: at, ID: id}, nil
}

// StatusStrings converts statuses for use as query arguments.
func StatusStrings(statuses []filedock.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// IDStrings converts ids for use as query arguments.
func IDStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
