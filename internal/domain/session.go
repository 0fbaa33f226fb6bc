package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionMetadata describes where a session's table came from.
type SessionMetadata struct {
	OriginalFilename string   `json:"original_filename"`
	DetectedEncoding string   `json:"encoding"`
	Delimiter        string   `json:"delimiter"`
	FileSize         int      `json:"file_size"`
	OriginalRows     int      `json:"original_rows"`
	OriginalColumns  int      `json:"original_columns"`
	RowCount         int      `json:"row_count"`
	ColumnCount      int      `json:"column_count"`
	Warnings         []string `json:"processing_warnings"`
}

// Session is one ingested dataset held behind an opaque id.
type Session struct {
	ID             string
	Table          *Table
	CreatedAt      time.Time
	LastAccessedAt time.Time
	Metadata       SessionMetadata
}

// Info returns the non-sensitive view of the session.
func (s *Session) Info() *SessionInfo {
	return &SessionInfo{
		ID:             s.ID,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessedAt,
		Columns:        append([]string(nil), s.Table.Columns...),
		Metadata:       s.Metadata,
	}
}

// SessionInfo carries session timestamps and schema metadata without the table.
type SessionInfo struct {
	ID             string          `json:"session_id"`
	CreatedAt      time.Time       `json:"created_at"`
	LastAccessedAt time.Time       `json:"last_accessed"`
	Columns        []string        `json:"data_columns"`
	Metadata       SessionMetadata `json:"metadata"`
}

// NewSessionID returns a fresh random 128-bit session token.
func NewSessionID() string {
	return uuid.NewString()
}
