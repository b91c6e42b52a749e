package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist or is not
// owned by the requesting user.
var ErrNotFound = errors.New("not found")

type User struct {
	ID        int64
	Email     string
	APIToken  string
	CreatedAt time.Time
}

// FileRecord holds the metadata for one uploaded document. CollectionID is
// assigned at creation time and never changes; Processed stays false until
// the ingestion worker has indexed the document.
type FileRecord struct {
	ID           int64
	UserID       int64
	StorageKey   string
	OriginalName string
	FileType     string
	FileSize     int64
	StorageURL   string
	StorageID    string
	CollectionID string
	UploadedAt   time.Time
	Processed    bool
}

type Conversation struct {
	ID        int64
	UserID    int64
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	ID             int64
	ConversationID int64
	Role           string
	Content        string
	Sources        string // JSON array stored as text, empty when absent
	Intent         string
	CreatedAt      time.Time
}
