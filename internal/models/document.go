package models

import "time"

// Document is a metadata record for a file stored inside a folder. Content
// storage lives outside this service; only metadata is tracked here.
type Document struct {
	ID        string    `db:"id" json:"id"`
	FolderID  string    `db:"folder_id" json:"folder_id"`
	Title     string    `db:"title" json:"title"`
	MimeType  string    `db:"mime_type" json:"mime_type"`
	SizeBytes int64     `db:"size_bytes" json:"size_bytes"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentFilter captures filtering criteria for listing documents.
type DocumentFilter struct {
	FolderID  string
	OwnerID   string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
