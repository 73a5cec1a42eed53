package dto

// CreateDocumentRequest defines payload for registering document metadata.
type CreateDocumentRequest struct {
	FolderID  string `json:"folderId" validate:"required"`
	Title     string `json:"title" validate:"required,min=1,max=255"`
	MimeType  string `json:"mimeType" validate:"required"`
	SizeBytes int64  `json:"sizeBytes" validate:"gte=0"`
}

// UpdateDocumentRequest defines payload for mutating document metadata.
// Nil fields are left unchanged; FolderID moves the document.
type UpdateDocumentRequest struct {
	FolderID *string `json:"folderId,omitempty"`
	Title    *string `json:"title,omitempty" validate:"omitempty,min=1,max=255"`
	MimeType *string `json:"mimeType,omitempty"`
}
