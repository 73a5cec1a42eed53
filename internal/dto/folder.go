package dto

import "github.com/docnest/docnest-api/internal/models"

// CreateFolderRequest defines payload for creating a folder. AccessLevel may
// be omitted and defaults to inherited.
type CreateFolderRequest struct {
	Name               string  `json:"name" validate:"required,min=1,max=255"`
	ParentID           *string `json:"parentId,omitempty"`
	AccessLevel        string  `json:"accessLevel,omitempty"`
	InheritPermissions *bool   `json:"inheritPermissions,omitempty"`
}

// UpdateFolderRequest defines payload for mutating a folder. Nil fields are
// left unchanged; ParentID distinguishes absent from explicit move-to-root
// via the Root flag.
type UpdateFolderRequest struct {
	Name               *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	ParentID           *string `json:"parentId,omitempty"`
	MoveToRoot         bool    `json:"moveToRoot,omitempty"`
	AccessLevel        *string `json:"accessLevel,omitempty"`
	InheritPermissions *bool   `json:"inheritPermissions,omitempty"`
}

// HierarchyPathEntry is one breadcrumb segment, ordered root first.
type HierarchyPathEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AccessCheckResponse reports resolved permissions for a (user, folder) pair.
type AccessCheckResponse struct {
	FolderID string                         `json:"folder_id"`
	Allowed  map[models.PermissionType]bool `json:"allowed"`
}

// FolderSummaryRow is a subtree inventory projection used by exports.
type FolderSummaryRow struct {
	FolderID      string  `db:"folder_id" json:"folder_id"`
	FolderName    string  `db:"folder_name" json:"folder_name"`
	ParentID      *string `db:"parent_id" json:"parent_id,omitempty"`
	OwnerEmail    string  `db:"owner_email" json:"owner_email"`
	AccessLevel   string  `db:"access_level" json:"access_level"`
	DocumentCount int     `db:"document_count" json:"document_count"`
}
