package dto

// GrantPermissionRequest defines payload for attaching a grant to a folder.
// Exactly one of UserID and DepartmentID must be provided.
type GrantPermissionRequest struct {
	UserID         *string `json:"userId,omitempty"`
	DepartmentID   *string `json:"departmentId,omitempty"`
	PermissionType string  `json:"permissionType" validate:"required"`
}

// RevokePermissionRequest narrows which active grants to deactivate. Empty
// fields match every grant on the folder.
type RevokePermissionRequest struct {
	UserID         *string `json:"userId,omitempty"`
	DepartmentID   *string `json:"departmentId,omitempty"`
	PermissionType *string `json:"permissionType,omitempty"`
}

// RevokeResponse reports how many grants a revoke deactivated.
type RevokeResponse struct {
	Revoked int `json:"revoked"`
}
