package models

import "time"

// PermissionType enumerates folder grant actions. Types are exact-match:
// manage does not subsume write or read.
type PermissionType string

const (
	PermissionRead   PermissionType = "read"
	PermissionWrite  PermissionType = "write"
	PermissionDelete PermissionType = "delete"
	PermissionManage PermissionType = "manage"
)

// PermissionManageFolders is the department entitlement name granting a
// global bypass over every folder and action.
const PermissionManageFolders = "manage_folders"

// ValidPermissionType reports whether the value belongs to the closed enumeration.
func ValidPermissionType(t PermissionType) bool {
	switch t {
	case PermissionRead, PermissionWrite, PermissionDelete, PermissionManage:
		return true
	default:
		return false
	}
}

// PermissionGrant is an explicit (subject, permission_type) authorization
// attached to exactly one folder. Exactly one of UserID and DepartmentID is
// set for every active grant.
type PermissionGrant struct {
	ID             string         `db:"id" json:"id"`
	FolderID       string         `db:"folder_id" json:"folder_id"`
	UserID         *string        `db:"user_id" json:"user_id,omitempty"`
	DepartmentID   *string        `db:"department_id" json:"department_id,omitempty"`
	PermissionType PermissionType `db:"permission_type" json:"permission_type"`
	GrantedBy      string         `db:"granted_by" json:"granted_by"`
	Active         bool           `db:"active" json:"active"`
	GrantedAt      time.Time      `db:"granted_at" json:"granted_at"`
}

// PermissionGrantDetail joins subject display names onto a grant row.
type PermissionGrantDetail struct {
	PermissionGrant
	UserName       *string `db:"user_name" json:"user_name,omitempty"`
	DepartmentName *string `db:"department_name" json:"department_name,omitempty"`
}

// RevokeFilter narrows which active grants a revoke operation deactivates.
// Nil fields match every grant on the folder.
type RevokeFilter struct {
	UserID         *string
	DepartmentID   *string
	PermissionType *PermissionType
}
