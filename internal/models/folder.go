package models

import "time"

// AccessLevel enumerates folder visibility modes.
type AccessLevel string

const (
	AccessLevelPublic     AccessLevel = "public"
	AccessLevelRestricted AccessLevel = "restricted"
	AccessLevelPrivate    AccessLevel = "private"
	AccessLevelInherited  AccessLevel = "inherited"
)

// ValidAccessLevel reports whether the value belongs to the closed enumeration.
func ValidAccessLevel(level AccessLevel) bool {
	switch level {
	case AccessLevelPublic, AccessLevelRestricted, AccessLevelPrivate, AccessLevelInherited:
		return true
	default:
		return false
	}
}

// Folder is a node in the folder forest. The directory owns the parent link;
// the parent relation restricted to active folders must stay acyclic.
type Folder struct {
	ID                 string      `db:"id" json:"id"`
	Name               string      `db:"name" json:"name"`
	ParentID           *string     `db:"parent_id" json:"parent_id,omitempty"`
	OwnerID            string      `db:"owner_id" json:"owner_id"`
	AccessLevel        AccessLevel `db:"access_level" json:"access_level"`
	InheritPermissions bool        `db:"inherit_permissions" json:"inherit_permissions"`
	Active             bool        `db:"active" json:"active"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at" json:"updated_at"`
}

// FolderFilter captures filtering criteria for listing folders.
type FolderFilter struct {
	ParentID  *string
	OwnerID   string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
