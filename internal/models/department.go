package models

import "time"

// Department groups users and carries a department-wide permission-name set.
type Department struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// DepartmentPermission is a single global permission name attached to a department.
type DepartmentPermission struct {
	ID           string    `db:"id" json:"id"`
	DepartmentID string    `db:"department_id" json:"department_id"`
	Permission   string    `db:"permission" json:"permission"`
	GrantedBy    string    `db:"granted_by" json:"granted_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// DepartmentFilter captures filtering criteria for listing departments.
type DepartmentFilter struct {
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
