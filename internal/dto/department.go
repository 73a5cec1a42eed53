package dto

// CreateDepartmentRequest defines payload for creating a department.
type CreateDepartmentRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description,omitempty"`
}

// UpdateDepartmentRequest defines payload for mutating a department.
type UpdateDepartmentRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// DepartmentPermissionRequest attaches or detaches a global permission name.
type DepartmentPermissionRequest struct {
	Permission string `json:"permission" validate:"required,min=1,max=100"`
}
