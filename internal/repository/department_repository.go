package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/docnest/docnest-api/internal/models"
)

const departmentColumns = `id, name, description, active, created_at, updated_at`

// DepartmentRepository provides database access for departments and their
// global entitlement names.
type DepartmentRepository struct {
	db *sqlx.DB
}

// NewDepartmentRepository creates a new instance of DepartmentRepository.
func NewDepartmentRepository(db *sqlx.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// FindByID returns a department by identifier, active or not.
func (r *DepartmentRepository) FindByID(ctx context.Context, id string) (*models.Department, error) {
	const query = `SELECT ` + departmentColumns + ` FROM departments WHERE id = $1 LIMIT 1`
	var dept models.Department
	if err := r.db.GetContext(ctx, &dept, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find department by id: %w", err)
	}
	return &dept, nil
}

// List returns departments based on filters with total count.
func (r *DepartmentRepository) List(ctx context.Context, filter models.DepartmentFilter) ([]models.Department, int, error) {
	baseQuery := `FROM departments WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "name"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", departmentColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var depts []models.Department
	if err := r.db.SelectContext(ctx, &depts, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list departments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count departments: %w", err)
	}

	return depts, total, nil
}

// Create inserts a new department.
func (r *DepartmentRepository) Create(ctx context.Context, dept *models.Department) error {
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	dept.CreatedAt = now
	dept.UpdatedAt = now
	dept.Active = true

	const query = `INSERT INTO departments (id, name, description, active, created_at, updated_at)
VALUES (:id, :name, :description, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, dept); err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// Update persists department mutations.
func (r *DepartmentRepository) Update(ctx context.Context, dept *models.Department) error {
	dept.UpdatedAt = time.Now().UTC()
	const query = `UPDATE departments SET name = :name, description = :description, active = :active, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, dept)
	if err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// EntitlementsOf returns the global permission names of the department a user
// belongs to. Users without a department, or in an inactive department, have
// no entitlements.
func (r *DepartmentRepository) EntitlementsOf(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT dp.permission
FROM department_permissions dp
JOIN departments d ON d.id = dp.department_id AND d.active = TRUE
JOIN users u ON u.department_id = d.id
WHERE u.id = $1 AND u.active = TRUE
ORDER BY dp.permission`
	var permissions []string
	if err := r.db.SelectContext(ctx, &permissions, query, userID); err != nil {
		return nil, fmt.Errorf("load entitlements of %s: %w", userID, err)
	}
	return permissions, nil
}

// AddPermission attaches a global permission name to a department. Attaching
// an already-present name is idempotent.
func (r *DepartmentRepository) AddPermission(ctx context.Context, perm *models.DepartmentPermission) error {
	if perm.ID == "" {
		perm.ID = uuid.NewString()
	}
	if perm.CreatedAt.IsZero() {
		perm.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO department_permissions (id, department_id, permission, granted_by, created_at)
VALUES (:id, :department_id, :permission, :granted_by, :created_at)
ON CONFLICT (department_id, permission) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, perm); err != nil {
		return fmt.Errorf("add department permission: %w", err)
	}
	return nil
}

// RemovePermission detaches a global permission name from a department.
func (r *DepartmentRepository) RemovePermission(ctx context.Context, departmentID, permission string) error {
	const query = `DELETE FROM department_permissions WHERE department_id = $1 AND permission = $2`
	res, err := r.db.ExecContext(ctx, query, departmentID, permission)
	if err != nil {
		return fmt.Errorf("remove department permission: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListPermissions returns the permission names attached to a department.
func (r *DepartmentRepository) ListPermissions(ctx context.Context, departmentID string) ([]models.DepartmentPermission, error) {
	const query = `SELECT id, department_id, permission, granted_by, created_at FROM department_permissions WHERE department_id = $1 ORDER BY permission`
	var perms []models.DepartmentPermission
	if err := r.db.SelectContext(ctx, &perms, query, departmentID); err != nil {
		return nil, fmt.Errorf("list department permissions: %w", err)
	}
	return perms, nil
}
