package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/docnest/docnest-api/internal/models"
)

const grantColumns = `id, folder_id, user_id, department_id, permission_type, granted_by, active, granted_at`

// PermissionRepository provides database access for folder permission grants.
type PermissionRepository struct {
	db *sqlx.DB
}

// NewPermissionRepository creates a new instance of PermissionRepository.
func NewPermissionRepository(db *sqlx.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// Grant records a permission grant. Granting an already-active identical
// (folder, subject, type) triple is idempotent: the existing row is returned
// untouched. The duplicate check and insert share one serializable
// transaction so concurrent identical grants collapse to a single row.
func (r *PermissionRepository) Grant(ctx context.Context, grant *models.PermissionGrant) (result *models.PermissionGrant, err error) {
	tx, err := r.db.BeginTxx(ctx, writeTxOptions)
	if err != nil {
		return nil, fmt.Errorf("begin grant: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing, err := findActiveGrantTx(ctx, tx, grant)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit grant: %w", err)
		}
		return existing, nil
	}

	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now().UTC()
	}
	grant.Active = true

	const query = `INSERT INTO permission_grants (id, folder_id, user_id, department_id, permission_type, granted_by, active, granted_at)
VALUES (:id, :folder_id, :user_id, :department_id, :permission_type, :granted_by, :active, :granted_at)`
	if _, err = tx.NamedExecContext(ctx, query, grant); err != nil {
		return nil, fmt.Errorf("create grant: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit grant: %w", err)
	}
	return grant, nil
}

func findActiveGrantTx(ctx context.Context, tx *sqlx.Tx, grant *models.PermissionGrant) (*models.PermissionGrant, error) {
	const query = `SELECT ` + grantColumns + ` FROM permission_grants
WHERE folder_id = $1 AND user_id IS NOT DISTINCT FROM $2 AND department_id IS NOT DISTINCT FROM $3 AND permission_type = $4 AND active = TRUE
LIMIT 1 FOR UPDATE`
	var existing models.PermissionGrant
	err := tx.GetContext(ctx, &existing, query, grant.FolderID, grant.UserID, grant.DepartmentID, grant.PermissionType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check existing grant: %w", err)
	}
	return &existing, nil
}

// Revoke deactivates the active grants on a folder matching the filter and
// returns how many rows were deactivated. Nil filter fields match everything.
func (r *PermissionRepository) Revoke(ctx context.Context, folderID string, filter models.RevokeFilter) (int, error) {
	conditions := []string{"folder_id = $1", "active = TRUE"}
	args := []interface{}{folderID}

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, *filter.UserID)
	}
	if filter.DepartmentID != nil {
		conditions = append(conditions, fmt.Sprintf("department_id = $%d", len(args)+1))
		args = append(args, *filter.DepartmentID)
	}
	if filter.PermissionType != nil {
		conditions = append(conditions, fmt.Sprintf("permission_type = $%d", len(args)+1))
		args = append(args, *filter.PermissionType)
	}

	query := fmt.Sprintf("UPDATE permission_grants SET active = FALSE WHERE %s", strings.Join(conditions, " AND "))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke grants: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke grants affected: %w", err)
	}
	return int(affected), nil
}

// ListByFolder returns the active grants attached to one folder with subject
// display names joined on.
func (r *PermissionRepository) ListByFolder(ctx context.Context, folderID string) ([]models.PermissionGrantDetail, error) {
	const query = `SELECT g.id, g.folder_id, g.user_id, g.department_id, g.permission_type, g.granted_by, g.active, g.granted_at,
       u.full_name AS user_name, d.name AS department_name
FROM permission_grants g
LEFT JOIN users u ON u.id = g.user_id
LEFT JOIN departments d ON d.id = g.department_id
WHERE g.folder_id = $1 AND g.active = TRUE
ORDER BY g.granted_at ASC`
	var grants []models.PermissionGrantDetail
	if err := r.db.SelectContext(ctx, &grants, query, folderID); err != nil {
		return nil, fmt.Errorf("list grants by folder: %w", err)
	}
	return grants, nil
}

// ListActiveByFolderIDs returns every active grant attached to any of the
// given folders in one round trip. Access resolution loads an ancestor
// chain's grants through this before evaluating precedence.
func (r *PermissionRepository) ListActiveByFolderIDs(ctx context.Context, folderIDs []string) ([]models.PermissionGrant, error) {
	if len(folderIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT ` + grantColumns + ` FROM permission_grants WHERE folder_id = ANY($1) AND active = TRUE`
	var grants []models.PermissionGrant
	if err := r.db.SelectContext(ctx, &grants, query, pq.Array(folderIDs)); err != nil {
		return nil, fmt.Errorf("list grants by folder ids: %w", err)
	}
	return grants, nil
}

// ListActiveByFolderSubtree returns active grants across a folder id set with
// folder and subject names joined, ordered for report output.
func (r *PermissionRepository) ListActiveByFolderSubtree(ctx context.Context, folderIDs []string) ([]models.PermissionGrantDetail, error) {
	if len(folderIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT g.id, g.folder_id, g.user_id, g.department_id, g.permission_type, g.granted_by, g.active, g.granted_at,
       u.full_name AS user_name, d.name AS department_name
FROM permission_grants g
LEFT JOIN users u ON u.id = g.user_id
LEFT JOIN departments d ON d.id = g.department_id
WHERE g.folder_id = ANY($1) AND g.active = TRUE
ORDER BY g.folder_id, g.granted_at ASC`
	var grants []models.PermissionGrantDetail
	if err := r.db.SelectContext(ctx, &grants, query, pq.Array(folderIDs)); err != nil {
		return nil, fmt.Errorf("list subtree grants: %w", err)
	}
	return grants, nil
}
