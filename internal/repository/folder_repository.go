package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/docnest/docnest-api/internal/dto"
	"github.com/docnest/docnest-api/internal/models"
)

// Sentinel errors surfaced by folder mutations. Services translate these into
// the transport-level taxonomy.
var (
	// ErrDuplicateName signals an active sibling already carries the name.
	ErrDuplicateName = errors.New("duplicate sibling name")
	// ErrCycle signals a parent reassignment that would make a folder its own ancestor.
	ErrCycle = errors.New("parent reassignment would create a cycle")
	// ErrDepthExceeded signals an ancestor walk ran past the configured depth cap.
	ErrDepthExceeded = errors.New("hierarchy depth cap exceeded")
	// ErrFolderNotEmpty signals a non-cascade delete on a folder with active content.
	ErrFolderNotEmpty = errors.New("folder has active children or documents")
)

const folderColumns = `id, name, parent_id, owner_id, access_level, inherit_permissions, active, created_at, updated_at`

// FolderRepository provides database access for the folder forest. Every
// mutation runs as one serializable transaction so the sibling-uniqueness and
// acyclicity pre-checks commit atomically with the write; a partial unique
// index on (parent_id, lower(name)) backs the name check at the storage level.
type FolderRepository struct {
	db       *sqlx.DB
	maxDepth int
}

// NewFolderRepository creates a new instance of FolderRepository. maxDepth
// bounds upward walks as a guard against corrupted parent links.
func NewFolderRepository(db *sqlx.DB, maxDepth int) *FolderRepository {
	if maxDepth <= 0 {
		maxDepth = 32
	}
	return &FolderRepository{db: db, maxDepth: maxDepth}
}

var writeTxOptions = &sql.TxOptions{Isolation: sql.LevelSerializable}

var snapshotTxOptions = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// FindByID returns an active folder by identifier.
func (r *FolderRepository) FindByID(ctx context.Context, id string) (*models.Folder, error) {
	const query = `SELECT ` + folderColumns + ` FROM folders WHERE id = $1 AND active = TRUE LIMIT 1`
	var folder models.Folder
	if err := r.db.GetContext(ctx, &folder, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find folder by id: %w", err)
	}
	return &folder, nil
}

// List returns active folders based on filters with total count.
func (r *FolderRepository) List(ctx context.Context, filter models.FolderFilter) ([]models.Folder, int, error) {
	baseQuery := `FROM folders WHERE active = TRUE`
	var conditions []string
	var args []interface{}

	if filter.ParentID != nil {
		if *filter.ParentID == "" {
			conditions = append(conditions, "parent_id IS NULL")
		} else {
			conditions = append(conditions, fmt.Sprintf("parent_id = $%d", len(args)+1))
			args = append(args, *filter.ParentID)
		}
	}
	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
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
		"updated_at": true,
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", folderColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var folders []models.Folder
	if err := r.db.SelectContext(ctx, &folders, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list folders: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count folders: %w", err)
	}

	return folders, total, nil
}

// ListChildren returns the active children of a folder.
func (r *FolderRepository) ListChildren(ctx context.Context, parentID string) ([]models.Folder, error) {
	const query = `SELECT ` + folderColumns + ` FROM folders WHERE parent_id = $1 AND active = TRUE ORDER BY name ASC`
	var folders []models.Folder
	if err := r.db.SelectContext(ctx, &folders, query, parentID); err != nil {
		return nil, fmt.Errorf("list folder children: %w", err)
	}
	return folders, nil
}

// AncestorChain returns the folder and its active ancestors, target first,
// read within one repeatable-read snapshot so a concurrent reparent cannot be
// observed mid-walk as a torn tree.
func (r *FolderRepository) AncestorChain(ctx context.Context, folderID string) (result []models.Folder, err error) {
	tx, err := r.db.BeginTxx(ctx, snapshotTxOptions)
	if err != nil {
		return nil, fmt.Errorf("begin ancestor snapshot: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	chain, err := ancestorChainTx(ctx, tx, folderID, r.maxDepth)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// ancestorChainTx collects the target folder and its active ancestors using
// the provided transaction. sql.ErrNoRows is returned untouched when the
// target itself is missing or inactive.
func ancestorChainTx(ctx context.Context, tx *sqlx.Tx, folderID string, maxDepth int) ([]models.Folder, error) {
	const query = `SELECT ` + folderColumns + ` FROM folders WHERE id = $1 AND active = TRUE LIMIT 1`

	chain := make([]models.Folder, 0, 4)
	seen := make(map[string]struct{})
	currentID := folderID

	for depth := 0; ; depth++ {
		if depth > maxDepth {
			return nil, fmt.Errorf("walk ancestors of %s: %w", folderID, ErrDepthExceeded)
		}
		if _, ok := seen[currentID]; ok {
			// A cycle in persisted data; refuse to loop forever.
			return nil, fmt.Errorf("walk ancestors of %s: %w", folderID, ErrDepthExceeded)
		}
		seen[currentID] = struct{}{}

		var folder models.Folder
		if err := tx.GetContext(ctx, &folder, query, currentID); err != nil {
			if err == sql.ErrNoRows {
				if depth == 0 {
					return nil, err
				}
				// Inactive ancestor terminates the chain.
				return chain, nil
			}
			return nil, fmt.Errorf("walk ancestors of %s: %w", folderID, err)
		}
		chain = append(chain, folder)
		if folder.ParentID == nil {
			return chain, nil
		}
		currentID = *folder.ParentID
	}
}

// Create inserts a new folder after re-checking sibling uniqueness inside a
// serializable transaction.
func (r *FolderRepository) Create(ctx context.Context, folder *models.Folder) (err error) {
	if folder.ID == "" {
		folder.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if folder.CreatedAt.IsZero() {
		folder.CreatedAt = now
	}
	folder.UpdatedAt = now
	folder.Active = true

	tx, err := r.db.BeginTxx(ctx, writeTxOptions)
	if err != nil {
		return fmt.Errorf("begin folder create: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if folder.ParentID != nil {
		// Lock the parent so a concurrent cascade delete cannot deactivate
		// it between this check and the insert.
		var parentID string
		if err = tx.GetContext(ctx, &parentID, `SELECT id FROM folders WHERE id = $1 AND active = TRUE FOR UPDATE`, *folder.ParentID); err != nil {
			if err == sql.ErrNoRows {
				return err
			}
			return fmt.Errorf("lock parent folder: %w", err)
		}
	}

	taken, err := siblingNameTakenTx(ctx, tx, folder.ParentID, folder.Name, "")
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateName
	}

	const query = `INSERT INTO folders (id, name, parent_id, owner_id, access_level, inherit_permissions, active, created_at, updated_at)
VALUES (:id, :name, :parent_id, :owner_id, :access_level, :inherit_permissions, :active, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, folder); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("create folder: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit folder create: %w", err)
	}
	return nil
}

// Update persists folder mutations. When the parent link changes, the cycle
// check runs against the new parent inside the same transaction as the write;
// name or parent changes re-run the sibling-uniqueness check excluding the
// folder itself.
func (r *FolderRepository) Update(ctx context.Context, folder *models.Folder, parentChanged, nameChanged bool) (err error) {
	folder.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, writeTxOptions)
	if err != nil {
		return fmt.Errorf("begin folder update: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if parentChanged && folder.ParentID != nil {
		if *folder.ParentID == folder.ID {
			return ErrCycle
		}
		ancestors, walkErr := ancestorChainTx(ctx, tx, *folder.ParentID, r.maxDepth)
		if walkErr != nil {
			if walkErr == sql.ErrNoRows {
				return walkErr
			}
			return walkErr
		}
		for _, ancestor := range ancestors {
			if ancestor.ID == folder.ID {
				return ErrCycle
			}
		}
	}

	if parentChanged || nameChanged {
		taken, checkErr := siblingNameTakenTx(ctx, tx, folder.ParentID, folder.Name, folder.ID)
		if checkErr != nil {
			return checkErr
		}
		if taken {
			return ErrDuplicateName
		}
	}

	const query = `UPDATE folders SET name = :name, parent_id = :parent_id, access_level = :access_level, inherit_permissions = :inherit_permissions, updated_at = :updated_at
WHERE id = :id AND active = TRUE`
	res, err := tx.NamedExecContext(ctx, query, folder)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("update folder: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit folder update: %w", err)
	}
	return nil
}

// Delete soft-deletes a folder. With cascade the full descendant closure of
// folders and contained documents is computed and deactivated inside one
// transaction; without cascade the operation fails when active children or
// documents exist. Returns the set of deactivated folder ids.
func (r *FolderRepository) Delete(ctx context.Context, id string, cascade bool) (deleted []string, err error) {
	tx, err := r.db.BeginTxx(ctx, writeTxOptions)
	if err != nil {
		return nil, fmt.Errorf("begin folder delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var folder models.Folder
	const lockQuery = `SELECT ` + folderColumns + ` FROM folders WHERE id = $1 AND active = TRUE FOR UPDATE`
	if err = tx.GetContext(ctx, &folder, lockQuery, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock folder for delete: %w", err)
	}

	if !cascade {
		var childCount int
		if err = tx.GetContext(ctx, &childCount, `SELECT COUNT(*) FROM folders WHERE parent_id = $1 AND active = TRUE`, id); err != nil {
			return nil, fmt.Errorf("count child folders: %w", err)
		}
		var docCount int
		if err = tx.GetContext(ctx, &docCount, `SELECT COUNT(*) FROM documents WHERE folder_id = $1 AND active = TRUE`, id); err != nil {
			return nil, fmt.Errorf("count folder documents: %w", err)
		}
		if childCount > 0 || docCount > 0 {
			err = ErrFolderNotEmpty
			return nil, err
		}
	}

	closure := []string{id}
	if cascade {
		closure, err = descendantClosureTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE folders SET active = FALSE, updated_at = $2 WHERE id = ANY($1) AND active = TRUE`, pq.Array(closure), now); err != nil {
		return nil, fmt.Errorf("deactivate folders: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE documents SET active = FALSE, updated_at = $2 WHERE folder_id = ANY($1) AND active = TRUE`, pq.Array(closure), now); err != nil {
		return nil, fmt.Errorf("deactivate folder documents: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit folder delete: %w", err)
	}
	return closure, nil
}

// descendantClosureTx collects the folder and every active descendant id,
// breadth first, before any write happens.
func descendantClosureTx(ctx context.Context, tx *sqlx.Tx, rootID string) ([]string, error) {
	closure := []string{rootID}
	frontier := []string{rootID}
	for len(frontier) > 0 {
		var children []string
		if err := tx.SelectContext(ctx, &children, `SELECT id FROM folders WHERE parent_id = ANY($1) AND active = TRUE`, pq.Array(frontier)); err != nil {
			return nil, fmt.Errorf("collect descendants of %s: %w", rootID, err)
		}
		closure = append(closure, children...)
		frontier = children
	}
	return closure, nil
}

// siblingNameTakenTx reports whether another active folder with the same
// parent (NULL parent forms its own sibling group) already carries the name.
func siblingNameTakenTx(ctx context.Context, tx *sqlx.Tx, parentID *string, name, excludeID string) (bool, error) {
	var count int
	var err error
	if parentID == nil {
		err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM folders WHERE parent_id IS NULL AND LOWER(name) = LOWER($1) AND active = TRUE AND id <> $2`, name, excludeID)
	} else {
		err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM folders WHERE parent_id = $1 AND LOWER(name) = LOWER($2) AND active = TRUE AND id <> $3`, *parentID, name, excludeID)
	}
	if err != nil {
		return false, fmt.Errorf("check sibling name: %w", err)
	}
	return count > 0, nil
}

// SubtreeSummary returns the inventory projection for a set of folder ids:
// one row per folder with owner email and active document count.
func (r *FolderRepository) SubtreeSummary(ctx context.Context, folderIDs []string) ([]dto.FolderSummaryRow, error) {
	if len(folderIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT f.id AS folder_id, f.name AS folder_name, f.parent_id, u.email AS owner_email, f.access_level,
       COUNT(d.id) FILTER (WHERE d.active) AS document_count
FROM folders f
JOIN users u ON u.id = f.owner_id
LEFT JOIN documents d ON d.folder_id = f.id
WHERE f.id = ANY($1) AND f.active = TRUE
GROUP BY f.id, f.name, f.parent_id, u.email, f.access_level
ORDER BY f.name`
	var rows []dto.FolderSummaryRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(folderIDs)); err != nil {
		return nil, fmt.Errorf("subtree summary: %w", err)
	}
	return rows, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
