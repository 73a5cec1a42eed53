package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docnest/docnest-api/internal/models"
)

func newFolderRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func folderRows(folders ...models.Folder) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "name", "parent_id", "owner_id", "access_level", "inherit_permissions", "active", "created_at", "updated_at"})
	for _, f := range folders {
		rows.AddRow(f.ID, f.Name, f.ParentID, f.OwnerID, string(f.AccessLevel), f.InheritPermissions, f.Active, f.CreatedAt, f.UpdatedAt)
	}
	return rows
}

func strPtr(s string) *string { return &s }

func TestFolderRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db, 32)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM folders WHERE id = $1 AND active = TRUE LIMIT 1")).
		WithArgs("folder-1").
		WillReturnRows(folderRows(models.Folder{
			ID: "folder-1", Name: "Finance", OwnerID: "user-1",
			AccessLevel: models.AccessLevelRestricted, InheritPermissions: true,
			Active: true, CreatedAt: now, UpdatedAt: now,
		}))

	folder, err := repo.FindByID(context.Background(), "folder-1")
	require.NoError(t, err)
	assert.Equal(t, "Finance", folder.Name)
	assert.Nil(t, folder.ParentID)
}

func TestFolderRepositoryFindByIDMissing(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db, 32)

	mock.ExpectQuery(regexp.QuoteMeta("FROM folders WHERE id = $1 AND active = TRUE LIMIT 1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestFolderRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db, 32)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM folders WHERE id = $1 AND active = TRUE FOR UPDATE")).
		WithArgs("parent-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("parent-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM folders WHERE parent_id = $1 AND LOWER(name) = LOWER($2)")).
		WithArgs("parent-1", "Reports", "").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO folders")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	folder := &models.Folder{
		Name:        "Reports",
		ParentID:    strPtr("parent-1"),
		OwnerID:     "user-1",
		AccessLevel: models.AccessLevelInherited,
	}
	err := repo.Create(context.Background(), folder)
	require.NoError(t, err)
	assert.NotEmpty(t, folder.ID)
	assert.True(t, folder.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFolderRepositoryCreateDuplicateSibling(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db, 32)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM folders WHERE id = $1 AND active = TRUE FOR UPDATE")).
		WithArgs("parent-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("parent-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM folders WHERE parent_id = $1 AND LOWER(name) = LOWER($2)")).
		WithArgs("parent-1", "Reports", "").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Folder{
		Name:     "Reports",
		ParentID: strPtr("parent-1"),
		OwnerID:  "user-1",
	})
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFolderRepositoryCreateInactiveParent(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db, 32)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM folders WHERE id = $1 AND active = TRUE FOR UPDATE")).
		WithArgs("dead-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Folder{
		Name:     "Reports",
		ParentID: strPtr("dead-1"),
		OwnerID:  "user-1",
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFolderRepositoryCreateRootSiblingGroup(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db, 32)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM folders WHERE parent_id IS NULL AND LOWER(name) = LOWER($1)")).
		WithArgs("Archive", "").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Folder{Name: "Archive", OwnerID: "user-1"})
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestFolderRepositoryUpdateCycle(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db, 32)

	now := time.Now()
	// New parent's ancestor walk surfaces the folder being moved.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM folders WHERE id = $1 AND active = TRUE LIMIT 1")).
		WithArgs("child-1").
		WillReturnRows(folderRows(models.Folder{
			ID: "child-1", Name: "Child", ParentID: strPtr("folder-1"), OwnerID: "u1",
			AccessLevel: models.AccessLevelInherited, Active: true, CreatedAt: now, UpdatedAt: now,
		}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM folders WHERE id = $1 AND active = TRUE LIMIT 1")).
		WithArgs("folder-1").
		WillReturnRows(folderRows(models.Folder{
			ID: "folder-1", Name: "Moved", OwnerID: "u1",
			AccessLevel: models.AccessLevelRestricted, Active: true, CreatedAt: now, UpdatedAt: now,
		}))
	mock.ExpectRollback()

	err := repo.Update(context.Background(), &models.Folder{
		ID:       "folder-1",
		Name:     "Moved",
		ParentID: strPtr("child-1"),
	}, true, false)
	assert.ErrorIs(t, err, ErrCycle)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFolderRepositoryUpdateSelfParent(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db, 32)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.Update(context.Background(), &models.Folder{
		ID:       "folder-1",
		Name:     "Self",
		ParentID: strPtr("folder-1"),
	}, true, false)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestFolderRepositoryDeleteNotEmpty(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db, 32)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM folders WHERE id = $1 AND active = TRUE FOR UPDATE")).
		WithArgs("folder-1").
		WillReturnRows(folderRows(models.Folder{
			ID: "folder-1", Name: "Finance", OwnerID: "u1",
			AccessLevel: models.AccessLevelRestricted, Active: true, CreatedAt: now, UpdatedAt: now,
		}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM folders WHERE parent_id = $1 AND active = TRUE")).
		WithArgs("folder-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM documents WHERE folder_id = $1 AND active = TRUE")).
		WithArgs("folder-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	_, err := repo.Delete(context.Background(), "folder-1", false)
	assert.ErrorIs(t, err, ErrFolderNotEmpty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFolderRepositoryDeleteCascade(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db, 32)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM folders WHERE id = $1 AND active = TRUE FOR UPDATE")).
		WithArgs("root-1").
		WillReturnRows(folderRows(models.Folder{
			ID: "root-1", Name: "Finance", OwnerID: "u1",
			AccessLevel: models.AccessLevelRestricted, Active: true, CreatedAt: now, UpdatedAt: now,
		}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM folders WHERE parent_id = ANY($1) AND active = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("child-1").AddRow("child-2"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM folders WHERE parent_id = ANY($1) AND active = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE folders SET active = FALSE")).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET active = FALSE")).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	deleted, err := repo.Delete(context.Background(), "root-1", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"root-1", "child-1", "child-2"}, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFolderRepositoryAncestorChain(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db, 32)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM folders WHERE id = $1 AND active = TRUE LIMIT 1")).
		WithArgs("leaf-1").
		WillReturnRows(folderRows(models.Folder{
			ID: "leaf-1", Name: "Q3", ParentID: strPtr("mid-1"), OwnerID: "u1",
			AccessLevel: models.AccessLevelInherited, Active: true, CreatedAt: now, UpdatedAt: now,
		}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM folders WHERE id = $1 AND active = TRUE LIMIT 1")).
		WithArgs("mid-1").
		WillReturnRows(folderRows(models.Folder{
			ID: "mid-1", Name: "Reports", ParentID: strPtr("root-1"), OwnerID: "u1",
			AccessLevel: models.AccessLevelInherited, Active: true, CreatedAt: now, UpdatedAt: now,
		}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM folders WHERE id = $1 AND active = TRUE LIMIT 1")).
		WithArgs("root-1").
		WillReturnRows(folderRows(models.Folder{
			ID: "root-1", Name: "Finance", OwnerID: "u1",
			AccessLevel: models.AccessLevelRestricted, Active: true, CreatedAt: now, UpdatedAt: now,
		}))
	mock.ExpectRollback()

	chain, err := repo.AncestorChain(context.Background(), "leaf-1")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "leaf-1", chain[0].ID)
	assert.Equal(t, "root-1", chain[2].ID)
}

func TestFolderRepositoryAncestorChainTargetMissing(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db, 32)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM folders WHERE id = $1 AND active = TRUE LIMIT 1")).
		WithArgs("gone").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.AncestorChain(context.Background(), "gone")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestFolderRepositoryAncestorChainInactiveAncestorStops(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewFolderRepository(db, 32)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM folders WHERE id = $1 AND active = TRUE LIMIT 1")).
		WithArgs("leaf-1").
		WillReturnRows(folderRows(models.Folder{
			ID: "leaf-1", Name: "Q3", ParentID: strPtr("dead-1"), OwnerID: "u1",
			AccessLevel: models.AccessLevelInherited, Active: true, CreatedAt: now, UpdatedAt: now,
		}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM folders WHERE id = $1 AND active = TRUE LIMIT 1")).
		WithArgs("dead-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	chain, err := repo.AncestorChain(context.Background(), "leaf-1")
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, "leaf-1", chain[0].ID)
}
