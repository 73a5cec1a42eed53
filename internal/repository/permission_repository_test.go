package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docnest/docnest-api/internal/models"
)

func grantRow(g models.PermissionGrant) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "folder_id", "user_id", "department_id", "permission_type", "granted_by", "active", "granted_at"}).
		AddRow(g.ID, g.FolderID, g.UserID, g.DepartmentID, string(g.PermissionType), g.GrantedBy, g.Active, g.GrantedAt)
}

func TestPermissionRepositoryGrantInsert(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewPermissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM permission_grants")).
		WithArgs("folder-1", "user-2", nil, "read").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO permission_grants")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	grant := &models.PermissionGrant{
		FolderID:       "folder-1",
		UserID:         strPtr("user-2"),
		PermissionType: models.PermissionRead,
		GrantedBy:      "admin-1",
	}
	stored, err := repo.Grant(context.Background(), grant)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.True(t, stored.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionRepositoryGrantIdempotent(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewPermissionRepository(db)

	existing := models.PermissionGrant{
		ID:             "grant-1",
		FolderID:       "folder-1",
		UserID:         strPtr("user-2"),
		PermissionType: models.PermissionRead,
		GrantedBy:      "admin-1",
		Active:         true,
		GrantedAt:      time.Now(),
	}
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM permission_grants")).
		WithArgs("folder-1", "user-2", nil, "read").
		WillReturnRows(grantRow(existing))
	mock.ExpectCommit()

	stored, err := repo.Grant(context.Background(), &models.PermissionGrant{
		FolderID:       "folder-1",
		UserID:         strPtr("user-2"),
		PermissionType: models.PermissionRead,
		GrantedBy:      "admin-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "grant-1", stored.ID)
	assert.Equal(t, "admin-1", stored.GrantedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionRepositoryRevokeFiltered(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewPermissionRepository(db)

	perm := models.PermissionWrite
	mock.ExpectExec(regexp.QuoteMeta("UPDATE permission_grants SET active = FALSE WHERE folder_id = $1 AND active = TRUE AND user_id = $2 AND permission_type = $3")).
		WithArgs("folder-1", "user-2", string(perm)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	count, err := repo.Revoke(context.Background(), "folder-1", models.RevokeFilter{
		UserID:         strPtr("user-2"),
		PermissionType: &perm,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPermissionRepositoryRevokeAll(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewPermissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE permission_grants SET active = FALSE WHERE folder_id = $1 AND active = TRUE")).
		WithArgs("folder-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.Revoke(context.Background(), "folder-1", models.RevokeFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPermissionRepositoryListActiveByFolderIDs(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewPermissionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "folder_id", "user_id", "department_id", "permission_type", "granted_by", "active", "granted_at"}).
		AddRow("g1", "folder-1", "user-2", nil, "read", "admin-1", true, now).
		AddRow("g2", "folder-2", nil, "dept-1", "write", "admin-1", true, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM permission_grants WHERE folder_id = ANY($1) AND active = TRUE")).
		WillReturnRows(rows)

	grants, err := repo.ListActiveByFolderIDs(context.Background(), []string{"folder-1", "folder-2"})
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "dept-1", *grants[1].DepartmentID)
	assert.Nil(t, grants[1].UserID)
}

func TestPermissionRepositoryListActiveByFolderIDsEmpty(t *testing.T) {
	db, _, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewPermissionRepository(db)

	grants, err := repo.ListActiveByFolderIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, grants)
}
