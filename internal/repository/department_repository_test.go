package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docnest/docnest-api/internal/models"
)

func TestDepartmentRepositoryEntitlementsOf(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	rows := sqlmock.NewRows([]string{"permission"}).
		AddRow("manage_folders").
		AddRow("view_reports")
	mock.ExpectQuery(regexp.QuoteMeta("FROM department_permissions dp")).
		WithArgs("user-1").
		WillReturnRows(rows)

	perms, err := repo.EntitlementsOf(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"manage_folders", "view_reports"}, perms)
}

func TestDepartmentRepositoryEntitlementsOfNone(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM department_permissions dp")).
		WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows([]string{"permission"}))

	perms, err := repo.EntitlementsOf(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestDepartmentRepositoryAddPermissionIdempotent(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO department_permissions")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AddPermission(context.Background(), &models.DepartmentPermission{
		DepartmentID: "dept-1",
		Permission:   "manage_folders",
		GrantedBy:    "admin-1",
	})
	require.NoError(t, err)
}

func TestDepartmentRepositoryRemovePermissionMissing(t *testing.T) {
	db, mock, cleanup := newFolderRepoMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM department_permissions WHERE department_id = $1 AND permission = $2")).
		WithArgs("dept-1", "manage_folders").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RemovePermission(context.Background(), "dept-1", "manage_folders")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
