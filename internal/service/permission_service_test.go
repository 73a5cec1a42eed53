package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docnest/docnest-api/internal/dto"
	"github.com/docnest/docnest-api/internal/models"
	appErrors "github.com/docnest/docnest-api/pkg/errors"
)

type grantStoreStub struct {
	granted  []*models.PermissionGrant
	existing *models.PermissionGrant
	revoked  int
	filters  []models.RevokeFilter
	listed   []models.PermissionGrantDetail
}

func (s *grantStoreStub) Grant(ctx context.Context, grant *models.PermissionGrant) (*models.PermissionGrant, error) {
	if s.existing != nil {
		return s.existing, nil
	}
	grant.ID = "grant-new"
	grant.Active = true
	s.granted = append(s.granted, grant)
	return grant, nil
}

func (s *grantStoreStub) Revoke(ctx context.Context, folderID string, filter models.RevokeFilter) (int, error) {
	s.filters = append(s.filters, filter)
	return s.revoked, nil
}

func (s *grantStoreStub) ListByFolder(ctx context.Context, folderID string) ([]models.PermissionGrantDetail, error) {
	return s.listed, nil
}

type deptLookupStub struct {
	departments map[string]*models.Department
}

func (s deptLookupStub) FindByID(ctx context.Context, id string) (*models.Department, error) {
	if dept, ok := s.departments[id]; ok {
		return dept, nil
	}
	return nil, sql.ErrNoRows
}

func newPermissionFixture(store *grantStoreStub, folders map[string]*models.Folder, users map[string]*models.User, depts map[string]*models.Department, access *accessCheckerStub) *PermissionService {
	return NewPermissionService(
		store,
		folderTreeStub{folders: folders},
		userLookupStub{users: users},
		deptLookupStub{departments: depts},
		access,
		&auditRecorderStub{},
		nil,
		nil,
	)
}

func TestPermissionServiceGrantToUser(t *testing.T) {
	store := &grantStoreStub{}
	folders := map[string]*models.Folder{"f1": folderNode("f1", "owner-1", nil, models.AccessLevelRestricted, false)}
	users := map[string]*models.User{"u2": member("u2", nil)}
	access := &accessCheckerStub{allow: map[string]bool{"f1:manage": true}}
	svc := newPermissionFixture(store, folders, users, nil, access)

	subject := "u2"
	grant, err := svc.Grant(context.Background(), "f1", dto.GrantPermissionRequest{
		UserID:         &subject,
		PermissionType: "read",
	}, adminClaims("admin-1"), models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "admin-1", grant.GrantedBy)
	assert.Equal(t, models.PermissionRead, grant.PermissionType)
}

func TestPermissionServiceGrantRequiresExactlyOneSubject(t *testing.T) {
	store := &grantStoreStub{}
	folders := map[string]*models.Folder{"f1": folderNode("f1", "owner-1", nil, models.AccessLevelRestricted, false)}
	svc := newPermissionFixture(store, folders, nil, nil, &accessCheckerStub{allow: map[string]bool{"f1:manage": true}})

	_, err := svc.Grant(context.Background(), "f1", dto.GrantPermissionRequest{
		PermissionType: "read",
	}, adminClaims("admin-1"), models.LoginRequest{})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	user := "u2"
	dept := "d1"
	_, err = svc.Grant(context.Background(), "f1", dto.GrantPermissionRequest{
		UserID:         &user,
		DepartmentID:   &dept,
		PermissionType: "read",
	}, adminClaims("admin-1"), models.LoginRequest{})
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestPermissionServiceGrantUnknownTypeRejected(t *testing.T) {
	store := &grantStoreStub{}
	folders := map[string]*models.Folder{"f1": folderNode("f1", "owner-1", nil, models.AccessLevelRestricted, false)}
	svc := newPermissionFixture(store, folders, nil, nil, &accessCheckerStub{allow: map[string]bool{"f1:manage": true}})

	user := "u2"
	_, err := svc.Grant(context.Background(), "f1", dto.GrantPermissionRequest{
		UserID:         &user,
		PermissionType: "own",
	}, adminClaims("admin-1"), models.LoginRequest{})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestPermissionServiceGrantMissingFolder(t *testing.T) {
	store := &grantStoreStub{}
	svc := newPermissionFixture(store, map[string]*models.Folder{}, nil, nil, &accessCheckerStub{})

	user := "u2"
	_, err := svc.Grant(context.Background(), "gone", dto.GrantPermissionRequest{
		UserID:         &user,
		PermissionType: "read",
	}, adminClaims("admin-1"), models.LoginRequest{})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestPermissionServiceGrantInactiveDepartmentRefused(t *testing.T) {
	store := &grantStoreStub{}
	folders := map[string]*models.Folder{"f1": folderNode("f1", "owner-1", nil, models.AccessLevelRestricted, false)}
	depts := map[string]*models.Department{"d1": {ID: "d1", Name: "Finance", Active: false}}
	svc := newPermissionFixture(store, folders, nil, depts, &accessCheckerStub{allow: map[string]bool{"f1:manage": true}})

	dept := "d1"
	_, err := svc.Grant(context.Background(), "f1", dto.GrantPermissionRequest{
		DepartmentID:   &dept,
		PermissionType: "write",
	}, adminClaims("admin-1"), models.LoginRequest{})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestPermissionServiceRevokeReportsCount(t *testing.T) {
	store := &grantStoreStub{revoked: 2}
	folders := map[string]*models.Folder{"f1": folderNode("f1", "owner-1", nil, models.AccessLevelRestricted, false)}
	svc := newPermissionFixture(store, folders, nil, nil, &accessCheckerStub{allow: map[string]bool{"f1:manage": true}})

	permType := "read"
	count, err := svc.Revoke(context.Background(), "f1", dto.RevokePermissionRequest{PermissionType: &permType}, adminClaims("admin-1"), models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, store.filters, 1)
	require.NotNil(t, store.filters[0].PermissionType)
	assert.Equal(t, models.PermissionRead, *store.filters[0].PermissionType)
}

func TestPermissionServiceListRequiresManage(t *testing.T) {
	store := &grantStoreStub{}
	folders := map[string]*models.Folder{"f1": folderNode("f1", "owner-1", nil, models.AccessLevelRestricted, false)}
	svc := newPermissionFixture(store, folders, nil, nil, &accessCheckerStub{allow: map[string]bool{}})

	_, err := svc.List(context.Background(), "f1", memberClaims("u1"))
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}
