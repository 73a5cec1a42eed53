package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docnest/docnest-api/internal/models"
	appErrors "github.com/docnest/docnest-api/pkg/errors"
)

type folderTreeStub struct {
	folders map[string]*models.Folder
}

func (s folderTreeStub) FindByID(ctx context.Context, id string) (*models.Folder, error) {
	if folder, ok := s.folders[id]; ok && folder.Active {
		return folder, nil
	}
	return nil, sql.ErrNoRows
}

func (s folderTreeStub) ListChildren(ctx context.Context, parentID string) ([]models.Folder, error) {
	var children []models.Folder
	for _, folder := range s.folders {
		if folder.Active && folder.ParentID != nil && *folder.ParentID == parentID {
			children = append(children, *folder)
		}
	}
	return children, nil
}

func (s folderTreeStub) AncestorChain(ctx context.Context, folderID string) ([]models.Folder, error) {
	target, ok := s.folders[folderID]
	if !ok || !target.Active {
		return nil, sql.ErrNoRows
	}
	chain := []models.Folder{*target}
	current := target
	for current.ParentID != nil {
		parent, ok := s.folders[*current.ParentID]
		if !ok || !parent.Active {
			break
		}
		chain = append(chain, *parent)
		current = parent
	}
	return chain, nil
}

type grantListStub struct {
	grants []models.PermissionGrant
	err    error
}

func (s grantListStub) ListActiveByFolderIDs(ctx context.Context, folderIDs []string) ([]models.PermissionGrant, error) {
	if s.err != nil {
		return nil, s.err
	}
	wanted := make(map[string]bool, len(folderIDs))
	for _, id := range folderIDs {
		wanted[id] = true
	}
	var out []models.PermissionGrant
	for _, grant := range s.grants {
		if grant.Active && wanted[grant.FolderID] {
			out = append(out, grant)
		}
	}
	return out, nil
}

type userLookupStub struct {
	users map[string]*models.User
}

func (s userLookupStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

type entitlementStub struct {
	byUser map[string][]string
	err    error
}

func (s entitlementStub) HasEntitlement(ctx context.Context, userID, permission string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	for _, p := range s.byUser[userID] {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

func folderNode(id, owner string, parentID *string, level models.AccessLevel, inherit bool) *models.Folder {
	return &models.Folder{
		ID:                 id,
		Name:               id,
		ParentID:           parentID,
		OwnerID:            owner,
		AccessLevel:        level,
		InheritPermissions: inherit,
		Active:             true,
	}
}

func userGrant(folderID, userID string, perm models.PermissionType) models.PermissionGrant {
	return models.PermissionGrant{ID: folderID + ":" + userID, FolderID: folderID, UserID: &userID, PermissionType: perm, Active: true}
}

func deptGrant(folderID, deptID string, perm models.PermissionType) models.PermissionGrant {
	return models.PermissionGrant{ID: folderID + ":" + deptID, FolderID: folderID, DepartmentID: &deptID, PermissionType: perm, Active: true}
}

func newAccessFixture(folders map[string]*models.Folder, grants []models.PermissionGrant, users map[string]*models.User, entitlements map[string][]string) *AccessService {
	walker := NewHierarchyWalker(folderTreeStub{folders: folders}, 32)
	return NewAccessService(
		walker,
		grantListStub{grants: grants},
		userLookupStub{users: users},
		entitlementStub{byUser: entitlements},
		nil,
	)
}

func member(id string, deptID *string) *models.User {
	return &models.User{ID: id, Role: models.RoleMember, DepartmentID: deptID, Active: true}
}

func TestAccessEntitlementBypassAllowsEverything(t *testing.T) {
	folders := map[string]*models.Folder{
		"f1": folderNode("f1", "owner-1", nil, models.AccessLevelPrivate, false),
	}
	svc := newAccessFixture(folders, nil, map[string]*models.User{"u1": member("u1", nil)}, map[string][]string{
		"u1": {models.PermissionManageFolders},
	})

	for _, action := range []models.PermissionType{models.PermissionRead, models.PermissionWrite, models.PermissionDelete, models.PermissionManage} {
		allowed, err := svc.Can(context.Background(), "u1", "f1", action)
		require.NoError(t, err)
		assert.True(t, allowed, string(action))
	}
}

func TestAccessEntitlementBypassRequiresExistingTarget(t *testing.T) {
	svc := newAccessFixture(map[string]*models.Folder{}, nil, map[string]*models.User{"u1": member("u1", nil)}, map[string][]string{
		"u1": {models.PermissionManageFolders},
	})

	allowed, err := svc.Can(context.Background(), "u1", "gone", models.PermissionRead)
	assert.False(t, allowed)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)

	_, err = svc.ResolveActions(context.Background(), "u1", "gone")
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestAccessOwnerAlwaysAllowed(t *testing.T) {
	folders := map[string]*models.Folder{
		"f1": folderNode("f1", "u1", nil, models.AccessLevelPrivate, false),
	}
	svc := newAccessFixture(folders, nil, map[string]*models.User{"u1": member("u1", nil)}, nil)

	allowed, err := svc.Can(context.Background(), "u1", "f1", models.PermissionDelete)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAccessAncestorOwnershipInherits(t *testing.T) {
	root := "root"
	folders := map[string]*models.Folder{
		"root": folderNode("root", "u1", nil, models.AccessLevelPrivate, false),
		"leaf": folderNode("leaf", "someone-else", &root, models.AccessLevelInherited, true),
	}
	svc := newAccessFixture(folders, nil, map[string]*models.User{"u1": member("u1", nil)}, nil)

	allowed, err := svc.Can(context.Background(), "u1", "leaf", models.PermissionWrite)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAccessPublicAllowsReadOnly(t *testing.T) {
	folders := map[string]*models.Folder{
		"f1": folderNode("f1", "owner-1", nil, models.AccessLevelPublic, false),
	}
	svc := newAccessFixture(folders, nil, map[string]*models.User{"u1": member("u1", nil)}, nil)

	read, err := svc.Can(context.Background(), "u1", "f1", models.PermissionRead)
	require.NoError(t, err)
	assert.True(t, read)

	write, err := svc.Can(context.Background(), "u1", "f1", models.PermissionWrite)
	require.NoError(t, err)
	assert.False(t, write)
}

func TestAccessGrantTypesAreExactMatch(t *testing.T) {
	folders := map[string]*models.Folder{
		"f1": folderNode("f1", "owner-1", nil, models.AccessLevelRestricted, false),
	}
	grants := []models.PermissionGrant{userGrant("f1", "u1", models.PermissionManage)}
	svc := newAccessFixture(folders, grants, map[string]*models.User{"u1": member("u1", nil)}, nil)

	manage, err := svc.Can(context.Background(), "u1", "f1", models.PermissionManage)
	require.NoError(t, err)
	assert.True(t, manage)

	// A manage grant does not imply read.
	read, err := svc.Can(context.Background(), "u1", "f1", models.PermissionRead)
	require.NoError(t, err)
	assert.False(t, read)
}

func TestAccessDepartmentGrantMatchesMembers(t *testing.T) {
	dept := "dept-1"
	folders := map[string]*models.Folder{
		"f1": folderNode("f1", "owner-1", nil, models.AccessLevelRestricted, false),
	}
	grants := []models.PermissionGrant{deptGrant("f1", dept, models.PermissionRead)}
	users := map[string]*models.User{
		"u1": member("u1", &dept),
		"u2": member("u2", nil),
	}
	svc := newAccessFixture(folders, grants, users, nil)

	inDept, err := svc.Can(context.Background(), "u1", "f1", models.PermissionRead)
	require.NoError(t, err)
	assert.True(t, inDept)

	outside, err := svc.Can(context.Background(), "u2", "f1", models.PermissionRead)
	require.NoError(t, err)
	assert.False(t, outside)
}

func TestAccessInheritsGrantFromAncestor(t *testing.T) {
	root := "root"
	mid := "mid"
	folders := map[string]*models.Folder{
		"root": folderNode("root", "owner-1", nil, models.AccessLevelRestricted, false),
		"mid":  folderNode("mid", "owner-1", &root, models.AccessLevelInherited, true),
		"leaf": folderNode("leaf", "owner-1", &mid, models.AccessLevelInherited, true),
	}
	grants := []models.PermissionGrant{userGrant("root", "u1", models.PermissionWrite)}
	svc := newAccessFixture(folders, grants, map[string]*models.User{"u1": member("u1", nil)}, nil)

	allowed, err := svc.Can(context.Background(), "u1", "leaf", models.PermissionWrite)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAccessInheritanceDisabledBlocksAncestorGrant(t *testing.T) {
	root := "root"
	folders := map[string]*models.Folder{
		"root": folderNode("root", "owner-1", nil, models.AccessLevelRestricted, false),
		"leaf": folderNode("leaf", "owner-1", &root, models.AccessLevelPrivate, false),
	}
	grants := []models.PermissionGrant{userGrant("root", "u1", models.PermissionRead)}
	svc := newAccessFixture(folders, grants, map[string]*models.User{"u1": member("u1", nil)}, nil)

	allowed, err := svc.Can(context.Background(), "u1", "leaf", models.PermissionRead)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAccessInactiveGrantIgnored(t *testing.T) {
	folders := map[string]*models.Folder{
		"f1": folderNode("f1", "owner-1", nil, models.AccessLevelRestricted, false),
	}
	grant := userGrant("f1", "u1", models.PermissionRead)
	grant.Active = false
	svc := newAccessFixture(folders, []models.PermissionGrant{grant}, map[string]*models.User{"u1": member("u1", nil)}, nil)

	allowed, err := svc.Can(context.Background(), "u1", "f1", models.PermissionRead)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAccessMissingFolderIsNotFound(t *testing.T) {
	svc := newAccessFixture(map[string]*models.Folder{}, nil, map[string]*models.User{"u1": member("u1", nil)}, nil)

	_, err := svc.Can(context.Background(), "u1", "gone", models.PermissionRead)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestAccessUnknownActionRejected(t *testing.T) {
	svc := newAccessFixture(map[string]*models.Folder{}, nil, nil, nil)

	_, err := svc.Can(context.Background(), "u1", "f1", models.PermissionType("chmod"))
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAccessResolveActionsSnapshot(t *testing.T) {
	folders := map[string]*models.Folder{
		"f1": folderNode("f1", "owner-1", nil, models.AccessLevelPublic, false),
	}
	grants := []models.PermissionGrant{userGrant("f1", "u1", models.PermissionWrite)}
	svc := newAccessFixture(folders, grants, map[string]*models.User{"u1": member("u1", nil)}, nil)

	resp, err := svc.ResolveActions(context.Background(), "u1", "f1")
	require.NoError(t, err)
	assert.True(t, resp.Allowed[models.PermissionRead])
	assert.True(t, resp.Allowed[models.PermissionWrite])
	assert.False(t, resp.Allowed[models.PermissionDelete])
	assert.False(t, resp.Allowed[models.PermissionManage])
}

func TestAccessRequireMapsDenialToForbidden(t *testing.T) {
	folders := map[string]*models.Folder{
		"f1": folderNode("f1", "owner-1", nil, models.AccessLevelPrivate, false),
	}
	svc := newAccessFixture(folders, nil, map[string]*models.User{"u1": member("u1", nil)}, nil)

	err := svc.Require(context.Background(), "u1", "f1", models.PermissionRead)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}
