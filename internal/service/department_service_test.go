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

type departmentStoreStub struct {
	departments map[string]*models.Department
	permissions []models.DepartmentPermission
	removeErr   error
}

func (s *departmentStoreStub) FindByID(ctx context.Context, id string) (*models.Department, error) {
	if dept, ok := s.departments[id]; ok {
		return dept, nil
	}
	return nil, sql.ErrNoRows
}

func (s *departmentStoreStub) List(ctx context.Context, filter models.DepartmentFilter) ([]models.Department, int, error) {
	var out []models.Department
	for _, dept := range s.departments {
		out = append(out, *dept)
	}
	return out, len(out), nil
}

func (s *departmentStoreStub) Create(ctx context.Context, dept *models.Department) error {
	dept.ID = "dept-new"
	dept.Active = true
	return nil
}

func (s *departmentStoreStub) Update(ctx context.Context, dept *models.Department) error {
	if _, ok := s.departments[dept.ID]; !ok {
		return sql.ErrNoRows
	}
	s.departments[dept.ID] = dept
	return nil
}

func (s *departmentStoreStub) AddPermission(ctx context.Context, perm *models.DepartmentPermission) error {
	s.permissions = append(s.permissions, *perm)
	return nil
}

func (s *departmentStoreStub) RemovePermission(ctx context.Context, departmentID, permission string) error {
	return s.removeErr
}

func (s *departmentStoreStub) ListPermissions(ctx context.Context, departmentID string) ([]models.DepartmentPermission, error) {
	return s.permissions, nil
}

type invalidatorStub struct {
	allCalls  int
	userCalls []string
}

func (s *invalidatorStub) InvalidateAll(ctx context.Context) {
	s.allCalls++
}

func (s *invalidatorStub) InvalidateUser(ctx context.Context, userID string) {
	s.userCalls = append(s.userCalls, userID)
}

func TestDepartmentServiceDeactivationFlushesEntitlements(t *testing.T) {
	store := &departmentStoreStub{departments: map[string]*models.Department{
		"d1": {ID: "d1", Name: "Finance", Active: true},
	}}
	invalidator := &invalidatorStub{}
	svc := NewDepartmentService(store, invalidator, nil, nil)

	inactive := false
	_, err := svc.Update(context.Background(), "d1", dto.UpdateDepartmentRequest{Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, 1, invalidator.allCalls)

	// A rename alone leaves the cache untouched.
	name := "Finance Ops"
	_, err = svc.Update(context.Background(), "d1", dto.UpdateDepartmentRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, 1, invalidator.allCalls)
}

func TestDepartmentServiceAddPermissionInactiveRefused(t *testing.T) {
	store := &departmentStoreStub{departments: map[string]*models.Department{
		"d1": {ID: "d1", Name: "Finance", Active: false},
	}}
	svc := NewDepartmentService(store, &invalidatorStub{}, nil, nil)

	err := svc.AddPermission(context.Background(), "d1", dto.DepartmentPermissionRequest{Permission: "manage_folders"}, "admin-1")
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestDepartmentServiceAddPermissionFlushesEntitlements(t *testing.T) {
	store := &departmentStoreStub{departments: map[string]*models.Department{
		"d1": {ID: "d1", Name: "Finance", Active: true},
	}}
	invalidator := &invalidatorStub{}
	svc := NewDepartmentService(store, invalidator, nil, nil)

	err := svc.AddPermission(context.Background(), "d1", dto.DepartmentPermissionRequest{Permission: "manage_folders"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, invalidator.allCalls)
	require.Len(t, store.permissions, 1)
	assert.Equal(t, "admin-1", store.permissions[0].GrantedBy)
}

func TestDepartmentServiceRemoveMissingPermission(t *testing.T) {
	store := &departmentStoreStub{
		departments: map[string]*models.Department{"d1": {ID: "d1", Name: "Finance", Active: true}},
		removeErr:   sql.ErrNoRows,
	}
	svc := NewDepartmentService(store, &invalidatorStub{}, nil, nil)

	err := svc.RemovePermission(context.Background(), "d1", "view_reports")
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
