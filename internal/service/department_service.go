package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/docnest/docnest-api/internal/dto"
	"github.com/docnest/docnest-api/internal/models"
	appErrors "github.com/docnest/docnest-api/pkg/errors"
)

type departmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Department, error)
	List(ctx context.Context, filter models.DepartmentFilter) ([]models.Department, int, error)
	Create(ctx context.Context, dept *models.Department) error
	Update(ctx context.Context, dept *models.Department) error
	AddPermission(ctx context.Context, perm *models.DepartmentPermission) error
	RemovePermission(ctx context.Context, departmentID, permission string) error
	ListPermissions(ctx context.Context, departmentID string) ([]models.DepartmentPermission, error)
}

type entitlementInvalidator interface {
	InvalidateAll(ctx context.Context)
}

// DepartmentService manages departments and their global permission names.
// Permission changes flush the entitlement cache so the access resolver picks
// them up within one request rather than one TTL.
type DepartmentService struct {
	repo         departmentStore
	entitlements entitlementInvalidator
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewDepartmentService creates a DepartmentService.
func NewDepartmentService(repo departmentStore, entitlements entitlementInvalidator, validate *validator.Validate, logger *zap.Logger) *DepartmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepartmentService{repo: repo, entitlements: entitlements, validator: validate, logger: logger}
}

// List returns departments and pagination metadata.
func (s *DepartmentService) List(ctx context.Context, filter models.DepartmentFilter) ([]models.Department, *models.Pagination, error) {
	depts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return depts, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a department by ID.
func (s *DepartmentService) Get(ctx context.Context, id string) (*models.Department, error) {
	dept, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	return dept, nil
}

// Create adds a department.
func (s *DepartmentService) Create(ctx context.Context, req dto.CreateDepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}
	dept := &models.Department{Name: req.Name, Description: req.Description}
	if err := s.repo.Create(ctx, dept); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create department")
	}
	return dept, nil
}

// Update mutates department attributes. Deactivating a department disables
// its entitlements for every member.
func (s *DepartmentService) Update(ctx context.Context, id string, req dto.UpdateDepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}
	dept, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	activeChanged := false
	if req.Name != nil {
		dept.Name = *req.Name
	}
	if req.Description != nil {
		dept.Description = *req.Description
	}
	if req.Active != nil && *req.Active != dept.Active {
		dept.Active = *req.Active
		activeChanged = true
	}

	if err := s.repo.Update(ctx, dept); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update department")
	}

	if activeChanged {
		s.entitlements.InvalidateAll(ctx)
	}
	return dept, nil
}

// Permissions returns the global permission names attached to a department.
func (s *DepartmentService) Permissions(ctx context.Context, id string) ([]models.DepartmentPermission, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	perms, err := s.repo.ListPermissions(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list department permissions")
	}
	return perms, nil
}

// AddPermission attaches a global permission name to a department.
func (s *DepartmentService) AddPermission(ctx context.Context, id string, req dto.DepartmentPermissionRequest, actorID string) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid permission payload")
	}
	dept, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !dept.Active {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "department inactive")
	}

	if err := s.repo.AddPermission(ctx, &models.DepartmentPermission{
		DepartmentID: id,
		Permission:   req.Permission,
		GrantedBy:    actorID,
	}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add department permission")
	}

	s.entitlements.InvalidateAll(ctx)
	return nil
}

// RemovePermission detaches a global permission name from a department.
func (s *DepartmentService) RemovePermission(ctx context.Context, id, permission string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.RemovePermission(ctx, id, permission); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "department permission not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove department permission")
	}

	s.entitlements.InvalidateAll(ctx)
	return nil
}
