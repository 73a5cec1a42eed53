package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/docnest/docnest-api/internal/dto"
	"github.com/docnest/docnest-api/internal/models"
	appErrors "github.com/docnest/docnest-api/pkg/errors"
)

const permissionResource = "permission_grants"

type grantStore interface {
	Grant(ctx context.Context, grant *models.PermissionGrant) (*models.PermissionGrant, error)
	Revoke(ctx context.Context, folderID string, filter models.RevokeFilter) (int, error)
	ListByFolder(ctx context.Context, folderID string) ([]models.PermissionGrantDetail, error)
}

type grantFolderReader interface {
	FindByID(ctx context.Context, id string) (*models.Folder, error)
}

type grantUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type grantDepartmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Department, error)
}

// PermissionService manages explicit folder grants. Only users holding manage
// access on a folder may change or inspect its grants.
type PermissionService struct {
	repo        grantStore
	folders     grantFolderReader
	users       grantUserReader
	departments grantDepartmentReader
	access      folderAccessChecker
	audit       auditLogger
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPermissionService creates a PermissionService.
func NewPermissionService(
	repo grantStore,
	folders grantFolderReader,
	users grantUserReader,
	departments grantDepartmentReader,
	access folderAccessChecker,
	audit auditLogger,
	validate *validator.Validate,
	logger *zap.Logger,
) *PermissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionService{
		repo:        repo,
		folders:     folders,
		users:       users,
		departments: departments,
		access:      access,
		audit:       audit,
		validator:   validate,
		logger:      logger,
	}
}

// List returns the active grants on a folder.
func (s *PermissionService) List(ctx context.Context, folderID string, claims *models.JWTClaims) ([]models.PermissionGrantDetail, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.ensureFolder(ctx, folderID); err != nil {
		return nil, err
	}
	if err := s.access.Require(ctx, claims.UserID, folderID, models.PermissionManage); err != nil {
		return nil, err
	}
	grants, err := s.repo.ListByFolder(ctx, folderID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grants")
	}
	return grants, nil
}

// Grant attaches a grant to a folder. Exactly one subject must be named;
// re-granting an identical active triple returns the existing grant.
func (s *PermissionService) Grant(ctx context.Context, folderID string, req dto.GrantPermissionRequest, claims *models.JWTClaims, meta models.LoginRequest) (*models.PermissionGrant, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grant payload")
	}
	permType := models.PermissionType(req.PermissionType)
	if !models.ValidPermissionType(permType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown permission type")
	}
	if (req.UserID == nil) == (req.DepartmentID == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exactly one of userId and departmentId must be provided")
	}

	if err := s.ensureFolder(ctx, folderID); err != nil {
		return nil, err
	}
	if err := s.access.Require(ctx, claims.UserID, folderID, models.PermissionManage); err != nil {
		return nil, err
	}
	if err := s.ensureSubject(ctx, req.UserID, req.DepartmentID); err != nil {
		return nil, err
	}

	grant, err := s.repo.Grant(ctx, &models.PermissionGrant{
		FolderID:       folderID,
		UserID:         req.UserID,
		DepartmentID:   req.DepartmentID,
		PermissionType: permType,
		GrantedBy:      claims.UserID,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store grant")
	}

	s.emitAudit(ctx, claims, models.AuditActionGrantCreate, folderID, nil, grant, meta)
	return grant, nil
}

// Revoke deactivates matching active grants on a folder and reports how many
// were removed. Revoking with an empty filter clears the folder's grants.
func (s *PermissionService) Revoke(ctx context.Context, folderID string, req dto.RevokePermissionRequest, claims *models.JWTClaims, meta models.LoginRequest) (int, error) {
	if claims == nil {
		return 0, appErrors.ErrUnauthorized
	}
	if err := s.ensureFolder(ctx, folderID); err != nil {
		return 0, err
	}
	if err := s.access.Require(ctx, claims.UserID, folderID, models.PermissionManage); err != nil {
		return 0, err
	}

	filter := models.RevokeFilter{UserID: req.UserID, DepartmentID: req.DepartmentID}
	if req.PermissionType != nil {
		permType := models.PermissionType(*req.PermissionType)
		if !models.ValidPermissionType(permType) {
			return 0, appErrors.Clone(appErrors.ErrValidation, "unknown permission type")
		}
		filter.PermissionType = &permType
	}

	revoked, err := s.repo.Revoke(ctx, folderID, filter)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke grants")
	}

	s.emitAudit(ctx, claims, models.AuditActionGrantRevoke, folderID, req, map[string]interface{}{"revoked": revoked}, meta)
	return revoked, nil
}

func (s *PermissionService) ensureFolder(ctx context.Context, folderID string) error {
	if folderID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "folderId is required")
	}
	if _, err := s.folders.FindByID(ctx, folderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
	}
	return nil
}

func (s *PermissionService) ensureSubject(ctx context.Context, userID, departmentID *string) error {
	if userID != nil {
		user, err := s.users.FindByID(ctx, *userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "user not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
		}
		if !user.Active {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "user inactive")
		}
		return nil
	}
	dept, err := s.departments.FindByID(ctx, *departmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	if !dept.Active {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "department inactive")
	}
	return nil
}

func (s *PermissionService) emitAudit(ctx context.Context, claims *models.JWTClaims, action, folderID string, oldValue, newValue interface{}, meta models.LoginRequest) {
	if s.audit == nil {
		return
	}
	var oldValues, newValues []byte
	if oldValue != nil {
		oldValues, _ = json.Marshal(oldValue)
	}
	if newValue != nil {
		newValues, _ = json.Marshal(newValue)
	}
	log := &models.AuditLog{
		UserID:     &claims.UserID,
		Action:     action,
		Resource:   permissionResource,
		ResourceID: &folderID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record grant audit", zap.Error(err))
	}
}
