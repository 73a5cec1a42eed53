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
	"github.com/docnest/docnest-api/internal/repository"
	appErrors "github.com/docnest/docnest-api/pkg/errors"
)

const folderResource = "folders"

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type folderStore interface {
	FindByID(ctx context.Context, id string) (*models.Folder, error)
	List(ctx context.Context, filter models.FolderFilter) ([]models.Folder, int, error)
	ListChildren(ctx context.Context, parentID string) ([]models.Folder, error)
	Create(ctx context.Context, folder *models.Folder) error
	Update(ctx context.Context, folder *models.Folder, parentChanged, nameChanged bool) error
	Delete(ctx context.Context, id string, cascade bool) ([]string, error)
}

type folderAccessChecker interface {
	Require(ctx context.Context, userID, folderID string, action models.PermissionType) error
}

// FolderService orchestrates folder directory workflows. Structural
// invariants (sibling name uniqueness, acyclicity, cascade atomicity) are
// enforced inside repository transactions; this layer handles authorization,
// validation, and error taxonomy.
type FolderService struct {
	repo      folderStore
	access    folderAccessChecker
	walker    *HierarchyWalker
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFolderService creates a FolderService.
func NewFolderService(repo folderStore, access folderAccessChecker, walker *HierarchyWalker, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *FolderService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FolderService{
		repo:      repo,
		access:    access,
		walker:    walker,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// List returns folders matching the filter. Listing under a parent requires
// read access to that parent.
func (s *FolderService) List(ctx context.Context, filter models.FolderFilter, claims *models.JWTClaims) ([]models.Folder, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if filter.ParentID != nil && *filter.ParentID != "" {
		if err := s.access.Require(ctx, claims.UserID, *filter.ParentID, models.PermissionRead); err != nil {
			return nil, nil, err
		}
	}

	folders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list folders")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return folders, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one folder, requiring read access.
func (s *FolderService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Folder, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.access.Require(ctx, claims.UserID, id, models.PermissionRead); err != nil {
		return nil, err
	}
	folder, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
	}
	return folder, nil
}

// Children returns the active children of a folder, requiring read access.
func (s *FolderService) Children(ctx context.Context, id string, claims *models.JWTClaims) ([]models.Folder, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.access.Require(ctx, claims.UserID, id, models.PermissionRead); err != nil {
		return nil, err
	}
	children, err := s.repo.ListChildren(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list folder children")
	}
	return children, nil
}

// Path returns breadcrumb entries root first, requiring read access.
func (s *FolderService) Path(ctx context.Context, id string, claims *models.JWTClaims) ([]dto.HierarchyPathEntry, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.access.Require(ctx, claims.UserID, id, models.PermissionRead); err != nil {
		return nil, err
	}
	return s.walker.Path(ctx, id)
}

// Create adds a folder. Creating under a parent requires write access to the
// parent; creating at the root is reserved for admins and managers.
func (s *FolderService) Create(ctx context.Context, req dto.CreateFolderRequest, claims *models.JWTClaims, meta models.LoginRequest) (*models.Folder, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid folder payload")
	}
	level := models.AccessLevelInherited
	if req.AccessLevel != "" {
		level = models.AccessLevel(req.AccessLevel)
		if !models.ValidAccessLevel(level) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown access level")
		}
	}

	if req.ParentID != nil && *req.ParentID != "" {
		if err := s.access.Require(ctx, claims.UserID, *req.ParentID, models.PermissionWrite); err != nil {
			return nil, err
		}
	} else {
		if claims.Role != models.RoleAdmin && claims.Role != models.RoleManager {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins and managers may create root folders")
		}
		req.ParentID = nil
	}

	inherit := true
	if req.InheritPermissions != nil {
		inherit = *req.InheritPermissions
	}

	folder := &models.Folder{
		Name:               req.Name,
		ParentID:           req.ParentID,
		OwnerID:            claims.UserID,
		AccessLevel:        level,
		InheritPermissions: inherit,
	}
	if err := s.repo.Create(ctx, folder); err != nil {
		return nil, s.mapFolderError(err, "failed to create folder")
	}

	s.emitAudit(ctx, claims, models.AuditActionFolderCreate, folder.ID, nil, folder, meta)
	return folder, nil
}

// Update mutates a folder, requiring manage access. Moving the folder also
// requires write access to the new parent.
func (s *FolderService) Update(ctx context.Context, id string, req dto.UpdateFolderRequest, claims *models.JWTClaims, meta models.LoginRequest) (*models.Folder, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid folder payload")
	}
	if err := s.access.Require(ctx, claims.UserID, id, models.PermissionManage); err != nil {
		return nil, err
	}

	folder, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
	}
	before := *folder

	nameChanged := false
	if req.Name != nil && *req.Name != folder.Name {
		folder.Name = *req.Name
		nameChanged = true
	}

	parentChanged := false
	switch {
	case req.MoveToRoot:
		if folder.ParentID != nil {
			if claims.Role != models.RoleAdmin && claims.Role != models.RoleManager {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins and managers may move folders to the root")
			}
			folder.ParentID = nil
			parentChanged = true
		}
	case req.ParentID != nil:
		if folder.ParentID == nil || *req.ParentID != *folder.ParentID {
			if err := s.access.Require(ctx, claims.UserID, *req.ParentID, models.PermissionWrite); err != nil {
				return nil, err
			}
			folder.ParentID = req.ParentID
			parentChanged = true
		}
	}

	if req.AccessLevel != nil {
		level := models.AccessLevel(*req.AccessLevel)
		if !models.ValidAccessLevel(level) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown access level")
		}
		folder.AccessLevel = level
	}
	if req.InheritPermissions != nil {
		folder.InheritPermissions = *req.InheritPermissions
	}

	if err := s.repo.Update(ctx, folder, parentChanged, nameChanged); err != nil {
		return nil, s.mapFolderError(err, "failed to update folder")
	}

	s.emitAudit(ctx, claims, models.AuditActionFolderUpdate, folder.ID, &before, folder, meta)
	return folder, nil
}

// Delete soft-deletes a folder, requiring delete access. Without cascade a
// folder holding active children or documents is refused; with cascade the
// whole subtree and its documents are deactivated atomically.
func (s *FolderService) Delete(ctx context.Context, id string, cascade bool, claims *models.JWTClaims, meta models.LoginRequest) (int, error) {
	if claims == nil {
		return 0, appErrors.ErrUnauthorized
	}
	if err := s.access.Require(ctx, claims.UserID, id, models.PermissionDelete); err != nil {
		return 0, err
	}

	deleted, err := s.repo.Delete(ctx, id, cascade)
	if err != nil {
		return 0, s.mapFolderError(err, "failed to delete folder")
	}

	s.emitAudit(ctx, claims, models.AuditActionFolderDelete, id, nil, map[string]interface{}{"deleted": deleted, "cascade": cascade}, meta)
	return len(deleted), nil
}

func (s *FolderService) mapFolderError(err error, fallback string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "folder not found")
	case errors.Is(err, repository.ErrDuplicateName):
		return appErrors.Clone(appErrors.ErrConflict, "a sibling folder with that name already exists")
	case errors.Is(err, repository.ErrCycle):
		return appErrors.Clone(appErrors.ErrConflict, "move would make the folder its own ancestor")
	case errors.Is(err, repository.ErrFolderNotEmpty):
		return appErrors.Clone(appErrors.ErrConflict, "folder holds active children or documents")
	case errors.Is(err, repository.ErrDepthExceeded):
		return appErrors.Clone(appErrors.ErrConflict, "folder hierarchy depth cap exceeded")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fallback)
	}
}

func (s *FolderService) emitAudit(ctx context.Context, claims *models.JWTClaims, action, resourceID string, oldValue, newValue interface{}, meta models.LoginRequest) {
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
		Resource:   folderResource,
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record folder audit", zap.Error(err))
	}
}
