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

const documentResource = "documents"

type documentStore interface {
	FindByID(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error)
	Create(ctx context.Context, doc *models.Document) error
	Update(ctx context.Context, doc *models.Document) error
	Delete(ctx context.Context, id string) error
}

// DocumentService manages document metadata. Every operation is authorized
// against the containing folder through the access resolver: read to see,
// write to add or change, delete to remove.
type DocumentService struct {
	repo      documentStore
	folders   grantFolderReader
	access    folderAccessChecker
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDocumentService creates a DocumentService.
func NewDocumentService(repo documentStore, folders grantFolderReader, access folderAccessChecker, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *DocumentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		repo:      repo,
		folders:   folders,
		access:    access,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
}

// List returns documents inside one folder, requiring read access to it.
func (s *DocumentService) List(ctx context.Context, filter models.DocumentFilter, claims *models.JWTClaims) ([]models.Document, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if filter.FolderID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "folderId is required")
	}
	if err := s.ensureFolder(ctx, filter.FolderID); err != nil {
		return nil, nil, err
	}
	if err := s.access.Require(ctx, claims.UserID, filter.FolderID, models.PermissionRead); err != nil {
		return nil, nil, err
	}

	docs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return docs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one document, requiring read access to its folder.
func (s *DocumentService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Document, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.Require(ctx, claims.UserID, doc.FolderID, models.PermissionRead); err != nil {
		return nil, err
	}
	return doc, nil
}

// Create registers document metadata, requiring write access to the folder.
func (s *DocumentService) Create(ctx context.Context, req dto.CreateDocumentRequest, claims *models.JWTClaims, meta models.LoginRequest) (*models.Document, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document payload")
	}
	if err := s.ensureFolder(ctx, req.FolderID); err != nil {
		return nil, err
	}
	if err := s.access.Require(ctx, claims.UserID, req.FolderID, models.PermissionWrite); err != nil {
		return nil, err
	}

	doc := &models.Document{
		FolderID:  req.FolderID,
		Title:     req.Title,
		MimeType:  req.MimeType,
		SizeBytes: req.SizeBytes,
		OwnerID:   claims.UserID,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document")
	}

	s.emitAudit(ctx, claims, models.AuditActionDocumentCreate, doc.ID, nil, doc, meta)
	return doc, nil
}

// Update mutates document metadata, requiring write access to the current
// folder and, when moving, write access to the destination as well.
func (s *DocumentService) Update(ctx context.Context, id string, req dto.UpdateDocumentRequest, claims *models.JWTClaims, meta models.LoginRequest) (*models.Document, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document payload")
	}
	doc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.Require(ctx, claims.UserID, doc.FolderID, models.PermissionWrite); err != nil {
		return nil, err
	}
	before := *doc

	if req.FolderID != nil && *req.FolderID != doc.FolderID {
		if err := s.ensureFolder(ctx, *req.FolderID); err != nil {
			return nil, err
		}
		if err := s.access.Require(ctx, claims.UserID, *req.FolderID, models.PermissionWrite); err != nil {
			return nil, err
		}
		doc.FolderID = *req.FolderID
	}
	if req.Title != nil {
		doc.Title = *req.Title
	}
	if req.MimeType != nil {
		doc.MimeType = *req.MimeType
	}

	if err := s.repo.Update(ctx, doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update document")
	}

	s.emitAudit(ctx, claims, models.AuditActionDocumentUpdate, doc.ID, &before, doc, meta)
	return doc, nil
}

// Delete soft-deletes a document, requiring delete access to its folder.
func (s *DocumentService) Delete(ctx context.Context, id string, claims *models.JWTClaims, meta models.LoginRequest) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	doc, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.access.Require(ctx, claims.UserID, doc.FolderID, models.PermissionDelete); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document")
	}

	s.emitAudit(ctx, claims, models.AuditActionDocumentDelete, id, doc, nil, meta)
	return nil
}

func (s *DocumentService) load(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

func (s *DocumentService) ensureFolder(ctx context.Context, folderID string) error {
	if _, err := s.folders.FindByID(ctx, folderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "folder not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load folder")
	}
	return nil
}

func (s *DocumentService) emitAudit(ctx context.Context, claims *models.JWTClaims, action, resourceID string, oldValue, newValue interface{}, meta models.LoginRequest) {
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
		Resource:   documentResource,
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record document audit", zap.Error(err))
	}
}
