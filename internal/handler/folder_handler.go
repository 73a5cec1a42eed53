package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/docnest/docnest-api/internal/dto"
	"github.com/docnest/docnest-api/internal/models"
	appErrors "github.com/docnest/docnest-api/pkg/errors"
	"github.com/docnest/docnest-api/pkg/response"
)

type folderService interface {
	List(ctx context.Context, filter models.FolderFilter, claims *models.JWTClaims) ([]models.Folder, *models.Pagination, error)
	Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Folder, error)
	Children(ctx context.Context, id string, claims *models.JWTClaims) ([]models.Folder, error)
	Path(ctx context.Context, id string, claims *models.JWTClaims) ([]dto.HierarchyPathEntry, error)
	Create(ctx context.Context, req dto.CreateFolderRequest, claims *models.JWTClaims, meta models.LoginRequest) (*models.Folder, error)
	Update(ctx context.Context, id string, req dto.UpdateFolderRequest, claims *models.JWTClaims, meta models.LoginRequest) (*models.Folder, error)
	Delete(ctx context.Context, id string, cascade bool, claims *models.JWTClaims, meta models.LoginRequest) (int, error)
}

type accessResolver interface {
	Can(ctx context.Context, userID, folderID string, action models.PermissionType) (bool, error)
	ResolveActions(ctx context.Context, userID, folderID string) (*dto.AccessCheckResponse, error)
}

// FolderHandler exposes the folder directory endpoints.
type FolderHandler struct {
	service folderService
	access  accessResolver
}

// NewFolderHandler constructs a folder handler.
func NewFolderHandler(svc folderService, access accessResolver) *FolderHandler {
	return &FolderHandler{service: svc, access: access}
}

// List godoc
// @Summary List folders
// @Tags Folders
// @Produce json
// @Param parentId query string false "Parent folder ID; empty string selects root folders"
// @Param ownerId query string false "Owner filter"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /folders [get]
func (h *FolderHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.FolderFilter
	if parent, ok := c.GetQuery("parentId"); ok {
		filter.ParentID = &parent
	}
	filter.OwnerID = c.Query("ownerId")
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	folders, pagination, err := h.service.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, folders, pagination)
}

// Get godoc
// @Summary Get folder detail
// @Tags Folders
// @Produce json
// @Param id path string true "Folder ID"
// @Success 200 {object} response.Envelope
// @Router /folders/{id} [get]
func (h *FolderHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	folder, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, folder, nil)
}

// Children godoc
// @Summary List the active children of a folder
// @Tags Folders
// @Produce json
// @Param id path string true "Folder ID"
// @Success 200 {object} response.Envelope
// @Router /folders/{id}/children [get]
func (h *FolderHandler) Children(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	children, err := h.service.Children(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, children, nil)
}

// Path godoc
// @Summary Breadcrumb path from the root to a folder
// @Tags Folders
// @Produce json
// @Param id path string true "Folder ID"
// @Success 200 {object} response.Envelope
// @Router /folders/{id}/path [get]
func (h *FolderHandler) Path(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	path, err := h.service.Path(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, path, nil)
}

// CheckAccess godoc
// @Summary Resolve the caller's effective access on a folder
// @Description With an action query the response carries that single action;
// @Description without one every permission type is resolved.
// @Tags Folders
// @Produce json
// @Param id path string true "Folder ID"
// @Param action query string false "Permission type (read, write, delete, manage)"
// @Success 200 {object} response.Envelope
// @Router /folders/{id}/access [get]
func (h *FolderHandler) CheckAccess(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	folderID := c.Param("id")

	if action := c.Query("action"); action != "" {
		allowed, err := h.access.Can(c.Request.Context(), claims.UserID, folderID, models.PermissionType(action))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, dto.AccessCheckResponse{
			FolderID: folderID,
			Allowed:  map[models.PermissionType]bool{models.PermissionType(action): allowed},
		}, nil)
		return
	}

	result, err := h.access.ResolveActions(c.Request.Context(), claims.UserID, folderID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Create godoc
// @Summary Create folder
// @Tags Folders
// @Accept json
// @Produce json
// @Param payload body dto.CreateFolderRequest true "Folder payload"
// @Success 201 {object} response.Envelope
// @Router /folders [post]
func (h *FolderHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid folder payload"))
		return
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	folder, err := h.service.Create(c.Request.Context(), req, claims, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, folder)
}

// Update godoc
// @Summary Update folder
// @Tags Folders
// @Accept json
// @Produce json
// @Param id path string true "Folder ID"
// @Param payload body dto.UpdateFolderRequest true "Folder payload"
// @Success 200 {object} response.Envelope
// @Router /folders/{id} [put]
func (h *FolderHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid folder payload"))
		return
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	folder, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, folder, nil)
}

// Delete godoc
// @Summary Soft delete folder
// @Description Without cascade a folder holding active children or documents
// @Description is refused with 409.
// @Tags Folders
// @Produce json
// @Param id path string true "Folder ID"
// @Param cascade query bool false "Deactivate the whole subtree"
// @Success 200 {object} response.Envelope
// @Router /folders/{id} [delete]
func (h *FolderHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	cascade := false
	if raw := c.Query("cascade"); raw != "" {
		if val, err := strconv.ParseBool(raw); err == nil {
			cascade = val
		}
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	count, err := h.service.Delete(c.Request.Context(), c.Param("id"), cascade, claims, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": count}, nil)
}
