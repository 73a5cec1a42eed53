package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docnest/docnest-api/internal/dto"
	"github.com/docnest/docnest-api/internal/models"
	appErrors "github.com/docnest/docnest-api/pkg/errors"
	"github.com/docnest/docnest-api/pkg/response"
)

type permissionService interface {
	List(ctx context.Context, folderID string, claims *models.JWTClaims) ([]models.PermissionGrantDetail, error)
	Grant(ctx context.Context, folderID string, req dto.GrantPermissionRequest, claims *models.JWTClaims, meta models.LoginRequest) (*models.PermissionGrant, error)
	Revoke(ctx context.Context, folderID string, req dto.RevokePermissionRequest, claims *models.JWTClaims, meta models.LoginRequest) (int, error)
}

// PermissionHandler exposes folder grant endpoints.
type PermissionHandler struct {
	service permissionService
}

// NewPermissionHandler constructs a permission handler.
func NewPermissionHandler(svc permissionService) *PermissionHandler {
	return &PermissionHandler{service: svc}
}

// List godoc
// @Summary List active grants on a folder
// @Tags Permissions
// @Produce json
// @Param id path string true "Folder ID"
// @Success 200 {object} response.Envelope
// @Router /folders/{id}/permissions [get]
func (h *PermissionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	grants, err := h.service.List(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grants, nil)
}

// Grant godoc
// @Summary Grant a permission on a folder
// @Description Exactly one of userId and departmentId names the subject.
// @Tags Permissions
// @Accept json
// @Produce json
// @Param id path string true "Folder ID"
// @Param payload body dto.GrantPermissionRequest true "Grant payload"
// @Success 201 {object} response.Envelope
// @Router /folders/{id}/permissions [post]
func (h *PermissionHandler) Grant(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.GrantPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grant payload"))
		return
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	grant, err := h.service.Grant(c.Request.Context(), c.Param("id"), req, claims, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grant)
}

// Revoke godoc
// @Summary Revoke matching grants on a folder
// @Description An empty filter clears every active grant on the folder.
// @Tags Permissions
// @Accept json
// @Produce json
// @Param id path string true "Folder ID"
// @Param payload body dto.RevokePermissionRequest true "Revoke filter"
// @Success 200 {object} response.Envelope
// @Router /folders/{id}/permissions [delete]
func (h *PermissionHandler) Revoke(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RevokePermissionRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid revoke payload"))
			return
		}
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	revoked, err := h.service.Revoke(c.Request.Context(), c.Param("id"), req, claims, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.RevokeResponse{Revoked: revoked}, nil)
}
