package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docnest/docnest-api/internal/dto"
	"github.com/docnest/docnest-api/internal/middleware"
	"github.com/docnest/docnest-api/internal/models"
	appErrors "github.com/docnest/docnest-api/pkg/errors"
)

type folderServiceMock struct {
	listResp     []models.Folder
	listErr      error
	lastFilter   models.FolderFilter
	getResp      *models.Folder
	getErr       error
	createResp   *models.Folder
	createErr    error
	deleteCount  int
	deleteErr    error
	lastCascade  bool
	listCalled   bool
	createCalled bool
	deleteCalled bool
}

func (m *folderServiceMock) List(ctx context.Context, filter models.FolderFilter, claims *models.JWTClaims) ([]models.Folder, *models.Pagination, error) {
	m.listCalled = true
	m.lastFilter = filter
	return m.listResp, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.listResp)}, m.listErr
}

func (m *folderServiceMock) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Folder, error) {
	return m.getResp, m.getErr
}

func (m *folderServiceMock) Children(ctx context.Context, id string, claims *models.JWTClaims) ([]models.Folder, error) {
	return m.listResp, m.listErr
}

func (m *folderServiceMock) Path(ctx context.Context, id string, claims *models.JWTClaims) ([]dto.HierarchyPathEntry, error) {
	return nil, nil
}

func (m *folderServiceMock) Create(ctx context.Context, req dto.CreateFolderRequest, claims *models.JWTClaims, meta models.LoginRequest) (*models.Folder, error) {
	m.createCalled = true
	return m.createResp, m.createErr
}

func (m *folderServiceMock) Update(ctx context.Context, id string, req dto.UpdateFolderRequest, claims *models.JWTClaims, meta models.LoginRequest) (*models.Folder, error) {
	return m.getResp, m.getErr
}

func (m *folderServiceMock) Delete(ctx context.Context, id string, cascade bool, claims *models.JWTClaims, meta models.LoginRequest) (int, error) {
	m.deleteCalled = true
	m.lastCascade = cascade
	return m.deleteCount, m.deleteErr
}

type accessResolverMock struct {
	canResp     bool
	canErr      error
	resolveResp *dto.AccessCheckResponse
	resolveErr  error
	lastAction  models.PermissionType
}

func (m *accessResolverMock) Can(ctx context.Context, userID, folderID string, action models.PermissionType) (bool, error) {
	m.lastAction = action
	return m.canResp, m.canErr
}

func (m *accessResolverMock) ResolveActions(ctx context.Context, userID, folderID string) (*dto.AccessCheckResponse, error) {
	return m.resolveResp, m.resolveErr
}

func testContext(w *httptest.ResponseRecorder, req *http.Request) *gin.Context {
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleMember})
	return c
}

func TestFolderHandlerListParsesParentFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &folderServiceMock{listResp: []models.Folder{{ID: "f1"}}}
	handler := NewFolderHandler(mockSvc, &accessResolverMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/folders?parentId=f1&limit=5", nil)

	handler.List(testContext(w, req))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.listCalled)
	require.NotNil(t, mockSvc.lastFilter.ParentID)
	assert.Equal(t, "f1", *mockSvc.lastFilter.ParentID)
	assert.Equal(t, 5, mockSvc.lastFilter.PageSize)
}

func TestFolderHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &folderServiceMock{}
	handler := NewFolderHandler(mockSvc, &accessResolverMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/folders", bytes.NewBufferString(`{"name":"x"`))
	req.Header.Set("Content-Type", "application/json")

	handler.Create(testContext(w, req))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.createCalled)
}

func TestFolderHandlerDeleteCascadeQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &folderServiceMock{deleteCount: 3}
	handler := NewFolderHandler(mockSvc, &accessResolverMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/folders/f1?cascade=true", nil)
	c := testContext(w, req)
	c.Params = gin.Params{{Key: "id", Value: "f1"}}

	handler.Delete(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.deleteCalled)
	assert.True(t, mockSvc.lastCascade)
}

func TestFolderHandlerDeleteServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &folderServiceMock{deleteErr: appErrors.ErrForbidden}
	handler := NewFolderHandler(mockSvc, &accessResolverMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/folders/f1", nil)
	c := testContext(w, req)
	c.Params = gin.Params{{Key: "id", Value: "f1"}}

	handler.Delete(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestFolderHandlerCheckAccessSingleAction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resolver := &accessResolverMock{canResp: true}
	handler := NewFolderHandler(&folderServiceMock{}, resolver)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/folders/f1/access?action=read", nil)
	c := testContext(w, req)
	c.Params = gin.Params{{Key: "id", Value: "f1"}}

	handler.CheckAccess(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PermissionRead, resolver.lastAction)

	var envelope struct {
		Data dto.AccessCheckResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Allowed[models.PermissionRead])
}

func TestFolderHandlerCheckAccessAllActions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	resolver := &accessResolverMock{resolveResp: &dto.AccessCheckResponse{
		FolderID: "f1",
		Allowed: map[models.PermissionType]bool{
			models.PermissionRead:   true,
			models.PermissionWrite:  false,
			models.PermissionDelete: false,
			models.PermissionManage: false,
		},
	}}
	handler := NewFolderHandler(&folderServiceMock{}, resolver)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/folders/f1/access", nil)
	c := testContext(w, req)
	c.Params = gin.Params{{Key: "id", Value: "f1"}}

	handler.CheckAccess(c)
	require.Equal(t, http.StatusOK, w.Code)
}
