package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docnest/docnest-api/internal/dto"
	"github.com/docnest/docnest-api/internal/models"
	"github.com/docnest/docnest-api/internal/repository"
	appErrors "github.com/docnest/docnest-api/pkg/errors"
	"github.com/docnest/docnest-api/pkg/jobs"
)

type reportJobStoreStub struct {
	jobs       map[string]*models.ReportJob
	created    []*models.ReportJob
	updates    []repository.UpdateReportJobParams
	createErr  error
	enqueueErr error
}

func (s *reportJobStoreStub) Create(ctx context.Context, job *models.ReportJob) error {
	if s.createErr != nil {
		return s.createErr
	}
	job.ID = "job-1"
	s.created = append(s.created, job)
	return nil
}

func (s *reportJobStoreStub) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	if job, ok := s.jobs[id]; ok {
		return job, nil
	}
	return nil, sql.ErrNoRows
}

func (s *reportJobStoreStub) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	s.updates = append(s.updates, params)
	return nil
}

func (s *reportJobStoreStub) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	return nil, nil
}

func (s *reportJobStoreStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	return nil, nil
}

type queueStub struct {
	enqueued []jobs.Job
	err      error
}

func (s *queueStub) Enqueue(job jobs.Job) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, job)
	return nil
}

func TestReportServiceCreateJobRequiresManage(t *testing.T) {
	store := &reportJobStoreStub{}
	queue := &queueStub{}
	access := &accessCheckerStub{allow: map[string]bool{}}
	svc := NewReportService(store, access, queue, nil, nil, ReportServiceConfig{})

	_, err := svc.CreateJob(context.Background(), dto.ReportRequest{
		Type:     models.ReportTypePermissions,
		FolderID: "f1",
		Format:   models.ReportFormatCSV,
	}, "u1", models.RoleMember)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Empty(t, queue.enqueued)
}

func TestReportServiceCreateJobEnqueues(t *testing.T) {
	store := &reportJobStoreStub{}
	queue := &queueStub{}
	access := &accessCheckerStub{allow: map[string]bool{"f1:manage": true}}
	svc := NewReportService(store, access, queue, nil, nil, ReportServiceConfig{})

	resp, err := svc.CreateJob(context.Background(), dto.ReportRequest{
		Type:     models.ReportTypeInventory,
		FolderID: "f1",
		Format:   models.ReportFormatPDF,
	}, "u1", models.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.ID)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)
	require.Len(t, queue.enqueued, 1)
	require.Len(t, store.created, 1)
	assert.Equal(t, "f1", store.created[0].Params.FolderID)
}

func TestReportServiceCreateJobRejectsUnknownType(t *testing.T) {
	svc := NewReportService(&reportJobStoreStub{}, &accessCheckerStub{}, &queueStub{}, nil, nil, ReportServiceConfig{})

	_, err := svc.CreateJob(context.Background(), dto.ReportRequest{
		Type:     models.ReportType("attendance"),
		FolderID: "f1",
		Format:   models.ReportFormatCSV,
	}, "u1", models.RoleAdmin)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestReportServiceGetStatusOwnership(t *testing.T) {
	store := &reportJobStoreStub{jobs: map[string]*models.ReportJob{
		"job-1": {ID: "job-1", Status: models.ReportStatusFinished, Progress: 100, CreatedBy: "u1"},
	}}
	svc := NewReportService(store, &accessCheckerStub{}, &queueStub{}, nil, nil, ReportServiceConfig{})

	resp, err := svc.GetStatus(context.Background(), "job-1", "u1", models.RoleMember)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, resp.Status)

	_, err = svc.GetStatus(context.Background(), "job-1", "u2", models.RoleMember)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	resp, err = svc.GetStatus(context.Background(), "job-1", "u2", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 100, resp.Progress)
}
