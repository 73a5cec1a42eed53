package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docnest/docnest-api/internal/dto"
	"github.com/docnest/docnest-api/internal/models"
	"github.com/docnest/docnest-api/pkg/export"
	"github.com/docnest/docnest-api/pkg/storage"
)

type exportGrantSource interface {
	ListActiveByFolderSubtree(ctx context.Context, folderIDs []string) ([]models.PermissionGrantDetail, error)
}

type exportFolderSource interface {
	SubtreeSummary(ctx context.Context, folderIDs []string) ([]dto.FolderSummaryRow, error)
}

type subtreeCollector interface {
	CollectSubtree(ctx context.Context, folderID string) ([]string, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets over folder subtrees and persists the
// rendered files. Authorization happens at enqueue time; by the time a job
// reaches this service it is already cleared.
type ExportService struct {
	grants  exportGrantSource
	folders exportFolderSource
	walker  subtreeCollector
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService constructs an ExportService.
func NewExportService(grants exportGrantSource, folders exportFolderSource, walker subtreeCollector, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		grants:  grants,
		folders: folders,
		walker:  walker,
		storage: storage,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate builds the dataset according to the job definition and stores the
// rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/reports/download?token=%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	folderPart := sanitizeFilename(job.Params.FolderID)
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), folderPart, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypePermissions:
		return s.buildPermissionsDataset(ctx, job.Params)
	case models.ReportTypeInventory:
		return s.buildInventoryDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

// buildPermissionsDataset lists every active grant in the folder subtree.
func (s *ExportService) buildPermissionsDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	folderIDs, err := s.walker.CollectSubtree(ctx, params.FolderID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	grants, err := s.grants.ListActiveByFolderSubtree(ctx, folderIDs)
	if err != nil {
		return export.Dataset{}, "", err
	}

	dataRows := make([]map[string]string, 0, len(grants))
	for _, grant := range grants {
		subjectType, subject := "user", deref(grant.UserName)
		if grant.DepartmentID != nil {
			subjectType, subject = "department", deref(grant.DepartmentName)
		}
		dataRows = append(dataRows, map[string]string{
			"Folder ID":    grant.FolderID,
			"Subject Type": subjectType,
			"Subject":      subject,
			"Permission":   string(grant.PermissionType),
			"Granted By":   grant.GrantedBy,
			"Granted At":   grant.GrantedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Folder ID", "Subject Type", "Subject", "Permission", "Granted By", "Granted At"},
		Rows:    dataRows,
	}
	title := fmt.Sprintf("Permission Report %s", params.FolderID)
	return dataset, title, nil
}

// buildInventoryDataset lists folders and document counts in the subtree.
func (s *ExportService) buildInventoryDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	folderIDs, err := s.walker.CollectSubtree(ctx, params.FolderID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows, err := s.folders.SubtreeSummary(ctx, folderIDs)
	if err != nil {
		return export.Dataset{}, "", err
	}

	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, map[string]string{
			"Folder ID":    row.FolderID,
			"Folder Name":  row.FolderName,
			"Parent ID":    deref(row.ParentID),
			"Owner Email":  row.OwnerEmail,
			"Access Level": row.AccessLevel,
			"Documents":    fmt.Sprintf("%d", row.DocumentCount),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Folder ID", "Folder Name", "Parent ID", "Owner Email", "Access Level", "Documents"},
		Rows:    dataRows,
	}
	title := fmt.Sprintf("Inventory Report %s", params.FolderID)
	return dataset, title, nil
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
