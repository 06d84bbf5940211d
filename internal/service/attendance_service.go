package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
	"github.com/lingoria/school-ops-api/pkg/export"
)

type attendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, int, error)
	ListForExport(ctx context.Context, cohortID string, from, to *time.Time) ([]models.AttendanceRecordDetail, error)
	UpsertBatch(ctx context.Context, records []*models.AttendanceRecord) error
	Summary(ctx context.Context, cohortID string) ([]models.AttendanceSummary, error)
}

type attendanceCohortReader interface {
	FindByID(ctx context.Context, id string) (*models.CohortDetail, error)
}

type attendanceEnrollmentReader interface {
	ListActiveStudentIDs(ctx context.Context, cohortID string) ([]string, error)
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
}

type exportSigner interface {
	Generate(exportID, relPath string) (string, time.Time, error)
}

// AttendanceService records roster marks and produces attendance sheets.
type AttendanceService struct {
	repo        attendanceRepository
	cohorts     attendanceCohortReader
	enrollments attendanceEnrollmentReader
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	storage     exportStorage
	signer      exportSigner
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAttendanceService constructs the service.
func NewAttendanceService(
	repo attendanceRepository,
	cohorts attendanceCohortReader,
	enrollments attendanceEnrollmentReader,
	csv *export.CSVExporter,
	pdf *export.PDFExporter,
	storage exportStorage,
	signer exportSigner,
	validate *validator.Validate,
	logger *zap.Logger,
) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:        repo,
		cohorts:     cohorts,
		enrollments: enrollments,
		csv:         csv,
		pdf:         pdf,
		storage:     storage,
		signer:      signer,
		validator:   validate,
		logger:      logger,
	}
}

// AttendanceListRequest describes filters for listing records.
type AttendanceListRequest struct {
	CohortID  string     `json:"cohort_id"`
	ClassID   string     `json:"class_id"`
	StudentID string     `json:"student_id"`
	Status    string     `json:"status"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
}

// BulkMarkRequest upserts a class roster's marks in one call.
type BulkMarkRequest struct {
	CohortID string                  `json:"cohort_id" validate:"required"`
	ClassID  *string                 `json:"class_id"`
	Date     string                  `json:"date" validate:"required,datetime=2006-01-02"`
	MarkedBy *string                 `json:"marked_by"`
	Marks    []models.AttendanceMark `json:"marks" validate:"required,min=1,dive"`
}

// ExportRequest asks for an attendance sheet.
type ExportRequest struct {
	CohortID string     `json:"cohort_id" validate:"required"`
	Format   string     `json:"format" validate:"required,oneof=csv pdf"`
	DateFrom *time.Time `json:"date_from"`
	DateTo   *time.Time `json:"date_to"`
}

// ExportResult points at the rendered sheet via a signed download URL.
type ExportResult struct {
	ExportID  string    `json:"export_id"`
	Filename  string    `json:"filename"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// List returns attendance records with pagination.
func (s *AttendanceService) List(ctx context.Context, req AttendanceListRequest) ([]models.AttendanceRecordDetail, *models.Pagination, error) {
	filter := models.AttendanceFilter{
		CohortID:  req.CohortID,
		ClassID:   req.ClassID,
		StudentID: req.StudentID,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	if req.Status != "" {
		status := models.AttendanceStatus(req.Status)
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown attendance status")
		}
		filter.Status = &status
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// BulkMark upserts the marks for a roster. A repeated mark for the same
// student and date overwrites the previous one.
func (s *AttendanceService) BulkMark(ctx context.Context, req BulkMarkRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if _, err := s.getCohort(ctx, req.CohortID); err != nil {
		return 0, err
	}
	date, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}

	enrolledIDs, err := s.enrollments.ListActiveStudentIDs(ctx, req.CohortID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cohort roster")
	}
	roster := make(map[string]struct{}, len(enrolledIDs))
	for _, id := range enrolledIDs {
		roster[id] = struct{}{}
	}

	records := make([]*models.AttendanceRecord, 0, len(req.Marks))
	for _, mark := range req.Marks {
		if mark.StudentID == "" {
			return 0, appErrors.Clone(appErrors.ErrValidation, "every mark needs a student_id")
		}
		if _, ok := roster[mark.StudentID]; !ok {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not enrolled in this cohort", mark.StudentID))
		}
		if !mark.Status.Valid() {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown attendance status %q", mark.Status))
		}
		records = append(records, &models.AttendanceRecord{
			StudentID: mark.StudentID,
			CohortID:  req.CohortID,
			ClassID:   req.ClassID,
			Status:    mark.Status,
			MarkedBy:  req.MarkedBy,
			Date:      date,
		})
	}

	if err := s.repo.UpsertBatch(ctx, records); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
	}
	s.logger.Info("attendance marked",
		zap.String("cohort_id", req.CohortID),
		zap.Int("records", len(records)))
	return len(records), nil
}

// Summary aggregates per-student counts and percentages for a cohort.
func (s *AttendanceService) Summary(ctx context.Context, cohortID string) ([]models.AttendanceSummary, error) {
	if _, err := s.getCohort(ctx, cohortID); err != nil {
		return nil, err
	}
	summaries, err := s.repo.Summary(ctx, cohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build summary")
	}
	for i := range summaries {
		marked := summaries[i].Attended + summaries[i].NotAttended
		if marked > 0 {
			summaries[i].Percent = float64(summaries[i].Attended) / float64(marked) * 100
		}
	}
	return summaries, nil
}

// Export renders the cohort's attendance sheet as CSV or PDF, stores it and
// returns a signed download token.
func (s *AttendanceService) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	cohort, err := s.getCohort(ctx, req.CohortID)
	if err != nil {
		return nil, err
	}

	records, err := s.repo.ListForExport(ctx, req.CohortID, req.DateFrom, req.DateTo)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	dataset := export.Dataset{
		Headers: []string{"Date", "Student", "Email", "Status", "Marked By"},
		Rows:    make([]map[string]string, 0, len(records)),
	}
	for _, record := range records {
		markedBy := ""
		if record.MarkedBy != nil {
			markedBy = *record.MarkedBy
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":      record.Date.Format("2006-01-02"),
			"Student":   record.StudentName,
			"Email":     record.StudentEmail,
			"Status":    string(record.Status),
			"Marked By": markedBy,
		})
	}

	exportID := uuid.NewString()
	var payload []byte
	filename := fmt.Sprintf("attendance_%s_%s.%s", cohort.ID, time.Now().UTC().Format("20060102T150405"), req.Format)
	switch req.Format {
	case "csv":
		payload, err = s.csv.Render(dataset)
	case "pdf":
		title := fmt.Sprintf("Attendance - %s", cohort.ProductName)
		payload, err = s.pdf.Render(dataset, title)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	if _, err := s.storage.Save(filename, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(exportID, filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export URL")
	}

	s.logger.Info("attendance sheet exported",
		zap.String("cohort_id", req.CohortID),
		zap.String("format", req.Format),
		zap.Int("rows", len(records)))
	return &ExportResult{ExportID: exportID, Filename: filename, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *AttendanceService) getCohort(ctx context.Context, id string) (*models.CohortDetail, error) {
	cohort, err := s.cohorts.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cohort not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get cohort")
	}
	return cohort, nil
}
