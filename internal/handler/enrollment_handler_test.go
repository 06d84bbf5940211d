package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
	"github.com/lingoria/school-ops-api/internal/service"
	"github.com/lingoria/school-ops-api/pkg/response"
	"github.com/lingoria/school-ops-api/pkg/webhook"
)

type enrollmentRepoStub struct {
	detail *models.EnrollmentDetail
}

func (s *enrollmentRepoStub) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (s *enrollmentRepoStub) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if s.detail != nil && s.detail.ID == id {
		return s.detail, nil
	}
	return nil, sql.ErrNoRows
}

func (s *enrollmentRepoStub) FindActiveByStudentCohort(ctx context.Context, studentID, cohortID string) (*models.Enrollment, error) {
	return nil, sql.ErrNoRows
}

func (s *enrollmentRepoStub) Create(ctx context.Context, enrollment *models.Enrollment) error {
	return nil
}

func (s *enrollmentRepoStub) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	s.detail.Status = status
	return nil
}

func (s *enrollmentRepoStub) UpdateNotes(ctx context.Context, id string, notes string) error {
	return nil
}

func (s *enrollmentRepoStub) ListStalledInStatus(ctx context.Context, status models.EnrollmentStatus, before time.Time) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

type studentReaderStub struct{}

func (studentReaderStub) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	return nil, sql.ErrNoRows
}

type cohortReaderStub struct{}

func (cohortReaderStub) FindByID(ctx context.Context, id string) (*models.CohortDetail, error) {
	return nil, sql.ErrNoRows
}

type dispatcherStub struct{}

func (dispatcherStub) EnqueueAbandonedEnrollment(payload webhook.AbandonedEnrollmentPayload) error {
	return nil
}

func newEnrollmentHandler(detail *models.EnrollmentDetail) *EnrollmentHandler {
	svc := service.NewEnrollmentService(&enrollmentRepoStub{detail: detail},
		studentReaderStub{}, cohortReaderStub{}, dispatcherStub{}, nil, zap.NewNop())
	return NewEnrollmentHandler(svc)
}

func TestEnrollmentHandlerTransitionInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newEnrollmentHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/enrollments/e1/transition", bytes.NewReader([]byte(`invalid`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "e1"}}

	handler.Transition(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrollmentHandlerTransitionConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newEnrollmentHandler(&models.EnrollmentDetail{
		Enrollment: models.Enrollment{ID: "e1", Status: models.EnrollmentInterested},
	})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(service.TransitionRequest{Status: "paid"})
	req, _ := http.NewRequest(http.MethodPost, "/enrollments/e1/transition", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "e1"}}

	handler.Transition(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.False(t, envelope.Success)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_TRANSITION", envelope.Error.Code)
}

func TestEnrollmentHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newEnrollmentHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/enrollments/missing", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
