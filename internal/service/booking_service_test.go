package service

import (
	"context"
	"database/sql"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
	"github.com/lingoria/school-ops-api/pkg/config"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
)

type mockBookingProducts struct {
	products map[string]*models.Product
}

func (m *mockBookingProducts) FindByID(ctx context.Context, id string) (*models.Product, error) {
	if p, ok := m.products[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

type mockBookingStudents struct {
	students map[string]*models.StudentDetail
}

func (m *mockBookingStudents) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockBookingEnrollments struct {
	enrolled bool
}

func (m *mockBookingEnrollments) HasActiveForProduct(ctx context.Context, studentID, productID string) (bool, error) {
	return m.enrolled, nil
}

type mockMatcher struct {
	candidates []models.TeacherCandidate
	lastReq    AvailabilityRequest
}

func (m *mockMatcher) AvailableForPrivateClass(ctx context.Context, req AvailabilityRequest) ([]models.TeacherCandidate, error) {
	m.lastReq = req
	return m.candidates, nil
}

func newBookingFixture() (*BookingService, *mockBookingProducts, *mockBookingEnrollments, *mockMatcher) {
	products := &mockBookingProducts{products: map[string]*models.Product{
		"p1": {
			ID: "p1", Name: "Private 1:1", Format: models.ProductFormatPrivate,
			Location: models.ProductLocationOnline, Active: true,
			CheckoutURL: "https://buy.stripe.example/private?locale=de",
		},
	}}
	students := &mockBookingStudents{students: map[string]*models.StudentDetail{
		"s1": {Student: models.Student{ID: "s1", Email: "ada@example.com", UnderSixteen: true}},
	}}
	enrollments := &mockBookingEnrollments{}
	matcher := &mockMatcher{candidates: []models.TeacherCandidate{{Teacher: models.Teacher{ID: "t1"}}}}
	svc := NewBookingService(products, students, enrollments, matcher, config.BookingConfig{}, nil, zap.NewNop())
	return svc, products, enrollments, matcher
}

func TestCheckEligibilityHappyPath(t *testing.T) {
	svc, _, _, matcher := newBookingFixture()

	result, err := svc.CheckEligibility(context.Background(), EligibilityRequest{
		StudentID: "s1", ProductID: "p1", DayOfWeek: "monday", DurationHours: 1,
	})
	require.NoError(t, err)
	assert.True(t, result.Eligible)
	require.Len(t, result.Teachers, 1)

	// Format and age come from the product and the student, not the caller.
	assert.Equal(t, "online", matcher.lastReq.Format)
	assert.True(t, matcher.lastReq.UnderSixteen)
}

func TestCheckEligibilityReasons(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*mockBookingProducts, *mockBookingEnrollments, *mockMatcher)
		reason string
	}{
		{
			name: "inactive product",
			setup: func(p *mockBookingProducts, e *mockBookingEnrollments, m *mockMatcher) {
				p.products["p1"].Active = false
			},
			reason: "product is not active",
		},
		{
			name: "group product",
			setup: func(p *mockBookingProducts, e *mockBookingEnrollments, m *mockMatcher) {
				p.products["p1"].Format = models.ProductFormatGroup
			},
			reason: "product is not a private class",
		},
		{
			name: "already enrolled",
			setup: func(p *mockBookingProducts, e *mockBookingEnrollments, m *mockMatcher) {
				e.enrolled = true
			},
			reason: "student already has an active enrollment for this product",
		},
		{
			name: "no teacher",
			setup: func(p *mockBookingProducts, e *mockBookingEnrollments, m *mockMatcher) {
				m.candidates = nil
			},
			reason: "no teacher available for the requested slot",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, products, enrollments, matcher := newBookingFixture()
			tc.setup(products, enrollments, matcher)

			result, err := svc.CheckEligibility(context.Background(), EligibilityRequest{
				StudentID: "s1", ProductID: "p1", DayOfWeek: "monday", DurationHours: 1,
			})
			require.NoError(t, err)
			assert.False(t, result.Eligible)
			assert.Equal(t, tc.reason, result.Reason)
		})
	}
}

func TestBuildCheckoutURLAppendsStudentParams(t *testing.T) {
	svc, _, _, _ := newBookingFixture()

	result, err := svc.BuildCheckoutURL(context.Background(), CheckoutURLRequest{StudentID: "s1", ProductID: "p1"})
	require.NoError(t, err)

	parsed, err := url.Parse(result.CheckoutURL)
	require.NoError(t, err)
	assert.Equal(t, "s1", parsed.Query().Get("client_reference_id"))
	assert.Equal(t, "ada@example.com", parsed.Query().Get("prefilled_email"))
	assert.Equal(t, "de", parsed.Query().Get("locale"))
}

func TestBuildCheckoutURLAppendsReturnURLs(t *testing.T) {
	svc, products, _, _ := newBookingFixture()
	svc.cfg = config.BookingConfig{
		CheckoutSuccessURL: "https://school.example/booking/thanks",
		CheckoutCancelURL:  "https://school.example/booking",
	}

	result, err := svc.BuildCheckoutURL(context.Background(), CheckoutURLRequest{StudentID: "s1", ProductID: "p1"})
	require.NoError(t, err)

	parsed, err := url.Parse(result.CheckoutURL)
	require.NoError(t, err)
	assert.Equal(t, "https://school.example/booking/thanks", parsed.Query().Get("success_url"))
	assert.Equal(t, "https://school.example/booking", parsed.Query().Get("cancel_url"))

	// Unconfigured return URLs leave the link untouched.
	products.products["p1"].CheckoutURL = "https://buy.stripe.example/private"
	bare := NewBookingService(products, &mockBookingStudents{students: map[string]*models.StudentDetail{
		"s1": {Student: models.Student{ID: "s1", Email: "ada@example.com"}},
	}}, &mockBookingEnrollments{}, &mockMatcher{}, config.BookingConfig{}, nil, zap.NewNop())
	result, err = bare.BuildCheckoutURL(context.Background(), CheckoutURLRequest{StudentID: "s1", ProductID: "p1"})
	require.NoError(t, err)
	parsed, err = url.Parse(result.CheckoutURL)
	require.NoError(t, err)
	assert.False(t, parsed.Query().Has("success_url"))
	assert.False(t, parsed.Query().Has("cancel_url"))
}

func TestBuildCheckoutURLRequiresConfiguredURL(t *testing.T) {
	svc, products, _, _ := newBookingFixture()
	products.products["p1"].CheckoutURL = ""

	_, err := svc.BuildCheckoutURL(context.Background(), CheckoutURLRequest{StudentID: "s1", ProductID: "p1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
