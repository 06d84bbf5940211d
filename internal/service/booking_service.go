package service

import (
	"context"
	"database/sql"
	"net/url"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
	"github.com/lingoria/school-ops-api/pkg/config"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
)

type bookingProductReader interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
}

type bookingStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type bookingEnrollmentReader interface {
	HasActiveForProduct(ctx context.Context, studentID, productID string) (bool, error)
}

type availabilityMatcher interface {
	AvailableForPrivateClass(ctx context.Context, req AvailabilityRequest) ([]models.TeacherCandidate, error)
}

// BookingService checks private-class booking eligibility and constructs
// checkout URLs. Payment itself happens on Stripe's side; this service only
// assembles the link.
type BookingService struct {
	products    bookingProductReader
	students    bookingStudentReader
	enrollments bookingEnrollmentReader
	matcher     availabilityMatcher
	cfg         config.BookingConfig
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewBookingService constructs the service.
func NewBookingService(
	products bookingProductReader,
	students bookingStudentReader,
	enrollments bookingEnrollmentReader,
	matcher availabilityMatcher,
	cfg config.BookingConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		products:    products,
		students:    students,
		enrollments: enrollments,
		matcher:     matcher,
		cfg:         cfg,
		validator:   validate,
		logger:      logger,
	}
}

// EligibilityRequest asks whether a student can book a private class.
type EligibilityRequest struct {
	StudentID     string  `json:"student_id" validate:"required"`
	ProductID     string  `json:"product_id" validate:"required"`
	DayOfWeek     string  `json:"day_of_week" validate:"required"`
	DurationHours float64 `json:"duration_hours" validate:"required,gt=0,lte=8"`
}

// EligibilityResult is the matcher verdict plus candidate teachers.
type EligibilityResult struct {
	Eligible bool                      `json:"eligible"`
	Reason   string                    `json:"reason,omitempty"`
	Teachers []models.TeacherCandidate `json:"teachers,omitempty"`
}

// CheckoutURLRequest asks for a ready-to-use checkout link.
type CheckoutURLRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	ProductID string `json:"product_id" validate:"required"`
}

// CheckoutURLResult carries the constructed link.
type CheckoutURLResult struct {
	CheckoutURL string `json:"checkout_url"`
}

// CheckEligibility verifies the product is bookable, the student is not
// already enrolled for it, and at least one teacher can take the slot.
func (s *BookingService) CheckEligibility(ctx context.Context, req EligibilityRequest) (*EligibilityResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	product, err := s.getProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return &EligibilityResult{Eligible: false, Reason: "product is not active"}, nil
	}
	if product.Format != models.ProductFormatPrivate {
		return &EligibilityResult{Eligible: false, Reason: "product is not a private class"}, nil
	}

	student, err := s.getStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.enrollments.HasActiveForProduct(ctx, req.StudentID, req.ProductID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollments")
	}
	if enrolled {
		return &EligibilityResult{Eligible: false, Reason: "student already has an active enrollment for this product"}, nil
	}

	candidates, err := s.matcher.AvailableForPrivateClass(ctx, AvailabilityRequest{
		DayOfWeek:     req.DayOfWeek,
		Format:        string(product.Location),
		DurationHours: req.DurationHours,
		UnderSixteen:  student.UnderSixteen,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &EligibilityResult{Eligible: false, Reason: "no teacher available for the requested slot"}, nil
	}

	return &EligibilityResult{Eligible: true, Teachers: candidates}, nil
}

// BuildCheckoutURL appends the student reference and prefilled email to the
// product's checkout base URL. No payment API is called.
func (s *BookingService) BuildCheckoutURL(ctx context.Context, req CheckoutURLRequest) (*CheckoutURLResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	product, err := s.getProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product.CheckoutURL == "" {
		return nil, appErrors.Clone(appErrors.ErrConflict, "product has no checkout URL configured")
	}
	student, err := s.getStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	parsed, err := url.Parse(product.CheckoutURL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "product checkout URL is malformed")
	}
	query := parsed.Query()
	query.Set("client_reference_id", student.ID)
	query.Set("prefilled_email", student.Email)
	if s.cfg.CheckoutSuccessURL != "" {
		query.Set("success_url", s.cfg.CheckoutSuccessURL)
	}
	if s.cfg.CheckoutCancelURL != "" {
		query.Set("cancel_url", s.cfg.CheckoutCancelURL)
	}
	parsed.RawQuery = query.Encode()

	return &CheckoutURLResult{CheckoutURL: parsed.String()}, nil
}

func (s *BookingService) getProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get product")
	}
	return product, nil
}

func (s *BookingService) getStudent(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get student")
	}
	return student, nil
}
