package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lingoria/school-ops-api/internal/models"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
)

type levelReadRepository interface {
	List(ctx context.Context) ([]models.LanguageLevel, error)
	FindByID(ctx context.Context, id string) (*models.LanguageLevel, error)
}

type productRepository interface {
	List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int, error)
	FindByID(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
}

// CatalogService serves the reference catalog: language levels and products.
type CatalogService struct {
	levels    levelReadRepository
	products  productRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService creates a catalog service.
func NewCatalogService(levels levelReadRepository, products productRepository, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{levels: levels, products: products, validator: validate, logger: logger}
}

// SaveProductRequest is the product create/update payload.
type SaveProductRequest struct {
	Name               string  `json:"name" validate:"required,min=2,max=200"`
	Format             string  `json:"format" validate:"required,oneof=group private"`
	Location           string  `json:"location" validate:"required,oneof=online in_person"`
	CheckoutURL        string  `json:"checkout_url" validate:"required,url"`
	ContractTemplateID *string `json:"contract_template_id,omitempty"`
	Active             bool    `json:"active"`
}

// ProductListRequest describes product listing filters.
type ProductListRequest struct {
	Format   string `json:"format"`
	Location string `json:"location"`
	Active   *bool  `json:"active,omitempty"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// ListLevels returns the seeded language levels ordered by sort_order.
func (s *CatalogService) ListLevels(ctx context.Context) ([]models.LanguageLevel, error) {
	levels, err := s.levels.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list levels")
	}
	return levels, nil
}

// ListProducts returns products matching the filter.
func (s *CatalogService) ListProducts(ctx context.Context, req ProductListRequest) ([]models.Product, *models.Pagination, error) {
	filter := models.ProductFilter{
		Format:   models.ProductFormat(req.Format),
		Location: models.ProductLocation(req.Location),
		Active:   req.Active,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if filter.Format != "" && !filter.Format.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown product format")
	}
	if filter.Location != "" && !filter.Location.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown product location")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list products")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return rows, pagination, nil
}

// GetProduct returns one product by ID.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get product")
	}
	return product, nil
}

// CreateProduct registers a new sellable offering.
func (s *CatalogService) CreateProduct(ctx context.Context, req SaveProductRequest) (*models.Product, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	product := &models.Product{
		Name:               strings.TrimSpace(req.Name),
		Format:             models.ProductFormat(req.Format),
		Location:           models.ProductLocation(req.Location),
		CheckoutURL:        req.CheckoutURL,
		ContractTemplateID: req.ContractTemplateID,
		Active:             req.Active,
	}
	if err := s.products.Create(ctx, product); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create product")
	}
	s.logger.Info("product created", zap.String("product_id", product.ID), zap.String("format", req.Format))
	return product, nil
}

// UpdateProduct modifies an existing product.
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, req SaveProductRequest) (*models.Product, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	product.Name = strings.TrimSpace(req.Name)
	product.Format = models.ProductFormat(req.Format)
	product.Location = models.ProductLocation(req.Location)
	product.CheckoutURL = req.CheckoutURL
	product.ContractTemplateID = req.ContractTemplateID
	product.Active = req.Active
	if err := s.products.Update(ctx, product); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update product")
	}
	return product, nil
}
