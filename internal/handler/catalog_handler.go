package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lingoria/school-ops-api/internal/service"
	appErrors "github.com/lingoria/school-ops-api/pkg/errors"
	"github.com/lingoria/school-ops-api/pkg/response"
)

// CatalogHandler exposes language level and product endpoints.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListLevels godoc
// @Summary List language levels
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /levels [get]
func (h *CatalogHandler) ListLevels(c *gin.Context) {
	levels, err := h.catalog.ListLevels(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, levels, nil)
}

// ListProducts godoc
// @Summary List products
// @Tags Catalog
// @Produce json
// @Param format query string false "group or private"
// @Param location query string false "online or in_person"
// @Param active query bool false "Filter by active state"
// @Success 200 {object} response.Envelope
// @Router /products [get]
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	req := service.ProductListRequest{
		Format:   c.Query("format"),
		Location: c.Query("location"),
	}
	if active := c.Query("active"); active != "" {
		v := active == "true"
		req.Active = &v
	}
	req.Page, req.PageSize = pageParams(c)

	products, pagination, err := h.catalog.ListProducts(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, products, pagination)
}

// GetProduct godoc
// @Summary Get product
// @Tags Catalog
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} response.Envelope
// @Router /products/{id} [get]
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, product, nil)
}

// CreateProduct godoc
// @Summary Create product
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body service.SaveProductRequest true "Product payload"
// @Success 201 {object} response.Envelope
// @Router /products [post]
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req service.SaveProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	product, err := h.catalog.CreateProduct(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, product)
}

// UpdateProduct godoc
// @Summary Update product
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param payload body service.SaveProductRequest true "Product payload"
// @Success 200 {object} response.Envelope
// @Router /products/{id} [put]
func (h *CatalogHandler) UpdateProduct(c *gin.Context) {
	var req service.SaveProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	product, err := h.catalog.UpdateProduct(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, product, nil)
}
