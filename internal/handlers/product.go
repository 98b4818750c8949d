package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nutrilog/nutrilog-backend/internal/requestdata"
	"github.com/nutrilog/nutrilog-backend/internal/services"
)

type ProductHandler struct {
	productService services.ProductService
}

func NewProductHandler(productService services.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	var req struct {
		Name            string          `json:"name"`
		Brand           string          `json:"brand"`
		CaloriesPer100g decimal.Decimal `json:"calories_per_100g"`
		ProteinPer100g  decimal.Decimal `json:"protein_per_100g"`
		FatPer100g      decimal.Decimal `json:"fat_per_100g"`
		CarbsPer100g    decimal.Decimal `json:"carbs_per_100g"`
		Portions        []struct {
			Name        string          `json:"name"`
			WeightGrams decimal.Decimal `json:"weight_grams"`
		} `json:"portions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	input := services.CreateProductInput{
		Name:            req.Name,
		Brand:           req.Brand,
		CaloriesPer100g: req.CaloriesPer100g,
		ProteinPer100g:  req.ProteinPer100g,
		FatPer100g:      req.FatPer100g,
		CarbsPer100g:    req.CarbsPer100g,
	}
	for _, portion := range req.Portions {
		input.Portions = append(input.Portions, services.PortionInput{
			Name:        portion.Name,
			WeightGrams: portion.WeightGrams,
		})
	}
	product, err := h.productService.CreateProduct(c.Request.Context(), rd.UserID, input)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, product)
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	product, err := h.productService.GetProduct(c.Request.Context(), rd.UserID, productID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, product)
}

func (h *ProductHandler) ListProducts(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())

	input := services.ListProductsInput{
		Name:      c.Query("name"),
		PageAfter: c.Query("page_after"),
		Sort:      c.Query("sort"),
	}
	if raw := c.Query("page_size"); raw != "" {
		pageSize, err := strconv.Atoi(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_input", err)
			return
		}
		input.PageSize = pageSize
	}

	page, err := h.productService.ListProducts(c.Request.Context(), rd.UserID, input)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"products":    page.Products,
		"next_cursor": page.NextCursor,
	})
}
