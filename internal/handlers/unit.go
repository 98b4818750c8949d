package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/nutrilog/nutrilog-backend/internal/services"
)

type UnitHandler struct {
	unitService services.UnitService
}

func NewUnitHandler(unitService services.UnitService) *UnitHandler {
	return &UnitHandler{unitService: unitService}
}

func (h *UnitHandler) CreateUnit(c *gin.Context) {
	var req struct {
		Code         string          `json:"code"`
		Name         string          `json:"name"`
		GramsPerUnit decimal.Decimal `json:"grams_per_unit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	unit, err := h.unitService.CreateUnit(c.Request.Context(), services.CreateUnitInput{
		Code:         req.Code,
		Name:         req.Name,
		GramsPerUnit: req.GramsPerUnit,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, unit)
}

func (h *UnitHandler) ListUnits(c *gin.Context) {
	units, err := h.unitService.ListUnits(c.Request.Context())
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"units": units})
}
