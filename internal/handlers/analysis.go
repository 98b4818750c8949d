package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nutrilog/nutrilog-backend/internal/requestdata"
	"github.com/nutrilog/nutrilog-backend/internal/services"
	"github.com/nutrilog/nutrilog-backend/internal/types"
)

type AnalysisHandler struct {
	analysisService services.AnalysisService
}

func NewAnalysisHandler(analysisService services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analysisService: analysisService}
}

func (h *AnalysisHandler) CreateRun(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	var req struct {
		MealID    *uuid.UUID       `json:"meal_id"`
		InputText string           `json:"input_text"`
		Threshold *decimal.Decimal `json:"threshold"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	run, err := h.analysisService.CreateRun(c.Request.Context(), rd.UserID, services.CreateRunInput{
		MealID:    req.MealID,
		InputText: req.InputText,
		Threshold: req.Threshold,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, run)
}

func (h *AnalysisHandler) RetryRun(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	var req struct {
		InputText string           `json:"input_text"`
		Threshold *decimal.Decimal `json:"threshold"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_input", err)
			return
		}
	}
	run, err := h.analysisService.RetryRun(c.Request.Context(), rd.UserID, runID, services.RetryRunInput{
		InputText: req.InputText,
		Threshold: req.Threshold,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, run)
}

func (h *AnalysisHandler) CancelRun(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	run, err := h.analysisService.CancelRun(c.Request.Context(), rd.UserID, runID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	// Cancellation is when the run completed; surfaced under both names.
	RespondOK(c, cancelledRunResponse{AnalysisRun: run, CancelledAt: run.CompletedAt})
}

type cancelledRunResponse struct {
	*types.AnalysisRun
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

func (h *AnalysisHandler) GetRun(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	run, err := h.analysisService.GetRun(c.Request.Context(), rd.UserID, runID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, run)
}

func (h *AnalysisHandler) GetRunItems(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	items, err := h.analysisService.GetRunItems(c.Request.Context(), rd.UserID, runID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"items": items})
}

func (h *AnalysisHandler) ListRuns(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())

	input := services.ListRunsInput{
		Status:    c.Query("status"),
		PageAfter: c.Query("page_after"),
		Sort:      c.Query("sort"),
	}
	if raw := c.Query("meal_id"); raw != "" {
		mealID, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_input", err)
			return
		}
		input.MealID = &mealID
	}
	if raw := c.Query("page_size"); raw != "" {
		pageSize, err := strconv.Atoi(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_input", err)
			return
		}
		input.PageSize = pageSize
	}
	if raw := c.Query("created_from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_input", err)
			return
		}
		input.CreatedFrom = &t
	}
	if raw := c.Query("created_to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_input", err)
			return
		}
		input.CreatedTo = &t
	}

	page, err := h.analysisService.ListRuns(c.Request.Context(), rd.UserID, input)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"runs":        page.Runs,
		"next_cursor": page.NextCursor,
	})
}
