package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nutrilog/nutrilog-backend/internal/requestdata"
	"github.com/nutrilog/nutrilog-backend/internal/services"
)

type MealHandler struct {
	mealService services.MealService
}

func NewMealHandler(mealService services.MealService) *MealHandler {
	return &MealHandler{mealService: mealService}
}

func (h *MealHandler) CreateMeal(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	var req struct {
		Name  string     `json:"name"`
		Notes string     `json:"notes"`
		AteAt *time.Time `json:"ate_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	input := services.CreateMealInput{Name: req.Name, Notes: req.Notes}
	if req.AteAt != nil {
		input.AteAt = *req.AteAt
	}
	meal, err := h.mealService.CreateMeal(c.Request.Context(), rd.UserID, input)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, meal)
}

func (h *MealHandler) GetMeal(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	mealID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	meal, err := h.mealService.GetMeal(c.Request.Context(), rd.UserID, mealID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, meal)
}

func (h *MealHandler) ListMeals(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())

	input := services.ListMealsInput{
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
	if raw := c.Query("ate_from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_input", err)
			return
		}
		input.AteFrom = &t
	}
	if raw := c.Query("ate_to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_input", err)
			return
		}
		input.AteTo = &t
	}

	page, err := h.mealService.ListMeals(c.Request.Context(), rd.UserID, input)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"meals":       page.Meals,
		"next_cursor": page.NextCursor,
	})
}

func (h *MealHandler) DeleteMeal(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	mealID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	if err := h.mealService.DeleteMeal(c.Request.Context(), rd.UserID, mealID); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
