package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutrilog/nutrilog-backend/internal/services"
)

var errInvalidCredentials = errors.New("invalid email or password")

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (ah *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	user, tokens, err := ah.authService.Register(c.Request.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, gin.H{
		"user":          user,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	})
}

func (ah *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	user, tokens, err := ah.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		// Credential failures read as 401 at the HTTP boundary.
		RespondError(c, http.StatusUnauthorized, "unauthorized", errInvalidCredentials)
		return
	}
	RespondOK(c, gin.H{
		"user":          user,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	})
}

func (ah *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	tokens, err := ah.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errInvalidCredentials)
		return
	}
	RespondOK(c, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
	})
}
