package handler

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zainab-hr/ProjetProduits/internal/auth/dto"
	"github.com/zainab-hr/ProjetProduits/internal/auth/service"
	"github.com/zainab-hr/ProjetProduits/pkg/response"
)

// AuthHandler handles authentication HTTP requests
type AuthHandler struct {
	authService service.AuthService
	tokens      service.TokenService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService service.AuthService, tokens service.TokenService) *AuthHandler {
	return &AuthHandler{authService: authService, tokens: tokens}
}

// Register handles user registration
// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, dto.FieldErrors(err))
		return
	}

	result, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			response.Conflict(c, "Username already exists")
			return
		}
		if errors.Is(err, service.ErrEmailTaken) {
			response.Conflict(c, "Email already exists")
			return
		}
		if errors.Is(err, service.ErrUnknownSegment) {
			response.ValidationFailed(c, map[string]string{
				"segment": "must be SEGMENT_A or SEGMENT_B",
			})
			return
		}
		response.InternalError(c)
		return
	}

	response.Created(c, "User registered successfully", result)
}

// Login handles user login
// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, dto.FieldErrors(err))
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Unauthorized(c, "Invalid username or password")
			return
		}
		response.InternalError(c)
		return
	}

	response.Success(c, "Login successful", result)
}

// Refresh handles refresh token rotation
// POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, dto.FieldErrors(err))
		return
	}

	result, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrTokenNotFound) || errors.Is(err, service.ErrTokenExpired) {
			response.Forbidden(c, "Invalid or expired refresh token")
			return
		}
		response.InternalError(c)
		return
	}

	response.Success(c, "Token refreshed successfully", result)
}

// Logout revokes the presented refresh token
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	var req dto.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, dto.FieldErrors(err))
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		response.InternalError(c)
		return
	}

	response.Success(c, "Logged out successfully", nil)
}

// Validate verifies the bearer token carried by the request
// GET /auth/validate
func (h *AuthHandler) Validate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		response.Unauthorized(c, "Missing authorization header")
		return
	}

	claims, err := h.tokens.Verify(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		response.Unauthorized(c, "Invalid or expired token")
		return
	}

	response.Success(c, "Token is valid", claims)
}

// DeleteByUsername removes a user account by username
// DELETE /auth/users/username/:username
func (h *AuthHandler) DeleteByUsername(c *gin.Context) {
	username := c.Param("username")

	if err := h.authService.DeleteByUsername(c.Request.Context(), username); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFound(c, "User not found")
			return
		}
		response.InternalError(c)
		return
	}

	response.Success(c, "User deleted successfully", nil)
}

// DeleteByEmail removes a user account by email
// DELETE /auth/users/email/:email
func (h *AuthHandler) DeleteByEmail(c *gin.Context) {
	email := c.Param("email")

	if err := h.authService.DeleteByEmail(c.Request.Context(), email); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFound(c, "User not found")
			return
		}
		response.InternalError(c)
		return
	}

	response.Success(c, "User deleted successfully", nil)
}

// RegisterRoutes mounts the auth endpoints on the router
func (h *AuthHandler) RegisterRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
		auth.GET("/validate", h.Validate)
		auth.DELETE("/users/username/:username", h.DeleteByUsername)
		auth.DELETE("/users/email/:email", h.DeleteByEmail)
	}
}
