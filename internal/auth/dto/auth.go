package dto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterRequest represents registration request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Segment  string `json:"segment" binding:"required"`
}

// LoginRequest represents login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshTokenRequest represents a refresh or logout request
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Segment  string `json:"segment"`
}

// AuthResponse is the token bundle returned by register, login and refresh
type AuthResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	TokenType    string       `json:"tokenType"`
	ExpiresIn    int64        `json:"expiresIn"`
	User         UserResponse `json:"user"`
}

// FieldErrors converts a gin binding error into a field→message map for the
// 400 response body. Non-validator errors map to a single "body" entry.
func FieldErrors(err error) map[string]string {
	fields := make(map[string]string)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["body"] = "Malformed request body"
		return fields
	}

	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			fields[name] = fmt.Sprintf("%s is required", name)
		case "email":
			fields[name] = "must be a valid email address"
		case "min":
			fields[name] = fmt.Sprintf("must be at least %s characters", fe.Param())
		case "max":
			fields[name] = fmt.Sprintf("must be at most %s characters", fe.Param())
		default:
			fields[name] = fmt.Sprintf("failed %s validation", fe.Tag())
		}
	}
	return fields
}
