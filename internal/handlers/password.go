package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kestrelsec/kestrel/internal/auth"
	"github.com/kestrelsec/kestrel/internal/models"
	pkghttp "github.com/kestrelsec/kestrel/pkg/http"
)

// PasswordServiceInterface defines the interface for password lifecycle logic
type PasswordServiceInterface interface {
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ipAddress string) error
}

// PasswordResetServiceInterface defines the interface for the reset flow
type PasswordResetServiceInterface interface {
	RequestReset(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) (string, error)
	ResetPassword(ctx context.Context, email, token, newPassword string) error
}

// PasswordHandler handles password lifecycle HTTP requests
type PasswordHandler struct {
	passwords PasswordServiceInterface
	resets    PasswordResetServiceInterface
	ipConfig  *pkghttp.IPConfig
}

// NewPasswordHandler creates a new PasswordHandler
func NewPasswordHandler(passwords PasswordServiceInterface, resets PasswordResetServiceInterface, ipConfig *pkghttp.IPConfig) *PasswordHandler {
	return &PasswordHandler{
		passwords: passwords,
		resets:    resets,
		ipConfig:  ipConfig,
	}
}

// Request DTOs

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// ForgotPasswordRequest represents the request body for a reset request
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyResetCodeRequest represents the request body for code verification
type VerifyResetCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// ResetPasswordRequest represents the request body for the final reset stage
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// ChangePassword handles an authenticated password change
// @Summary Change password
// @Accept json
// @Security BearerAuth
// @Param request body ChangePasswordRequest true "Change password request"
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/change-password [put]
func (h *PasswordHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangePasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	err := h.passwords.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword, ipAddress)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			pkghttp.WriteBadRequest(w, "Current password is incorrect")
		case errors.Is(err, models.ErrSamePassword):
			pkghttp.WriteBadRequest(w, "New password must be different from current password")
		case errors.Is(err, models.ErrPasswordReused):
			pkghttp.WriteBadRequest(w, "Cannot reuse a recent password")
		case models.IsPolicyViolation(err):
			pkghttp.WriteBadRequest(w, err.Error())
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteUnauthorized(w, "unauthorized")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Password updated successfully",
	})
}

// ForgotPassword handles a reset-code request
// @Summary Request password reset code
// @Accept json
// @Param request body ForgotPasswordRequest true "Forgot password request"
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /auth/forgot-password [post]
func (h *PasswordHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	err := h.resets.RequestReset(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteBadRequest(w, "Email not found")
		case errors.Is(err, models.ErrDeliveryFailed):
			// The code was issued and stays live; the caller may retry
			// delivery. The code itself is never echoed back.
			pkghttp.WriteError(w, http.StatusServiceUnavailable, "delivery_failed",
				"Failed to send the reset code. Please try again.")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Verification code sent to your email",
	})
}

// VerifyResetCode handles reset-code verification
// @Summary Verify password reset code
// @Accept json
// @Param request body VerifyResetCodeRequest true "Verify reset code request"
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /auth/verify-reset-code [post]
func (h *PasswordHandler) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyResetCodeRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	token, err := h.resets.VerifyCode(r.Context(), req.Email, req.Code)
	if err != nil {
		if errors.Is(err, models.ErrResetInvalidOrExpired) {
			pkghttp.WriteBadRequest(w, "Invalid or expired code")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Code verified",
		"token":   token,
	})
}

// ResetPassword handles the final reset stage
// @Summary Reset password with token
// @Accept json
// @Param request body ResetPasswordRequest true "Reset password request"
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /auth/reset-password [post]
func (h *PasswordHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	err := h.resets.ResetPassword(r.Context(), req.Email, req.Token, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrResetInvalidOrExpired):
			pkghttp.WriteBadRequest(w, "Invalid or expired reset token")
		case errors.Is(err, models.ErrPasswordReused):
			pkghttp.WriteBadRequest(w, "Cannot reuse a recent password")
		case models.IsPolicyViolation(err):
			pkghttp.WriteBadRequest(w, err.Error())
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteBadRequest(w, "Invalid or expired reset token")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successful",
	})
}
