package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nortide/identity/internal/domain"
	"github.com/nortide/identity/internal/service"
	"github.com/nortide/identity/pkg/middleware"
)

// AuthHandler handles HTTP requests for the authentication flows.
type AuthHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// TOTPRegisterInitRequest is the JSON request body for starting a TOTP registration.
type TOTPRegisterInitRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,min=1,max=200"`
}

// TOTPRegisterCompleteRequest is the JSON request body for completing a TOTP registration.
type TOTPRegisterCompleteRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Code   string `json:"code" validate:"required,len=6,numeric"`
}

// TOTPLoginInitRequest is the JSON request body for starting a TOTP login.
type TOTPLoginInitRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// TOTPLoginCompleteRequest is the JSON request body for completing a TOTP login.
type TOTPLoginCompleteRequest struct {
	LoginToken string `json:"login_token" validate:"required,uuid"`
	Code       string `json:"code" validate:"required,len=6,numeric"`
}

// OAuthInitRequest is the JSON request body for starting an OAuth flow.
type OAuthInitRequest struct {
	Mode        string `json:"mode" validate:"omitempty,oneof=login register"`
	RedirectURI string `json:"redirect_uri" validate:"omitempty,url,max=2000"`
}

// OAuthCompleteRequest is the JSON request body for completing an OAuth flow.
type OAuthCompleteRequest struct {
	State string `json:"state" validate:"required"`
	Code  string `json:"code" validate:"required"`
	Name  string `json:"name" validate:"omitempty,max=200"`
}

// PasskeyRegisterInitRequest is the JSON request body for starting a passkey registration.
type PasskeyRegisterInitRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,min=1,max=200"`
}

// PasskeyRegisterCompleteRequest is the JSON request body for completing a
// passkey registration. Response is the authenticator's attestation payload,
// passed through untouched.
type PasskeyRegisterCompleteRequest struct {
	UserID     string          `json:"user_id" validate:"required,uuid"`
	Response   json.RawMessage `json:"response" validate:"required"`
	DeviceName string          `json:"device_name" validate:"omitempty,max=200"`
}

// PasskeyLoginInitRequest is the JSON request body for starting a passkey login.
type PasskeyLoginInitRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

// PasskeyLoginCompleteRequest is the JSON request body for completing a passkey login.
type PasskeyLoginCompleteRequest struct {
	LoginToken string          `json:"login_token" validate:"required,uuid"`
	Response   json.RawMessage `json:"response" validate:"required"`
}

// VerifyEmailRequest is the JSON request body for completing email verification.
type VerifyEmailRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// --- Response types ---

// AuthResponse wraps user data with the issued session and token.
type AuthResponse struct {
	User        any    `json:"user"`
	SessionID   string `json:"session_id"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func authResponse(res *service.AuthResult) AuthResponse {
	return AuthResponse{
		User:        res.User,
		SessionID:   res.Session.ID,
		AccessToken: res.AccessToken,
		ExpiresIn:   res.ExpiresIn,
	}
}

func deviceFromRequest(r *http.Request) domain.DeviceInfo {
	return domain.DeviceInfo{
		UserAgent: r.UserAgent(),
		IP:        clientIP(r),
	}
}

// --- TOTP handlers ---

// TOTPRegisterInit handles POST /api/v1/auth/totp/register/init
func (h *AuthHandler) TOTPRegisterInit(w http.ResponseWriter, r *http.Request) {
	var req TOTPRegisterInitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.TOTPRegisterInit(r.Context(), service.TOTPRegisterInitInput{
		Email: req.Email,
		Name:  req.Name,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]any{
		"user_id":       res.UserID,
		"secret":        res.Secret,
		"provision_uri": res.ProvisionURI,
		"expires_in":    res.ExpiresIn,
	}})
}

// TOTPRegisterComplete handles POST /api/v1/auth/totp/register/complete
func (h *AuthHandler) TOTPRegisterComplete(w http.ResponseWriter, r *http.Request) {
	var req TOTPRegisterCompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.TOTPRegisterComplete(r.Context(), service.TOTPRegisterCompleteInput{
		UserID: req.UserID,
		Code:   req.Code,
		Device: deviceFromRequest(r),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: authResponse(res)})
}

// TOTPLoginInit handles POST /api/v1/auth/totp/login/init
func (h *AuthHandler) TOTPLoginInit(w http.ResponseWriter, r *http.Request) {
	var req TOTPLoginInitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.TOTPLoginInit(r.Context(), service.TOTPLoginInitInput{Email: req.Email})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]any{
		"login_token": res.LoginToken,
		"expires_in":  res.ExpiresIn,
	}})
}

// TOTPLoginComplete handles POST /api/v1/auth/totp/login/complete
func (h *AuthHandler) TOTPLoginComplete(w http.ResponseWriter, r *http.Request) {
	var req TOTPLoginCompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.TOTPLoginComplete(r.Context(), service.TOTPLoginCompleteInput{
		LoginToken: req.LoginToken,
		Code:       req.Code,
		Device:     deviceFromRequest(r),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: authResponse(res)})
}

// --- OAuth handlers ---

// OAuthInit handles POST /api/v1/auth/oauth/{provider}/init
func (h *AuthHandler) OAuthInit(w http.ResponseWriter, r *http.Request) {
	var req OAuthInitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.OAuthInit(r.Context(), service.OAuthInitInput{
		Provider:    chi.URLParam(r, "provider"),
		Mode:        req.Mode,
		RedirectURI: req.RedirectURI,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]any{
		"authorization_url": res.AuthorizationURL,
		"state":             res.State,
		"expires_in":        res.ExpiresIn,
	}})
}

// OAuthComplete handles POST /api/v1/auth/oauth/{provider}/complete
func (h *AuthHandler) OAuthComplete(w http.ResponseWriter, r *http.Request) {
	var req OAuthCompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.OAuthComplete(r.Context(), service.OAuthCompleteInput{
		Provider: chi.URLParam(r, "provider"),
		State:    req.State,
		Code:     req.Code,
		Name:     req.Name,
		Device:   deviceFromRequest(r),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: authResponse(res)})
}

// --- Passkey handlers ---

// PasskeyRegisterInit handles POST /api/v1/auth/passkey/register/init
func (h *AuthHandler) PasskeyRegisterInit(w http.ResponseWriter, r *http.Request) {
	var req PasskeyRegisterInitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.PasskeyRegisterInit(r.Context(), service.PasskeyRegisterInitInput{
		Email: req.Email,
		Name:  req.Name,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]any{
		"user_id":    res.UserID,
		"options":    res.Options,
		"expires_in": res.ExpiresIn,
	}})
}

// PasskeyRegisterComplete handles POST /api/v1/auth/passkey/register/complete
func (h *AuthHandler) PasskeyRegisterComplete(w http.ResponseWriter, r *http.Request) {
	var req PasskeyRegisterCompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.PasskeyRegisterComplete(r.Context(), service.PasskeyRegisterCompleteInput{
		UserID:     req.UserID,
		Response:   req.Response,
		DeviceName: req.DeviceName,
		Device:     deviceFromRequest(r),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: authResponse(res)})
}

// PasskeyLoginInit handles POST /api/v1/auth/passkey/login/init
func (h *AuthHandler) PasskeyLoginInit(w http.ResponseWriter, r *http.Request) {
	var req PasskeyLoginInitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.PasskeyLoginInit(r.Context(), service.PasskeyLoginInitInput{Email: req.Email})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]any{
		"login_token": res.LoginToken,
		"options":     res.Options,
		"expires_in":  res.ExpiresIn,
	}})
}

// PasskeyLoginComplete handles POST /api/v1/auth/passkey/login/complete
func (h *AuthHandler) PasskeyLoginComplete(w http.ResponseWriter, r *http.Request) {
	var req PasskeyLoginCompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.service.PasskeyLoginComplete(r.Context(), service.PasskeyLoginCompleteInput{
		LoginToken: req.LoginToken,
		Response:   req.Response,
		Device:     deviceFromRequest(r),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: authResponse(res)})
}

// --- Authenticated auth handlers ---

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	sessionID := middleware.SessionIDFromContext(r.Context())
	if userID == "" || sessionID == "" {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "user not authenticated"},
		})
		return
	}

	if err := h.service.Logout(r.Context(), userID, sessionID); err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]string{"status": "logged_out"}})
}

// VerifyEmailInit handles POST /api/v1/auth/verify-email/init
func (h *AuthHandler) VerifyEmailInit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "user not authenticated"},
		})
		return
	}

	res, err := h.service.EmailVerificationInit(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]any{
		"expires_in": res.ExpiresIn,
	}})
}

// VerifyEmailComplete handles POST /api/v1/auth/verify-email/complete
func (h *AuthHandler) VerifyEmailComplete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "user not authenticated"},
		})
		return
	}

	var req VerifyEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.EmailVerificationComplete(r.Context(), userID, req.Code); err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]string{"status": "verified"}})
}
