// This file implements the account and session handlers.
//
// Routes:
//   - POST /api/register -> Register
//   - POST /api/login    -> Login
//   - POST /api/logout   -> Logout
//   - GET  /api/me       -> Me
//   - PUT  /api/me       -> UpdateProfile
package handler

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/domain"
	"github.com/goodbreeze/breeze/internal/middleware"
	"github.com/goodbreeze/breeze/internal/service"
)

// AuthHandler handles registration, login, and profile requests.
type AuthHandler struct {
	userService service.UserService
	limits      *middleware.APIRateLimiter
	logger      *slog.Logger
	isSecure    bool
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(userService service.UserService, limits *middleware.APIRateLimiter, logger *slog.Logger, isSecure bool) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		limits:      limits,
		logger:      logger,
		isSecure:    isSecure,
	}
}

// RegisterRoutes registers auth routes on the provided mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/register", h.limits.LimitRegister(http.HandlerFunc(h.Register)))
	mux.Handle("POST /api/login", h.limits.LimitLogin(http.HandlerFunc(h.Login)))
	mux.HandleFunc("POST /api/logout", h.Logout)
	mux.Handle("GET /api/me", requireUser(http.HandlerFunc(h.Me)))
	mux.Handle("PUT /api/me", requireUser(http.HandlerFunc(h.UpdateProfile)))
}

// userResponse is the API shape of an account. The password hash and
// lockout bookkeeping never leave the server.
type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

// Register creates a new account and grants the signup bonus.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	user, err := h.userService.Register(r.Context(), domain.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"user": toUserResponse(user),
	})
}

type loginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

// Login authenticates a user and sets the session cookie.
//
// The three outcomes map to three response shapes: 200 with the user on
// success, 423 with retry_after_seconds while the lockout window is
// active, 401 with attempts_remaining on bad credentials.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.userService.Login(r.Context(), service.LoginParams{
		Email:        req.Email,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		RemoteIP:     clientIP(r),
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if result.Locked {
		minutes := int(math.Ceil(result.RetryAfter.Minutes()))
		if minutes < 1 {
			minutes = 1
		}
		respondJSON(w, http.StatusLocked, map[string]any{
			"error": map[string]any{
				"code":    domain.ELOCKED,
				"message": domain.Locked("", minutes).Message,
			},
			"retry_after_seconds": int(result.RetryAfter.Seconds()),
		})
		return
	}

	if !result.Succeeded() {
		respondJSON(w, http.StatusUnauthorized, map[string]any{
			"error": map[string]any{
				"code":    domain.EUNAUTHORIZED,
				"message": "Invalid email or password",
			},
			"attempts_remaining": result.AttemptsRemaining,
		})
		return
	}

	h.limits.ResetLogin(clientIP(r))
	middleware.SetSessionCookie(w, result.Token, h.isSecure)
	respondJSON(w, http.StatusOK, map[string]any{
		"user": toUserResponse(result.User),
	})
}

// Logout invalidates the session and clears the cookie. Idempotent.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
		if err := h.userService.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Error("failed to delete session", "error", err)
		}
	}

	middleware.ClearSessionCookie(w, h.isSecure)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user's account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user": toUserResponse(user),
	})
}

type updateProfileRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// UpdateProfile updates the user's name and phone.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.userService.UpdateProfile(r.Context(), domain.ProfileUpdateParams{
		UserID: user.ID,
		Name:   req.Name,
		Phone:  req.Phone,
	}); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	updated, err := h.userService.GetByID(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user": toUserResponse(updated),
	})
}
