package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/goodbreeze/breeze/internal/domain"
	"github.com/goodbreeze/breeze/internal/middleware"
	"github.com/goodbreeze/breeze/internal/service"
)

// newAuthMux wires the auth handler behind the real auth middleware so
// tests exercise the cookie path end to end.
func newAuthMux(svc *mockUserService) *http.ServeMux {
	logger := newTestLogger()
	authMW := middleware.NewAuthMiddleware(svc, logger, false)
	requireUser := middleware.Stack(authMW.WithUser, authMW.RequireUser)

	mux := http.NewServeMux()
	h := NewAuthHandler(svc, middleware.NewAPIRateLimiter(logger), logger, false)
	h.RegisterRoutes(mux, requireUser)
	return mux
}

func TestRegisterSuccess(t *testing.T) {
	user := testUser(t)
	svc := &mockUserService{
		RegisterFunc: func(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
			if params.Email != "new@example.com" {
				t.Errorf("Email = %q, want new@example.com", params.Email)
			}
			return user, nil
		},
	}
	mux := newAuthMux(svc)

	body := `{"email":"new@example.com","password":"hunter2hunter2","name":"New User"}`
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusCreated, rec.Body)
	}

	var resp struct {
		User userResponse `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.User.ID != user.ID {
		t.Errorf("user ID = %s, want %s", resp.User.ID, user.ID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := &mockUserService{
		RegisterFunc: func(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
			return nil, domain.Conflict("UserService.Register", "Email already registered")
		},
	}
	mux := newAuthMux(svc)

	body := `{"email":"taken@example.com","password":"hunter2hunter2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestRegisterRejectsUnknownFields(t *testing.T) {
	mux := newAuthMux(&mockUserService{})

	body := `{"email":"a@b.com","password":"hunter2hunter2","role":"admin"}`
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestLoginSuccessSetsCookie(t *testing.T) {
	user := testUser(t)
	svc := &mockUserService{
		LoginFunc: func(ctx context.Context, params service.LoginParams) (*domain.LoginResult, error) {
			return &domain.LoginResult{User: user, Token: "raw-session-token"}, nil
		},
	}
	mux := newAuthMux(svc)

	body := `{"email":"owner@example.com","password":"hunter2hunter2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body)
	}

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("session cookie not set")
	}
	if sessionCookie.Value != "raw-session-token" {
		t.Errorf("cookie value = %q, want raw token", sessionCookie.Value)
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
}

func TestLoginLockedAccount(t *testing.T) {
	svc := &mockUserService{
		LoginFunc: func(ctx context.Context, params service.LoginParams) (*domain.LoginResult, error) {
			return &domain.LoginResult{Locked: true, RetryAfter: 17 * time.Minute}, nil
		},
	}
	mux := newAuthMux(svc)

	body := `{"email":"owner@example.com","password":"whatever0"}`
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusLocked {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusLocked)
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		RetryAfterSeconds int `json:"retry_after_seconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error.Code != domain.ELOCKED {
		t.Errorf("error code = %q, want %q", resp.Error.Code, domain.ELOCKED)
	}
	if resp.RetryAfterSeconds != int((17 * time.Minute).Seconds()) {
		t.Errorf("retry_after_seconds = %d, want %d", resp.RetryAfterSeconds, 17*60)
	}

	if len(rec.Result().Cookies()) != 0 {
		t.Error("locked login must not set a session cookie")
	}
}

func TestLoginBadCredentials(t *testing.T) {
	svc := &mockUserService{
		LoginFunc: func(ctx context.Context, params service.LoginParams) (*domain.LoginResult, error) {
			return &domain.LoginResult{AttemptsRemaining: 2}, nil
		},
	}
	mux := newAuthMux(svc)

	body := `{"email":"owner@example.com","password":"wrongpassword"}`
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	var resp struct {
		AttemptsRemaining int `json:"attempts_remaining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.AttemptsRemaining != 2 {
		t.Errorf("attempts_remaining = %d, want 2", resp.AttemptsRemaining)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	var loggedOut string
	svc := &mockUserService{
		LogoutFunc: func(ctx context.Context, token string) error {
			loggedOut = token
			return nil
		},
	}
	mux := newAuthMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "tok-123"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if loggedOut != "tok-123" {
		t.Errorf("logged out token = %q, want tok-123", loggedOut)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Error("logout should clear the session cookie")
	}
}

func TestMeRequiresAuth(t *testing.T) {
	mux := newAuthMux(&mockUserService{})

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestMeReturnsUser(t *testing.T) {
	user := testUser(t)
	svc := &mockUserService{
		GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.User, error) {
			if token != "valid-token" {
				return nil, domain.Unauthorized("", "Invalid or expired session")
			}
			return user, nil
		},
	}
	mux := newAuthMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid-token"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body)
	}

	var resp struct {
		User userResponse `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.User.Email != user.Email {
		t.Errorf("email = %q, want %q", resp.User.Email, user.Email)
	}
}

func TestUpdateProfile(t *testing.T) {
	user := testUser(t)
	var gotParams domain.ProfileUpdateParams
	svc := &mockUserService{
		GetBySessionTokenFunc: func(ctx context.Context, token string) (*domain.User, error) {
			return user, nil
		},
		UpdateProfileFunc: func(ctx context.Context, params domain.ProfileUpdateParams) error {
			gotParams = params
			return nil
		},
		GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*domain.User, error) {
			updated := *user
			updated.Phone = "+15559871234"
			return &updated, nil
		},
	}
	mux := newAuthMux(svc)

	body := `{"name":"Renamed","phone":"+15559871234"}`
	req := httptest.NewRequest(http.MethodPut, "/api/me", strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid-token"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body)
	}
	if gotParams.UserID != user.ID {
		t.Errorf("UserID = %s, want %s", gotParams.UserID, user.ID)
	}
	if gotParams.Phone != "+15559871234" {
		t.Errorf("Phone = %q, want +15559871234", gotParams.Phone)
	}
}
