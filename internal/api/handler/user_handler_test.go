package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/natours/tours-api/internal/api/middleware"
	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/ports"
	"github.com/natours/tours-api/internal/core/query"
)

type stubAuthService struct {
	signupFn func(ctx context.Context, in ports.SignupInput, welcomeURL string) (*ports.Session, error)
	loginFn  func(ctx context.Context, email, password string) (*ports.Session, error)
	logoutFn func(ctx context.Context, token string) error
	forgotFn func(ctx context.Context, email string, resetURL func(string) string) error
}

func (s *stubAuthService) Signup(ctx context.Context, in ports.SignupInput, welcomeURL string) (*ports.Session, error) {
	return s.signupFn(ctx, in, welcomeURL)
}

func (s *stubAuthService) Login(ctx context.Context, email, password string) (*ports.Session, error) {
	return s.loginFn(ctx, email, password)
}

func (s *stubAuthService) Authenticate(context.Context, string) (*domain.User, error) {
	return nil, domain.Unauthorized("invalid")
}

func (s *stubAuthService) Logout(ctx context.Context, token string) error {
	if s.logoutFn == nil {
		return nil
	}
	return s.logoutFn(ctx, token)
}

func (s *stubAuthService) ForgotPassword(ctx context.Context, email string, resetURL func(string) string) error {
	return s.forgotFn(ctx, email, resetURL)
}

func (s *stubAuthService) ResetPassword(context.Context, string, string, string) (*ports.Session, error) {
	return nil, errors.New("not implemented")
}

func (s *stubAuthService) UpdatePassword(context.Context, string, string, string, string) (*ports.Session, error) {
	return nil, errors.New("not implemented")
}

type stubUserService struct {
	updateFn func(ctx context.Context, id string, name, email *string) (*domain.User, error)
	deleted  string
}

func (s *stubUserService) UpdateMe(ctx context.Context, id string, name, email *string) (*domain.User, error) {
	return s.updateFn(ctx, id, name, email)
}

func (s *stubUserService) DeleteMe(_ context.Context, id string) error {
	s.deleted = id
	return nil
}

type nopUserStore struct{}

func (nopUserStore) Create(context.Context, *domain.User) (*domain.User, error) { return nil, nil }
func (nopUserStore) FindByID(_ context.Context, id string, _ ...string) (*domain.User, error) {
	oid, _ := primitive.ObjectIDFromHex(id)
	return &domain.User{ID: oid, Name: "Jonas", Email: "jonas@example.com", Role: domain.RoleUser}, nil
}
func (nopUserStore) FindMany(context.Context, query.Spec) ([]*domain.User, error) { return nil, nil }
func (nopUserStore) UpdateByID(context.Context, string, bson.M) (*domain.User, error) {
	return nil, nil
}
func (nopUserStore) DeleteByID(context.Context, string) error { return nil }

func newUserHandler(auth ports.AuthService, users ports.UserService) *UserHandler {
	return NewUserHandler(nopUserStore{}, auth, users, SessionCookie{Lifetime: 90 * 24 * time.Hour, Secure: true}, 100, zerolog.Nop())
}

func sessionFor(name string) *ports.Session {
	return &ports.Session{
		Token:     "token123",
		ExpiresAt: time.Now().Add(time.Hour),
		User:      &domain.User{ID: primitive.NewObjectID(), Name: name, Email: "a@example.com", Role: domain.RoleUser, Password: "hash"},
	}
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == middleware.CookieName {
			return ck
		}
	}
	return nil
}

func TestUserHandler_Signup_Success(t *testing.T) {
	e := newTestEcho()
	stub := &stubAuthService{
		signupFn: func(_ context.Context, in ports.SignupInput, welcomeURL string) (*ports.Session, error) {
			if in.Name != "alice" || in.Email != "a@example.com" || in.PasswordConfirm != "pass1234" {
				t.Fatalf("unexpected input: %+v", in)
			}
			if welcomeURL != "http://example.com/me" {
				t.Fatalf("unexpected welcome url %q", welcomeURL)
			}
			return sessionFor(in.Name), nil
		},
	}
	h := newUserHandler(stub, &stubUserService{})

	body := `{"name":"alice","email":"a@example.com","password":"pass1234","passwordConfirm":"pass1234","role":"admin"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/users/signup", body), rec)

	if err := h.Signup(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	resp := decodeBody(t, rec)
	if resp["status"] != "success" || resp["token"] != "token123" {
		t.Fatalf("unexpected envelope %v", resp)
	}
	user := resp["data"].(map[string]any)["user"].(map[string]any)
	if _, leaked := user["password"]; leaked {
		t.Fatalf("password hash leaked: %v", user)
	}

	ck := sessionCookie(rec)
	if ck == nil || ck.Value != "token123" || !ck.HttpOnly || !ck.Secure {
		t.Fatalf("unexpected session cookie %+v", ck)
	}
	if ck.Expires.Before(time.Now().Add(89 * 24 * time.Hour)) {
		t.Fatalf("cookie expires too early: %v", ck.Expires)
	}
}

func TestUserHandler_Signup_InvalidPayload(t *testing.T) {
	e := newTestEcho()
	stub := &stubAuthService{
		signupFn: func(context.Context, ports.SignupInput, string) (*ports.Session, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}
	h := newUserHandler(stub, &stubUserService{})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/users/signup", "not-json"), rec)

	if err := h.Signup(c); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUserHandler_Login_Failure(t *testing.T) {
	e := newTestEcho()
	stub := &stubAuthService{
		loginFn: func(context.Context, string, string) (*ports.Session, error) {
			return nil, domain.Unauthorized("Incorrect email or password")
		},
	}
	h := newUserHandler(stub, &stubUserService{})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/users/login", `{"email":"a@example.com","password":"nope"}`), rec)

	if err := h.Login(c); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if sessionCookie(rec) != nil {
		t.Fatalf("cookie set on failed login")
	}
}

func TestUserHandler_Login_Success(t *testing.T) {
	e := newTestEcho()
	stub := &stubAuthService{
		loginFn: func(_ context.Context, email, password string) (*ports.Session, error) {
			if email != "a@example.com" || password != "pass1234" {
				t.Fatalf("unexpected args: %s %s", email, password)
			}
			return sessionFor("alice"), nil
		},
	}
	h := newUserHandler(stub, &stubUserService{})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/users/login", `{"email":"a@example.com","password":"pass1234"}`), rec)

	if err := h.Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestUserHandler_Logout(t *testing.T) {
	e := newTestEcho()
	var revoked string
	stub := &stubAuthService{
		logoutFn: func(_ context.Context, token string) error {
			revoked = token
			return nil
		},
	}
	h := newUserHandler(stub, &stubUserService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.CookieName, Value: "token123"})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Logout(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if revoked != "token123" {
		t.Fatalf("expected token to be revoked, got %q", revoked)
	}
	ck := sessionCookie(rec)
	if ck == nil || ck.Value != "loggedout" || !ck.HttpOnly {
		t.Fatalf("unexpected cookie %+v", ck)
	}
	if ck.Expires.After(time.Now().Add(11 * time.Second)) {
		t.Fatalf("logout cookie lives too long: %v", ck.Expires)
	}
}

func TestUserHandler_ForgotPassword_BuildsResetURL(t *testing.T) {
	e := newTestEcho()
	var url string
	stub := &stubAuthService{
		forgotFn: func(_ context.Context, email string, resetURL func(string) string) error {
			url = resetURL("abc123")
			return nil
		},
	}
	h := newUserHandler(stub, &stubUserService{})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/users/forgotPassword", `{"email":"a@example.com"}`), rec)

	if err := h.ForgotPassword(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if url != "http://example.com/api/v1/users/resetPassword/abc123" {
		t.Fatalf("unexpected reset url %q", url)
	}
	if decodeBody(t, rec)["message"] != "Token sent to email!" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestUserHandler_UpdateMe_RejectsPassword(t *testing.T) {
	e := newTestEcho()
	users := &stubUserService{
		updateFn: func(context.Context, string, *string, *string) (*domain.User, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}
	h := newUserHandler(&stubAuthService{}, users)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPatch, "/api/v1/users/updateMe", `{"name":"x","password":"secret123"}`), rec)
	c.Set("user", &domain.User{ID: primitive.NewObjectID()})

	err := h.UpdateMe(c)
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.ErrValidation || !strings.Contains(de.Message, "/updateMyPassword") {
		t.Fatalf("expected password rejection, got %v", err)
	}
}

func TestUserHandler_UpdateMe_OnlyNameAndEmail(t *testing.T) {
	e := newTestEcho()
	me := &domain.User{ID: primitive.NewObjectID(), Role: domain.RoleUser}
	users := &stubUserService{
		updateFn: func(_ context.Context, id string, name, email *string) (*domain.User, error) {
			if id != me.ID.Hex() || name == nil || *name != "Jonas" || email != nil {
				t.Fatalf("unexpected args: %s %v %v", id, name, email)
			}
			return &domain.User{ID: me.ID, Name: *name, Role: domain.RoleUser}, nil
		},
	}
	h := newUserHandler(&stubAuthService{}, users)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPatch, "/api/v1/users/updateMe", `{"name":"Jonas","role":"admin"}`), rec)
	c.Set("user", me)

	if err := h.UpdateMe(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	user := decodeBody(t, rec)["data"].(map[string]any)["user"].(map[string]any)
	if user["role"] != domain.RoleUser {
		t.Fatalf("role changed: %v", user["role"])
	}
}

func TestUserHandler_DeleteMe(t *testing.T) {
	e := newTestEcho()
	users := &stubUserService{}
	h := newUserHandler(&stubAuthService{}, users)
	me := &domain.User{ID: primitive.NewObjectID()}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/api/v1/users/deleteMe", nil), rec)
	c.Set("user", me)

	if err := h.DeleteMe(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent || users.deleted != me.ID.Hex() {
		t.Fatalf("expected 204 for %s, got %d (%s)", me.ID.Hex(), rec.Code, users.deleted)
	}
}

func TestUserHandler_GetMe(t *testing.T) {
	e := newTestEcho()
	h := newUserHandler(&stubAuthService{}, &stubUserService{})
	me := &domain.User{ID: primitive.NewObjectID()}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil), rec)
	c.Set("user", me)

	if err := h.GetMe(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	data := decodeBody(t, rec)["data"].(map[string]any)["data"].(map[string]any)
	if data["id"] != me.ID.Hex() {
		t.Fatalf("expected own record, got %v", data)
	}
}

func TestUserHandler_CreateUser_PointsToSignup(t *testing.T) {
	h := newUserHandler(&stubAuthService{}, &stubUserService{})
	c := newTestEcho().NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/users", nil), httptest.NewRecorder())

	err := h.CreateUser(c)
	if !errors.Is(err, domain.ErrUnexpected) || !strings.Contains(err.Error(), "/signup") {
		t.Fatalf("expected signup hint, got %v", err)
	}
}

func TestUserHandler_Session_Anonymous(t *testing.T) {
	h := newUserHandler(&stubAuthService{}, &stubUserService{})
	rec := httptest.NewRecorder()
	c := newTestEcho().NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/users/session", nil), rec)

	if err := h.Session(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
