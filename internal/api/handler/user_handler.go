package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/natours/tours-api/internal/api/metrics"
	"github.com/natours/tours-api/internal/api/middleware"
	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/ports"
)

const (
	msgUseSignup      = "This route is not defined! Please use /signup instead"
	msgNoPasswordHere = "This route is not for password updates. Please use /updateMyPassword."
	loggedOutValue    = "loggedout"
	loggedOutLifetime = 10 * time.Second
)

// SessionCookie controls how the session cookie is written.
type SessionCookie struct {
	Lifetime time.Duration
	Secure   bool
}

// UserHandler serves the account endpoints: the authentication flows, the
// self-service profile routes and the admin user resource.
type UserHandler struct {
	*Factory[domain.User]
	auth   ports.AuthService
	users  ports.UserService
	cookie SessionCookie
	log    zerolog.Logger
}

func NewUserHandler(
	store ports.Store[domain.User],
	auth ports.AuthService,
	users ports.UserService,
	cookie SessionCookie,
	maxLimit int64,
	log zerolog.Logger,
) *UserHandler {
	return &UserHandler{
		// Role and active state are only changed through dedicated flows.
		Factory: NewFactory(store, WithMaxLimit[domain.User](maxLimit), WithReadOnly[domain.User]("password", "passwordConfirm", "active")),
		auth:    auth,
		users:   users,
		cookie:  cookie,
		log:     log,
	}
}

type signupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type updatePasswordRequest struct {
	PasswordCurrent string `json:"passwordCurrent"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type updateMeRequest struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	Password        *string `json:"password"`
	PasswordConfirm *string `json:"passwordConfirm"`
}

type tokenResponse struct {
	Status string         `json:"status"`
	Token  string         `json:"token"`
	Data   map[string]any `json:"data"`
}

type messageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Signup creates a regular user account and signs it in.
//
// @Summary      Sign up
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      signupRequest  true  "Account details"
// @Success      201   {object}  tokenResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /users/signup [post]
func (h *UserHandler) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return domain.Validation("Invalid request body")
	}

	session, err := h.auth.Signup(c.Request().Context(), ports.SignupInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	}, origin(c)+"/me")
	if err != nil {
		return err
	}
	metrics.SignupsTotal.Inc()
	return h.sendSession(c, http.StatusCreated, session)
}

// Login exchanges email and password for a session.
//
// @Summary      Log in
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Credentials"
// @Success      200   {object}  tokenResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /users/login [post]
func (h *UserHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return domain.Validation("Invalid request body")
	}

	session, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	return h.sendSession(c, http.StatusOK, session)
}

// Logout overwrites the session cookie and revokes the presented token.
//
// @Summary      Log out
// @Tags         users
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /users/logout [get]
func (h *UserHandler) Logout(c echo.Context) error {
	if token := middleware.TokenFromRequest(c); token != "" && token != loggedOutValue {
		if err := h.auth.Logout(c.Request().Context(), token); err != nil {
			h.log.Warn().Err(err).Msg("token revocation failed")
		}
	}
	c.SetCookie(&http.Cookie{
		Name:     middleware.CookieName,
		Value:    loggedOutValue,
		Path:     "/",
		Expires:  time.Now().Add(loggedOutLifetime),
		HttpOnly: true,
	})
	return c.JSON(http.StatusOK, map[string]string{"status": statusSuccess})
}

// ForgotPassword mails a single-use reset link.
//
// @Summary      Request a password reset
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      forgotPasswordRequest  true  "Account email"
// @Success      200   {object}  messageResponse
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /users/forgotPassword [post]
func (h *UserHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return domain.Validation("Invalid request body")
	}

	base := origin(c)
	err := h.auth.ForgotPassword(c.Request().Context(), req.Email, func(token string) string {
		return fmt.Sprintf("%s/api/v1/users/resetPassword/%s", base, token)
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Status: statusSuccess, Message: "Token sent to email!"})
}

// ResetPassword sets a new password using a reset token and signs in.
//
// @Summary      Reset password
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        token  path      string                true  "Reset token"
// @Param        body   body      resetPasswordRequest  true  "New password"
// @Success      200    {object}  tokenResponse
// @Failure      400    {object}  map[string]string
// @Router       /users/resetPassword/{token} [patch]
func (h *UserHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return domain.Validation("Invalid request body")
	}

	session, err := h.auth.ResetPassword(c.Request().Context(), c.Param("token"), req.Password, req.PasswordConfirm)
	if err != nil {
		return err
	}
	return h.sendSession(c, http.StatusOK, session)
}

// UpdateMyPassword changes the password of the current user.
//
// @Summary      Change password
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      updatePasswordRequest  true  "Current and new password"
// @Success      200   {object}  tokenResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Security     BearerAuth
// @Router       /users/updateMyPassword [patch]
func (h *UserHandler) UpdateMyPassword(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req updatePasswordRequest
	if err := c.Bind(&req); err != nil {
		return domain.Validation("Invalid request body")
	}

	session, err := h.auth.UpdatePassword(c.Request().Context(), user.ID.Hex(), req.PasswordCurrent, req.Password, req.PasswordConfirm)
	if err != nil {
		return err
	}
	return h.sendSession(c, http.StatusOK, session)
}

// GetMe returns the current user.
//
// @Summary      Current user
// @Tags         users
// @Produce      json
// @Success      200  {object}  dataResponse
// @Failure      401  {object}  map[string]string
// @Security     BearerAuth
// @Router       /users/me [get]
func (h *UserHandler) GetMe(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	c.SetParamNames("id")
	c.SetParamValues(user.ID.Hex())
	return h.GetOne()(c)
}

// UpdateMe changes the name or email of the current user. Any other
// attribute in the body is ignored.
//
// @Summary      Update profile
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      updateMeRequest  true  "Name and/or email"
// @Success      200   {object}  dataResponse
// @Failure      400   {object}  map[string]string
// @Security     BearerAuth
// @Router       /users/updateMe [patch]
func (h *UserHandler) UpdateMe(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req updateMeRequest
	if err := c.Bind(&req); err != nil {
		return domain.Validation("Invalid request body")
	}
	if req.Password != nil || req.PasswordConfirm != nil {
		return domain.Validation(msgNoPasswordHere)
	}

	updated, err := h.users.UpdateMe(c.Request().Context(), user.ID.Hex(), req.Name, req.Email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, success("user", updated))
}

// DeleteMe deactivates the current user.
//
// @Summary      Deactivate account
// @Tags         users
// @Success      204
// @Failure      401  {object}  map[string]string
// @Security     BearerAuth
// @Router       /users/deleteMe [delete]
func (h *UserHandler) DeleteMe(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.users.DeleteMe(c.Request().Context(), user.ID.Hex()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Session reports the user attached by the soft session check, if any.
//
// @Summary      Session state
// @Tags         users
// @Produce      json
// @Success      200  {object}  dataResponse
// @Router       /users/session [get]
func (h *UserHandler) Session(c echo.Context) error {
	user, _ := middleware.CurrentUser(c)
	return c.JSON(http.StatusOK, success("user", user))
}

// CreateUser always fails: accounts are created through sign-up.
func (h *UserHandler) CreateUser(c echo.Context) error {
	return domain.Unexpected(msgUseSignup)
}

// sendSession writes the session cookie and the token envelope.
func (h *UserHandler) sendSession(c echo.Context, code int, session *ports.Session) error {
	c.SetCookie(&http.Cookie{
		Name:     middleware.CookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  time.Now().Add(h.cookie.Lifetime),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
	})
	return c.JSON(code, tokenResponse{
		Status: statusSuccess,
		Token:  session.Token,
		Data:   map[string]any{"user": session.User},
	})
}

func currentUser(c echo.Context) (*domain.User, error) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return nil, domain.Unauthorized("You are not logged in! Please log in to get access.")
	}
	return user, nil
}

// origin is the scheme and host the request was addressed to.
func origin(c echo.Context) string {
	return c.Scheme() + "://" + c.Request().Host
}
