package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes login, logout and the current-session lookup.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the auth routes. Login is the only unauthenticated route in
// the API.
func (h *Handler) Register(g *echo.Group, tokens *TokenIssuer) {
	g.POST("/login", h.Login)

	authed := g.Group("", Authenticate(tokens))
	authed.POST("/logout", h.Logout)
	authed.GET("/session", h.Session)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	session, err := h.service.Login(c.Request().Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

func (h *Handler) Logout(c echo.Context) error {
	if err := h.service.Logout(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Session restores the persisted session pointer.
func (h *Handler) Session(c echo.Context) error {
	session, err := h.service.Current(c.Request().Context())
	if errors.Is(err, ErrNotAuthenticated) {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}
