package patient

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
)

// Handler exposes the admin patient CRUD, the patient's own profile and the
// public signup endpoint.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterAdmin mounts the admin-only registry routes.
func (h *Handler) RegisterAdmin(g *echo.Group) {
	g.GET("/patients", h.List)
	g.POST("/patients", h.Create)
	g.GET("/patients/:id", h.Get)
	g.PUT("/patients/:id", h.Update)
	g.DELETE("/patients/:id", h.Delete)
}

// RegisterMe mounts the patient's self-service profile route.
func (h *Handler) RegisterMe(g *echo.Group) {
	g.GET("/me", h.MyProfile)
}

// RegisterPublic mounts signup, which needs no session.
func (h *Handler) RegisterPublic(g *echo.Group) {
	g.POST("/signup", h.Signup)
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicateEmail), errors.Is(err, ErrDuplicateRecord):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return err
	}
}

func (h *Handler) List(c echo.Context) error {
	patients, err := h.service.List(c.Request().Context())
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, patients)
}

func (h *Handler) Get(c echo.Context) error {
	p, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Create(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	created, err := h.service.Create(c.Request().Context(), &p)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Update(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p.ID = c.Param("id")
	updated, err := h.service.Update(c.Request().Context(), &p)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return mapErr(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// MyProfile returns the record bound to the authenticated patient.
func (h *Handler) MyProfile(c echo.Context) error {
	patientID := auth.PatientID(c)
	if patientID == "" {
		return echo.NewHTTPError(http.StatusForbidden, "no patient record bound to this account")
	}
	p, err := h.service.Get(c.Request().Context(), patientID)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Signup(c echo.Context) error {
	var in Signup
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	account, err := h.service.Register(c.Request().Context(), in)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusCreated, account)
}
