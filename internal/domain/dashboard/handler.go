package dashboard

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/domain/incident"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
)

// Handler serves the admin dashboard from a fresh store snapshot.
type Handler struct {
	patients  *patient.Service
	incidents *incident.Service
	now       func() time.Time
}

func NewHandler(patients *patient.Service, incidents *incident.Service) *Handler {
	return &Handler{patients: patients, incidents: incidents, now: time.Now}
}

// RegisterAdmin mounts the dashboard route.
func (h *Handler) RegisterAdmin(g *echo.Group) {
	g.GET("/dashboard", h.Stats)
}

func (h *Handler) Stats(c echo.Context) error {
	ctx := c.Request().Context()
	patients, err := h.patients.List(ctx)
	if err != nil {
		return err
	}
	incidents, err := h.incidents.List(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Compute(patients, incidents, h.now()))
}
