package calendar

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/domain/incident"
)

// Handler serves the month, week and day views over the incident list.
type Handler struct {
	incidents *incident.Service
	loc       *time.Location
	now       func() time.Time
}

func NewHandler(incidents *incident.Service, loc *time.Location) *Handler {
	return &Handler{incidents: incidents, loc: loc, now: time.Now}
}

// RegisterAdmin mounts the calendar routes.
func (h *Handler) RegisterAdmin(g *echo.Group) {
	g.GET("/calendar/month", h.Month)
	g.GET("/calendar/week", h.Week)
	g.GET("/calendar/day", h.DayView)
}

type monthResponse struct {
	Year  int    `json:"year"`
	Month int    `json:"month"`
	Cells []*Day `json:"cells"`
}

// Month renders the grid for ?year=&month=, defaulting to the current month.
func (h *Handler) Month(c echo.Context) error {
	now := h.now().In(h.loc)
	year, month := now.Year(), int(now.Month())

	if q := c.QueryParam("year"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "year must be a number")
		}
		year = v
	}
	if q := c.QueryParam("month"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 1 || v > 12 {
			return echo.NewHTTPError(http.StatusBadRequest, "month must be 1-12")
		}
		month = v
	}

	incidents, err := h.incidents.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, monthResponse{
		Year:  year,
		Month: month,
		Cells: MonthGrid(year, time.Month(month), incidents, h.loc),
	})
}

func (h *Handler) anchorDate(c echo.Context) (time.Time, error) {
	q := c.QueryParam("date")
	if q == "" {
		return h.now(), nil
	}
	anchor, err := time.ParseInLocation(dayLayout, q, h.loc)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	return anchor, nil
}

// Week renders the Sunday-anchored week containing ?date=.
func (h *Handler) Week(c echo.Context) error {
	anchor, err := h.anchorDate(c)
	if err != nil {
		return err
	}
	incidents, err := h.incidents.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, WeekDays(anchor, incidents, h.loc))
}

// DayView lists the appointments on one calendar day.
func (h *Handler) DayView(c echo.Context) error {
	anchor, err := h.anchorDate(c)
	if err != nil {
		return err
	}
	incidents, err := h.incidents.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Day{
		Date:         DateKey(anchor, h.loc),
		Appointments: AppointmentsOn(anchor, incidents, h.loc),
	})
}
