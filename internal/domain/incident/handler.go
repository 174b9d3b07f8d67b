package incident

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/attach"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
)

// Handler exposes the admin incident CRUD, the approval workflow, attachment
// uploads and the patient's own views.
type Handler struct {
	service *Service
	logger  zerolog.Logger
}

func NewHandler(service *Service, logger zerolog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdmin mounts the admin-only incident routes.
func (h *Handler) RegisterAdmin(g *echo.Group) {
	g.GET("/incidents", h.List)
	g.POST("/incidents", h.Create)
	g.GET("/incidents/:id", h.Get)
	g.PUT("/incidents/:id", h.Update)
	g.DELETE("/incidents/:id", h.Delete)
	g.POST("/incidents/:id/approve", h.Approve)
	g.POST("/incidents/:id/reject", h.Reject)
	g.POST("/incidents/:id/files", h.UploadFiles)
	g.GET("/incidents/:id/files/:fileId", h.DownloadFile)
	g.DELETE("/incidents/:id/files/:fileId", h.RemoveFile)
}

// RegisterMe mounts the patient's self-service routes.
func (h *Handler) RegisterMe(g *echo.Group) {
	g.GET("/me/appointments", h.MyIncidents)
	g.POST("/me/appointments", h.BookAppointment)
	g.GET("/me/next-appointment", h.MyNextAppointment)
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "incident not found")
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}

func (h *Handler) List(c echo.Context) error {
	incidents, err := h.service.List(c.Request().Context())
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, incidents)
}

func (h *Handler) Get(c echo.Context) error {
	inc, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, inc)
}

func (h *Handler) Create(c echo.Context) error {
	var inc Incident
	if err := c.Bind(&inc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	created, err := h.service.Create(c.Request().Context(), &inc)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Update(c echo.Context) error {
	var inc Incident
	if err := c.Bind(&inc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	inc.ID = c.Param("id")
	updated, err := h.service.Update(c.Request().Context(), &inc)
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

func (h *Handler) Approve(c echo.Context) error {
	inc, err := h.service.Approve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, inc)
}

func (h *Handler) Reject(c echo.Context) error {
	inc, err := h.service.Reject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, inc)
}

// UploadFiles accepts a multipart batch under the "files" field. Files that
// fail to read are skipped, not fatal.
func (h *Handler) UploadFiles(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files provided")
	}

	files := attach.FromMultipart(headers, h.logger)
	inc, err := h.service.AddFiles(c.Request().Context(), c.Param("id"), files)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, inc)
}

// DownloadFile decodes one attachment back to its original bytes.
func (h *Handler) DownloadFile(c echo.Context) error {
	inc, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapErr(err)
	}
	fileID := c.Param("fileId")
	for _, f := range inc.Files {
		if f.ID != fileID {
			continue
		}
		contentType, data, err := attach.DecodeDataURL(f.URL)
		if err != nil {
			h.logger.Error().Err(err).Str("incident_id", inc.ID).Str("file_id", fileID).Msg("attachment unreadable")
			return echo.NewHTTPError(http.StatusInternalServerError, "attachment content unreadable")
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", f.Name))
		return c.Blob(http.StatusOK, contentType, data)
	}
	return echo.NewHTTPError(http.StatusNotFound, "file not found")
}

func (h *Handler) RemoveFile(c echo.Context) error {
	inc, err := h.service.RemoveFile(c.Request().Context(), c.Param("id"), c.Param("fileId"))
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, inc)
}

// MyIncidents lists the authenticated patient's incidents, earliest first.
func (h *Handler) MyIncidents(c echo.Context) error {
	patientID := auth.PatientID(c)
	if patientID == "" {
		return echo.NewHTTPError(http.StatusForbidden, "no patient record bound to this account")
	}
	incidents, err := h.service.ListByPatient(c.Request().Context(), patientID)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusOK, incidents)
}

type bookingRequest struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Comments        string    `json:"comments"`
	AppointmentDate LocalTime `json:"appointmentDate"`
}

// BookAppointment lets a patient request a visit. The booking is always their
// own record and always starts Pending approval.
func (h *Handler) BookAppointment(c echo.Context) error {
	patientID := auth.PatientID(c)
	if patientID == "" {
		return echo.NewHTTPError(http.StatusForbidden, "no patient record bound to this account")
	}
	var req bookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	inc := Incident{
		PatientID:       patientID,
		Title:           req.Title,
		Description:     req.Description,
		Comments:        req.Comments,
		AppointmentDate: req.AppointmentDate,
	}
	created, err := h.service.Create(c.Request().Context(), &inc)
	if err != nil {
		return mapErr(err)
	}
	return c.JSON(http.StatusCreated, created)
}

// MyNextAppointment returns 204 when nothing is booked.
func (h *Handler) MyNextAppointment(c echo.Context) error {
	patientID := auth.PatientID(c)
	if patientID == "" {
		return echo.NewHTTPError(http.StatusForbidden, "no patient record bound to this account")
	}
	inc, err := h.service.NextAppointment(c.Request().Context(), patientID)
	if err != nil {
		return mapErr(err)
	}
	if inc == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, inc)
}
