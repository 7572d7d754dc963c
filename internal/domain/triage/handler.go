package triage

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/ertriage/internal/platform/auth"
	"github.com/ehr/ertriage/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole("staff", "nurse", "physician"))
	staff.POST("/triage/esi", h.SuggestLevel)
	staff.POST("/patients", h.AdmitPatient)
	staff.GET("/patients/queue", h.Queue)
	staff.GET("/patients/:id", h.GetPatient)
	staff.PATCH("/patients/:id/status", h.UpdateStatus)
	staff.PATCH("/patients/:id/priority", h.UpdatePriority)
	staff.POST("/patients/:id/reassess", h.Reassess)
	staff.POST("/vitals", h.RecordVitals)
	staff.GET("/patients/:id/vitals", h.ListVitals)
}

// AdmitRequest is the triage form submission.
type AdmitRequest struct {
	Name           string      `json:"name"`
	DateOfBirth    string      `json:"date_of_birth"`
	Gender         string      `json:"gender"`
	ChiefComplaint string      `json:"chief_complaint"`
	FHIRID         string      `json:"fhir_id,omitempty"`
	Vitals         *VitalSigns `json:"vitals,omitempty"`
}

type AdmitResponse struct {
	Patient    *Patient    `json:"patient"`
	Assessment *Assessment `json:"assessment"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type priorityRequest struct {
	Priority *int `json:"priority"`
}

// httpError maps service errors to HTTP errors.
func httpError(err error, notFoundMsg string) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, notFoundMsg)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func (h *Handler) SuggestLevel(c echo.Context) error {
	var req SuggestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.svc.SuggestLevel(c.Request().Context(), req))
}

func (h *Handler) AdmitPatient(c echo.Context) error {
	var req AdmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date_of_birth")
	}
	p := &Patient{
		Name:           req.Name,
		DateOfBirth:    dob,
		Gender:         req.Gender,
		ChiefComplaint: req.ChiefComplaint,
	}
	if req.FHIRID != "" {
		p.FHIRID = &req.FHIRID
	}
	a, err := h.svc.AdmitPatient(c.Request().Context(), p, req.Vitals)
	if err != nil {
		return httpError(err, "patient not found")
	}
	return c.JSON(http.StatusCreated, AdmitResponse{Patient: p, Assessment: a})
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Queue(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Queue(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err, "")
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return httpError(err, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePriority(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req priorityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Priority == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "priority is required")
	}
	p, err := h.svc.UpdatePriority(c.Request().Context(), id, *req.Priority)
	if err != nil {
		return httpError(err, "patient not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Reassess(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, a, err := h.svc.Reassess(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "patient not found")
	}
	return c.JSON(http.StatusOK, AdmitResponse{Patient: p, Assessment: a})
}

func (h *Handler) RecordVitals(c echo.Context) error {
	var v Vitals
	if err := c.Bind(&v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RecordVitals(c.Request().Context(), &v); err != nil {
		return httpError(err, "patient not found")
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) ListVitals(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.ListVitals(c.Request().Context(), id)
	if err != nil {
		return httpError(err, "patient not found")
	}
	if items == nil {
		items = []*Vitals{}
	}
	return c.JSON(http.StatusOK, items)
}
