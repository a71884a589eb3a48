package triage

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/triage/internal/platform/auth"
	"github.com/ehr/triage/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/emergency")

	readGroup := g.Group("", auth.RequireRole("nurse", "physician"))
	readGroup.GET("/waiting-list", h.ListPending)
	readGroup.GET("/suggestion", h.Suggestion)
	readGroup.GET("/suggestion/order", h.SuggestionOrder)

	g.POST("/admissions", h.RegisterAdmission, auth.RequireRole("nurse"))

	physicianGroup := g.Group("", auth.RequireRole("physician"))
	physicianGroup.POST("/claims", h.Claim)
	physicianGroup.POST("/attentions", h.RegisterAttention)
	physicianGroup.GET("/physicians/me/admissions", h.MyAdmissions)
	physicianGroup.GET("/physicians/me/attentions", h.MyAttentions)
}

type registerRequest struct {
	PatientTaxID    string  `json:"patient_tax_id"`
	Note            string  `json:"note"`
	EmergencyLevel  string  `json:"emergency_level"`
	Temperature     float64 `json:"temperature"`
	HeartRate       float64 `json:"heart_rate"`
	RespiratoryRate float64 `json:"respiratory_rate"`
	Systolic        float64 `json:"systolic"`
	Diastolic       float64 `json:"diastolic"`
}

type claimRequest struct {
	PatientTaxID string `json:"patient_tax_id"`
}

type attentionRequest struct {
	PatientTaxID string `json:"patient_tax_id"`
	Report       string `json:"report"`
}

func (h *Handler) RegisterAdmission(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	level, err := ParseLevel(req.EmergencyLevel)
	if err != nil {
		return httpError(err)
	}
	id, _ := auth.IdentityFromContext(c.Request().Context())
	a, err := h.svc.Register(c.Request().Context(), RegisterInput{
		PatientTaxID:    req.PatientTaxID,
		Nurse:           Nurse{Email: id.Email, FirstName: id.FirstName, LastName: id.LastName, License: id.License},
		Note:            req.Note,
		Level:           level,
		Temperature:     req.Temperature,
		HeartRate:       req.HeartRate,
		RespiratoryRate: req.RespiratoryRate,
		Systolic:        req.Systolic,
		Diastolic:       req.Diastolic,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListPending(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Pending())
}

func (h *Handler) Suggestion(c echo.Context) error {
	r, ok := h.svc.SuggestNext()
	if !ok {
		return c.JSON(http.StatusOK, nil)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) SuggestionOrder(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"order": h.svc.SuggestOrder()})
}

func (h *Handler) Claim(c echo.Context) error {
	var req claimRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if req.PatientTaxID == "" {
		req.PatientTaxID = c.QueryParam("patient_tax_id")
	}
	a, err := h.svc.Claim(c.Request().Context(), physicianFrom(c), req.PatientTaxID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) RegisterAttention(c echo.Context) error {
	var req attentionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	att, err := h.svc.RegisterAttention(c.Request().Context(), physicianFrom(c), req.PatientTaxID, req.Report)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, att)
}

func (h *Handler) MyAdmissions(c echo.Context) error {
	pg := pagination.FromContext(c)
	items := h.svc.AdmissionsFor(physicianFrom(c).Email)
	if state := c.QueryParam("state"); state != "" {
		filtered := items[:0:0]
		for _, a := range items {
			if string(a.State()) == state {
				filtered = append(filtered, a)
			}
		}
		items = filtered
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(items, pg), len(items), pg.Limit, pg.Offset))
}

func (h *Handler) MyAttentions(c echo.Context) error {
	pg := pagination.FromContext(c)
	items := h.svc.AttentionsFor(physicianFrom(c).Email)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(items, pg), len(items), pg.Limit, pg.Offset))
}

func physicianFrom(c echo.Context) Physician {
	id, _ := auth.IdentityFromContext(c.Request().Context())
	return Physician{Email: id.Email, FirstName: id.FirstName, LastName: id.LastName, License: id.License}
}

// httpError maps domain error kinds to status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

