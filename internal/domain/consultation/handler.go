package consultation

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doc := api.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	doc.GET("/consultations", h.List)
	doc.POST("/consultations", h.Create)
	doc.GET("/consultations/:id", h.Get)
	doc.PUT("/consultations/:id", h.Update)
	doc.PATCH("/consultations/:id", h.Update)
	doc.GET("/patients", h.Patients)
	doc.GET("/patients/:id/history", h.History)
}

func parseID(raw, name string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	appointmentID, err := parseID(c.QueryParam("appointment_id"), "appointment_id")
	if err != nil {
		return err
	}
	var in ConsultationInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	doctor, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	out, err := h.svc.Create(c.Request().Context(), doctor, appointmentID, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	var in ConsultationUpdate
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	doctor, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	out, err := h.svc.Update(c.Request().Context(), doctor, id, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	doctor, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	out, err := h.svc.Get(c.Request().Context(), doctor.ID, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) List(c echo.Context) error {
	doctor, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), doctor.ID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Patients(c echo.Context) error {
	doctor, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Patients(c.Request().Context(), doctor.ID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) History(c echo.Context) error {
	patientID, err := parseID(c.Param("id"), "id")
	if err != nil {
		return err
	}
	doctor, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	out, err := h.svc.History(c.Request().Context(), doctor.ID, patientID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, out)
}
