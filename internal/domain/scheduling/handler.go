package scheduling

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
	desk := api.Group("/receptionist/appointments", auth.RequireRole(auth.RoleReceptionist))
	desk.POST("", h.CreateAppointment)
	desk.GET("", h.ListAppointments)
	desk.GET("/:id", h.GetAppointment)
	desk.PUT("/:id", h.UpdateAppointment)
	desk.PATCH("/:id", h.UpdateAppointment)
	desk.DELETE("/:id", h.DeleteAppointment)

	doctor := api.Group("/doctor/appointments", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("", h.DoctorQueue)
	doctor.GET("/:id", h.DoctorGetAppointment)
	doctor.PATCH("/:id", h.DoctorUpdateStatus)

	// Visit history across all doctors, newest first.
	api.GET("/admin/patient-history", h.ListAppointments, auth.RequireRole(auth.RoleAdmin))
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id filter")
	}
	return &id, nil
}

// -- Receptionist Handlers --

func (h *Handler) CreateAppointment(c echo.Context) error {
	var in AppointmentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actor, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	a, err := h.svc.Book(c.Request().Context(), actor, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f ListFilter
	if raw := c.QueryParam("status"); raw != "" {
		st, err := ParseStatus(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.Status = st
	}
	var err error
	if f.DoctorID, err = optionalUUID(c.QueryParam("doctor_id")); err != nil {
		return err
	}
	if f.PatientID, err = optionalUUID(c.QueryParam("patient_id")); err != nil {
		return err
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in AppointmentUpdate
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Doctor Handlers --

func (h *Handler) DoctorQueue(c echo.Context) error {
	p, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	q, err := h.svc.DoctorQueue(c.Request().Context(), p.ID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) DoctorGetAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	a, err := h.svc.AssignedTo(c.Request().Context(), p.ID, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DoctorUpdateStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	var in StatusUpdate
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	a, err := h.svc.SetStatus(c.Request().Context(), p.ID, id, in.Status)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}
