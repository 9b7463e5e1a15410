package staff

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/pkg/pagination"
)

type Handler struct {
	svc      *Service
	sessions *SessionService
}

func NewHandler(svc *Service, sessions *SessionService) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/login", h.Login)
	api.POST("/token/refresh", h.Refresh)

	authed := api.Group("", auth.RequireAuthenticated())
	authed.GET("/me", h.Me)
	authed.POST("/logout", h.Logout)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/employees", h.CreateEmployee)
	admin.GET("/employees", h.ListEmployees)
	admin.GET("/employees/:id", h.GetEmployee)
	admin.PATCH("/employees/:id", h.UpdateEmployee)
	admin.DELETE("/employees/:id", h.DeleteEmployee)
	admin.POST("/departments", h.CreateDepartment)
	admin.GET("/departments", h.ListDepartments)
	admin.GET("/departments/:id", h.GetDepartment)
	admin.PATCH("/departments/:id", h.UpdateDepartment)
	admin.DELETE("/departments/:id", h.DeleteDepartment)

	desk := api.Group("/receptionist", auth.RequireRole(auth.RoleAdmin, auth.RoleReceptionist))
	desk.GET("/departments", h.ListDepartments)
	desk.GET("/doctors/by-department/:id", h.DoctorsByDepartment)

	doctor := api.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/profile", h.Profile)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Sessions --

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.sessions.Login(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil || req.Refresh == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh token is required")
	}
	pair, err := h.sessions.Refresh(c.Request().Context(), req.Refresh)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pair)
}

func (h *Handler) Logout(c echo.Context) error {
	var req LogoutRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	ctx := c.Request().Context()
	if err := h.sessions.Logout(ctx, auth.ClaimsFromContext(ctx), req.Refresh); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Me(c echo.Context) error {
	p, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	u, err := h.sessions.Me(c.Request().Context(), p)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Profile(c echo.Context) error {
	p, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	u, err := h.sessions.Me(c.Request().Context(), p)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u.Profile())
}

// -- Employees --

func (h *Handler) CreateEmployee(c echo.Context) error {
	var in EmployeeInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := h.svc.CreateEmployee(c.Request().Context(), in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListEmployees(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListEmployees(c.Request().Context(), c.QueryParam("role"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetEmployee(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.GetEmployee(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateEmployee(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in EmployeeUpdate
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.UpdateEmployee(c.Request().Context(), id, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteEmployee(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	if err := h.svc.DeleteEmployee(c.Request().Context(), p, id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Departments --

func (h *Handler) CreateDepartment(c echo.Context) error {
	var in DepartmentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.CreateDepartment(c.Request().Context(), in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) ListDepartments(c echo.Context) error {
	items, err := h.svc.ListDepartments(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetDepartment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDepartment(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDepartment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in DepartmentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.UpdateDepartment(c.Request().Context(), id, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDepartment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDepartment(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DoctorsByDepartment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	doctors, err := h.svc.DoctorsByDepartment(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	profiles := make([]Profile, len(doctors))
	for i, d := range doctors {
		profiles[i] = d.Profile()
	}
	return c.JSON(http.StatusOK, profiles)
}
