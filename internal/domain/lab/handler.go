package lab

import (
	"fmt"
	"mime"
	"net/http"
	"strings"

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
	catalogue := api.Group("/admin/lab-test-types", auth.RequireRole(auth.RoleAdmin))
	catalogue.POST("", h.CreateTestType)
	catalogue.GET("", h.ListTestTypes)
	catalogue.GET("/:id", h.GetTestType)
	catalogue.PUT("/:id", h.UpdateTestType)
	catalogue.DELETE("/:id", h.DeleteTestType)

	bench := api.Group("/lab", auth.RequireRole(auth.RoleLabTechnician))
	bench.GET("/pending", h.Pending)
	bench.GET("/pending/:id", h.PendingRequest)
	bench.GET("/completed", h.Completed)
	bench.POST("/process", h.Process)
	bench.GET("/billing", h.ListBills)

	api.GET("/lab/completed/:id", h.CompletedRequest, auth.RequireRole(auth.RoleLabTechnician, auth.RoleDoctor))
	api.GET("/lab/results/:id/file", h.ResultFile, auth.RequireRole(auth.RoleLabTechnician, auth.RoleDoctor))

	doc := api.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	doc.GET("/lab-requests", h.DoctorRequests)
	doc.POST("/lab-requests", h.RequestTest)
	doc.GET("/lab-results", h.DoctorResults)
	doc.GET("/lab-results/:request_id", h.DoctorResult)
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func queryID(c echo.Context, name string) (uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// -- Test Types --

func (h *Handler) CreateTestType(c echo.Context) error {
	var in TestTypeInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.CreateTestType(c.Request().Context(), in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListTestTypes(c echo.Context) error {
	items, err := h.svc.ListTestTypes(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetTestType(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	t, err := h.svc.GetTestType(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) UpdateTestType(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var in TestTypeInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.UpdateTestType(c.Request().Context(), id, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTestType(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTestType(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Bench --

func (h *Handler) Pending(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Pending(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Completed(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Completed(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) PendingRequest(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	r, err := h.svc.PendingRequest(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) CompletedRequest(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	caller, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	r, err := h.svc.CompletedRequest(c.Request().Context(), caller, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

// Process accepts either a multipart form (result_details plus an optional
// result_file) or a JSON body with result_details.
func (h *Handler) Process(c echo.Context) error {
	requestID, err := queryID(c, "request_id")
	if err != nil {
		return err
	}
	tech, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}

	var in ProcessInput
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		in.ResultDetails = c.FormValue("result_details")
		fh, err := c.FormFile("result_file")
		switch {
		case err == nil:
			src, err := fh.Open()
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "unreadable result_file")
			}
			defer src.Close()
			ct, _, _ := mime.ParseMediaType(fh.Header.Get(echo.HeaderContentType))
			in.File = &Upload{FileName: fh.Filename, ContentType: ct, Content: src}
		case err != http.ErrMissingFile:
			return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart form")
		}
	} else if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	out, err := h.svc.Process(c.Request().Context(), tech, requestID, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListBills(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListBills(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ResultFile(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	caller, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	rc, meta, err := h.svc.ResultFile(c.Request().Context(), caller, id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

// -- Doctor --

func (h *Handler) RequestTest(c echo.Context) error {
	appointmentID, err := queryID(c, "appointment_id")
	if err != nil {
		return err
	}
	var in RequestInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	doctor, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	r, err := h.svc.RequestTest(c.Request().Context(), doctor, appointmentID, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) DoctorRequests(c echo.Context) error {
	doctor, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.DoctorRequests(c.Request().Context(), doctor.ID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) DoctorResults(c echo.Context) error {
	doctor, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.DoctorResults(c.Request().Context(), doctor.ID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) DoctorResult(c echo.Context) error {
	requestID, err := pathID(c, "request_id")
	if err != nil {
		return err
	}
	doctor, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	r, err := h.svc.DoctorResult(c.Request().Context(), doctor.ID, requestID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}
