package billing

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hillcrest/hms/internal/platform/apperr"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/pkg/pagination"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	desk := api.Group("/receptionist/bills", auth.RequireRole(auth.RoleAdmin, auth.RoleReceptionist))
	desk.POST("", h.CreateConsultationBill)
	desk.GET("", h.ListConsultationBills)
	desk.GET("/:id", h.GetConsultationBill)

	admin := api.Group("/admin/bills", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.Ledger)
	admin.GET("/export", h.ExportLedger)
}

func optionalUUID(raw, name string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
	}
	return &id, nil
}

func ledgerFilter(c echo.Context) (LedgerFilter, error) {
	patientID, err := optionalUUID(c.QueryParam("patient_id"), "patient_id")
	if err != nil {
		return LedgerFilter{}, err
	}
	return LedgerFilter{Source: c.QueryParam("source"), PatientID: patientID}, nil
}

func (h *Handler) CreateConsultationBill(c echo.Context) error {
	var in ConsultationBillInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actor, err := auth.PrincipalFromContext(c.Request().Context())
	if err != nil {
		return err
	}
	b, err := h.svc.CreateConsultationBill(c.Request().Context(), actor, in)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) ListConsultationBills(c echo.Context) error {
	pg := pagination.FromContext(c)
	patientID, err := optionalUUID(c.QueryParam("patient_id"), "patient_id")
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListConsultationBills(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetConsultationBill(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.GetConsultationBill(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Ledger(c echo.Context) error {
	pg := pagination.FromContext(c)
	f, err := ledgerFilter(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.Ledger(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ExportLedger(c echo.Context) error {
	f, err := ledgerFilter(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := h.svc.ExportLedger(c.Request().Context(), f, &buf); err != nil {
		return apperr.HTTPError(err)
	}
	name := fmt.Sprintf("ledger-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}
