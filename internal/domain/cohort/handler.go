package cohort

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/DinoHorvat96/Raman-Medical-Research/internal/platform/auth"
)

// Inclusion switches are HTML-checkbox style: present means on.
const (
	keyIncludeConditions      = "include_conditions"
	keyIncludeOtherConditions = "include_other_conditions"
	keyIncludeSurgeries       = "include_surgeries"
	keyIncludeSystemic        = "include_systemic"
	keyIncludeMedications     = "include_medications"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/export", auth.RequireAuthenticated())
	g.POST("", h.Export)
	g.GET("/summary", h.Summary)
}

func (h *Handler) Export(c echo.Context) error {
	format, err := ParseFormat(c.FormValue("format"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	form, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form body")
	}

	filters := make(map[string]string, len(form))
	for k, v := range form {
		if len(v) > 0 {
			filters[k] = v[0]
		}
	}
	_, incConditions := form[keyIncludeConditions]
	_, incOther := form[keyIncludeOtherConditions]
	_, incSurgeries := form[keyIncludeSurgeries]
	_, incSystemic := form[keyIncludeSystemic]
	_, incMedications := form[keyIncludeMedications]

	ctx := c.Request().Context()
	res, err := h.svc.Export(ctx, Request{
		Format: format,
		Mode:   ParseExportMode(c.FormValue("data_type")),
		Include: Inclusion{
			Conditions:      incConditions,
			OtherConditions: incOther,
			Surgeries:       incSurgeries,
			Systemic:        incSystemic,
			Medications:     incMedications,
		},
		Filters: filters,
		Role:    auth.RoleFromContext(ctx),
	})
	if err != nil {
		return exportHTTPError(err)
	}

	hdr := c.Response().Header()
	hdr.Set(echo.HeaderContentDisposition, "attachment; filename="+res.Filename)
	hdr.Set("X-Export-Id", res.ExportID)
	hdr.Set("X-Export-Mode", string(res.Policy.Effective))
	return c.Blob(http.StatusOK, res.ContentType, res.Body)
}

func (h *Handler) Summary(c echo.Context) error {
	sum, err := h.svc.Summary(c.Request().Context())
	if err != nil {
		return exportHTTPError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func exportHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable, please retry the export")
	case errors.Is(err, ErrSpreadsheetWriter):
		return echo.NewHTTPError(http.StatusInternalServerError, "spreadsheet export is unavailable; use CSV or contact the operator")
	case errors.Is(err, ErrUnsupportedFormat):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "export failed")
}
