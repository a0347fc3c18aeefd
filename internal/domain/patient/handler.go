package patient

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/DinoHorvat96/Raman-Medical-Research/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients", auth.RequireRole(auth.RoleStaff))
	g.GET("/next-id", h.NextID)
	g.GET("/:id/available", h.Available)
	g.POST("", h.Register)
}

func (h *Handler) NextID(c echo.Context) error {
	next, err := h.svc.NextID(c.Request().Context())
	if err != nil {
		return patientHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"next_id": next})
}

func (h *Handler) Available(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	ok, err := h.svc.Available(c.Request().Context(), id)
	if err != nil {
		return patientHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id": id,
		"available":  ok,
	})
}

func (h *Handler) Register(c echo.Context) error {
	var r Registration
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	st, err := h.svc.Register(c.Request().Context(), &r)
	if err != nil {
		return patientHTTPError(err)
	}
	return c.JSON(http.StatusCreated, st)
}

func patientHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrIDTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrExhausted):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "patient operation failed")
}
