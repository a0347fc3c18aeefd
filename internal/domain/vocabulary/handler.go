package vocabulary

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/DinoHorvat96/Raman-Medical-Research/internal/platform/auth"
)

// Resolver returns the identifiers an export would turn into columns,
// including deactivated codes that are still referenced.
type Resolver interface {
	ResolvedVocabulary(ctx context.Context, category string) ([]string, error)
}

type Handler struct {
	svc      *Service
	resolver Resolver
}

func NewHandler(svc *Service, resolver Resolver) *Handler {
	return &Handler{svc: svc, resolver: resolver}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/vocabulary", auth.RequireRole(auth.RoleAdministrator))
	g.GET("/:category", h.List)
	g.POST("/:category", h.Create)
	g.GET("/:category/resolved", h.Resolved)
	g.GET("/:category/:id", h.Get)
	g.PUT("/:category/:id", h.Update)
	g.DELETE("/:category/:id", h.Deactivate)
}

func (h *Handler) List(c echo.Context) error {
	cat, err := categoryParam(c)
	if err != nil {
		return err
	}
	activeOnly := c.QueryParam("active") == "true"
	items, err := h.svc.List(c.Request().Context(), cat, activeOnly)
	if err != nil {
		return vocabularyHTTPError(err)
	}
	if items == nil {
		items = []*Entry{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	cat, err := categoryParam(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	e, err := h.svc.Get(c.Request().Context(), cat, id)
	if err != nil {
		return vocabularyHTTPError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Create(c echo.Context) error {
	cat, err := categoryParam(c)
	if err != nil {
		return err
	}
	e := Entry{Active: true}
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	e.ID = 0
	if err := h.svc.Create(c.Request().Context(), cat, &e); err != nil {
		return vocabularyHTTPError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) Update(c echo.Context) error {
	cat, err := categoryParam(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	e := Entry{Active: true}
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	e.ID = id
	if err := h.svc.Update(c.Request().Context(), cat, &e); err != nil {
		return vocabularyHTTPError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Deactivate(c echo.Context) error {
	cat, err := categoryParam(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.Deactivate(c.Request().Context(), cat, id); err != nil {
		return vocabularyHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Resolved(c echo.Context) error {
	cat, err := categoryParam(c)
	if err != nil {
		return err
	}
	ids, err := h.resolver.ResolvedVocabulary(c.Request().Context(), string(cat))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve vocabulary")
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"category":    cat,
		"identifiers": ids,
		"total":       len(ids),
	})
}

func categoryParam(c echo.Context) (Category, error) {
	cat, err := ParseCategory(c.Param("category"))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return cat, nil
}

func idParam(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func vocabularyHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "vocabulary operation failed")
}
