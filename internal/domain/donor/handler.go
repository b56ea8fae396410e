package donor

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/donors")
	g.GET("", h.ListDonors)
	g.GET("/search", h.SearchDonors)
	g.GET("/:id", h.GetDonor)
	g.POST("", h.CreateDonor)
	g.PUT("/:id", h.UpdateDonor)
	g.DELETE("/:id", h.DeleteDonor)
}

func pathID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid donor id")
	}
	return id, nil
}

func (h *Handler) CreateDonor(c echo.Context) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body")
	}
	d, err := h.svc.CreateDonor(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "Donor added successfully",
		"donorId": d.ID,
		"donor":   d,
	})
}

func (h *Handler) GetDonor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDonor(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDonors(c echo.Context) error {
	items, err := h.svc.ListDonors(c.Request().Context())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Donor{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) SearchDonors(c echo.Context) error {
	group, err := ParseGroupFilter(c.QueryParam("bloodGroup"))
	if err != nil {
		return err
	}
	q := SearchQuery{Name: strings.TrimSpace(c.QueryParam("name")), BloodGroup: group}
	pg := pagination.FromContext(c)

	items, total, err := h.svc.SearchDonors(c.Request().Context(), q, pg.Limit, pg.Offset())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Donor{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"donors":     items,
		"pagination": pagination.NewMeta(pg, total),
	})
}

func (h *Handler) UpdateDonor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body")
	}
	d, err := h.svc.UpdateDonor(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Donor updated successfully",
		"donor":   d,
	})
}

func (h *Handler) DeleteDonor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDonor(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Donor deleted successfully"})
}
