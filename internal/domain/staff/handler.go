package staff

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/staff", h.ListStaff)
	api.GET("/staff/:id", h.GetStaff)

	admin := api.Group("/staff", auth.RequireAdmin())
	admin.POST("", h.CreateStaff)
	admin.PUT("/:id", h.UpdateStaff)
	admin.DELETE("/:id", h.DeleteStaff)
}

func (h *Handler) CreateStaff(c echo.Context) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body")
	}
	st, err := h.svc.CreateStaff(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "Staff added successfully",
		"staffId": st.ID,
		"staff":   st,
	})
}

func (h *Handler) GetStaff(c echo.Context) error {
	st, err := h.svc.GetStaff(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) ListStaff(c echo.Context) error {
	items, err := h.svc.ListStaff(c.Request().Context())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Staff{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateStaff(c echo.Context) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body")
	}
	st, err := h.svc.UpdateStaff(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Staff updated successfully",
		"staff":   st,
	})
}

func (h *Handler) DeleteStaff(c echo.Context) error {
	if err := h.svc.DeleteStaff(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Staff deleted successfully"})
}
