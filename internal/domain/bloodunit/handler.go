package bloodunit

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
	"github.com/bloodlink/bloodlink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/blood-units", h.ListUnits)
	api.GET("/blood-units/filter", h.FilterUnits)
	api.GET("/blood-units/:id", h.GetUnit)
	api.GET("/blood-inventory", h.GetInventory)
	api.GET("/blood-inventory/critical", h.GetCritical)
	api.GET("/alerts/expiry", h.GetAlerts)

	admin := api.Group("", auth.RequireAdmin())
	admin.POST("/blood-units", h.CreateUnit)
	admin.PUT("/blood-units/:id", h.UpdateUnit)
	admin.DELETE("/blood-units/:id", h.DeleteUnit)
	admin.POST("/issue-blood", h.IssueBlood)
	admin.POST("/remove-expired-blood", h.RemoveExpired)
	admin.POST("/blood-inventory/reconcile", h.Reconcile)
}

func bindInput(c echo.Context) (Input, error) {
	var in Input
	if err := c.Bind(&in); err != nil {
		return in, apperr.Validation("invalid request body")
	}
	return in, nil
}

func (h *Handler) CreateUnit(c echo.Context) error {
	in, err := bindInput(c)
	if err != nil {
		return err
	}
	u, err := h.svc.CreateUnit(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":     "Blood unit added successfully",
		"bloodUnitId": u.ID,
		"bloodUnit":   u,
	})
}

func (h *Handler) GetUnit(c echo.Context) error {
	u, err := h.svc.GetUnit(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUnits(c echo.Context) error {
	items, err := h.svc.ListUnits(c.Request().Context())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*UnitView{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) FilterUnits(c echo.Context) error {
	var f Filter
	if v := c.QueryParam("bloodGroup"); v != "" {
		g, err := bloodgroup.Parse(v)
		if err != nil {
			return apperr.Validation("invalid blood group %q", v)
		}
		f.BloodGroup = g
	}
	if v := c.QueryParam("status"); v != "" {
		st, err := ParseStatus(v)
		if err != nil {
			return err
		}
		f.Status = st
	}
	f.DonorName = c.QueryParam("donorName")

	pg := pagination.FromContext(c)
	items, total, err := h.svc.FilterUnits(c.Request().Context(), f, pg.Limit, pg.Offset())
	if err != nil {
		return err
	}
	if items == nil {
		items = []*UnitView{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"bloodUnits": items,
		"pagination": pagination.NewMeta(pg, total),
	})
}

func (h *Handler) UpdateUnit(c echo.Context) error {
	in, err := bindInput(c)
	if err != nil {
		return err
	}
	u, err := h.svc.UpdateUnit(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":   "Blood unit updated successfully",
		"bloodUnit": u,
	})
}

func (h *Handler) DeleteUnit(c echo.Context) error {
	if err := h.svc.DeleteUnit(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Blood unit deleted successfully"})
}

func (h *Handler) IssueBlood(c echo.Context) error {
	var req IssueRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	u, err := h.svc.Issue(c.Request().Context(), req.BloodUnitID, req.PatientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":   "Blood unit issued successfully",
		"bloodUnit": u,
	})
}

func (h *Handler) RemoveExpired(c echo.Context) error {
	res, err := h.svc.ExpirePass(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Expired blood units removed successfully",
		"expired": res.Expired,
		"groups":  res.Groups,
	})
}

func (h *Handler) GetInventory(c echo.Context) error {
	rows, err := h.svc.GetInventory(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

// GetCritical accepts ?threshold=, defaulting to the configured value.
func (h *Handler) GetCritical(c echo.Context) error {
	threshold := h.svc.cfg.CriticalThreshold
	if v := c.QueryParam("threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperr.Validation("threshold must be an integer")
		}
		threshold = n
	}
	rows, err := h.svc.GetCriticalGroups(c.Request().Context(), threshold)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handler) GetAlerts(c echo.Context) error {
	alerts, err := h.svc.Alerts(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, alerts)
}

func (h *Handler) Reconcile(c echo.Context) error {
	drift, err := h.svc.Reconcile(c.Request().Context())
	if err != nil {
		return err
	}
	if drift == nil {
		drift = []Drift{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Inventory reconciled",
		"drift":   drift,
	})
}
