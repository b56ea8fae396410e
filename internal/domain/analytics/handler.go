package analytics

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bloodlink/bloodlink/internal/platform/reporting"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/health", h.Health)
	api.GET("/dashboard/analytics", h.GetDashboard)
	api.GET("/export/donors/csv", h.ExportDonorsCSV)
	api.GET("/export/donors/xlsx", h.ExportDonorsXLSX)
	api.GET("/export/inventory/pdf", h.ExportInventoryPDF)
	api.GET("/export/inventory/xlsx", h.ExportInventoryXLSX)
}

// Health is public. It reports the donor count as a cheap proof that the
// database answers queries.
func (h *Handler) Health(c echo.Context) error {
	n, err := h.svc.CountDonors(c.Request().Context())
	if err != nil {
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"status":   "Error",
			"database": "Disconnected",
			"error":    "database unavailable",
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "OK",
		"database":    "Connected",
		"totalDonors": n,
		"timestamp":   h.svc.Now().UTC(),
	})
}

func (h *Handler) GetDashboard(c echo.Context) error {
	d, err := h.svc.Dashboard(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func attach(c echo.Context, filename, contentType string, body []byte) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", filename))
	return c.Blob(http.StatusOK, contentType, body)
}

func (h *Handler) ExportDonorsCSV(c echo.Context) error {
	t, err := h.svc.DonorTable(c.Request().Context())
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := reporting.WriteCSV(&buf, t); err != nil {
		return err
	}
	return attach(c, reporting.Filename("donors_export", h.svc.Now(), "csv"), reporting.ContentTypeCSV, buf.Bytes())
}

func (h *Handler) ExportDonorsXLSX(c echo.Context) error {
	t, err := h.svc.DonorTable(c.Request().Context())
	if err != nil {
		return err
	}
	body, err := reporting.XLSX(t)
	if err != nil {
		return err
	}
	return attach(c, reporting.Filename("donors_export", h.svc.Now(), "xlsx"), reporting.ContentTypeXLSX, body)
}

func (h *Handler) ExportInventoryPDF(c echo.Context) error {
	body, err := h.svc.InventoryPDF(c.Request().Context())
	if err != nil {
		return err
	}
	return attach(c, reporting.Filename("blood_inventory", h.svc.Now(), "pdf"), reporting.ContentTypePDF, body)
}

func (h *Handler) ExportInventoryXLSX(c echo.Context) error {
	t, err := h.svc.InventoryTable(c.Request().Context())
	if err != nil {
		return err
	}
	body, err := reporting.XLSX(t)
	if err != nil {
		return err
	}
	return attach(c, reporting.Filename("blood_inventory", h.svc.Now(), "xlsx"), reporting.ContentTypeXLSX, body)
}
