package sweep

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	sweepsvc "github.com/Liliyakhu/library-service-project/service/sweep"
)

// On-demand runs of the background sweeps, for operators.
type Controller struct {
	Svc sweepsvc.Service
	Log *slog.Logger
}

// POST /v1/admin/sweeps/expiration
func (h *Controller) RunExpiration(c echo.Context) error {
	sum, err := h.Svc.ExpireSessions(c.Request().Context())
	if err != nil {
		h.Log.Error("expiration sweep", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "sweep failed"})
	}
	return c.JSON(http.StatusOK, sum)
}

// POST /v1/admin/sweeps/overdue
func (h *Controller) RunOverdue(c echo.Context) error {
	sum, err := h.Svc.NotifyOverdue(c.Request().Context())
	if err != nil {
		h.Log.Error("overdue sweep", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "sweep failed", "summary": sum})
	}
	return c.JSON(http.StatusOK, sum)
}

// POST /v1/admin/sweeps/fines
func (h *Controller) RunFines(c echo.Context) error {
	sum, err := h.Svc.CreateOverdueFines(c.Request().Context())
	if err != nil {
		h.Log.Error("fine sweep", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "sweep failed"})
	}
	return c.JSON(http.StatusOK, sum)
}
