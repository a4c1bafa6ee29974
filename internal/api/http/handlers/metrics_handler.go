package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/sweep"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// SweepRunner runs a named sweep on demand.
type SweepRunner interface {
	RunNow(ctx context.Context, name string) (*sweep.Report, error)
}

// MetricsHandler serves daily rollups and manual sweep triggers.
type MetricsHandler struct {
	reports   *service.ReportService
	sweeps    SweepRunner
	validator *dto.Validator
}

// NewMetricsHandler constructs handler.
func NewMetricsHandler(reports *service.ReportService, sweeps SweepRunner, validator *dto.Validator) *MetricsHandler {
	return &MetricsHandler{reports: reports, sweeps: sweeps, validator: validator}
}

// DailyMetrics GET /metrics/daily?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *MetricsHandler) DailyMetrics(c *fiber.Ctx) error {
	principal, err := principal(c)
	if err != nil {
		return err
	}
	var query dto.DailyMetricsQuery
	if err := c.QueryParser(&query); err != nil {
		return apperrors.NewValidationError("invalid query", nil)
	}
	if err := h.validator.Validate(&query); err != nil {
		return err
	}
	metrics, err := h.reports.DailyMetrics(c.UserContext(), principal, query.From, query.To)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewDailyMetrics(metrics)})
}

// RunSweep POST /sweeps/:name.
func (h *MetricsHandler) RunSweep(c *fiber.Ctx) error {
	report, err := h.sweeps.RunNow(c.UserContext(), c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}
