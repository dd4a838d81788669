package devices

import (
	"context"
	"strconv"

	"dispenser-sync/core/logger"
	"dispenser-sync/core/reconcile"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for reconciliation.
type Handler struct {
	service *Service
	passes  reconcile.Coalescer
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the reconcile routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Post("/reconcile", h.HandleReconcile)
}

// HandleReconcile runs a reconciliation pass. Concurrent requests with the
// same mode share a single pass.
func (h *Handler) HandleReconcile(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	dryRun := false
	if raw := c.Query("dry_run"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "dry_run must be a boolean"})
		}
		dryRun = v
	}

	ctx := context.WithoutCancel(c.UserContext())
	report, shared, err := h.passes.Do("dry_run="+strconv.FormatBool(dryRun), func() (*reconcile.Report, error) {
		return h.service.Reconcile(ctx, dryRun), nil
	})
	if err != nil {
		l.Error("Reconciliation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	l.Info("Reconciliation served", zap.String("run_id", report.RunID), zap.Bool("shared", shared))

	status := fiber.StatusOK
	if !dryRun && report.HasFailures() {
		status = fiber.StatusMultiStatus
	}
	return c.Status(status).JSON(report)
}
