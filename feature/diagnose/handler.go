package diagnose

import (
	"bytes"
	"errors"

	"dispenser-sync/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for diagnoses.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the diagnose routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/diagnose/:caregiverId", h.HandleDiagnose)
}

// HandleDiagnose audits a caregiver's devices.
func (h *Handler) HandleDiagnose(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	findings, err := h.service.Diagnose(c.UserContext(), c.Params("caregiverId"), c.Query("device"))
	if errors.Is(err, ErrMissingCaregiver) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		l.Error("Diagnosis failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if c.Query("format") == "text" {
		var buf bytes.Buffer
		if err := Render(&buf, findings); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.Send(buf.Bytes())
	}
	return c.JSON(findings)
}
