package devices

import (
	"github.com/gofiber/fiber/v2"
)

// Feature exposes reconciliation over HTTP.
type Feature struct {
	handler *Handler
}

// NewFeature creates the devices feature.
func NewFeature(service *Service) *Feature {
	return &Feature{handler: NewHandler(service)}
}

// Name returns the feature name.
func (f *Feature) Name() string {
	return "devices"
}

// IsEnabled reports whether the feature should be loaded.
func (f *Feature) IsEnabled() bool {
	return true
}

// Load registers the feature routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}
