package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"dispenser-sync/core/loader"
	"dispenser-sync/core/logger"
	"dispenser-sync/core/metrics"
	"dispenser-sync/core/middleware/auth"
	"dispenser-sync/core/middleware/rayid"
	"dispenser-sync/feature/devices"
	"dispenser-sync/feature/diagnose"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveFixture string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reconcile and diagnose over HTTP",
	Long: `Starts the HTTP server exposing on-demand reconciliation, diagnosis,
health and Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFixture, "fixture", "", "Serve in-memory stores loaded from a YAML fixture")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logg, err := bootstrap()
	if err != nil {
		return err
	}
	defer logg.Sync()
	zap.ReplaceGlobals(logg)

	if err := cfg.Server.Validate(); err != nil {
		return err
	}

	docs, rt, err := openStores(cfg, serveFixture, logg)
	if err != nil {
		return err
	}

	rec := metrics.New()
	devicesSvc := devices.NewService(docs, rt, logg, cfg.Reconcile).WithRecorder(rec)
	diagnoseSvc := diagnose.NewService(docs, devicesSvc, logg, cfg.Reconcile)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	mgr := loader.NewManager()
	mgr.Register(devices.NewFeature(devicesSvc))
	mgr.Register(diagnose.NewFeature(diagnoseSvc))

	// RayID first so every log line below can be traced.
	app.Use(rayid.New())
	app.Use(func(c *fiber.Ctx) error {
		l := logger.WithRayID(logg, c)
		l.Info("Request started",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
		)
		err := c.Next()
		if err != nil {
			l.Error("Request error", zap.Error(err))
		}
		return err
	})

	app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey, Public: []string{"/health", "/metrics"}}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "features": mgr.Names()})
	})
	app.Get("/metrics", adaptor.HTTPHandler(rec.Handler()))

	if err := mgr.LoadAll(app); err != nil {
		return err
	}

	go func() {
		logg.Info("Starting server", zap.String("port", cfg.Server.Port), zap.Strings("features", mgr.Names()))
		if err := app.Listen(cfg.Server.Addr()); err != nil {
			logg.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logg.Info("Shutting down server...")
	return app.Shutdown()
}
