// Package server exposes mounted funnel logics over HTTP.
package server

import (
	"context"
	"errors"
	"time"

	fiberzap "github.com/gofiber/contrib/v3/zap"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/Patil2099/posthog/internal/funnel"
	"github.com/Patil2099/posthog/internal/logging"
	"github.com/Patil2099/posthog/internal/middleware"
	"github.com/Patil2099/posthog/internal/taxonomy"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Server
type Options struct {
	AppName string
	// Token protects every /api route when set
	Token string
	// Taxonomy backs the taxonomy endpoint and the default event of URL
	// driven funnels. Optional.
	Taxonomy taxonomy.Source
	Logger   *zap.Logger
}

// Server is the HTTP gateway in front of a funnel registry
type Server struct {
	registry *funnel.Registry
	opts     Options
	logger   *zap.Logger
}

// New creates a server over registry
func New(registry *funnel.Registry, opts Options) *Server {
	if opts.AppName == "" {
		opts.AppName = "Funnel"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Named("server")
	}
	return &Server{registry: registry, opts: opts, logger: logger}
}

// App builds the fiber application with every route registered
func (s *Server) App() *fiber.App {
	app := fiber.New(createFiberConfig(s.opts.AppName))
	app.Use(fiberzap.New(fiberzap.Config{Logger: s.logger}))

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", middleware.TokenAuth(s.opts.Token))
	api.Get("/taxonomy", s.handleTaxonomy)

	funnels := api.Group("/funnels")
	funnels.Get("/", s.handleList)
	funnels.Post("/:key", s.handleMount)
	funnels.Get("/:key", s.handleView)
	funnels.Delete("/:key", s.handleUnmount)
	funnels.Put("/:key/filters", s.handleSetFilters)
	funnels.Post("/:key/load", s.handleLoad)
	funnels.Post("/:key/clear", s.handleClear)
	funnels.Put("/:key/conversion-window", s.handleConversionWindow)
	funnels.Put("/:key/step-reference", s.handleStepReference)
	funnels.Put("/:key/histogram-step", s.handleHistogramStep)
	funnels.Get("/:key/people", s.handlePeople)
	funnels.Post("/:key/people", s.handleLoadPeople)
	funnels.Post("/:key/insights", s.handleSaveInsight)
	funnels.Get("/:key/url", s.handleURL)
	funnels.Post("/:key/url", s.handleApplyURL)

	return app
}

// Listen serves on addr until ctx is cancelled, then shuts down gracefully
// and unmounts every funnel.
func (s *Server) Listen(ctx context.Context, addr string) error {
	app := s.App()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	s.logger.Info("funnel gateway listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := app.ShutdownWithContext(shutdownCtx)
	for _, key := range s.registry.Keys() {
		s.registry.Unmount(key)
	}
	if listenErr := <-errCh; listenErr != nil && err == nil {
		err = listenErr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// createFiberConfig returns Fiber configuration.
func createFiberConfig(appName string) fiber.Config {
	return fiber.Config{
		AppName: appName,
	}
}
