package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Patil2099/posthog/internal/funnel"
	"github.com/Patil2099/posthog/internal/logging"
	"github.com/Patil2099/posthog/internal/server"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the funnel HTTP gateway",
	Long: `Serve mounted funnels over HTTP. Each funnel is addressed by a key
under /api/funnels/:key. Set gateway_token (FUNNEL_GATEWAY_TOKEN) to require
a bearer token on every /api route.

Examples:
  funnel serve
  funnel serve --port 8080`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(servePort)
	},
}

// listenGateway is replaced in tests
var listenGateway = func(ctx context.Context, srv *server.Server, addr string) error {
	return srv.Listen(ctx, addr)
}

func runServe(port string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port != "" {
		cfg.Port = port
	}

	client := newClient(cfg)
	cache := newResultCache(cfg)
	registry := funnel.NewRegistry(func(key string) funnel.Options {
		return funnelOptions(cfg, client, cache)
	})

	srv := server.New(registry, server.Options{
		AppName:  "Funnel",
		Token:    cfg.GatewayToken,
		Taxonomy: client,
		Logger:   logging.Named("gateway"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.GatewayToken == "" {
		logging.L().Warn("gateway token not set, /api is unauthenticated")
	}
	logging.L().Info("starting funnel gateway",
		zap.String("port", cfg.Port),
		zap.String("backend", cfg.PostHogHost))

	return listenGateway(ctx, srv, ":"+cfg.Port)
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Port to listen on (default from config)")
	RootCmd.AddCommand(serveCmd)
}
