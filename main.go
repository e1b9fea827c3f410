// Command go_transcript is a YouTube transcript MCP server.
//
// Exposes four MCP tools: get_transcript, get_raw_subtitles,
// get_available_subtitles, get_video_info. Subtitles come from yt-dlp,
// with an optional speech-to-text fallback. Serves streamable HTTP and
// SSE transports from one port.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/session"
	"github.com/anatolykoptev/go_transcript/internal/transcriptserver"
	"github.com/anatolykoptev/go_transcript/internal/transport"
)

var version = "dev"

func main() {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "go_transcript",
		Short:         "YouTube transcript MCP server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(serveCmd(), fetchCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("go_transcript failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	closeLog := setupLogging()
	defer closeLog()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app := newApp(ctx, cfg)
	defer app.Close()

	reg := session.NewRegistry(session.WithGauge(engine.SetActiveSessions))
	deps := app.deps()
	handler := transport.NewHandler(reg, func() *mcp.Server {
		return transcriptserver.NewServer(version, deps)
	}, transport.Options{
		Endpoint: transport.EndpointResolver{
			BaseURLs:            cfg.PublicBaseURLs,
			GatewayHeader:       cfg.GatewayHeader,
			GatewayOverride:     cfg.GatewayOverrideURL,
			GatewayRegistryHost: cfg.GatewayRegistryHost,
		},
		EventStore: mcp.NewMemoryEventStore(nil),
		Failures:   app.failures,
	})

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go reg.Run(sweepCtx, cfg.SessionSweepInterval, cfg.SessionTTL)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting go_transcript",
		slog.String("version", version),
		slog.String("port", cfg.Port),
		slog.Bool("stt", cfg.STTEnabled()),
		slog.Duration("session_ttl", cfg.SessionTTL),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
