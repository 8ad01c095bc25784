package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roraos/roraos-go/core"
	"github.com/roraos/roraos-go/roraos"
	"github.com/roraos/roraos-go/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP proxy server",
	Long: `Run an HTTP proxy in front of the RoraOS API.

The proxy exposes /chat, /chat/stream, /models, /summarize, /translate
and /health. Requests may override the API key with an X-API-Key header.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8000", "listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if IsVerbose() {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	client, err := newClient()
	if err != nil {
		return exitWithCode(ExitValidation, err)
	}

	var provOpts []roraos.Option
	if cfg := GetConfig(); cfg != nil && cfg.BaseURL != "" {
		provOpts = append(provOpts, roraos.WithBaseURL(cfg.BaseURL))
	}

	srv := server.New(server.Config{
		Logger: log,
		Client: client,
		ClientFactory: func(apiKey string) *core.Client {
			return core.NewClient(roraos.New(apiKey, provOpts...))
		},
		DefaultModel: core.ModelID(GetModel()),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx, serveAddr)
}
