package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roraos/roraos-go/cli/keystore"
	"github.com/roraos/roraos-go/core"
	"github.com/roraos/roraos-go/integrations/telegram"
)

var (
	botToken   string
	botAllowed []int64
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	Long: `Run a Telegram bot that answers messages through the RoraOS API.

The bot token comes from --token, the TELEGRAM_BOT_TOKEN environment
variable, or a keystore entry named "telegram".`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(botCmd)

	botCmd.Flags().StringVar(&botToken, "token", "", "Telegram bot token")
	botCmd.Flags().Int64SliceVar(&botAllowed, "allow", nil, "allowed Telegram user IDs (repeatable; empty allows everyone)")
}

func resolveBotToken() (string, error) {
	if botToken != "" {
		return botToken, nil
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		return token, nil
	}
	ks, err := keystore.NewKeystore()
	if err != nil {
		return "", fmt.Errorf("failed to open keystore: %w", err)
	}
	token, err := ks.Get("telegram")
	if err != nil {
		return "", fmt.Errorf("no bot token found: use --token, TELEGRAM_BOT_TOKEN, or 'roraos keys set telegram'")
	}
	return token, nil
}

func runBot(cmd *cobra.Command, args []string) error {
	token, err := resolveBotToken()
	if err != nil {
		return exitWithCode(ExitValidation, err)
	}

	client, err := newClient()
	if err != nil {
		return exitWithCode(ExitValidation, err)
	}

	level := slog.LevelInfo
	if IsVerbose() {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var systemPrompt string
	if cfg := GetConfig(); cfg != nil {
		systemPrompt = cfg.SystemPrompt
	}

	store, closeStore, err := newStore()
	if err != nil {
		return exitWithCode(ExitValidation, err)
	}
	defer closeStore()

	bot := telegram.New(client, telegram.Config{
		Token:        token,
		AllowedIDs:   botAllowed,
		Model:        core.ModelID(GetModel()),
		SystemPrompt: systemPrompt,
		Store:        store,
		Logger:       log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bot.Start(ctx); err != nil {
		return err
	}
	log.Info("bot running", "model", GetModel())

	<-ctx.Done()
	bot.Stop()
	return nil
}
