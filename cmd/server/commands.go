package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fuomag9/targetwatch/internal/auth"
	"github.com/fuomag9/targetwatch/internal/config"
	"github.com/fuomag9/targetwatch/internal/database"
	"github.com/fuomag9/targetwatch/internal/logging"
	"github.com/fuomag9/targetwatch/internal/notification"
)

var (
	tokenOwner string
	tokenTTL   time.Duration
)

func init() {
	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring engine and HTTP API",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)

	// migrate command
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE:  runMigrate,
	}
	rootCmd.AddCommand(migrateCmd)

	// token command
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token for an owner",
		RunE:  runToken,
	}
	tokenCmd.Flags().StringVar(&tokenOwner, "owner", "", "owner id to embed in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTokenTTL, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(tokenCmd)

	// notify-test command
	notifyTestCmd := &cobra.Command{
		Use:   "notify-test",
		Short: "Send a test message to the configured notification channels",
		RunE:  runNotifyTest,
	}
	rootCmd.AddCommand(notifyTestCmd)
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.Log.Dir, cfg.Log.Level, cfg.IsDevelopment())
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Database.Type != "postgres" {
		return fmt.Errorf("migrations only apply to postgres, database type is %q", cfg.Database.Type)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		return err
	}
	logger.Info("migrations_applied")
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.GeneratedSecret {
		return errors.New("JWT_SECRET is not configured; a token signed with a generated secret would not verify against the server")
	}

	token, err := auth.IssueToken(tokenOwner, cfg.JWTSecret, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	dispatcher, err := notification.NewDispatcher(
		notification.ChannelsFromURLs(cfg.Notify.WebhookURL, cfg.Notify.SlackWebhookURL), logger)
	if err != nil {
		return err
	}
	if !dispatcher.Enabled() {
		return errors.New("no notification channels configured")
	}
	if err := dispatcher.Test(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
	return nil
}
