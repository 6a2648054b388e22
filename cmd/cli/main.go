package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ppamtools/shift-assigner/cmd/cli/commands"
	"github.com/ppamtools/shift-assigner/internal/config"
	"github.com/ppamtools/shift-assigner/pkg/utils/logging"
)

var (
	env      string
	logLevel string
)

func main() {
	app := &commands.AppContext{}

	rootCmd := &cobra.Command{
		Use:           "cli",
		Short:         "PPAM shift assigner",
		Long:          `Fills preaching-point shifts from approved requests, pending requests and publisher availability.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp(app)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if err := app.Close(); err != nil && app.Logger != nil {
				app.Logger.Warn("Failed to close database", zap.Error(err))
			}
			if app.Logger != nil {
				app.Logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.MarkPersistentFlagRequired("env")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Console log level (debug, info, warn, error)")

	rootCmd.AddCommand(commands.AssignShiftCmd(app))
	rootCmd.AddCommand(commands.RunBatchCmd(app))
	rootCmd.AddCommand(commands.DaemonCmd(app))
	rootCmd.AddCommand(commands.MigrateCmd(app))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// initApp sets up logger, config, database and engine
func initApp(app *commands.AppContext) error {
	ctx := context.Background()

	level, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logger, err := logging.New(logging.Options{Env: env, Dir: "logs", ConsoleLevel: level})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger

	logger.Info("Starting application", zap.String("environment", env))

	logger.Info("Loading configuration")
	cfg, err := config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Debug("Configuration loaded successfully")

	built, err := commands.NewAppContext(ctx, cfg, logger)
	if err != nil {
		return err
	}
	*app = *built
	logger.Info("Engine initialized successfully")

	return nil
}
