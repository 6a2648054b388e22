package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppamtools/shift-assigner/pkg/db"
	"github.com/ppamtools/shift-assigner/pkg/ormstore"
	"github.com/ppamtools/shift-assigner/pkg/postgres"
)

// Migrate brings the store's schema up to date and returns what was applied
func Migrate(ctx context.Context, store db.Store, logger *zap.Logger) ([]string, error) {
	switch s := store.(type) {
	case *postgres.DB:
		applied, err := s.RunMigrations(ctx, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return applied, nil
	case *ormstore.Store:
		if err := s.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to auto-migrate: %w", err)
		}
		logger.Debug("AutoMigrate finished")
		return []string{"automigrate"}, nil
	default:
		return nil, fmt.Errorf("store %T does not support migrations", store)
	}
}

// MigrateCmd creates the migrate command
func MigrateCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applied, err := Migrate(app.Ctx, app.Store, app.Logger)
			if err != nil {
				return err
			}

			if len(applied) == 0 {
				dimColor.Fprintln(cmd.OutOrStdout(), "Schema already up to date")
				return nil
			}
			for _, name := range applied {
				okColor.Fprintf(cmd.OutOrStdout(), "✓ %s\n", name)
			}
			return nil
		},
	}
}
