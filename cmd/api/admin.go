package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/provider-api/internal/repository/postgres"
	authService "github.com/jwalitptl/provider-api/internal/service/auth"
	"github.com/jwalitptl/provider-api/migrations"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			db, err := postgres.NewDB(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			scripts, err := migrations.Scripts()
			if err != nil {
				return fmt.Errorf("failed to read migrations: %w", err)
			}
			if err := postgres.Migrate(ctx, db, scripts); err != nil {
				return err
			}
			log.Info("migrations applied", "count", len(scripts))
			return nil
		},
	}
}

func newIssueTokenCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "issue-token <provider_id>",
		Short: "Print a signed bearer token for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			issuer := authService.NewJWTValidator(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
			token, err := issuer.Issue(args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(token)
		},
	}
}

func newAPIKeyCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api-key",
		Short: "Manage provider API keys",
	}

	withKeys := func(run func(ctx context.Context, keys *authService.APIKeyValidator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			db, err := postgres.NewDB(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			return run(ctx, authService.NewAPIKeyValidator(postgres.NewAPIKeyRepository(db)), args)
		}
	}

	create := &cobra.Command{
		Use:   "create <provider_id>",
		Short: "Create an API key; the secret is shown once",
		Args:  cobra.ExactArgs(1),
	}
	create.RunE = withKeys(func(ctx context.Context, keys *authService.APIKeyValidator, args []string) error {
		key, err := keys.Create(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(create.OutOrStdout(), key)
		return nil
	})

	revoke := &cobra.Command{
		Use:   "revoke <key_id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
	}
	revoke.RunE = withKeys(func(ctx context.Context, keys *authService.APIKeyValidator, args []string) error {
		return keys.Revoke(ctx, args[0])
	})

	cmd.AddCommand(create, revoke)
	return cmd
}
