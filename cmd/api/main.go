package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harentsoar/clinic-api/internal/config"
	"github.com/harentsoar/clinic-api/internal/db"
	"github.com/harentsoar/clinic-api/internal/models"
	"github.com/harentsoar/clinic-api/internal/repository"
	"github.com/harentsoar/clinic-api/internal/services"
	"github.com/harentsoar/clinic-api/internal/utils"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinic-api",
		Short:        "Clinic API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsProduction() {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg))
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}
	for _, direction := range []string{"up", "down"} {
		cmd.AddCommand(&cobra.Command{
			Use:   direction,
			Short: fmt.Sprintf("Run all %s migrations", direction),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				logger := newLogger(cfg)
				if err := db.Migrate(cfg.DatabaseURL, direction); err != nil {
					logger.Error().Err(err).Str("direction", direction).Msg("migration failed")
					return err
				}
				logger.Info().Str("direction", direction).Msg("migrations applied")
				return nil
			},
		})
	}
	return cmd
}

func seedAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create an administrator account without email verification",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			firstName, _ := cmd.Flags().GetString("first-name")
			lastName, _ := cmd.Flags().GetString("last-name")
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			if email == "" || password == "" {
				return errors.New("--email and --password (or ADMIN_PASSWORD) are required")
			}
			if cfg.DatabaseURL == "" {
				return errors.New("missing env: DATABASE_URL")
			}
			logger := newLogger(cfg)
			utils.PasswordCost = cfg.PasswordCost

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, 2, 1)
			if err != nil {
				return err
			}
			defer pool.Close()

			registration := services.NewRegistrationService(repository.NewAccountRepo(pool), nil, nil, cfg.DBTimeout, logger)
			acct, err := registration.RegisterDirect(ctx, services.RegistrationForm{
				Role:            models.RoleAdmin,
				Email:           email,
				Password:        password,
				ConfirmPassword: password,
				FirstName:       firstName,
				LastName:        lastName,
			})
			if err != nil {
				logger.Error().Err(err).Str("email", email).Msg("seed admin failed")
				return err
			}
			logger.Info().Int64("user_id", acct.User.ID).Str("email", acct.User.Email).Msg("admin created")
			return nil
		},
	}
	cmd.Flags().String("email", "", "Administrator email")
	cmd.Flags().String("password", "", "Administrator password (defaults to $ADMIN_PASSWORD)")
	cmd.Flags().String("first-name", "Clinic", "Administrator first name")
	cmd.Flags().String("last-name", "Admin", "Administrator last name")
	return cmd
}
