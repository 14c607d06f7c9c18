package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kinship-app/backend/internal/config"
	"github.com/kinship-app/backend/internal/database"
	"github.com/kinship-app/backend/internal/logger"
	"github.com/kinship-app/backend/internal/models"
	"github.com/kinship-app/backend/internal/notify"
	"github.com/kinship-app/backend/internal/push"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "kinship-cli",
		Short: "Operational tooling for the kinship backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg := config.Load()
			if err := logger.Initialize("warn", "cli.log"); err != nil {
				return err
			}
			return database.Initialize(cfg.DatabaseURL)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			database.Close()
			logger.Close()
		},
	}

	root.AddCommand(promoteAdminCmd())
	root.AddCommand(broadcastCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func promoteAdminCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote-admin <email>",
		Short: "Grant the admin role to an account by email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]

			var user models.User
			if err := database.DB.Where("LOWER(email) = LOWER(?)", email).First(&user).Error; err != nil {
				return fmt.Errorf("no account with email %s", email)
			}
			if user.IsAdmin() {
				fmt.Printf("%s is already an admin\n", email)
				return nil
			}

			if err := database.DB.Model(&user).Update("role", models.RoleAdmin).Error; err != nil {
				return fmt.Errorf("failed to promote %s: %w", email, err)
			}
			fmt.Printf("%s promoted to admin\n", email)
			return nil
		},
	}
}

func broadcastCmd() *cobra.Command {
	var title, body, notifType string

	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Send a notification to every active user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title is required")
			}

			cfg := config.Load()
			var transport push.Transport
			if cfg.PushServerKey != "" {
				transport = push.NewClient(cfg.PushGatewayURL, cfg.PushServerKey)
			} else {
				transport = push.NewFakeTransport()
			}

			service := notify.NewService(database.DB, transport)
			count, err := service.Broadcast(context.Background(), notify.Input{
				Title: title,
				Body:  body,
				Type:  notifType,
			})
			if err != nil {
				return fmt.Errorf("broadcast failed: %w", err)
			}
			fmt.Printf("broadcast queued for %d recipients\n", count)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "notification title")
	cmd.Flags().StringVar(&body, "body", "", "notification body")
	cmd.Flags().StringVar(&notifType, "type", "announcement", "notification type")
	return cmd
}
