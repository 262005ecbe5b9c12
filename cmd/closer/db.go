package main

import (
	"fmt"
	"io"

	"github.com/loadline/closer/internal/alert"
	"github.com/loadline/closer/internal/config"
	"github.com/loadline/closer/internal/db"
	"github.com/loadline/closer/internal/ledger"
	"github.com/loadline/closer/internal/mailer"
	"github.com/loadline/closer/internal/negotiation"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}
	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update all database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables\n", len(db.AllModels()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "closer.yaml", "path to config file")
	return cmd
}

// connectFromConfig loads config and opens the database.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", cfg.DB.Database, err)
	}
	return cfg, gormDB, nil
}

// buildNotifier assembles the operator alert fan-out from config. Channels
// without credentials are skipped.
func buildNotifier(cfg *config.Config) (alert.Notifier, error) {
	var notifiers []alert.Notifier
	if cfg.Alerts.Slack.BotToken != "" {
		n, err := alert.NewSlackNotifier(cfg.Alerts.Slack.BotToken, cfg.Alerts.Slack.ChannelID)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	if cfg.Alerts.Discord.BotToken != "" {
		n, err := alert.NewDiscordNotifier(cfg.Alerts.Discord.BotToken, cfg.Alerts.Discord.ChannelID)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	if len(notifiers) == 0 {
		return nil, nil
	}
	return alert.NewMulti(notifiers...), nil
}

// buildMachine wires the negotiation state machine with the real mail
// dispatcher, alerting, and fee allocation.
func buildMachine(cfg *config.Config, gormDB *gorm.DB, out io.Writer) (*negotiation.Machine, error) {
	dispatcher, err := mailer.NewSendmailDispatcher(cfg.Mail.SendmailPath)
	if err != nil {
		return nil, err
	}
	notifier, err := buildNotifier(cfg)
	if err != nil {
		return nil, err
	}
	fees, err := ledger.NewAllocator(cfg.Fees)
	if err != nil {
		return nil, err
	}
	return negotiation.New(negotiation.Opts{
		DB:         gormDB,
		Dispatcher: dispatcher,
		Notifier:   notifier,
		Fees:       fees,
		Tokens: mailer.TokenOpts{
			Domain:    cfg.Mail.Domain,
			LocalPart: cfg.Mail.LocalPart,
		},
		Pricing: cfg.Pricing,
		Out:     out,
	})
}
