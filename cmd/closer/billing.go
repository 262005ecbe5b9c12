package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loadline/closer/internal/billing"
	"github.com/loadline/closer/internal/config"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newBillingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Weekly dispatch fee settlement",
	}
	cmd.AddCommand(newBillingRunCmd())
	cmd.AddCommand(newBillingScheduleCmd())
	return cmd
}

func buildRunner(cmd *cobra.Command, cfg *config.Config, gormDB *gorm.DB) (*billing.Runner, error) {
	payments, err := billing.NewHTTPPaymentClient(cfg.Billing.PaymentURL, cfg.Billing.PaymentToken)
	if err != nil {
		return nil, err
	}
	notifier, err := buildNotifier(cfg)
	if err != nil {
		return nil, err
	}
	return billing.NewRunner(gormDB, payments, notifier, cfg.Billing, cmd.OutOrStdout())
}

func newBillingRunCmd() *cobra.Command {
	var (
		configPath string
		weekFlag   string
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Settle pending invoices for one billing week",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			runner, err := buildRunner(cmd, cfg, gormDB)
			if err != nil {
				return err
			}

			week := billing.WeekEnding(time.Now(), runner.Location())
			if weekFlag != "" {
				parsed, err := time.ParseInLocation("2006-01-02", weekFlag, runner.Location())
				if err != nil {
					return fmt.Errorf("parse --week-ending: %w", err)
				}
				if parsed.Weekday() != time.Friday {
					return fmt.Errorf("--week-ending %s is a %s, weeks end on Friday", weekFlag, parsed.Weekday())
				}
				week = parsed
			}

			summary, err := runner.RunWeek(context.Background(), week, dryRun)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Week %s: charged=%d skipped=%d failed=%d reconciled=%d needs_reconcile=%d\n",
				summary.WeekEnding.Format("2006-01-02"), summary.Charged, summary.Skipped,
				summary.Failed, summary.Reconciled, summary.NeedsReconcile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "closer.yaml", "path to config file")
	cmd.Flags().StringVar(&weekFlag, "week-ending", "", "billing week to settle (YYYY-MM-DD, a Friday; defaults to the most recent)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be charged without charging")
	return cmd
}

func newBillingScheduleCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run weekly billing on the configured cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			runner, err := buildRunner(cmd, cfg, gormDB)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
				cancel()
			}()

			return runner.Schedule(ctx, cfg.Billing.CronSpec)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "closer.yaml", "path to config file")
	return cmd
}
