package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/loadline/closer/internal/negotiation"
	"github.com/loadline/closer/internal/zone"
	"github.com/spf13/cobra"
)

func newNegCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "neg",
		Short: "Operate on negotiations",
	}
	cmd.AddCommand(newNegInitiateCmd())
	cmd.AddCommand(newNegApproveCmd())
	cmd.AddCommand(newNegRetryEmailCmd())
	cmd.AddCommand(newNegManualCmd())
	cmd.AddCommand(newNegWonCmd())
	cmd.AddCommand(newNegSignCmd())
	return cmd
}

func negID(args []string) (uint, error) {
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid negotiation id %q", args[0])
	}
	return uint(id), nil
}

func withMachine(cmd *cobra.Command, configPath string, fn func(ctx context.Context, m *negotiation.Machine) error) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	machine, err := buildMachine(cfg, gormDB, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return fn(context.Background(), machine)
}

func newNegInitiateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "initiate <id>",
		Short: "Send the initial outreach email for a negotiation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := negID(args)
			if err != nil {
				return err
			}
			return withMachine(cmd, configPath, func(ctx context.Context, m *negotiation.Machine) error {
				out, err := m.Initiate(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Negotiation %d: %s\n", id, out.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "closer.yaml", "path to config file")
	return cmd
}

func newNegApproveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Dispatch a draft waiting in review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := negID(args)
			if err != nil {
				return err
			}
			return withMachine(cmd, configPath, func(ctx context.Context, m *negotiation.Machine) error {
				out, err := m.Approve(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Approved: negotiation %d is now %s\n", id, out.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "closer.yaml", "path to config file")
	return cmd
}

func newNegRetryEmailCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "retry-email <id>",
		Short: "Resend the pending close email for a CLOSED_PENDING_EMAIL negotiation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := negID(args)
			if err != nil {
				return err
			}
			return withMachine(cmd, configPath, func(ctx context.Context, m *negotiation.Machine) error {
				out, err := m.RetryPendingEmail(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Negotiation %d: %s (%s)\n", id, out.Status, out.Reason)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "closer.yaml", "path to config file")
	return cmd
}

func newNegManualCmd() *cobra.Command {
	var (
		configPath string
		reason     string
	)

	cmd := &cobra.Command{
		Use:   "manual <id>",
		Short: "Stop automation and hand the negotiation to a human",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := negID(args)
			if err != nil {
				return err
			}
			return withMachine(cmd, configPath, func(ctx context.Context, m *negotiation.Machine) error {
				if err := m.MarkManual(ctx, id, reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Negotiation %d set to MANUAL\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "closer.yaml", "path to config file")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why automation is being stopped")
	return cmd
}

func newNegWonCmd() *cobra.Command {
	var (
		configPath string
		grossCents int64
	)

	cmd := &cobra.Command{
		Use:   "won <id>",
		Short: "Mark a negotiation won and allocate fees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := negID(args)
			if err != nil {
				return err
			}
			return withMachine(cmd, configPath, func(ctx context.Context, m *negotiation.Machine) error {
				out, err := m.MarkWon(ctx, id, grossCents)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Negotiation %d won at %s\n", id, zone.FormatCents(out.PriceCents))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "closer.yaml", "path to config file")
	cmd.Flags().Int64Var(&grossCents, "gross-cents", 0, "gross load value in cents (defaults to the last offer)")
	return cmd
}

func newNegSignCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sign <id>",
		Short: "Record sign-off on a received rate con",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := negID(args)
			if err != nil {
				return err
			}
			return withMachine(cmd, configPath, func(ctx context.Context, m *negotiation.Machine) error {
				if err := m.SignRateCon(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Negotiation %d rate con signed\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "closer.yaml", "path to config file")
	return cmd
}
