package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/infrastructure/scheduler"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

const dateLayout = "2006-01-02"

func main() {
	rootCmd := &cobra.Command{
		Use:           "billingctl",
		Short:         "Run the academy billing jobs by hand",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringSlice("tenant", nil, "Tenant ids to run for (default: every tenant with units)")

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(jobCmd("charge-due", "Charge the due invoices of card subscriptions", scheduler.JobChargeDue))
	rootCmd.AddCommand(jobCmd("mark-overdue", "Mark unpaid invoices past their due date as overdue", scheduler.JobMarkOverdue))
	rootCmd.AddCommand(jobCmd("expire", "Expire subscriptions past their end date", scheduler.JobExpire))
	rootCmd.AddCommand(runAllCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Issue the recurring invoices of a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("period")
			period, err := billing.ParsePeriod(raw)
			if err != nil {
				return err
			}
			var unitID *uuid.UUID
			if s, _ := cmd.Flags().GetString("unit"); s != "" {
				id, err := uuid.Parse(s)
				if err != nil {
					return fmt.Errorf("invalid unit id %q", s)
				}
				unitID = &id
			}

			a, tenants, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			if unitID != nil && len(tenants) != 1 {
				return errors.New("--unit needs exactly one --tenant")
			}

			asOf := period.Start(a.loc)
			var firstErr error
			for _, tenantID := range tenants {
				job := scheduler.NewJob(tenantID, scheduler.JobGenerateInvoices, asOf, 0)
				job.UnitID = unitID
				if err := a.exec.Execute(cmd.Context(), job); err != nil {
					a.log.Error("Generation failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
					if firstErr == nil {
						firstErr = err
					}
				}
			}
			return firstErr
		},
	}
	cmd.Flags().String("period", "", "Period as YYYY-MM")
	cmd.Flags().String("unit", "", "Only generate for this unit")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

func jobCmd(use, short string, kind scheduler.JobKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKinds(cmd, kind)
		},
	}
	cmd.Flags().String("as-of", "", "Reference date as YYYY-MM-DD (default: today)")
	return cmd
}

func runAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-all",
		Short: "Run generation, overdue marking, expiry and charging in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKinds(cmd, scheduler.AllJobKinds()...)
		},
	}
	cmd.Flags().String("as-of", "", "Reference date as YYYY-MM-DD (default: today)")
	return cmd
}

func runKinds(cmd *cobra.Command, kinds ...scheduler.JobKind) error {
	a, tenants, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	asOf := time.Now().In(a.loc)
	if raw, _ := cmd.Flags().GetString("as-of"); raw != "" {
		asOf, err = time.ParseInLocation(dateLayout, raw, a.loc)
		if err != nil {
			return fmt.Errorf("invalid --as-of %q", raw)
		}
	}
	a.log.Info("Running billing jobs", zap.Int("tenants", len(tenants)), zap.Time("as_of", asOf))
	return scheduler.RunAll(cmd.Context(), a.exec, tenants, kinds, asOf, a.log)
}

func setup(cmd *cobra.Command) (*app, []uuid.UUID, error) {
	a, err := newApp(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	raw, _ := cmd.Flags().GetStringSlice("tenant")
	tenants, err := a.tenants(cmd.Context(), raw)
	if err != nil {
		a.close()
		return nil, nil, err
	}
	return a, tenants, nil
}
