package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/booknova-api/internal/models"
	"github.com/noah-isme/booknova-api/internal/repository"
	"github.com/noah-isme/booknova-api/internal/service"
	"github.com/noah-isme/booknova-api/pkg/config"
	"github.com/noah-isme/booknova-api/pkg/export"
)

func loanPolicy(cfg *config.Config) service.LoanPolicy {
	return service.NewLoanService(nil, service.LoanPolicy{
		RegularLimit:      cfg.Loans.RegularLimit,
		PremiumLimit:      cfg.Loans.PremiumLimit,
		DefaultPeriodDays: cfg.Loans.DefaultPeriodDays,
		FinePerDay:        cfg.Loans.FinePerDay,
	}, service.LoanServiceDeps{}).Policy()
}

func newLoansCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "Loan reports and fine calculations",
	}
	cmd.AddCommand(newOverdueCmd(a), newFineCmd(a))
	return cmd
}

func newOverdueCmd(a *app) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "Write the overdue loan report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := a.config()
			if err != nil {
				return err
			}
			db, err := a.database(cmd.Context())
			if err != nil {
				return err
			}

			exports := service.NewExportService(repository.NewBookRepository(db), repository.NewLoanRepository(db), nil, nil, nil,
				service.ExportConfig{FinePerDay: loanPolicy(cfg).FinePerDay}, a.log())
			dataset, err := exports.OverdueLoansDataset(cmd.Context())
			if err != nil {
				return err
			}
			body, err := export.Render(f, dataset)
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			if err := os.WriteFile(out, body, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d overdue loans to %s\n", len(dataset.Rows), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "csv or pdf")
	cmd.Flags().StringVar(&out, "out", "", "output file, stdout when empty")
	return cmd
}

func newFineCmd(a *app) *cobra.Command {
	var due, returned string
	cmd := &cobra.Command{
		Use:   "fine",
		Short: "Compute the fine for a due date and return date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dueDate, err := time.Parse(models.DateLayout, due)
			if err != nil {
				return fmt.Errorf("invalid --due %q, expected YYYY-MM-DD", due)
			}
			var returnDate *time.Time
			if returned != "" {
				parsed, err := time.Parse(models.DateLayout, returned)
				if err != nil {
					return fmt.Errorf("invalid --returned %q, expected YYYY-MM-DD", returned)
				}
				returnDate = &parsed
			}

			cfg, err := a.config()
			if err != nil {
				return err
			}
			policy := loanPolicy(cfg)
			fmt.Fprintf(cmd.OutOrStdout(), "%.2f\n", models.CalculateFine(dueDate, returnDate, policy.FinePerDay))
			return nil
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&returned, "returned", "", "return date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}
