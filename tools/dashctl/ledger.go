package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/app"
	"github.com/JR-coderli/EFsafari/internal/config"
	"github.com/JR-coderli/EFsafari/internal/ledger"
	"github.com/JR-coderli/EFsafari/internal/models"
)

func newLedgerCommand(cfg config.Config, logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Maintain the daily spend ledger",
	}
	cmd.AddCommand(newLedgerSyncCommand(cfg, logger))
	cmd.AddCommand(newLedgerSetCommand(cfg, logger))
	cmd.AddCommand(newLedgerLockCommand(cfg, logger))
	return cmd
}

func yesterday() string {
	return time.Now().UTC().AddDate(0, 0, -1).Format(models.DateLayout)
}

func newLedgerSyncCommand(cfg config.Config, logger *zap.Logger) *cobra.Command {
	var start, end string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Rebuild unlocked ledger rows from the fact table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if end == "" {
				end = start
			}
			from, to, err := ledger.ParseRange(start, end)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg, logger, func(a *app.App) error {
				n, err := a.Ledger.Sync(cmd.Context(), models.SystemUser(), from, to)
				if err != nil {
					return err
				}
				fmt.Printf("synced %s..%s: %d rows\n", start, end, n)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", yesterday(), "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last date (YYYY-MM-DD), defaults to --start")
	return cmd
}

func newLedgerSetCommand(cfg config.Config, logger *zap.Logger) *cobra.Command {
	var date, media, value string

	cmd := &cobra.Command{
		Use:   "set-spend",
		Short: "Set the final spend of one date and media",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := models.ParseDate(date)
			if err != nil {
				return fmt.Errorf("--date: %w", err)
			}
			target, err := decimal.NewFromString(value)
			if err != nil {
				return fmt.Errorf("--value: %w", err)
			}
			return withApp(cmd.Context(), cfg, logger, func(a *app.App) error {
				rec, err := a.Ledger.SetFinalSpend(cmd.Context(), models.SystemUser(), d, media, target)
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "report date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&media, "media", "", "media name")
	cmd.Flags().StringVar(&value, "value", "", "final spend")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("media")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func newLedgerLockCommand(cfg config.Config, logger *zap.Logger) *cobra.Command {
	var unlock bool

	cmd := &cobra.Command{
		Use:   "lock <date>",
		Short: "Lock (or with --unlock, unlock) every ledger row of a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := models.ParseDate(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg, logger, func(a *app.App) error {
				return a.Ledger.Lock(cmd.Context(), models.SystemUser(), d, !unlock)
			})
		},
	}

	cmd.Flags().BoolVar(&unlock, "unlock", false, "clear the lock instead of setting it")
	return cmd
}
