package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/app"
	"github.com/JR-coderli/EFsafari/internal/config"
	"github.com/JR-coderli/EFsafari/internal/models"
)

var errETLDisabled = errors.New("etl config not loaded, see ETL_CONFIG")

func newETLCommand(cfg config.Config, logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "etl",
		Short: "Run report ETL jobs once",
	}
	cmd.AddCommand(newETLDailyCommand(cfg, logger))
	cmd.AddCommand(newETLHourlyCommand(cfg, logger))
	return cmd
}

func newETLDailyCommand(cfg config.Config, logger *zap.Logger) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Rebuild one report date of the main fact table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg, logger, func(a *app.App) error {
				if a.Daily == nil {
					return errETLDisabled
				}
				d := a.Daily.DefaultDate()
				if date != "" {
					parsed, err := models.ParseDate(date)
					if err != nil {
						return fmt.Errorf("--date: %w", err)
					}
					d = parsed
				}
				res, err := a.Daily.Run(cmd.Context(), d)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "report date (YYYY-MM-DD), defaults to the configured offset from today")
	return cmd
}

func newETLHourlyCommand(cfg config.Config, logger *zap.Logger) *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "hourly",
		Short: "Refresh the hourly report for today or the last N hours",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if hours < 0 {
				return fmt.Errorf("--hours must not be negative")
			}
			return withApp(cmd.Context(), cfg, logger, func(a *app.App) error {
				if a.Hourly == nil {
					return errETLDisabled
				}
				res, err := a.Hourly.Refresh(cmd.Context(), a.Hourly.DefaultWindow(hours))
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 0, "refresh only the last N hours (0 means since UTC midnight)")
	return cmd
}
