package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/app"
	"github.com/JR-coderli/EFsafari/internal/config"
	"github.com/JR-coderli/EFsafari/internal/reporting"
)

func newReportCommand(cfg config.Config, logger *zap.Logger) *cobra.Command {
	var start, end, dims, username, tz string
	var hourly bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a report hierarchy as a given user would see it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg, logger, func(a *app.App) error {
				u, ok := a.Users.FindByUsername(username)
				if !ok {
					return fmt.Errorf("no active user %q", username)
				}
				req := reporting.Request{
					Dimensions: strings.Split(dims, ","),
					StartDate:  start,
					EndDate:    end,
					Timezone:   tz,
				}
				var (
					resp *reporting.HierarchyResponse
					err  error
				)
				if hourly {
					resp, err = a.Reports.HourlyHierarchy(cmd.Context(), u, req)
				} else {
					resp, err = a.Reports.Hierarchy(cmd.Context(), u, req)
				}
				if err != nil {
					return err
				}
				return printJSON(resp)
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", yesterday(), "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", yesterday(), "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dims, "dimensions", "platform,offer", "comma separated dimensions")
	cmd.Flags().StringVar(&username, "user", "", "report as this user")
	cmd.Flags().StringVar(&tz, "timezone", "UTC", "reporting timezone for --hourly")
	cmd.Flags().BoolVar(&hourly, "hourly", false, "query the hourly report")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
