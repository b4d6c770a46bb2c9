// Command dashctl runs ETL jobs, ledger maintenance and report queries
// from the command line against the same backends as the server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/app"
	"github.com/JR-coderli/EFsafari/internal/config"
	"github.com/JR-coderli/EFsafari/internal/observability"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName + "-cli")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "dashctl",
		Short:         "Operate the marketing dashboard backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newETLCommand(cfg, logger))
	root.AddCommand(newLedgerCommand(cfg, logger))
	root.AddCommand(newTokenCommand(cfg, logger))
	root.AddCommand(newReportCommand(cfg, logger))

	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

// withApp opens the backends for the duration of fn.
func withApp(ctx context.Context, cfg config.Config, logger *zap.Logger, fn func(*app.App) error) error {
	a, err := app.Open(ctx, cfg, logger, observability.NewNoOpRegistry())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
