package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/app"
	"github.com/JR-coderli/EFsafari/internal/config"
)

func newLogger() (*zap.Logger, error) {
	// stdout carries the MCP protocol
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.NameKey = "logger"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named("efsafari-mcp").With(zap.String("service", "efsafari-mcp")), nil
}

func main() {
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger, config.Load()); err != nil {
		logger.Error("mcp server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	username := os.Getenv("MCP_USER")
	if username == "" {
		return fmt.Errorf("MCP_USER environment variable is required")
	}

	// reads only, so no ETL jobs are built
	cfg.ETLConfigPath = ""
	a, err := app.Open(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	user, ok := a.Users.FindByUsername(username)
	if !ok {
		return fmt.Errorf("no active user %q", username)
	}
	logger.Info("serving reports", zap.String("user", user.Username), zap.String("role", user.Role))

	tools := &ReportTools{
		reports: a.Reports,
		ledger:  a.Ledger,
		user:    user,
		timeout: 30 * time.Second,
		logger:  logger,
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "efsafari",
		Version: "1.0.0",
	}, nil)
	tools.register(server)

	logger.Info("MCP Server running via stdio")
	return server.Run(ctx, &mcp.StdioTransport{})
}
