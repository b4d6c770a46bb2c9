package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/config"
	"github.com/JR-coderli/EFsafari/internal/db"
	"github.com/JR-coderli/EFsafari/internal/token"
)

func newTokenCommand(cfg config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "token <username>",
		Short: "Issue a bearer token for an active user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.TokenSecret == "" {
				return fmt.Errorf("TOKEN_SECRET must be set")
			}
			pg, err := db.InitPostgres(cfg.PostgresDSN, 2, 1, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
			if err != nil {
				return err
			}
			defer pg.Close()

			users, err := db.NewDirectory(cmd.Context(), pg)
			if err != nil {
				return err
			}
			u, ok := users.FindByUsername(args[0])
			if !ok {
				return fmt.Errorf("no active user %q", args[0])
			}
			tok, err := token.Generate(u.ID, u.Username, u.Role, []byte(cfg.TokenSecret))
			if err != nil {
				return err
			}
			logger.Info("token issued", zap.String("username", u.Username), zap.String("role", u.Role))
			fmt.Println(tok)
			return nil
		},
	}
}
