package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"github.com/custodhq/custod/internal/daemon"
	"github.com/custodhq/custod/internal/runfile"
)

func newServeCommand(v *viper.Viper, baseLogger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the custod daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			if overridden(cmd, "token-owner", "CUSTOD_TOKEN_OWNER") {
				cfg.TokenOwner = v.GetString("token-owner")
			}

			logger := baseLogger
			if level, ok := pslog.ParseLevel(cfg.LogLevel); ok {
				logger = logger.LogLevel(level)
			}

			err = daemon.Run(cmd.Context(), cfg, logger)
			if errors.Is(err, runfile.ErrAlreadyRunning) {
				fmt.Fprintln(cmd.ErrOrStderr(), "custod: daemon already running")
				return nil
			}
			return err
		},
	}

	cmd.Flags().String("token-owner", "", "account secure-request tokens must belong to (empty accepts any owner)")
	if err := v.BindPFlag("token-owner", cmd.Flags().Lookup("token-owner")); err != nil {
		panic(err)
	}
	return cmd
}
