package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/custodhq/custod/internal/protocol"
)

func newStopCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask the daemon to shut down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			cli, err := dialDaemon(cfg)
			if err != nil {
				return err
			}
			defer cli.Close()

			resp, err := cli.SubmitSecure(protocol.NewRequest("shutdown", nil))
			if err != nil {
				return err
			}
			if resp.StatusCode.IsError() {
				msg := resp.StatusMessage
				if msg == "" {
					msg = resp.StatusCode.String()
				}
				return fmt.Errorf("daemon refused shutdown: %s", msg)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "shutdown requested")
			return nil
		},
	}
	return cmd
}
