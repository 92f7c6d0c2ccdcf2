package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/custodhq/custod/internal/protocol"
)

func newCallCommand(v *viper.Viper) *cobra.Command {
	var secure bool
	cmd := &cobra.Command{
		Use:   "call <action> [key=value ...]",
		Short: "Send one request to the daemon and print the response",
		Long: `Send one request to the daemon and print the response as JSON.

Option values parse as JSON when possible ("count=3" is a number,
"deep={\"a\":1}" is an object) and fall back to plain strings.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			opts, err := parseOptions(args[1:])
			if err != nil {
				return err
			}

			cli, err := dialDaemon(cfg)
			if err != nil {
				return err
			}
			defer cli.Close()

			req := protocol.NewRequest(args[0], opts)
			var resp *protocol.Response
			if secure {
				resp, err = cli.SubmitSecure(req)
			} else {
				resp, err = cli.Submit(req)
			}
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if resp.StatusCode.IsError() {
				msg := resp.StatusMessage
				if msg == "" {
					msg = resp.StatusCode.String()
				}
				return fmt.Errorf("request failed: %s", msg)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&secure, "secure", false, "authenticate the request with a single-use token")
	return cmd
}

func parseOptions(args []string) (map[string]any, error) {
	opts := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("option %q is not key=value", arg)
		}
		var val any
		if err := json.Unmarshal([]byte(raw), &val); err != nil {
			val = raw
		}
		opts[key] = val
	}
	return opts, nil
}
