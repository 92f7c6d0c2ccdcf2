package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/custodhq/custod/internal/platform"
	"github.com/custodhq/custod/internal/protocol"
	"github.com/custodhq/custod/internal/runfile"
)

func newStatusCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List registered endpoints and query the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			runDir := cfg.RunDir
			if runDir == "" {
				runDir = platform.Current().RunDir()
			}

			recs, err := runfile.Scan(runDir)
			if err != nil {
				return fmt.Errorf("scanning %s: %w", runDir, err)
			}
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintf(out, "no endpoints registered in %s\n", runDir)
			} else {
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ROLE\tUSER\tADDRESS\tPID\tSTATE\tREGISTERED")
				for _, rec := range recs {
					user := rec.User
					if user == "" {
						user = "-"
					}
					state := "stale"
					if rec.Alive() {
						state = "alive"
					}
					registered := "-"
					if !rec.ModTime.IsZero() {
						registered = humanize.Time(rec.ModTime)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
						rec.Role, user, rec.Addr(), rec.PID, state, registered)
				}
				w.Flush()
			}

			cli, err := dialDaemon(cfg)
			if err != nil {
				fmt.Fprintf(out, "\ndaemon: unreachable (%v)\n", err)
				return nil
			}
			defer cli.Close()

			resp, err := cli.Submit(protocol.NewRequest("status", nil))
			if err != nil {
				fmt.Fprintf(out, "\ndaemon: status request failed (%v)\n", err)
				return nil
			}
			if resp.StatusCode != protocol.StatusSuccess {
				fmt.Fprintf(out, "\ndaemon: %s\n", resp.StatusMessage)
				return nil
			}

			data, _ := resp.Data.(map[string]any)
			num := func(key string) int64 {
				f, _ := data[key].(float64)
				return int64(f)
			}
			uptime := time.Duration(num("uptime_seconds")) * time.Second
			fmt.Fprintf(out, "\ndaemon: ok, pid %d, up %s, served %d requests, %d workers\n",
				num("pid"), uptime, num("requests_served"), num("workers"))
			return nil
		},
	}
	return cmd
}
