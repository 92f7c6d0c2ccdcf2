package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"github.com/custodhq/custod/internal/config"
	"github.com/custodhq/custod/internal/ipc"
	"github.com/custodhq/custod/internal/paths"
	"github.com/custodhq/custod/internal/platform"
)

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "custod",
		Short:         "custod is the local endpoint custodian: a privileged daemon and the loopback tools that talk to it",
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringP("config", "c", "", "path to TOML config file (defaults to "+paths.ConfigFile()+")")
	pf.String("log-level", "", "log level (trace|debug|info|warn|error)")
	pf.String("hostname", config.Default().Hostname, "loopback address of the daemon endpoint")
	pf.Int("port", config.Default().Port, "TCP port of the daemon endpoint (0 binds ephemeral)")
	pf.String("run-dir", "", "run-file registry directory (defaults to the platform run dir)")
	pf.String("token-dir", "", "auth-token directory (defaults to the platform token dir)")

	for _, name := range []string{"config", "log-level", "hostname", "port", "run-dir", "token-dir"} {
		if err := v.BindPFlag(name, pf.Lookup(name)); err != nil {
			panic(err)
		}
	}
	v.SetEnvPrefix("CUSTOD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd.AddCommand(newServeCommand(v, baseLogger))
	cmd.AddCommand(newCallCommand(v))
	cmd.AddCommand(newStatusCommand(v))
	cmd.AddCommand(newStopCommand(v))
	cmd.AddCommand(newConfigCommand(v))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// loadConfig resolves the effective configuration: built-in defaults, then
// the config file, then environment variables, then changed flags.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	path := strings.TrimSpace(v.GetString("config"))

	var cfg *config.Config
	var err error
	if path == "" {
		cfg, err = config.Load()
	} else {
		// An explicitly named file must exist; only the default path may
		// silently fall back to the built-in defaults.
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, fmt.Errorf("config file %q: %w", path, statErr)
		}
		cfg, err = config.LoadFrom(path)
	}
	if err != nil {
		return nil, err
	}

	if overridden(cmd, "hostname", "CUSTOD_HOSTNAME") {
		cfg.Hostname = v.GetString("hostname")
	}
	if overridden(cmd, "port", "CUSTOD_PORT") {
		cfg.Port = v.GetInt("port")
	}
	if overridden(cmd, "run-dir", "CUSTOD_RUN_DIR") {
		cfg.RunDir = v.GetString("run-dir")
	}
	if overridden(cmd, "token-dir", "CUSTOD_TOKEN_DIR") {
		cfg.TokenDir = v.GetString("token-dir")
	}
	if overridden(cmd, "log-level", "CUSTOD_LOG_LEVEL") {
		cfg.LogLevel = v.GetString("log-level")
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// overridden reports whether a setting was supplied on the command line or
// through the environment, as opposed to the flag default viper would
// otherwise report.
func overridden(cmd *cobra.Command, flag, env string) bool {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		return true
	}
	_, ok := os.LookupEnv(env)
	return ok
}

// dialDaemon connects to the daemon: the configured endpoint first, then
// run-file discovery. Both failures are reported together.
func dialDaemon(cfg *config.Config) (*ipc.Client, error) {
	rt, err := cfg.IPC(pslog.NoopLogger())
	if err != nil {
		return nil, err
	}
	if rt.RunDir == "" {
		rt.RunDir = platform.Current().RunDir()
	}
	if rt.TokenDir == "" {
		rt.TokenDir = platform.Current().TokenDir()
	}

	var dialErrs []error
	if rt.Port != 0 {
		cli, err := ipc.Dial(rt)
		if err == nil {
			return cli, nil
		}
		dialErrs = append(dialErrs, err)
	}
	rt.Port = 0
	cli, err := ipc.Dial(rt)
	if err == nil {
		return cli, nil
	}
	dialErrs = append(dialErrs, err)
	return nil, errors.Join(dialErrs...)
}
