package daemon

import (
	"context"
	"fmt"
	"os"
	"sync"

	"pkt.systems/pslog"

	"github.com/custodhq/custod/internal/actions"
	"github.com/custodhq/custod/internal/config"
	"github.com/custodhq/custod/internal/ipc"
	"github.com/custodhq/custod/internal/logging"
	"github.com/custodhq/custod/internal/paths"
	"github.com/custodhq/custod/internal/platform"
	"github.com/custodhq/custod/internal/runfile"
)

// Run starts the custod daemon and blocks until ctx is cancelled or a
// shutdown request arrives. It publishes the daemon run file on start and
// withdraws it on the way out.
func Run(ctx context.Context, cfg *config.Config, logger pslog.Logger) error {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	rt, err := cfg.IPC(logger)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	// serve is the custodian process: it always publishes the daemon
	// record, privileged or not. Privilege-based role selection stays the
	// default for servers embedded in other processes.
	rt.Role = runfile.RoleDaemon
	if rt.RunDir == "" {
		rt.RunDir = platform.Current().RunDir()
	}
	if rt.TokenDir == "" {
		rt.TokenDir = platform.Current().TokenDir()
	}
	for _, dir := range []string{rt.RunDir, rt.TokenDir} {
		if err := paths.EnsureSharedDir(dir); err != nil {
			return fmt.Errorf("creating shared dir %s: %w", dir, err)
		}
	}

	log := logging.WithSubsystem(logger, "daemon")

	var stopOnce sync.Once
	shutdownCh := make(chan struct{})

	mux := actions.NewMux(logger)
	srv := ipc.NewServer(rt, mux)
	actions.Builtins{
		Role:  string(runfile.RoleDaemon),
		Stats: srv.Stats,
		Shutdown: func() {
			stopOnce.Do(func() { close(shutdownCh) })
		},
	}.Register(mux)

	if err := srv.Start(); err != nil {
		return err
	}

	log.Info("daemon.started", "addr", srv.Addr(), "pid", os.Getpid(), "run_dir", rt.RunDir)

	select {
	case <-ctx.Done():
		log.Info("daemon.stopping", "reason", "context cancelled")
	case <-shutdownCh:
		log.Info("daemon.stopping", "reason", "shutdown request")
	}

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}
	log.Info("daemon.stopped")
	return nil
}
