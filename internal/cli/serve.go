package cli

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/azybler/transit_router/pkg/api"
	"github.com/azybler/transit_router/pkg/store"
)

type serveOpts struct {
	config   string
	snapshot string
	addr     string
}

func newServeCmd() *cobra.Command {
	opts := serveOpts{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve catalog queries over HTTP",
		Long: `Load a catalog snapshot and serve stop, bus, route and map queries under /api/v1.

Flags override the corresponding config file values.`,
		Example: `  transit serve --config config.yaml
  transit serve -s catalog.bin --addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.config, "config", "", "config file (.yaml, .yml or .toml)")
	cmd.Flags().StringVarP(&opts.snapshot, "snapshot", "s", "", "catalog snapshot (overrides config)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, opts serveOpts) error {
	logger := loggerFromContext(cmd.Context())

	cfg, err := loadConfig(opts.config)
	if err != nil {
		return err
	}
	if opts.snapshot != "" {
		cfg.Snapshot.Path = opts.snapshot
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}

	// --verbose wins over the configured level.
	if logger.GetLevel() > log.DebugLevel {
		level, err := log.ParseLevel(cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		logger.SetLevel(level)
	}

	prog := newProgress(logger)
	c, err := store.Load(cfg.Snapshot.Path)
	if err != nil {
		return err
	}
	st := c.Stats()
	prog.done(fmt.Sprintf("Loaded %s: %d stops, %d buses, %d edges", cfg.Snapshot.Path, st.Stops, st.Buses, st.Edges))

	srvCfg := api.DefaultConfig(cfg.Server.Addr)
	srvCfg.ReadTimeout = cfg.Server.ReadTimeout
	srvCfg.WriteTimeout = cfg.Server.WriteTimeout
	srvCfg.RequestTimeout = cfg.Server.WriteTimeout
	srvCfg.MaxConcurrent = cfg.Server.MaxConcurrent
	srvCfg.CORSOrigin = cfg.Server.CORSOrigin

	srv := api.NewServer(srvCfg, api.NewHandlers(c))
	if err := api.ListenAndServe(cmd.Context(), srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}
