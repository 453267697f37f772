package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"portalpilot-go/application"
	"portalpilot-go/core/eventbus"
	"portalpilot-go/infrastructure/config"
	"portalpilot-go/presentation/gateway"
)

func newServeCmd(e *env) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the command gateway (HTTP API and websocket push channel)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closeLog, err := e.loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx := cmd.Context()
			st, err := openStores(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close(context.Background())

			eventBus := eventbus.New(1024, eventbus.WithLogger(logger))
			defer eventBus.Close()

			drv := cfg.DriverConfig()
			registry := application.NewRegistry(&application.RegistryConfig{
				Targets:       st.targets,
				Scripts:       st.targets,
				Vault:         st.vault,
				Drafts:        st.drafts,
				EventBus:      eventBus,
				DriverFactory: e.newFactory(drv),
				Logger:        logger,
				Viewport:      drv.Viewport(),
				CommandBuffer: cfg.Session.CommandBuffer,
				CloseTimeout:  cfg.Session.CloseTimeout,
				SnapshotDir:   cfg.Browser.SnapshotDir,
				IdleTimeout:   cfg.Session.IdleTimeout,
				SweepInterval: cfg.Session.SweepInterval,
			})
			defer registry.Stop()

			service := gateway.NewService(registry, st.targets, logger)
			ws := gateway.NewWSServer(service, gateway.NewEventBridge(eventBus, logger), wsConfig(cfg), logger)
			server := gateway.NewEcho(gateway.NewHandler(service, ws, logger))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("Gateway listening", "addr", cfg.Server.Addr)
				if err := server.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return registry.Run(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("Shutting down gateway")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := ws.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Push channel shutdown incomplete", "error", err)
				}
				return server.Shutdown(shutdownCtx)
			})

			err = g.Wait()
			logger.Info("Gateway stopped", "sessions", registry.SessionCount())
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func wsConfig(cfg *config.Config) gateway.WSConfig {
	wc := gateway.DefaultWSConfig()
	wc.PingInterval = cfg.Server.PingInterval
	wc.WriteTimeout = cfg.Server.WriteTimeout
	wc.ReadTimeout = cfg.Server.ReadTimeout
	wc.MaxMessageSize = cfg.Server.MaxMessageSize
	wc.CommandRate = cfg.Server.CommandRate
	wc.CommandBurst = cfg.Server.CommandBurst
	return wc
}
