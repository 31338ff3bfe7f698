package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/switchboard/internal/app"
	"github.com/ent0n29/switchboard/internal/config"
	"github.com/ent0n29/switchboard/internal/logging"
)

const janitorInterval = 5 * time.Second

// runtimeState is filled by the root PersistentPreRunE.
type runtimeState struct {
	envFiles []string
	cfg      config.Config
	logger   *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	st := &runtimeState{}
	root := &cobra.Command{
		Use:          "switchboard",
		Short:        "Multi-agent dialogue router with session analytics",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(st.envFiles...); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if dir, _ := cmd.Flags().GetString("agents-dir"); dir != "" {
				cfg.AgentsDir = dir
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
			if err != nil {
				return err
			}
			st.cfg = cfg
			st.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if st.logger != nil {
				_ = st.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), st)
		},
	}
	root.PersistentFlags().StringSliceVar(&st.envFiles, "env-file", nil, "dotenv files to load before reading the environment (default .env)")
	root.PersistentFlags().String("agents-dir", "", "directory of agent YAML definitions (overrides AGENTS_DIR)")

	root.AddCommand(serveCmd(st))
	root.AddCommand(agentsCmd(st))
	root.AddCommand(classifyCmd(st))
	return root
}

func serveCmd(st *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), st)
		},
	}
}

func runServe(parent context.Context, st *runtimeState) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := st.logger
	built, err := app.Build(ctx, st.cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			logger.Warn("cleanup failed", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              st.cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	built.Sessions.StartJanitor(gctx, janitorInterval)

	g.Go(func() error {
		logger.Info("server listening",
			zap.String("addr", st.cfg.BindAddr),
			zap.Int("agents", len(built.Agents)),
			zap.String("brain", built.Brain))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), st.cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
			_ = httpServer.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
