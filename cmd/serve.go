package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stellar-k8s/carbonsched/internal/history"
	"github.com/stellar-k8s/carbonsched/internal/server"
	"github.com/stellar-k8s/carbonsched/internal/sustain"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine: background refresh, aggregation, and dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, err := buildEngine(cfg)
		if err != nil {
			return err
		}

		hist, err := history.Open(ctx, cfg.History)
		if err != nil {
			return eris.Wrap(err, "open history store")
		}
		defer hist.Close()
		if err := hist.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate history store")
		}

		go eng.chain.Run(ctx)
		eng.chain.WarmUp(ctx, eng.regions)

		agg := sustain.New(eng.chain, eng.dir, eng.regions, eng.nodes,
			cfg.Footprint, cfg.Aggregator.Interval(), hist)
		go agg.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: server.New(agg, cfg.Server).Handler(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting dashboard server",
			zap.Int("port", port),
			zap.Int("regions", len(eng.regions)),
			zap.Int("nodes", len(eng.nodes)),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
