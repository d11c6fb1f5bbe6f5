package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	httpctrl "github.com/nik45114/kbcore/pkg/controller/http"
	"github.com/nik45114/kbcore/pkg/service/gap"
	"github.com/nik45114/kbcore/pkg/service/worker"
	"github.com/nik45114/kbcore/pkg/usecase"
	"github.com/nik45114/kbcore/pkg/utils/async"
	"github.com/nik45114/kbcore/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var gapBuffer int64
	var comps components

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("KBCORE_ADDR"),
			Destination: &addr,
		},
		&cli.Int64Flag{
			Name:        "gap-buffer",
			Usage:       "Coverage gap queue capacity",
			Value:       gap.DefaultBufferSize,
			Sources:     cli.EnvVars("KBCORE_GAP_BUFFER"),
			Destination: &gapBuffer,
		},
	}
	flags = append(flags, comps.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := comps.open(ctx)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			gapQueue := gap.New(rt.repo.Gap(), gap.WithBufferSize(int(gapBuffer)))
			if err := rt.wire(usecase.WithGapReporter(gapQueue)); err != nil {
				return err
			}
			if err := rt.loadIndex(ctx); err != nil {
				return err
			}

			return serve(ctx, addr, rt, gapQueue, comps.indexCfg.FlushInterval(), comps.indexCfg.ReconcileInterval())
		},
	}
}

func serve(ctx context.Context, addr string, rt *runtime, gapQueue *gap.Queue, flushInterval, reconcileInterval time.Duration) error {
	if err := gapQueue.Start(ctx); err != nil {
		return goerr.Wrap(err, "failed to start coverage gap queue")
	}
	defer gapQueue.Stop()

	async.Dispatch(ctx, func(ctx context.Context) error {
		return rt.reconcile(ctx)
	})

	maintenance := worker.NewIndexMaintenanceWorker(rt.index, rt.uc.Knowledge, flushInterval, reconcileInterval)
	if err := maintenance.Start(ctx); err != nil {
		return goerr.Wrap(err, "failed to start index maintenance worker")
	}

	httpHandler, err := httpctrl.New(rt.uc,
		httpctrl.WithGapRepository(rt.repo.Gap()),
		httpctrl.WithPersister(rt.index),
	)
	if err != nil {
		maintenance.Stop()
		return goerr.Wrap(err, "failed to create http server")
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           httpHandler,
		ReadHeaderTimeout: 30 * time.Second,
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		logging.Default().Info("Starting HTTP server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- goerr.Wrap(err, "failed to start server")
		}
	}()

	select {
	case err := <-errCh:
		maintenance.Stop()
		return err
	case sig := <-sigCh:
		logging.Default().Info("Received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logging.Default().Info("Context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)

	// Stopping the worker performs the final index flush
	maintenance.Stop()

	if shutdownErr != nil {
		return goerr.Wrap(shutdownErr, "failed to shutdown server gracefully")
	}
	logging.Default().Info("Server shutdown completed")
	return nil
}
