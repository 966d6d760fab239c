package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"invoicepipe/internal/docsource"
	"invoicepipe/internal/logger"
	"invoicepipe/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API for the review UI",
	Long: `Serve the batch job API: start, follow, poll and cancel batches, list
models and sync the document folder. When SYNC_SCHEDULE is set the folder
is also synced on that cron schedule.

On SIGINT/SIGTERM the server stops accepting requests and a running batch
is interrupted.`,
	Example: `  # Serve on the default address (:8080)
  invoicepipe serve

  # Serve with an hourly folder sync
  SYNC_SCHEDULE="0 * * * *" invoicepipe serve --addr :9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("serve")

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx, appNeeds{store: true, source: true, ocr: true}, log)
	if err != nil {
		return err
	}
	defer a.Close()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.HTTPAddr
	}

	ctrl := a.newController()
	syncer := docsource.NewSyncer(a.source, a.store, a.urlTemplate())

	handler := server.New(ctx, server.Config{
		Jobs:         ctrl,
		Models:       a.listModels,
		DefaultModel: a.cfg.DefaultModel,
		Syncer:       syncer,
		SyncFolder:   a.cfg.GCDocsFolderNode,
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Open event streams end when the process is signalled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.cfg.SyncSchedule != "" {
		sched, err := docsource.NewScheduler(a.cfg.SyncSchedule, syncer, a.cfg.GCDocsFolderNode)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if st, err := ctrl.Wait(waitCtx); err != nil {
		log.Warn().Str("state", string(st.Status)).Msg("Batch job still running at exit")
	}
	return nil
}
