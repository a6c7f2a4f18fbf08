package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conorfennell/skillcards/internal/web"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if sync, _ := cmd.Flags().GetBool("sync"); sync {
				go func() {
					if _, err := a.importer.Sync(ctx, ""); err != nil {
						a.log.Warn("startup sync finished with errors", zap.Error(err))
					}
				}()
			}

			srv := &http.Server{
				Addr: a.cfg.HTTP.Addr,
				Handler: web.NewServer(web.Deps{
					Study:    a.study,
					Library:  a.library,
					Importer: a.importer,
					DB:       a.db,
				}, a.log.Named("http")),
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("listening", zap.String("addr", srv.Addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.log.Error("graceful shutdown failed", zap.Error(err))
					return err
				}
				a.log.Info("shutdown complete")
				return nil
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().Bool("sync", false, "Sync all sources in the background on startup")
	return cmd
}
