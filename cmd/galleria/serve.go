package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"galleria/internal/config"
	"galleria/internal/database"
	"galleria/internal/handlers"
	"galleria/internal/middleware"
	"galleria/pkg/logger"
	"galleria/pkg/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := bootstrap(ctx, true)
		defer a.close()
		cfg := a.cfg

		srv := &handlers.Server{
			Config:       cfg,
			DB:           database.DB,
			Store:        a.store,
			Images:       a.images,
			Users:        a.users,
			Search:       a.newSearcher(),
			Tagger:       a.tagger,
			Geocoder:     a.geocoder,
			Cache:        a.cache,
			Authn:        middleware.NewAuthenticator(a.tokens, database.DB),
			LoginLimiter: middleware.NewLoginLimiter(),
		}
		a.images.Evict = srv.EvictMedia

		maintainer := &database.Maintainer{
			DB:        database.DB,
			Path:      cfg.Database.Path,
			Threshold: utils.SizeToBytes(cfg.Database.VacuumThreshold, 256<<20),
			Interval:  config.Duration(cfg.Database.MaintenanceInterval, 30*time.Minute),
		}
		go maintainer.Start(ctx)
		go srv.LoginLimiter.Start(ctx)

		var handler http.Handler = middleware.CorsMiddleware(middleware.LoggerMiddleware(srv.Routes()))
		if cfg.Security.RateLimit.Enabled {
			limiter := middleware.NewRateLimiterFromConfig(cfg.Security.RateLimit)
			go limiter.Start(ctx)
			handler = limiter.Middleware(handler)
		}

		server := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.ListenAndServe()
		}()

		if cfg.App.StartMessage {
			logger.LogServerStart(logger.ServerBanner{
				Port:      cfg.Server.Port,
				BaseURL:   cfg.GetBaseUrl(),
				Storage:   a.store.Name(),
				Geocoding: a.geocoder.Enabled(),
				TagDevice: a.tagger.Device(),
			})
		}

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		logger.LogInfo("Shutting down, draining in-flight requests...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
