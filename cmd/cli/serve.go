package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"hadiscover/internal/handlers"
	"hadiscover/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the hourly indexing scheduler",
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	cfg, log := a.cfg, a.logger

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	var runner handlers.IndexRunner = disabledRunner{}
	var scheduler *services.Scheduler
	if a.indexer != nil {
		scheduler = services.NewScheduler(a.indexer, log)
		runner = scheduler
		if cfg.Indexing.ScheduleEnabled {
			go scheduler.Start(ctx)
			log.Info("Hourly indexing scheduled at minute 0")
		}
	}

	router := handlers.SetupRouter(handlers.RouterDeps{
		Config:  cfg,
		DB:      a.db,
		Search:  a.search,
		Runner:  runner,
		Trigger: services.NewIndexTrigger(cfg.Indexing.Cooldown),
		RunCtx:  ctx,
		Version: Version,
		Logger:  log,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s (api prefix %s)", server.Addr, handlers.APIPrefix(cfg))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	if scheduler != nil {
		scheduler.Wait()
	}
	log.Info("Server exited")
	return nil
}

// disabledRunner answers manual triggers when no GitHub client is configured.
type disabledRunner struct{}

func (disabledRunner) Trigger(context.Context) bool { return false }
