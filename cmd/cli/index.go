package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var indexNowCmd = &cobra.Command{
	Use:   "index-now",
	Short: "Run one indexing pass and exit",
	Long: `Discover repositories, parse their automation files and replace the stored
automations. Exits with status 1 when the run reported errors.`,
	RunE: indexNow,
}

func init() {
	rootCmd.AddCommand(indexNowCmd)
}

func indexNow(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	if a.indexer == nil {
		return errors.New("indexing requires a GitHub token (set GITHUB_TOKEN)")
	}

	stats := a.indexer.IndexRepositories(ctx)
	a.logger.WithFields(logrus.Fields{
		"run_id":               stats.RunID,
		"repositories_found":   stats.RepositoriesFound,
		"repositories_indexed": stats.RepositoriesIndexed,
		"automations_indexed":  stats.AutomationsIndexed,
		"errors":               stats.Errors,
		"rate_limited":         stats.RateLimited,
	}).Info("Indexing completed")

	if stats.Errors > 0 {
		return &exitError{code: 1, msg: "indexing finished with errors"}
	}
	return nil
}
