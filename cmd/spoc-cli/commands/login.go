package commands

import (
	"context"
	"fmt"
	"log/slog"

	"spoccrawler/lib/crawler"
	"spoccrawler/lib/crawlers/njuspoc"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

// explain adds what the user should do to a crawler error.
func explain(err error) error {
	switch {
	case crawler.NeedsNewCredential(err):
		return fmt.Errorf("%w (check the account and password)", err)
	case crawler.Retryable(err):
		return fmt.Errorf("%w (this is probably temporary, try again later)", err)
	}
	return err
}

func loggedInCrawler(ctx context.Context, config Config) (*njuspoc.Crawler, error) {
	c, err := newCrawler(config)
	if err != nil {
		return nil, err
	}
	err = c.Login(ctx, config.fields())
	if err != nil {
		return nil, explain(err)
	}
	slog.Debug("logged in", "account", config.Account)
	return c, nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs in with the configured credential to check that it works.",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		_, err = loggedInCrawler(cmd.Context(), config)
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s\n", config.Account)
		return nil
	},
}
