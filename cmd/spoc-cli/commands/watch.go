package commands

import (
	"context"
	"log/slog"
	"time"

	"spoccrawler/lib/chrono"
	"spoccrawler/lib/crawler"
	"spoccrawler/lib/crawlers/njuspoc"
	"spoccrawler/lib/ddlstore"
	"spoccrawler/lib/notify"
	"spoccrawler/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	watchCron *string
	watchDb   *string
)

func init() {
	watchCron = watchCmd.Flags().String("cron", "", "When to crawl, in cron syntax. Defaults to the config's cron or hourly.")
	watchDb = watchCmd.Flags().String("db", "", "The sqlite database deadlines are stored in. Defaults to the config's db.")
	rootCmd.AddCommand(watchCmd)
}

type watcher struct {
	config Config
	cache  *crawler.SessionCache
	store  ddlstore.Store
	mailer notify.Mailer
}

func (w watcher) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	c, err := w.cache.Get(ctx, njuspoc.Name, w.config.fields())
	if err != nil {
		slog.ErrorContext(ctx, "failed to log in", "err", explain(err))
		return
	}

	_, fresh, err := crawl(ctx, c, w.store)
	if err != nil {
		if crawler.Retryable(err) {
			// the session may have expired on the platform's side
			w.cache.Evict(njuspoc.Name, w.config.fields())
		}
		slog.ErrorContext(ctx, "failed to crawl", "err", explain(err))
		return
	}
	slog.InfoContext(ctx, "crawled deadlines", "new", len(fresh))

	if len(w.config.Notify.To) == 0 {
		return
	}
	err = w.mailer.Send(ctx, fresh)
	if err != nil {
		slog.ErrorContext(ctx, "failed to send notification", "err", err)
	}
}

var watchCmd = &cobra.Command{
	Use:   "watch [--cron <spec>] [--db <path>]",
	Short: "Crawls deadlines on a schedule and mails the new ones.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		config, err := loadConfig()
		if err != nil {
			return err
		}
		spec := *watchCron
		if spec == "" {
			spec = config.Cron
		}
		if spec == "" {
			spec = "@hourly"
		}

		output, err := httpOutput()
		if err != nil {
			return err
		}
		registry := crawler.NewRegistry()
		err = njuspoc.Register(registry, njuspoc.Options{Config: config.Crawler, Output: output})
		if err != nil {
			return err
		}

		store, db, err := openStore(ctx, config, *watchDb)
		if err != nil {
			return err
		}
		defer db.Close()

		w := watcher{
			config: config,
			cache:  crawler.NewSessionCache(registry, 4, crawler.DefaultSessionLifetime),
			store:  store,
			mailer: notify.NewMailer(config.Notify),
		}

		telemetry.InstrumentPerfStats(ctx, 30*time.Second)

		cron := chrono.NewStandardCron()
		defer cron.Stop()
		slog.InfoContext(ctx, "watching deadlines", "schedule", spec)
		err = cron.CronNow(spec, func() { w.run(ctx) })
		if err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	},
}
