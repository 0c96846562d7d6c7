package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"draftgap/internal/catalog"
	"draftgap/internal/collector"
	"draftgap/internal/discord"
	"draftgap/internal/logger"
	"draftgap/internal/metrics"
	"draftgap/internal/riot"
	"draftgap/internal/storage"
)

type collectFlags struct {
	tier      string
	division  string
	startPage int
	pages     int
	matches   int
	apex      bool
}

func newCollectCmd(a *app) *cobra.Command {
	f := &collectFlags{}
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one collection batch",
		Long: `Enumerates ranked players of one tier and division (or the apex ladders),
fetches their recent matches and folds every new ranked solo match into the store.

Example:
  draftgap collect --tier emerald --division ii --pages 3 --matches 10
  draftgap collect --apex`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.apply(cmd, a)
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := collector.SetupSignalHandler(cmd.Context(), nil)
			defer stop()

			m := metrics.New()
			a.serveMetrics(ctx, m)
			_, err := a.collect(ctx, cmd.OutOrStdout(), m)
			return err
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.tier, "tier", collector.DefaultTier, "ranked tier to enumerate")
	fl.StringVar(&f.division, "division", collector.DefaultDivision, "division within the tier (I-IV)")
	fl.IntVar(&f.startPage, "start-page", 1, "first league page")
	fl.IntVar(&f.pages, "pages", 1, "number of league pages")
	fl.IntVar(&f.matches, "matches", collector.DefaultMatchesPerPlayer, "recent matches per player")
	fl.BoolVar(&f.apex, "apex", false, "enumerate challenger, grandmaster and master instead")
	return cmd
}

// apply copies explicitly set flags over the loaded config.
func (f *collectFlags) apply(cmd *cobra.Command, a *app) {
	fl := cmd.Flags()
	if fl.Changed("tier") {
		a.cfg.Tier = f.tier
	}
	if fl.Changed("division") {
		a.cfg.Division = f.division
	}
	if fl.Changed("start-page") {
		a.cfg.StartPage = f.startPage
	}
	if fl.Changed("pages") {
		a.cfg.Pages = f.pages
	}
	if fl.Changed("matches") {
		a.cfg.MatchesPerPlayer = f.matches
	}
	if fl.Changed("apex") {
		a.cfg.Apex = f.apex
	}
}

// serveMetrics exposes m on the configured address until ctx is done.
func (a *app) serveMetrics(ctx context.Context, m *metrics.Metrics) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	go func() {
		if err := m.Serve(ctx, a.cfg.MetricsAddr); err != nil {
			a.log.Warn(ctx, "metrics server stopped", logger.Err(err))
		}
	}()
}

// collect runs one batch end to end and prints its summary to w. m is shared
// by every batch of the process.
func (a *app) collect(ctx context.Context, w io.Writer, m *metrics.Metrics) (*collector.Summary, error) {
	cfg := a.cfg
	log := a.log

	if cfg.RiotAPIKey == "" {
		return nil, fmt.Errorf("%w: set RIOT_API_KEY", riot.ErrMissingKey)
	}
	valid, err := riot.NewKeyValidator(riot.WithBaseURL(cfg.RiotPlatform)).ValidateKey(ctx, cfg.RiotAPIKey)
	switch {
	case err != nil:
		log.Warn(ctx, "could not validate api key, continuing", logger.Err(err))
	case !valid:
		err := fmt.Errorf("%w: api key rejected", riot.ErrUnauthorized)
		a.notifyAborted(ctx, &collector.Summary{Mode: cfg.CollectorConfig().Mode()}, err)
		return nil, err
	}

	client, err := riot.NewClient(cfg.RiotAPIKey,
		riot.WithPlatform(cfg.RiotPlatform),
		riot.WithRouting(cfg.RiotRouting),
		riot.WithMetrics(m))
	if err != nil {
		return nil, err
	}

	st, err := a.openStore(ctx, false)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	opts := []collector.Option{collector.WithMetrics(m)}

	cat := a.catalog()
	if champions, err := cat.Champions(ctx, cfg.Locale); err != nil {
		log.Warn(ctx, "champion catalog unavailable, names stored as reported", logger.Err(err))
	} else {
		opts = append(opts, collector.WithNormalizer(catalog.FromChampions(champions)))
	}

	var archive *storage.FileRotator
	if cfg.ArchiveDir != "" {
		archive, err = storage.NewFileRotator(cfg.ArchiveDir, storage.WithMaxMatches(cfg.ArchiveMaxMatches))
		if err != nil {
			return nil, err
		}
		opts = append(opts, collector.WithArchive(archive))
	}

	sum, runErr := collector.New(client, st, cfg.CollectorConfig(), opts...).Run(ctx)

	if archive != nil {
		if err := archive.Close(); err != nil {
			log.Warn(ctx, "archive close failed", logger.Err(err))
		}
		if cfg.ArchiveCompress {
			if n, err := archive.CompressWarm(); err != nil {
				log.Warn(ctx, "archive compression failed", logger.Err(err))
			} else if n > 0 {
				log.Info(ctx, "archive compressed", logger.Int("files", n))
			}
		}
	}
	if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
		log.Warn(ctx, "metrics textfile write failed", logger.Err(err))
	}

	if sum != nil && runErr == nil {
		sum.Print(w)
	}

	if runErr != nil {
		a.notifyAborted(ctx, sum, runErr)
		if errors.Is(runErr, collector.ErrNoPlayers) {
			return sum, fmt.Errorf("%w: check that the API key is valid", runErr)
		}
		return sum, runErr
	}
	a.notifySummary(ctx, sum)
	return sum, nil
}

func (a *app) catalog() *catalog.Catalog {
	return catalog.New(
		catalog.WithBaseURL(a.cfg.DDragonURL),
		catalog.WithFallbackVersion(a.cfg.DDragonFallbackVersion))
}

func (a *app) notifySummary(ctx context.Context, sum *collector.Summary) {
	if a.cfg.DiscordWebhookURL == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := discord.NewWebhookClient(a.cfg.DiscordWebhookURL).SendRunSummary(ctx, sum); err != nil {
		a.log.Warn(ctx, "discord notification failed", logger.Err(err))
	}
}

func (a *app) notifyAborted(ctx context.Context, sum *collector.Summary, cause error) {
	if a.cfg.DiscordWebhookURL == "" {
		return
	}
	if sum == nil {
		sum = &collector.Summary{}
	}
	ctx = context.WithoutCancel(ctx)
	client := discord.NewWebhookClient(a.cfg.DiscordWebhookURL)
	if err := client.SendRunAborted(ctx, a.cfg.RiotAPIKey, sum, cause); err != nil {
		a.log.Warn(ctx, "discord notification failed", logger.Err(err))
	}
}
