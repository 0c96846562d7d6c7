package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"

	"draftgap/internal/collector"
	"draftgap/internal/discord"
	"draftgap/internal/logger"
	"draftgap/internal/metrics"
	"draftgap/internal/riot"
)

func newScheduleCmd(a *app) *cobra.Command {
	f := &collectFlags{}
	var (
		cronExpr  string
		immediate bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run collection batches on a cron schedule",
		Long: `Runs the collect batch on a cron schedule until interrupted. A batch that is
still running when the next one is due delays it instead of overlapping.
A rejected API key stops the scheduler.

Example:
  draftgap schedule --cron "0 */6 * * *" --pages 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.apply(cmd, a)
			if cmd.Flags().Changed("cron") {
				a.cfg.ScheduleCron = cronExpr
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := collector.SetupSignalHandler(cmd.Context(), nil)
			defer stop()
			return a.schedule(ctx, cmd.OutOrStdout(), immediate)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&cronExpr, "cron", "", `cron expression (default from config, "0 */6 * * *")`)
	fl.BoolVar(&immediate, "now", false, "run the first batch immediately")
	fl.StringVar(&f.tier, "tier", collector.DefaultTier, "ranked tier to enumerate")
	fl.StringVar(&f.division, "division", collector.DefaultDivision, "division within the tier (I-IV)")
	fl.IntVar(&f.startPage, "start-page", 1, "first league page")
	fl.IntVar(&f.pages, "pages", 1, "number of league pages")
	fl.IntVar(&f.matches, "matches", collector.DefaultMatchesPerPlayer, "recent matches per player")
	fl.BoolVar(&f.apex, "apex", false, "enumerate challenger, grandmaster and master instead")
	return cmd
}

// schedule blocks until ctx is done or a batch reports a rejected key.
func (a *app) schedule(ctx context.Context, w io.Writer, immediate bool) error {
	log := a.log.Named("schedule")

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	opts := []gocron.JobOption{
		gocron.WithName("collect"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if immediate {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	m := metrics.New()
	a.serveMetrics(ctx, m)

	job, err := sched.NewJob(
		gocron.CronJob(a.cfg.ScheduleCron, false),
		gocron.NewTask(func() {
			_, err := a.collect(ctx, w, m)
			if errors.Is(err, riot.ErrUnauthorized) && a.canAwaitKey() {
				err = a.awaitKey(ctx)
			}
			if errors.Is(err, riot.ErrUnauthorized) || errors.Is(err, riot.ErrMissingKey) {
				log.Error(ctx, "stopping scheduler", logger.Err(err))
				cancel(err)
				return
			}
			if err != nil {
				log.Warn(ctx, "batch failed", logger.Err(err))
			}
		}),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", a.cfg.ScheduleCron, err)
	}

	sched.Start()
	if next, err := job.NextRun(); err == nil {
		log.Info(ctx, "scheduler started",
			logger.String("cron", a.cfg.ScheduleCron),
			logger.String("next_run", next.Format("2006-01-02 15:04:05")))
	}

	<-ctx.Done()
	if err := sched.Shutdown(); err != nil {
		log.Warn(ctx, "scheduler shutdown", logger.Err(err))
	}

	cause := context.Cause(ctx)
	if errors.Is(cause, riot.ErrUnauthorized) || errors.Is(cause, riot.ErrMissingKey) {
		return cause
	}
	return nil
}

const keyRetryDelay = 30 * time.Second

func (a *app) canAwaitKey() bool {
	return a.cfg.DiscordBotToken != "" && a.cfg.DiscordChannelID != ""
}

// awaitKey asks the Discord channel for a replacement key and blocks until a
// posted key validates. The accepted key is used by every later batch.
func (a *app) awaitKey(ctx context.Context) error {
	log := a.log.Named("keyfinder")
	finder := discord.NewKeyFinder(a.cfg.DiscordBotToken, a.cfg.DiscordChannelID,
		discord.WithDiscordBaseURL(a.cfg.DiscordAPIURL),
		discord.WithKeyFinderLogger(log))
	validator := riot.NewKeyValidator(riot.WithBaseURL(a.cfg.RiotPlatform))

	since := time.Now()
	rejected := a.cfg.RiotAPIKey
	if err := finder.SendEmbed(ctx, discord.NewKeyRequestPayload(rejected)); err != nil {
		log.Warn(ctx, "could not post key request", logger.Err(err))
	}

	for {
		key, err := finder.WaitForKey(ctx, since, rejected)
		if err != nil {
			return err
		}
		valid, err := validator.ValidateKey(ctx, key)
		if err != nil {
			log.Warn(ctx, "could not validate posted key", logger.Err(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(keyRetryDelay):
			}
			continue
		}
		if !valid {
			log.Warn(ctx, "posted key rejected, still waiting")
			rejected = key
			continue
		}

		a.cfg.RiotAPIKey = key
		log.Info(ctx, "api key replaced")
		if err := finder.SendMessage(ctx, "New key accepted, collection resumes on the next run."); err != nil {
			log.Warn(ctx, "could not post confirmation", logger.Err(err))
		}
		return nil
	}
}
