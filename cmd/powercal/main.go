package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"powercal/internal/browser"
	"powercal/internal/config"
	"powercal/internal/extract"
	"powercal/internal/gcal"
	"powercal/internal/icsexport"
	applog "powercal/internal/log"
	"powercal/internal/model"
	schedsync "powercal/internal/sync"
	"powercal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	dryRun     bool
}

func main() {
	flags := parseFlags()

	logger := applog.New("powercal")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		logger.Error().Err(err).Str("config_path", flags.configPath).Msg("failed to load config")
		os.Exit(1)
	}
	if err := conf.Validate(); err != nil {
		logger.Error().Err(err).Str("config_path", flags.configPath).Msg("invalid config")
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	zerolog.SetGlobalLevel(applog.ParseLevel(conf.LogLevel))

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		logger.Error().Err(err).Str("timezone", conf.Timezone).Msg("unknown timezone")
		os.Exit(1)
	}

	logger.Info().
		Str("schedule_url", conf.ScheduleURL).
		Str("group", conf.Group).
		Str("timezone", conf.Timezone).
		Str("calendar_id", conf.CalendarID).
		Str("sync_cron", conf.SyncCron).
		Bool("once", flags.once).
		Bool("dry_run", flags.dryRun).
		Msg("powercal starting")

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("signal received, shutting down")
		cancel()
	}()

	extractor := &extract.Extractor{
		URL:      conf.ScheduleURL,
		Group:    conf.Group,
		Location: loc,
		NewRenderer: func(ctx context.Context) (extract.Renderer, error) {
			return browser.New(ctx, browser.Options{Logger: applog.New("browser")}), nil
		},
		Log: applog.New("extract"),
	}

	// Dry runs never touch the calendar, so authentication (which may
	// need an interactive consent) is skipped entirely.
	var reconciler *schedsync.Reconciler
	if !flags.dryRun {
		gateway, err := gcal.New(ctx, gcal.Options{
			CredentialsFile: conf.CredentialsFile,
			TokenFile:       conf.TokenFile,
			Timezone:        conf.Timezone,
			Logger:          applog.New("gcal"),
		})
		if err != nil {
			logger.Error().Err(err).Msg("calendar authentication failed")
			os.Exit(1)
		}
		reconciler = &schedsync.Reconciler{
			Gateway: gateway,
			Log:     applog.New("sync"),
		}
	}

	app := &pipeline{
		conf:       conf,
		extractor:  extractor,
		reconciler: reconciler,
		dryRun:     flags.dryRun,
		log:        logger,
	}

	if conf.Listen != "" {
		app.status = web.NewServer(conf, applog.New("web"))
		go func() {
			logger.Info().Str("listen", conf.Listen).Msg("starting status server")
			if err := web.Serve(ctx, conf.Listen, app.status.Handler()); err != nil {
				logger.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	if flags.once {
		if err := app.run(ctx); err != nil {
			logger.Error().Err(err).Msg("sync run failed")
			os.Exit(1)
		}
		logger.Info().Msg("powercal exiting")
		return
	}

	c := cron.New()
	if _, err := c.AddFunc(conf.SyncCron, func() { app.runScheduled(ctx) }); err != nil {
		logger.Error().Err(err).Str("sync_cron", conf.SyncCron).Msg("invalid cron schedule")
		os.Exit(1)
	}
	c.Start()

	<-ctx.Done()

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
	logger.Info().Msg("powercal exiting")
}

// pipeline owns one extraction-plus-reconciliation pass and the shared
// run state around it.
type pipeline struct {
	conf       *config.Config
	extractor  *extract.Extractor
	reconciler *schedsync.Reconciler
	status     *web.Server
	dryRun     bool
	log        zerolog.Logger

	// runMu serializes runs; an overlapping cron tick is skipped rather
	// than queued, since a second concurrent scrape adds nothing.
	runMu sync.Mutex
}

// runScheduled is the cron entry: overlap-safe, logs instead of exiting.
func (p *pipeline) runScheduled(ctx context.Context) {
	if !p.runMu.TryLock() {
		p.log.Warn().Msg("previous run still in progress, skipping this tick")
		return
	}
	defer p.runMu.Unlock()

	if err := p.run(ctx); err != nil {
		p.log.Error().Err(err).Msg("scheduled sync failed")
	}
}

// run performs one full pass: scrape tomorrow's schedule, export it if
// configured, then reconcile the calendar. An empty schedule is treated
// as a clean no-op: a day without announced cuts is the good case.
func (p *pipeline) run(ctx context.Context) error {
	started := time.Now()

	sched, err := p.extractor.TomorrowSchedule(ctx)
	if err != nil {
		p.setStatus(started, "", nil, err)
		return err
	}
	day := sched.Date.Format(time.DateOnly)

	if p.conf.ICSExport != "" {
		if err := icsexport.Write(p.conf.ICSExport, schedsync.Tag(p.conf.Group), sched); err != nil {
			// Export is a side artifact; a failed write never blocks the sync.
			p.log.Error().Err(err).Str("path", p.conf.ICSExport).Msg("ics export failed")
		}
	}

	if p.dryRun {
		for _, iv := range sched.Intervals {
			p.log.Info().
				Time("start", iv.Start).
				Time("end", iv.End).
				Msg("dry run: would publish interval")
		}
		p.setStatus(started, day, nil, nil)
		return nil
	}

	res, err := p.reconciler.Sync(ctx, p.conf.Group, p.conf.CalendarID, sched.Intervals)
	if err != nil {
		if errors.Is(err, schedsync.ErrEmptySchedule) {
			p.log.Info().Str("date", day).Msg("no power cuts announced, nothing to sync")
			p.setStatus(started, day, &res, nil)
			return nil
		}
		p.setStatus(started, day, nil, err)
		return err
	}

	p.setStatus(started, day, &res, nil)
	if res.Partial() {
		p.log.Warn().
			Int("delete_failed", res.DeleteFailed).
			Int("insert_failed", res.InsertFailed).
			Msg("sync finished with per-event failures")
	}
	return nil
}

func (p *pipeline) setStatus(started time.Time, day string, res *model.SyncResult, err error) {
	if p.status == nil {
		return
	}
	st := web.Status{
		LastRun: started,
		Date:    day,
		Result:  res,
		OK:      err == nil && (res == nil || !res.Partial()),
	}
	if err != nil {
		st.Error = err.Error()
	}
	p.status.SetStatus(st)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/powercal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "Status server listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one extract+sync pass and exit")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "Extract and report only; do not touch the calendar")

	flag.Parse()

	return cfg
}
