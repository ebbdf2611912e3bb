package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"dealercal/internal/backup"
	"dealercal/internal/config"
	"dealercal/internal/ics"
	"dealercal/internal/importer"
	appLog "dealercal/internal/log"
	"dealercal/internal/store"
	"dealercal/internal/web"
)

const version = "0.3.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		appLog.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		appLog.Error("failed to set GOMAXPROCS", err)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.SetFormat(conf.LogFormat)
	appLog.Info("dealercal starting", "version", version)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"backfill_days", conf.BackfillDays,
		"max_rows", conf.Layout.MaxRows,
		"ics_count", len(conf.ICS),
		"database", conf.DatabaseURL != "",
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(conf.DataPath)
	if err != nil {
		appLog.Error("failed to open store", err, "path", conf.DataPath)
		os.Exit(1)
	}

	var imp *importer.Importer
	if len(conf.ICS) > 0 {
		imp = importer.New(importerConfig(conf), ics.NewFetcher(conf.CacheDir, nil), st)
	}

	if flags.once {
		if imp == nil {
			appLog.Info("no calendar sources configured; nothing to import")
			return
		}
		rep, err := imp.Run(ctx, time.Now())
		if err != nil {
			appLog.Error("import failed", err, "errors", rep.Errors)
			os.Exit(1)
		}
		appLog.Info("import finished", "imported", rep.Imported, "events", rep.Events)
		return
	}

	var opts []web.Option
	if conf.DatabaseURL != "" {
		conn, err := backup.Connect(ctx, conf.DatabaseURL)
		if err != nil {
			appLog.Error("failed to connect to backup database", err)
			os.Exit(1)
		}
		defer conn.Close(context.Background())

		repo := backup.NewRepo(conn)
		if err := repo.Migrate(ctx); err != nil {
			appLog.Error("failed to migrate backup schema", err)
			os.Exit(1)
		}
		opts = append(opts, web.WithBackups(repo))
	}

	if imp != nil {
		opts = append(opts, web.WithImporter(imp))

		c := cron.New(cron.WithLocation(conf.Location()))
		if _, err := imp.Schedule(ctx, c, conf.RefreshCron); err != nil {
			appLog.Error("failed to schedule import", err, "refresh", conf.RefreshCron)
			os.Exit(1)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()

		go func() {
			if _, err := imp.Run(ctx, time.Now()); err != nil {
				appLog.Error("initial import failed", err)
			}
		}()
	}

	srv := web.NewServer(conf, st, opts...)
	if err := srv.Serve(ctx, conf.Listen); err != nil {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}
	appLog.Info("dealercal exiting")
}

func importerConfig(conf *config.Config) importer.Config {
	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, c := range conf.ICS {
		sources = append(sources, ics.Source{ID: c.SourceID(), URL: c.URL})
	}
	return importer.Config{
		Sources:  sources,
		Location: conf.Location(),
		Backfill: time.Duration(conf.BackfillDays) * 24 * time.Hour,
		Horizon:  time.Duration(conf.HorizonDays) * 24 * time.Hour,
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	pflag.StringVarP(&cfg.configPath, "config", "c", "/etc/dealercal/config.yaml", "Path to config file")
	pflag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	pflag.BoolVar(&cfg.once, "once", false, "Run one ICS import and exit")
	pflag.Parse()

	return cfg
}
