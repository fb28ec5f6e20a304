package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shifpost/internal/capture"
	"shifpost/internal/config"
	"shifpost/internal/export"
	"shifpost/internal/ics"
	appLog "shifpost/internal/log"
	"shifpost/internal/metrics"
	"shifpost/internal/store"
	"shifpost/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values; they override the config file.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("shifpost starting", "version", version)

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	loc, err := conf.Location()
	if err != nil {
		appLog.Error("invalid timezone", err)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", loc.String(),
		"hourly_wage", conf.HourlyWage,
		"export_cron", conf.Export.Cron,
		"export_dir", conf.Export.Dir,
		"export_users", len(conf.Export.Users),
		"pdf", conf.PDF.Enabled,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(loc)
	m := metrics.New()

	var pdf capture.Renderer = capture.Disabled{}
	if conf.PDF.Enabled {
		pdf = capture.NewChromium(capture.PDFOptions{Timeout: conf.PDFTimeout()})
	}
	exp := export.New(conf, st, pdf, m)

	if flags.once {
		if err := exp.RunOnce(ctx); err != nil {
			appLog.Error("export failed", err)
			os.Exit(1)
		}
		appLog.Info("shifpost exiting")
		return
	}

	sched, err := exp.Schedule(ctx, conf.Export.Cron)
	if err != nil {
		appLog.Error("invalid export schedule", err, "cron", conf.Export.Cron)
		os.Exit(1)
	}
	sched.Start()

	fetcher := ics.NewFetcher(conf.Import.CacheDir, conf.ImportTimeout())
	srv := web.NewServer(conf, st, exp, fetcher, m)
	if err := srv.ListenAndServe(ctx, 10*time.Second); err != nil {
		appLog.Error("http server failed", err)
		stop()
	}

	// Give a running export a moment to finish.
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sched.Stop(stopCtx)
	appLog.Info("shifpost exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/shifpost/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one export for the configured users and exit")

	flag.Parse()

	return cfg
}
