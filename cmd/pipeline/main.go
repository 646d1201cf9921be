package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/weatherenergy/pipeline/internal/config"
	"github.com/weatherenergy/pipeline/internal/fetch"
	"github.com/weatherenergy/pipeline/internal/logging"
	"github.com/weatherenergy/pipeline/internal/pipeline"
	"github.com/weatherenergy/pipeline/internal/scheduler"
	"github.com/weatherenergy/pipeline/internal/store"
)

func main() {
	stagesFlag := flag.String("stages", strings.Join(pipeline.AllStages, ","), "comma-separated stages to run (fetch,quality,anomaly)")
	daemon := flag.Bool("daemon", false, "run in daemon mode with the in-process daily schedule")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		// Logger isn't built yet; stderr is all we have.
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.AppEnv, "pipeline")

	// Shared HTTP client for outbound API calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	fileStore := store.NewFileStore(cfg.DataDir)
	noaa := fetch.NewNOAAClient(httpClient, cfg.NOAAAPIKey)
	eia := fetch.NewEIAClient(httpClient, cfg.EIAAPIKey)

	service := pipeline.NewService(cfg, noaa, eia, fileStore, log)

	if *daemon {
		at := cfg.ScheduleAt
		if at == "" {
			at = "06:00"
		}

		sched := scheduler.New(at, service, log)
		if err := sched.Start(); err != nil {
			log.Error("failed to start scheduler", "err", err)
			os.Exit(1)
		}
		defer sched.Stop()
		log.Info("daemon mode: daily pipeline scheduled", "at", at)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return
	}

	stages := strings.Split(*stagesFlag, ",")
	for i := range stages {
		stages[i] = strings.TrimSpace(stages[i])
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := service.Run(ctx, stages); err != nil {
		// Non-zero exit so the CI job fails and this cycle's update is
		// skipped rather than partially committed.
		log.Error("pipeline failed", "err", err)
		os.Exit(1)
	}
}
