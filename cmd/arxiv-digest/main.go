package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wenqing/arxiv-digest/internal/config"
	"github.com/wenqing/arxiv-digest/internal/fetcher"
	"github.com/wenqing/arxiv-digest/internal/figure"
	"github.com/wenqing/arxiv-digest/internal/publisher"
	"github.com/wenqing/arxiv-digest/internal/runner"
	"github.com/wenqing/arxiv-digest/internal/summarizer"
)

// buildPublishers constructs the configured publisher. The web publisher is
// also returned separately so main can manage its server lifecycle.
func buildPublishers(cfg *config.Config) ([]publisher.Publisher, *publisher.WebPublisher, error) {
	switch cfg.Publisher.Type {
	case "stdout":
		return []publisher.Publisher{publisher.NewStdoutPublisher()}, nil, nil
	case "email":
		return []publisher.Publisher{publisher.NewEmailPublisher(cfg.Publisher.Email)}, nil, nil
	case "web":
		webPub := publisher.NewWebPublisher(cfg.Publisher.Web.Addr)
		return []publisher.Publisher{webPub}, webPub, nil
	case "discord":
		return []publisher.Publisher{publisher.NewDiscordPublisher(cfg.Publisher.Discord.WebhookURL)}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown publisher type: %s", cfg.Publisher.Type)
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run the pipeline once and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("arxiv-digest starting: category %s, publisher %s", cfg.ArXiv.Category, cfg.Publisher.Type)

	f := fetcher.NewArxivFetcher(cfg.ArXiv)

	s, err := summarizer.New(cfg)
	if err != nil {
		log.Fatalf("Failed to build summarizer: %v", err)
	}

	pubs, webPub, err := buildPublishers(cfg)
	if err != nil {
		log.Fatalf("Failed to build publisher: %v", err)
	}

	if webPub != nil {
		if err := webPub.Start(); err != nil {
			log.Fatalf("Failed to start web publisher: %v", err)
		}
	}

	r := runner.New(cfg.ArXiv.Category, f, s, figure.MainFigure, pubs)

	// Single-run mode: run the pipeline once and exit
	if *once {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		log.Println("Running digest (once mode)...")
		if err := r.Run(ctx); err != nil {
			log.Fatalf("Pipeline failed: %v", err)
		}
		log.Println("Done")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run immediately on startup if configured
	if cfg.RunOnStart {
		log.Println("Running initial digest...")
		if err := r.Run(ctx); err != nil {
			log.Printf("Initial run failed: %v", err)
		}
	}

	// Set up cron scheduler. A trigger that fires while the previous run is
	// still working is skipped rather than queued.
	var running sync.Mutex
	c := cron.New()
	_, err = c.AddFunc(cfg.Schedule, func() {
		if !running.TryLock() {
			log.Println("Previous run still in progress, skipping this trigger")
			return
		}
		defer running.Unlock()
		log.Println("Cron triggered, running digest...")
		if err := r.Run(ctx); err != nil {
			log.Printf("Scheduled run failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to set up cron schedule %q: %v", cfg.Schedule, err)
	}
	c.Start()
	log.Printf("Scheduled digest with cron expression: %s", cfg.Schedule)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal %v, shutting down...", sig)

	cancel()
	<-c.Stop().Done()

	if webPub != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := webPub.Shutdown(shutdownCtx); err != nil {
			log.Printf("Web server shutdown error: %v", err)
		}
	}

	log.Println("Shutdown complete")
}
