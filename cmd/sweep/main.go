// Command sweep runs one dispatch sweep and prints the report as JSON.
// It is meant for an external scheduler that prefers exec over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"postpilot/internal/bootstrap"
	"postpilot/internal/config"
	"postpilot/internal/models"
	"postpilot/internal/notifications"
)

var version = "dev"

func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "Abort the sweep after this long")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	shutdownTracing := bootstrap.InitTracing(cfg, version)
	defer func() { _ = shutdownTracing(context.Background()) }()

	db, rdb, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	deps := bootstrap.Deps{}
	if rdb != nil {
		deps.Notifier = notifications.NewNotifier(rdb)
		defer func() { _ = rdb.Close() }()
	}
	d := bootstrap.NewDispatcher(cfg, db, rdb, deps)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Shell access to the process is the credential here.
	report, err := d.RunSweep(ctx, models.TrustedTrigger())
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
}
