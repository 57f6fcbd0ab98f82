package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/muilab/notigpt/internal/app"
	"github.com/muilab/notigpt/internal/config"
	"github.com/muilab/notigpt/internal/digest"
	"github.com/muilab/notigpt/internal/logger"
)

func main() {
	var (
		mode     = flag.String("mode", string(digest.ModeSummarize), "Digest mode: summarize, categorize or sort")
		asJSON   = flag.Bool("json", false, "Print the full digest record as JSON")
		latest   = flag.Bool("latest", false, "Print the most recent stored digest instead of running a new one")
		showHelp = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *showHelp {
		fmt.Println("Notification Digest")
		fmt.Println("Usage: go run cmd/digest/main.go [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println("")
		fmt.Println("Examples:")
		fmt.Println("  go run cmd/digest/main.go")
		fmt.Println("  go run cmd/digest/main.go -mode categorize")
		fmt.Println("  go run cmd/digest/main.go -mode sort -json")
		fmt.Println("  go run cmd/digest/main.go -latest")
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Keep stdout for the digest itself.
	logCfg := logger.FromConfig(cfg.LogLevel, cfg.LogFormat)
	logCfg.Output = os.Stderr

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger.New(logCfg))
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	var d *digest.Digest
	if *latest {
		d, err = a.Pipeline.Latest(ctx, digest.Mode(*mode))
	} else {
		d, err = a.Pipeline.Run(ctx, digest.Mode(*mode))
	}
	if err != nil {
		a.Close()
		log.Fatalf("Failed to produce digest: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			a.Close()
			log.Fatalf("Failed to encode digest: %v", err)
		}
		return
	}

	fmt.Println(d.Text)
	if d.Degraded() {
		fmt.Fprintf(os.Stderr, "\n%d of %d chunks failed\n", d.Failed, d.ChunkCount)
	}
}
