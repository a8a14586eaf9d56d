// Command analyzer runs one contribution analysis from the terminal:
// realtime mode fetches live quotes and attributes today's index change,
// batch mode recomputes the whole persisted history.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"

	"nikkeicli/internal/config"
	"nikkeicli/internal/fetcher"
	"nikkeicli/internal/infrastructure"
	"nikkeicli/internal/services"
	"nikkeicli/pkg/contracts/domain"
)

func main() {
	mode := flag.String("mode", "realtime", "analysis mode: realtime or batch")
	dataDir := flag.String("data", "", "data directory (defaults to data/ next to the executable)")
	top := flag.Int("top", 10, "number of top gainers and losers to print")
	flag.Parse()

	if *mode != "realtime" && *mode != "batch" {
		fmt.Fprintf(os.Stderr, "unknown mode %q, want realtime or batch\n", *mode)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Paths.DataDir = *dataDir
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer infrastructure.CloseLogFile()

	paths, err := config.GetPaths(cfg)
	if err != nil {
		logger.Error("Failed to resolve paths", "error", err)
		os.Exit(1)
	}
	if err := paths.EnsureDirs(); err != nil {
		logger.Error("Failed to create directories", "error", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: cfg.Fetch.RequestTimeout}
	svc := services.NewAnalysisService(paths,
		fetcher.NewMasterDownloader(client, cfg.Fetch.MasterURL, cfg.Fetch.UserAgent, paths, logger),
		fetcher.NewQuoteFetcher(client, cfg.Fetch.QuoteBaseURL, cfg.Fetch.UserAgent, cfg.Fetch.RequestsPerSecond, logger),
		fetcher.NewIndexQuoteFetcher(client, cfg.Fetch.IndexURL, cfg.Fetch.UserAgent, logger),
		fetcher.LoadConstituents, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.AnalysisTimeout)
	defer cancel()

	var snapshot *domain.Snapshot
	if *mode == "batch" {
		snapshot, err = svc.RunBatch(ctx)
	} else {
		snapshot, err = svc.RunRealtime(ctx)
	}
	if err != nil {
		logger.Error("Analysis failed", "mode", *mode, "error", err)
		os.Exit(1)
	}

	printSnapshot(snapshot, *top)
}

func printSnapshot(snapshot *domain.Snapshot, top int) {
	fmt.Printf("Analysis %s for %s\n", snapshot.RunID, snapshot.Period.Format("2006-01-02"))
	fmt.Printf("Index change: %+.2f\n\n", snapshot.IndexChange)

	n := top
	if n > len(snapshot.Stocks) {
		n = len(snapshot.Stocks)
	}
	fmt.Println("Top contributors:")
	for _, e := range snapshot.Stocks[:n] {
		fmt.Printf("  %-6s %-30s %+10.2f\n", e.Code, e.Name, e.Value)
	}

	losers := make([]domain.ContributionEntry, len(snapshot.Stocks))
	copy(losers, snapshot.Stocks)
	sort.Slice(losers, func(i, j int) bool { return losers[i].Value < losers[j].Value })
	if n > len(losers) {
		n = len(losers)
	}
	fmt.Println("\nBottom contributors:")
	for _, e := range losers[:n] {
		fmt.Printf("  %-6s %-30s %+10.2f\n", e.Code, e.Name, e.Value)
	}

	if len(snapshot.Sectors) > 0 {
		fmt.Println("\nBy sector:")
		for _, e := range snapshot.Sectors {
			fmt.Printf("  %-30s %+10.2f\n", e.Label, e.Value)
		}
	}
}
