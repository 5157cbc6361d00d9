package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"trendcast/internal/backtest"
	"trendcast/internal/common"
	"trendcast/internal/exchange/bitunix"
	"trendcast/internal/exchange/coinbase"
	"trendcast/internal/market"
	"trendcast/internal/ml"
	"trendcast/internal/predict"
)

func main() {
	// Parse command line arguments
	var (
		dataPath     = flag.String("data", "", "Path to a candle CSV or JSON file (omit to fetch from the venue)")
		manifestPath = flag.String("manifest", common.DefaultManifestPath, "Path to the model manifest")
		model        = flag.String("model", common.DefaultModel, "Model to evaluate")
		outputPath   = flag.String("output", "backtest_results", "Output directory for results")
		logLevel     = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		startDate    = flag.String("start", "", "Start date (YYYY-MM-DD)")
		endDate      = flag.String("end", "", "End date (YYYY-MM-DD)")
		dataFormat   = flag.String("format", "auto", "Data format: auto, csv, json, venue")
		venue        = flag.String("venue", common.DefaultVenue, "Venue for -format venue: coinbase or bitunix")
		interval     = flag.String("interval", common.DefaultCandleInterval, "Candle interval for -format venue")
		candles      = flag.Int("candles", 250, "Number of candles to fetch for -format venue")
		horizon      = flag.Int("horizon", 1, "Bars ahead each prediction is scored against")
	)
	flag.Parse()

	// Setup logging
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Print configuration
	fmt.Println("=== Backtest Configuration ===")
	fmt.Printf("Manifest: %s\n", *manifestPath)
	fmt.Printf("Model: %s\n", *model)
	fmt.Printf("Data: %s (%s)\n", *dataPath, *dataFormat)
	fmt.Printf("Horizon: %d\n", *horizon)
	fmt.Printf("Output Directory: %s\n", *outputPath)
	fmt.Println("==============================")

	registry, err := ml.NewRegistryFromManifest(*manifestPath, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load manifest")
	}
	spec, err := registry.Spec(*model)
	if err != nil {
		log.Fatal().Err(err).Msg("Unknown model")
	}
	if _, err := registry.Get(*model); err != nil {
		log.Fatal().Err(err).Msg("Failed to load model")
	}

	// Parse dates
	var startTime, endTime time.Time
	if *startDate != "" {
		startTime, err = time.Parse("2006-01-02", *startDate)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid start date format")
		}
	}
	if *endDate != "" {
		endTime, err = time.Parse("2006-01-02", *endDate)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid end date format")
		}
	}

	ctx := context.Background()
	loader := backtest.NewDataLoader()

	format := *dataFormat
	if format == "auto" {
		format = detectFormat(*dataPath)
	}
	switch format {
	case "csv":
		err = loader.LoadFromCSV(*dataPath)
	case "json":
		err = loader.LoadFromJSON(*dataPath)
	case "venue":
		var source market.CandleSource
		source, err = newCandleSource(*venue, *interval)
		if err == nil {
			err = loader.LoadFromSource(ctx, source, spec.Symbol, *candles)
		}
	default:
		log.Fatal().Str("format", format).Msg("Unknown data format")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load data")
	}
	loader.Filter(startTime, endTime)

	// Supplied series only; the service never reaches the network here.
	service := predict.New(registry, nil, predict.NewRetryPolicy(0, time.Millisecond), nil)
	engine := backtest.NewEngine(service, spec, loader, *horizon)

	results, err := engine.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Backtest failed")
	}

	// Generate reports
	reporter := backtest.NewReporter(results, *outputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("Failed to generate reports")
	}

	// Print summary to console
	reporter.PrintSummary()

	log.Info().
		Str("output", *outputPath).
		Msg("Backtest completed successfully")
}

// detectFormat picks a loader from the file extension. No path means the
// venue.
func detectFormat(path string) string {
	if path == "" {
		return "venue"
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	case ".json", ".jsonl", ".ndjson":
		return "json"
	default:
		return "unknown"
	}
}

func newCandleSource(venue, interval string) (market.CandleSource, error) {
	switch venue {
	case common.VenueCoinbase:
		return coinbase.NewREST(common.DefaultCoinbaseURL, interval, 10*time.Second)
	case common.VenueBitunix:
		return bitunix.NewREST(common.DefaultBitunixURL, bitunix.KlineInterval(interval), 10*time.Second)
	default:
		return nil, fmt.Errorf("%s, got %q", common.ErrMsgUnknownVenue, venue)
	}
}
