package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/camuig/bbma-trader/internal/config"
	"github.com/camuig/bbma-trader/internal/journal"
	"github.com/camuig/bbma-trader/internal/learner"
	"github.com/camuig/bbma-trader/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "show trade history stats without retraining")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	tradeLog := journal.New(journal.PathFor(cfg.Storage.DataDir, cfg.Symbol))
	records, err := tradeLog.Records()
	if err != nil {
		fmt.Fprintf(os.Stderr, "read trade history error: %v\n", err)
		os.Exit(1)
	}

	var wins int
	for _, r := range records {
		if r.Result == journal.Win {
			wins++
		}
	}
	fmt.Printf("%s: %d trade(s) in %s, %d win(s)\n", cfg.Symbol, len(records), tradeLog.Path(), wins)

	if *dryRun {
		fmt.Println("Dry run, model not touched.")
		return
	}

	model := learner.New(learner.PathFor(cfg.Storage.DataDir, cfg.Symbol), cfg.Learner.MinSamples)
	retrained, err := model.MaybeRetrain(records)
	if err != nil {
		fmt.Fprintf(os.Stderr, "retrain error: %v\n", err)
		os.Exit(1)
	}
	if !retrained {
		fmt.Printf("Not enough history: need %d trades.\n", model.MinSamples())
		return
	}

	m := model.Model()
	fmt.Printf("Model retrained on %d trades (bias %.4f, weights %.4f)\n", m.Samples, m.Bias, m.Weights)

	db, err := storage.NewDatabase(cfg.Storage.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database init error: %v\n", err)
		os.Exit(1)
	}
	if err := storage.NewRepository(db).SaveModelRun(&storage.ModelRun{
		Symbol:  cfg.Symbol,
		Samples: m.Samples,
		Wins:    m.Wins,
		Path:    learner.PathFor(cfg.Storage.DataDir, cfg.Symbol),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "save model run error: %v\n", err)
		os.Exit(1)
	}
}
