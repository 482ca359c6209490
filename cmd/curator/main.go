// Command curator is the CLI for the knowledge base agent swarm:
// run the worker, chat with the agents, and inspect what they did.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/curateops/curator/internal/ai"
	"github.com/curateops/curator/internal/config"
	"github.com/curateops/curator/internal/cost"
	"github.com/curateops/curator/internal/storage"
	"github.com/curateops/curator/internal/tracker"
)

var version = "0.1.0"

var (
	configPath string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:     "curator",
	Short:   "Autonomous knowledge base curation swarm",
	Long:    `Curator runs a swarm of role agents that plan, write, review, and serve knowledge base content, coordinated through an issue tracker and a shared database.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		return nil
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default "+config.DefaultPath()+")")
}

// openStore opens the configured storage backend. Callers own Close.
func openStore(ctx context.Context) (storage.Storage, error) {
	store, err := storage.NewStorage(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}

// newTracker builds the tracker client, or nil when unconfigured.
func newTracker() *tracker.Client {
	if cfg.Tracker.BaseURL == "" || cfg.Tracker.Token == "" {
		return nil
	}
	tc, err := tracker.New(cfg.Tracker.BaseURL, cfg.Tracker.Token, cfg.Tracker.RequestsPerSecond)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: tracker unavailable: %v\n", err)
		return nil
	}
	return tc
}

// newSupervisor builds the AI gateway plus its budget tracker, or
// (nil, nil) when no API key is available.
func newSupervisor(store storage.Storage) (*ai.Supervisor, *cost.Tracker) {
	costCfg := cost.LoadFromEnv()
	if cfg.AI.DailyBudgetUSD > 0 {
		costCfg.MaxCostPerDay = cfg.AI.DailyBudgetUSD
	}
	budget, err := cost.NewTracker(costCfg, store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cost tracking disabled: %v\n", err)
		budget = nil
	}

	supCfg := &ai.Config{
		Store:       store,
		Model:       cfg.AI.Model,
		SimpleModel: cfg.AI.SimpleTaskModel,
	}
	if budget != nil {
		supCfg.Budget = budget
	}
	supervisor, err := ai.NewSupervisor(supCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: AI unavailable: %v\n", err)
		return nil, budget
	}
	return supervisor, budget
}
