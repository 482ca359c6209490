package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, storage, tracker, and AI connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		pass := color.New(color.FgGreen).Sprint("ok")
		fail := color.New(color.FgRed).Sprint("FAIL")
		warn := color.New(color.FgYellow).Sprint("warn")
		healthy := true

		fmt.Printf("config      %s  backend=%s\n", pass, cfg.Database.Backend)

		store, err := openStore(ctx)
		if err != nil {
			fmt.Printf("storage     %s  %v\n", fail, err)
			healthy = false
		} else {
			defer store.Close()
			kbs, err := store.ListKnowledgeBases(ctx, false)
			if err != nil {
				fmt.Printf("storage     %s  %v\n", fail, err)
				healthy = false
			} else {
				fmt.Printf("storage     %s  %d knowledge bases\n", pass, len(kbs))
			}
		}

		if tc := newTracker(); tc == nil {
			fmt.Printf("tracker     %s  not configured (set tracker.base_url and tracker.token)\n", warn)
		} else if _, err := tc.ListProjects(ctx); err != nil {
			fmt.Printf("tracker     %s  %v\n", fail, err)
			healthy = false
		} else {
			fmt.Printf("tracker     %s  %s\n", pass, cfg.Tracker.BaseURL)
		}

		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			fmt.Printf("ai          %s  ANTHROPIC_API_KEY not set; agents run in degraded mode\n", warn)
		} else {
			fmt.Printf("ai          %s  model=%s\n", pass, cfg.AI.Model)
		}

		if !healthy {
			return fmt.Errorf("one or more checks failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
