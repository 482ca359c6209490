package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/curateops/curator/internal/swarm"
)

var (
	runRoles        []string
	runPollInterval int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the worker swarm",
	Long: `Start a worker instance: poll the tracker for ready work, claim items,
run the matching role agents, and record everything in the activity feed.

Stops cleanly on SIGINT/SIGTERM or a 'curator stop' from another shell.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		trk := newTracker()
		supervisor, budget := newSupervisor(store)

		swarmCfg := cfg.Swarm
		if len(runRoles) > 0 {
			swarmCfg.Roles = runRoles
		}
		if runPollInterval > 0 {
			swarmCfg.PollIntervalSeconds = runPollInterval
		}

		worker, err := swarm.New(&swarm.Config{
			Store:           store,
			Tracker:         trk,
			AI:              supervisor,
			Budget:          budget,
			Version:         version,
			Swarm:           swarmCfg,
			EventRetention:  cfg.EventRetention,
			InstanceCleanup: cfg.InstanceCleanup,
		})
		if err != nil {
			return err
		}

		if err := worker.Start(ctx); err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Worker %s running (poll every %ds)\n",
			green("✓"), worker.InstanceID()[:8], swarmCfg.PollIntervalSeconds)
		if sock := worker.ControlSocket(); sock != "" {
			fmt.Printf("  Control socket: %s\n", sock)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
		case <-worker.ShutdownRequested():
			fmt.Println("\nStop requested over control socket, shutting down...")
		}

		stopCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := worker.Stop(stopCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		fmt.Printf("%s Worker stopped\n", green("✓"))
		return nil
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runRoles, "roles", nil,
		"restrict this worker to the given agent roles")
	runCmd.Flags().IntVar(&runPollInterval, "poll-interval", 0,
		"poll interval in seconds (overrides config)")
	rootCmd.AddCommand(runCmd)
}
