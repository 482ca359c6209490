package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/curateops/curator/internal/control"
	"github.com/curateops/curator/internal/types"
)

var (
	controlSocket string
	pauseReason   string
)

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause running workers (they finish current work, then stop claiming)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachWorker(func(id string, c *control.Client) error {
			resp, err := c.Pause(pauseReason)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s: %s\n", color.New(color.FgYellow).Sprint("⏸"), shortID(id), resp.Message)
			return nil
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume paused workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachWorker(func(id string, c *control.Client) error {
			resp, err := c.Resume()
			if err != nil {
				return err
			}
			fmt.Printf("%s %s: %s\n", color.New(color.FgGreen).Sprint("▶"), shortID(id), resp.Message)
			return nil
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask running workers to shut down cleanly",
	RunE: func(cmd *cobra.Command, args []string) error {
		return forEachWorker(func(id string, c *control.Client) error {
			resp, err := c.Stop()
			if err != nil {
				return err
			}
			fmt.Printf("%s %s: %s\n", color.New(color.FgRed).Sprint("■"), shortID(id), resp.Message)
			return nil
		})
	},
}

// forEachWorker sends a control command to every reachable worker. With
// --socket it talks to that socket directly; otherwise it discovers workers
// through the instance registry. Workers whose socket is gone (crashed, or on
// another host) are reported but don't fail the command as long as at least
// one worker was reached.
func forEachWorker(fn func(instanceID string, c *control.Client) error) error {
	if controlSocket != "" {
		return fn("worker", control.NewClient(controlSocket))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	instances, err := store.GetActiveInstances(ctx)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		return fmt.Errorf("no active workers registered (is 'curator run' running?)")
	}

	var reached int
	for _, inst := range instances {
		if inst.Status != types.InstanceRunning {
			continue
		}
		c := control.NewClient(control.SocketPath(inst.InstanceID))
		if err := fn(inst.InstanceID, c); err != nil {
			fmt.Printf("%s %s: %v\n", color.New(color.FgRed).Sprint("✗"), shortID(inst.InstanceID), err)
			continue
		}
		reached++
	}
	if reached == 0 {
		return fmt.Errorf("no workers reachable over their control sockets")
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	pauseCmd.Flags().StringVar(&pauseReason, "reason", "", "reason for pausing (shown in status)")
	for _, c := range []*cobra.Command{pauseCmd, resumeCmd, stopCmd} {
		c.Flags().StringVar(&controlSocket, "socket", "", "control socket path (default: discover via instance registry)")
		rootCmd.AddCommand(c)
	}
}
