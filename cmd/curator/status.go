package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/curateops/curator/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workers, ready work, and knowledge bases",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Curator Status ==="))

		instances, err := store.GetActiveInstances(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", yellow("Workers:"))
		if len(instances) == 0 {
			fmt.Println("  none running")
		}
		for _, inst := range instances {
			age := time.Since(inst.LastHeartbeat).Round(time.Second)
			marker := green("●")
			if age > 2*time.Minute {
				marker = red("●")
			}
			fmt.Printf("  %s %s  %s pid %d  heartbeat %s ago\n",
				marker, inst.InstanceID[:8], inst.Hostname, inst.PID, age)
		}

		ready, err := store.GetReadyWork(ctx, types.WorkFilter{
			Roles:       types.AllRoles,
			MaxPriority: -1,
			Limit:       20,
			SortPolicy:  types.SortPolicyPriority,
		})
		if err != nil {
			return err
		}
		fmt.Printf("\n%s %d\n", yellow("Ready work:"), len(ready))
		for _, w := range ready {
			fmt.Printf("  P%d %-10s %-10s %q\n", w.Priority, w.Role, w.ID, w.Title)
		}

		kbs, err := store.ListKnowledgeBases(ctx, false)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s %d\n", yellow("Knowledge bases:"), len(kbs))
		for _, kb := range kbs {
			state := green("active")
			if !kb.IsActive {
				state = "done"
			}
			fmt.Printf("  %-4d %-30s %s\n", kb.ID, kb.Name, state)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
