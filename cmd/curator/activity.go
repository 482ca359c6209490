package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/storage"
)

var (
	activityLimit  int
	activityWork   string
	activityFollow bool
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show the agent activity feed",
	Long: `Show recent agent events: claims, completions, reviews, watchdog
interventions, AI usage. With --follow, keep printing new events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		since := time.Time{}
		list, err := store.GetEvents(ctx, events.Filter{
			WorkID: activityWork,
			Limit:  activityLimit,
		})
		if err != nil {
			return err
		}
		// Newest-first from storage; print oldest first.
		for i := len(list) - 1; i >= 0; i-- {
			printEvent(list[i])
			if list[i].Timestamp.After(since) {
				since = list[i].Timestamp
			}
		}

		if !activityFollow {
			return nil
		}

		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			since, err = printNewEvents(ctx, store, since)
			if err != nil {
				return err
			}
		}
		return nil
	},
}

func printNewEvents(ctx context.Context, store storage.Storage, since time.Time) (time.Time, error) {
	list, err := store.GetEvents(ctx, events.Filter{
		WorkID: activityWork,
		Since:  since,
		Limit:  200,
	})
	if err != nil {
		return since, err
	}
	for i := len(list) - 1; i >= 0; i-- {
		printEvent(list[i])
		if list[i].Timestamp.After(since) {
			since = list[i].Timestamp
		}
	}
	return since, nil
}

func printEvent(e *events.AgentEvent) {
	sev := color.New(color.FgHiBlack).SprintFunc()
	switch e.Severity {
	case events.SeverityWarning:
		sev = color.New(color.FgYellow).SprintFunc()
	case events.SeverityError, events.SeverityCritical:
		sev = color.New(color.FgRed).SprintFunc()
	}
	work := e.WorkID
	if work == "" {
		work = "-"
	}
	fmt.Printf("%s %s %-24s %-10s %s\n",
		e.Timestamp.Format("15:04:05"), sev(string(e.Severity)[:4]), e.Type, work, e.Message)
}

func init() {
	activityCmd.Flags().IntVar(&activityLimit, "limit", 30, "number of events to show")
	activityCmd.Flags().StringVar(&activityWork, "work", "", "filter by work item ID")
	activityCmd.Flags().BoolVarP(&activityFollow, "follow", "f", false, "keep printing new events")
	rootCmd.AddCommand(activityCmd)
}
