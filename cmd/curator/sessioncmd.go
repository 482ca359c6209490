package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/curateops/curator/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and manage chat sessions",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's context and conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		mgr := session.NewManager(store)
		sc, err := mgr.Load(ctx, args[0])
		if err != nil {
			return err
		}

		bold := color.New(color.Bold).SprintFunc()
		fmt.Printf("%s %s\n", bold("Session:"), sc.SessionID)
		if sc.KnowledgeBaseID != nil {
			fmt.Printf("%s %d\n", bold("Knowledge base:"), *sc.KnowledgeBaseID)
		}
		if sc.UserIntent != "" {
			fmt.Printf("%s %s (%.2f)\n", bold("Last intent:"), sc.UserIntent, sc.IntentConfidence)
		}
		fmt.Printf("%s %s\n", bold("State:"), sc.ConversationState)

		history, err := mgr.History(ctx, args[0], 50)
		if err != nil {
			return err
		}
		if len(history) > 0 {
			fmt.Printf("\n%s\n", bold("Conversation:"))
			for _, m := range history {
				fmt.Printf("  [%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), m.Role, m.Content)
			}
		}
		return nil
	},
}

var sessionAuditCmd = &cobra.Command{
	Use:   "audit <session-id>",
	Short: "Show a session's audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := session.NewManager(store).Audit(ctx, args[0], 100)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No audit entries.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("[%s] %s %s: %q -> %q (by %s)\n",
				e.CreatedAt.Format("15:04:05"), e.ChangeType, e.Path,
				e.OldValue, e.NewValue, e.AgentName)
		}
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <session-id>",
	Short: "Clear a session's context and conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := session.NewManager(store).Clear(ctx, args[0], "cli"); err != nil {
			return err
		}
		fmt.Printf("%s Session %s cleared\n", color.New(color.FgGreen).Sprint("✓"), args[0])
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd, sessionAuditCmd, sessionClearCmd)
	rootCmd.AddCommand(sessionCmd)
}
