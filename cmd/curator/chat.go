package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/curateops/curator/internal/repl"
)

var chatSession string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the curation agents",
	Long: `Start the interactive chat shell. Messages are classified and routed
to the right role agent; /help lists the slash commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		supervisor, _ := newSupervisor(store)
		r, err := repl.New(&repl.Config{
			Store:     store,
			Tracker:   newTracker(),
			AI:        supervisor,
			SessionID: chatSession,
		})
		if err != nil {
			return err
		}
		return r.Run(ctx)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "resume an existing session ID")
	rootCmd.AddCommand(chatCmd)
}
