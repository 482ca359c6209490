package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/curateops/curator/internal/types"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage knowledge bases",
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge bases",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		kbs, err := store.ListKnowledgeBases(ctx, false)
		if err != nil {
			return err
		}
		if len(kbs) == 0 {
			fmt.Println("No knowledge bases. Create one with: curator kb create <name>")
			return nil
		}
		green := color.New(color.FgGreen).SprintFunc()
		for _, kb := range kbs {
			state := green("active")
			if !kb.IsActive {
				state = "done"
			}
			project := kb.TrackerProjectID
			if project == "" {
				project = "-"
			}
			fmt.Printf("%-4d %-30s %-7s project %s\n", kb.ID, kb.Name, state, project)
		}
		return nil
	},
}

var kbDescription string

var kbCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		kb := &types.KnowledgeBase{
			Name:        args[0],
			Description: kbDescription,
			IsActive:    true,
			AuthorID:    "cli",
		}
		if err := store.CreateKnowledgeBase(ctx, kb); err != nil {
			return err
		}
		fmt.Printf("%s Created knowledge base %q (id %d)\n",
			color.New(color.FgGreen).Sprint("✓"), kb.Name, kb.ID)
		return nil
	},
}

var kbDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a knowledge base done",
	Long: `Mark a knowledge base done. A running worker's sweep then creates the
tracker project and the standard curation issues for it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("kb id must be a number: %q", args[0])
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		kb, err := store.GetKnowledgeBase(ctx, id)
		if err != nil {
			return err
		}
		if !kb.IsActive {
			fmt.Printf("Knowledge base %q is already done.\n", kb.Name)
			return nil
		}
		kb.IsActive = false
		if err := store.UpdateKnowledgeBase(ctx, kb); err != nil {
			return err
		}
		fmt.Printf("%s Marked %q done; the swarm will bootstrap its tracker project.\n",
			color.New(color.FgGreen).Sprint("✓"), kb.Name)
		return nil
	},
}

func init() {
	kbCreateCmd.Flags().StringVar(&kbDescription, "description", "", "knowledge base description")
	kbCmd.AddCommand(kbListCmd, kbCreateCmd, kbDoneCmd)
	rootCmd.AddCommand(kbCmd)
}
