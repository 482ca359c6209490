package repl

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"

	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/types"
)

// cmdStatus shows worker instances, the ready queue, and recent
// activity.
func (r *REPL) cmdStatus(ctx context.Context, args []string) error {
	bold := color.New(color.Bold).SprintFunc()

	instances, err := r.store.GetActiveInstances(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "\n%s %d\n", bold("Active workers:"), len(instances))
	for _, inst := range instances {
		fmt.Fprintf(r.out, "  %s  %s pid %d  heartbeat %s ago\n",
			inst.InstanceID[:8], inst.Hostname, inst.PID,
			time.Since(inst.LastHeartbeat).Round(time.Second))
	}

	ready, err := r.store.GetReadyWork(ctx, types.WorkFilter{
		Roles:       types.AllRoles,
		MaxPriority: -1,
		Limit:       10,
		SortPolicy:  types.SortPolicyPriority,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "\n%s %d\n", bold("Ready work:"), len(ready))
	for _, w := range ready {
		fmt.Fprintf(r.out, "  P%d %-10s %s %q\n", w.Priority, w.Role, w.ID, w.Title)
	}

	recent, err := r.store.GetEvents(ctx, events.Filter{Limit: 10})
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "\n%s\n", bold("Recent activity:"))
	for _, e := range recent {
		fmt.Fprintf(r.out, "  %s [%s] %s\n",
			e.Timestamp.Format("15:04:05"), e.Type, e.Message)
	}
	fmt.Fprintln(r.out)
	return nil
}

// cmdKB lists knowledge bases or selects one for the session.
func (r *REPL) cmdKB(ctx context.Context, args []string) error {
	if len(args) >= 2 && args[0] == "use" {
		return r.useKB(ctx, args[1])
	}

	kbs, err := r.store.ListKnowledgeBases(ctx, false)
	if err != nil {
		return err
	}
	if len(kbs) == 0 {
		fmt.Fprintln(r.out, "No knowledge bases yet. Try: create a knowledge base called \"...\"")
		return nil
	}

	sc, err := r.sessions.Load(ctx, r.sessionID)
	if err != nil {
		return err
	}

	fmt.Fprintln(r.out)
	for _, kb := range kbs {
		marker := "  "
		if sc.KnowledgeBaseID != nil && *sc.KnowledgeBaseID == kb.ID {
			marker = color.New(color.FgGreen).Sprint("* ")
		}
		state := "active"
		if !kb.IsActive {
			state = "done"
		}
		project := kb.TrackerProjectID
		if project == "" {
			project = "-"
		}
		fmt.Fprintf(r.out, "%s%-4d %-30s %-7s project %s\n", marker, kb.ID, kb.Name, state, project)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) useKB(ctx context.Context, idArg string) error {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return fmt.Errorf("kb id must be a number: %q", idArg)
	}
	kb, err := r.store.GetKnowledgeBase(ctx, id)
	if err != nil {
		return err
	}

	sc, err := r.sessions.Load(ctx, r.sessionID)
	if err != nil {
		return err
	}
	sc.KnowledgeBaseID = &kb.ID
	if err := r.sessions.Save(ctx, sc, "chat"); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Working in knowledge base %q (id %d).\n", kb.Name, kb.ID)
	return nil
}

// cmdSession shows the session context and the tail of the
// conversation.
func (r *REPL) cmdSession(ctx context.Context, args []string) error {
	sc, err := r.sessions.Load(ctx, r.sessionID)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s %s\n", bold("Session:"), sc.SessionID)
	if sc.KnowledgeBaseID != nil {
		fmt.Fprintf(r.out, "%s %d\n", bold("Knowledge base:"), *sc.KnowledgeBaseID)
	}
	if sc.UserIntent != "" {
		fmt.Fprintf(r.out, "%s %s (%.2f)\n", bold("Last intent:"), sc.UserIntent, sc.IntentConfidence)
	}

	history, err := r.sessions.History(ctx, r.sessionID, 10)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		fmt.Fprintf(r.out, "\n%s\n", bold("Recent conversation:"))
		for _, m := range history {
			fmt.Fprintf(r.out, "  %s: %s\n", m.Role, m.Content)
		}
	}
	fmt.Fprintln(r.out)
	return nil
}

// cmdClear wipes the session's context and conversation.
func (r *REPL) cmdClear(ctx context.Context, args []string) error {
	if err := r.sessions.Clear(ctx, r.sessionID, "chat"); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s Session cleared.\n", color.New(color.FgGreen).Sprint("✓"))
	return nil
}
