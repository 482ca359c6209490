package repl

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/curateops/curator/internal/agents"
	"github.com/curateops/curator/internal/ai"
	"github.com/curateops/curator/internal/types"
)

// handleMessage runs one chat turn: classify the intent, route to the
// matching workflow, and record both sides of the exchange.
func (r *REPL) handleMessage(ctx context.Context, message string) error {
	sc, err := r.sessions.Load(ctx, r.sessionID)
	if err != nil {
		return err
	}

	if _, err := r.sessions.Append(ctx, r.sessionID, "user", message, "chat"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record message: %v\n", err)
	}

	intent, err := r.classify(ctx, message, sc)
	if err != nil {
		return err
	}

	sc.UserIntent = intent.Intent
	sc.IntentConfidence = intent.Confidence

	reply, err := r.route(ctx, intent, message, sc)
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "%s %s\n", color.New(color.FgGreen).Sprint("curator:"), reply)

	if _, err := r.sessions.Append(ctx, r.sessionID, "assistant", reply, "chat"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record reply: %v\n", err)
	}
	if err := r.sessions.Save(ctx, sc, "chat"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save session: %v\n", err)
	}
	return nil
}

func (r *REPL) classify(ctx context.Context, message string, sc *types.SessionContext) (*ai.Intent, error) {
	if r.ai == nil {
		return ai.ClassifyOffline(message), nil
	}
	return r.ai.ClassifyIntent(ctx, message, sc)
}

// route dispatches a classified message and returns the reply text.
func (r *REPL) route(ctx context.Context, intent *ai.Intent, message string, sc *types.SessionContext) (string, error) {
	switch intent.Intent {
	case ai.IntentCreateKB:
		return r.createKB(ctx, intent, message, sc)
	case ai.IntentSetContext:
		return r.setContext(ctx, intent, message, sc)
	case ai.IntentRetrieve:
		return r.retrieve(ctx, intent, message, sc)
	case ai.IntentCreateArticle, ai.IntentUpdateArticle:
		return r.runAgent(ctx, types.RoleCreator, message, sc)
	case ai.IntentPlan:
		return r.runAgent(ctx, types.RolePlanner, message, sc)
	case ai.IntentReview:
		return r.runAgent(ctx, types.RoleReviewer, message, sc)
	default:
		return r.answer(ctx, message, sc)
	}
}

// createKB makes a knowledge base from the message and points the
// session at it.
func (r *REPL) createKB(ctx context.Context, intent *ai.Intent, message string, sc *types.SessionContext) (string, error) {
	name := intent.Target
	if name == "" {
		name = extractKBName(message)
	}
	if name == "" {
		return "I need a name for the knowledge base, e.g. 'create a knowledge base called Go Basics'.", nil
	}

	kb := &types.KnowledgeBase{Name: name, IsActive: true, AuthorID: "chat:" + r.sessionID}
	if err := r.store.CreateKnowledgeBase(ctx, kb); err != nil {
		return "", fmt.Errorf("failed to create knowledge base: %w", err)
	}
	sc.KnowledgeBaseID = &kb.ID
	return fmt.Sprintf("Created knowledge base %q (id %d) and made it the session target.", kb.Name, kb.ID), nil
}

// setContext points the session at a KB named or numbered in the
// message.
func (r *REPL) setContext(ctx context.Context, intent *ai.Intent, message string, sc *types.SessionContext) (string, error) {
	target := intent.Target
	if target == "" {
		target = message
	}

	kbs, err := r.store.ListKnowledgeBases(ctx, false)
	if err != nil {
		return "", err
	}
	lower := strings.ToLower(target)
	for _, kb := range kbs {
		if strings.Contains(lower, strings.ToLower(kb.Name)) {
			sc.KnowledgeBaseID = &kb.ID
			return fmt.Sprintf("Working in knowledge base %q (id %d).", kb.Name, kb.ID), nil
		}
	}
	return "I couldn't match that to a knowledge base. Try /kb list and /kb use <id>.", nil
}

// retrieve serves search and browse through the retrieval agent.
func (r *REPL) retrieve(ctx context.Context, intent *ai.Intent, message string, sc *types.SessionContext) (string, error) {
	kb, err := r.sessionKB(ctx, sc)
	if err != nil {
		return "", err
	}
	if kb == nil {
		return "No knowledge base selected. Use /kb list and /kb use <id> first.", nil
	}

	query := intent.Target
	if query == "" {
		query = agents.ExtractQuery(message)
	}

	listing, _, err := r.registry.Retrieval().Lookup(ctx, kb, query)
	if err != nil {
		return "", err
	}
	return listing, nil
}

// runAgent hands the message to a role agent as a synthetic chat work
// item. The agent's summary becomes the reply.
func (r *REPL) runAgent(ctx context.Context, role types.AgentRole, message string, sc *types.SessionContext) (string, error) {
	if r.ai == nil && role != types.RoleRetrieval {
		return "That needs the AI supervisor, which is not configured. Set ANTHROPIC_API_KEY and restart.", nil
	}

	kb, err := r.sessionKB(ctx, sc)
	if err != nil {
		return "", err
	}
	if kb == nil {
		return "No knowledge base selected. Use /kb list and /kb use <id> first.", nil
	}

	agent, ok := r.registry.ForRole(role)
	if !ok {
		return "", fmt.Errorf("no agent for role %s", role)
	}

	work := &types.WorkItem{
		ID:          "chat#" + r.sessionID,
		ProjectID:   kb.TrackerProjectID,
		Title:       truncateTitle(message),
		Description: message,
		Status:      types.StatusInProgress,
		Priority:    2,
		Role:        role,
	}
	result, err := agent.Execute(ctx, work, sc)
	if err != nil {
		return "", err
	}
	return result.Summary, nil
}

// answer handles general chat, degrading to guidance without AI.
func (r *REPL) answer(ctx context.Context, message string, sc *types.SessionContext) (string, error) {
	if r.ai == nil {
		return "I can search articles ('find ...'), or manage sessions and KBs via /help, but general chat needs the AI supervisor.", nil
	}
	history, err := r.sessions.History(ctx, r.sessionID, 50)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load history: %v\n", err)
	}
	return r.ai.Answer(ctx, message, sc, history)
}

// sessionKB resolves the session's KB. With no selection and exactly
// one active KB, that KB wins.
func (r *REPL) sessionKB(ctx context.Context, sc *types.SessionContext) (*types.KnowledgeBase, error) {
	if sc.KnowledgeBaseID != nil {
		return r.store.GetKnowledgeBase(ctx, *sc.KnowledgeBaseID)
	}
	kbs, err := r.store.ListKnowledgeBases(ctx, true)
	if err != nil {
		return nil, err
	}
	if len(kbs) == 1 {
		sc.KnowledgeBaseID = &kbs[0].ID
		return kbs[0], nil
	}
	return nil, nil
}

// extractKBName pulls a KB name out of phrases like `create a kb
// called "Go Basics"` or `... named Go Basics`.
func extractKBName(message string) string {
	if start := strings.Index(message, `"`); start >= 0 {
		rest := message[start+1:]
		if end := strings.Index(rest, `"`); end > 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	lower := strings.ToLower(message)
	for _, marker := range []string{" called ", " named ", " about ", " for "} {
		if idx := strings.Index(lower, marker); idx >= 0 {
			return strings.TrimSpace(message[idx+len(marker):])
		}
	}
	return ""
}

func truncateTitle(message string) string {
	const max = 80
	if len(message) <= max {
		return message
	}
	return message[:max-3] + "..."
}
