// Package storage defines the persistence interface for curator and
// dispatches to the sqlite and postgres backends. The store is the
// source of truth for content, claims, sessions, and the activity
// feed; the tracker stays authoritative for the human-visible queue.
package storage

import (
	"context"
	"time"

	"github.com/curateops/curator/internal/config"
	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/types"
)

// Sentinel errors shared by both backends, aliased here so callers can
// stay on the storage API. Claim contention is a normal outcome of
// running multiple workers, so callers check these with errors.Is
// rather than string matching.
var (
	// ErrAlreadyClaimed means another instance holds an active claim.
	ErrAlreadyClaimed = types.ErrAlreadyClaimed
	// ErrNotClaimable means the work item is not in open status.
	ErrNotClaimable = types.ErrNotClaimable
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = types.ErrNotFound
)

// Storage is the persistence interface.
type Storage interface {
	// Knowledge bases
	CreateKnowledgeBase(ctx context.Context, kb *types.KnowledgeBase) error
	GetKnowledgeBase(ctx context.Context, id int64) (*types.KnowledgeBase, error)
	ListKnowledgeBases(ctx context.Context, activeOnly bool) ([]*types.KnowledgeBase, error)
	UpdateKnowledgeBase(ctx context.Context, kb *types.KnowledgeBase) error
	// LinkTrackerProject records the tracker project created for a KB.
	LinkTrackerProject(ctx context.Context, kbID int64, projectID string) error
	// GetDoneKnowledgeBases returns inactive KBs with no tracker project
	// yet; the management agent sweeps these and bootstraps projects.
	GetDoneKnowledgeBases(ctx context.Context) ([]*types.KnowledgeBase, error)

	// Articles
	CreateArticle(ctx context.Context, a *types.Article) error
	GetArticle(ctx context.Context, id int64) (*types.Article, error)
	UpdateArticle(ctx context.Context, a *types.Article) error
	GetRootArticles(ctx context.Context, kbID int64) ([]*types.Article, error)
	GetChildArticles(ctx context.Context, parentID int64) ([]*types.Article, error)
	SearchArticles(ctx context.Context, kbID int64, query string, limit int) ([]*types.Article, error)

	// Tags
	AttachTag(ctx context.Context, articleID int64, name string) error
	DetachTag(ctx context.Context, articleID int64, name string) error
	GetArticleTags(ctx context.Context, articleID int64) ([]*types.Tag, error)
	ListTagsWithUsage(ctx context.Context) ([]*types.TagWithUsage, error)

	// Work mirror
	UpsertWorkItem(ctx context.Context, w *types.WorkItem) error
	GetWorkItem(ctx context.Context, id string) (*types.WorkItem, error)
	UpdateWorkStatus(ctx context.Context, id string, status types.WorkStatus) error
	GetReadyWork(ctx context.Context, filter types.WorkFilter) ([]*types.WorkItem, error)

	// Claim protocol
	ClaimWork(ctx context.Context, workID, instanceID string) error
	GetExecutionState(ctx context.Context, workID string) (*types.WorkExecutionState, error)
	UpdateExecutionState(ctx context.Context, workID string, state types.ExecutionState) error
	SaveCheckpoint(ctx context.Context, workID string, checkpoint any) error
	GetCheckpoint(ctx context.Context, workID string) (string, error)
	ReleaseWork(ctx context.Context, workID string) error
	ReleaseWorkAndReopen(ctx context.Context, workID, actor, reason string) error
	// ListActiveExecutions returns every claim row in an active state,
	// oldest update first. The watchdog scans these for wedged work.
	ListActiveExecutions(ctx context.Context) ([]*types.WorkExecutionState, error)

	// Worker instances
	RegisterInstance(ctx context.Context, inst *types.WorkerInstance) error
	UpdateHeartbeat(ctx context.Context, instanceID string) error
	GetActiveInstances(ctx context.Context) ([]*types.WorkerInstance, error)
	// CleanupStaleInstances releases claims held by instances whose
	// heartbeat is older than staleThreshold, reopens their work, and
	// marks the instances crashed. Returns instances cleaned up.
	CleanupStaleInstances(ctx context.Context, staleThreshold time.Duration) (int, error)
	MarkInstanceStopped(ctx context.Context, instanceID string) error
	DeleteOldStoppedInstances(ctx context.Context, olderThan time.Duration, keep int) (int, error)

	// Watchdog
	RecordIntervention(ctx context.Context, workID string) (int, error)
	GetLastIntervention(ctx context.Context, workID string) (count int, last time.Time, err error)

	// Execution history
	RecordExecutionAttempt(ctx context.Context, attempt *types.ExecutionAttempt) error
	GetExecutionHistory(ctx context.Context, workID string) ([]*types.ExecutionAttempt, error)

	// Activity feed
	StoreEvent(ctx context.Context, e *events.AgentEvent) error
	GetEvents(ctx context.Context, filter events.Filter) ([]*events.AgentEvent, error)
	CleanupEvents(ctx context.Context, cfg config.EventRetentionConfig) (int, error)

	// Sessions
	GetSessionContext(ctx context.Context, sessionID string) (*types.SessionContext, error)
	SaveSessionContext(ctx context.Context, sc *types.SessionContext, agentName string) error
	GetAgentContext(ctx context.Context, sessionID string) (*types.AgentContext, error)
	SaveAgentContext(ctx context.Context, ac *types.AgentContext, agentName string) error
	AppendMessage(ctx context.Context, m *types.ConversationMessage) error
	GetConversation(ctx context.Context, sessionID string, limit int) ([]*types.ConversationMessage, error)
	GetAuditTrail(ctx context.Context, sessionID string, limit int) ([]*types.AuditEntry, error)
	ClearSession(ctx context.Context, sessionID, agentName string) error

	Close() error
}

// CalculateInterventionBackoff returns how long the watchdog must wait
// before intervening on a work item again: 5min·2^(count−1) capped at
// 4h, minus the time already elapsed since the last intervention.
// Returns 0 when the backoff window has passed.
func CalculateInterventionBackoff(count int, elapsed time.Duration) time.Duration {
	if count <= 0 {
		return 0
	}
	base := 5 * time.Minute
	maxBackoff := 4 * time.Hour

	backoff := base
	for i := 1; i < count; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			backoff = maxBackoff
			break
		}
	}

	remaining := backoff - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
