package types

// AgentRole identifies which content agent a work item or instance
// belongs to. Each role carries a label filter and a priority ceiling
// used when discovering ready work.
type AgentRole string

const (
	RoleManagement AgentRole = "management"
	RolePlanner    AgentRole = "planner"
	RoleCreator    AgentRole = "creator"
	RoleReviewer   AgentRole = "reviewer"
	RoleRetrieval  AgentRole = "retrieval"
	RoleSupervisor AgentRole = "supervisor"
)

// AllRoles lists every agent role in swarm startup order. Management
// runs first so KB lifecycle sweeps happen before content work.
var AllRoles = []AgentRole{
	RoleManagement,
	RolePlanner,
	RoleCreator,
	RoleReviewer,
	RoleRetrieval,
	RoleSupervisor,
}

// IsValid checks if the role is a known value.
func (r AgentRole) IsValid() bool {
	switch r {
	case RoleManagement, RolePlanner, RoleCreator, RoleReviewer, RoleRetrieval, RoleSupervisor:
		return true
	}
	return false
}

// String returns the role name.
func (r AgentRole) String() string {
	return string(r)
}

// WorkLabels returns the tracker labels this role claims work from.
func (r AgentRole) WorkLabels() []string {
	switch r {
	case RoleManagement:
		return []string{"kb-management", "lifecycle"}
	case RolePlanner:
		return []string{"planning", "content-strategy", "structure"}
	case RoleCreator:
		return []string{"content-generation", "article-creation", "revision"}
	case RoleReviewer:
		return []string{"quality-review", "accuracy-check", "consistency"}
	case RoleRetrieval:
		return []string{"retrieval", "search"}
	case RoleSupervisor:
		return []string{"escalation", "approval"}
	}
	return nil
}

// MaxPriority returns the lowest-urgency priority this role will pick
// up during autonomous work discovery. Supervisor only takes urgent
// items; retrieval sweeps everything assigned to it.
func (r AgentRole) MaxPriority() int {
	switch r {
	case RoleSupervisor:
		return 1
	case RoleManagement, RolePlanner:
		return 2
	case RoleCreator, RoleReviewer:
		return 3
	default:
		return 4
	}
}

// ParseRole converts a string to an AgentRole, validating it.
func ParseRole(s string) (AgentRole, error) {
	r := AgentRole(s)
	if !r.IsValid() {
		return "", errInvalidRole(s)
	}
	return r, nil
}

func errInvalidRole(s string) error {
	return &InvalidRoleError{Role: s}
}

// InvalidRoleError reports an unknown agent role string.
type InvalidRoleError struct {
	Role string
}

func (e *InvalidRoleError) Error() string {
	return "unknown agent role: " + e.Role
}
