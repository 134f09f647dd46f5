package domain

import "time"

// Action indicates the type of modification recorded in the audit trail.
type Action string

// Audited actions.
const (
	ActionCreate             Action = "CREATE"
	ActionUpdate             Action = "UPDATE"
	ActionDelete             Action = "DELETE"
	ActionUpdatePassword     Action = "UPDATE_PASSWORD"
	ActionAssignAmbassador   Action = "ASSIGN_AMBASSADOR"
	ActionUnassignAmbassador Action = "UNASSIGN_AMBASSADOR"
	ActionTransition         Action = "TRANSITION"
	ActionReset              Action = "RESET"
)

// AuditLog is an immutable record of one mutation. Before and After are
// self-contained snapshots of the affected entity; Before is null for
// creations and After is null for deletions.
type AuditLog struct {
	ID         string        `json:"id"`
	ActorID    string        `json:"actor_id"`
	ActorRole  Role          `json:"actor_role,omitempty"`
	Action     Action        `json:"action"`
	EntityType EntityType    `json:"entity_type"`
	EntityID   string        `json:"entity_id"`
	Before     ChangePayload `json:"before"`
	After      ChangePayload `json:"after"`
	CreatedAt  time.Time     `json:"created_at"`
}

// AuditFilter narrows audit listings. Zero values match everything; a
// non-positive Limit returns all matching entries.
type AuditFilter struct {
	EntityType EntityType
	EntityID   string
	ActorID    string
	Limit      int
}

// Matches reports whether the entry satisfies the filter predicates.
func (f AuditFilter) Matches(entry AuditLog) bool {
	if f.EntityType != "" && entry.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && entry.EntityID != f.EntityID {
		return false
	}
	if f.ActorID != "" && entry.ActorID != f.ActorID {
		return false
	}
	return true
}

// FilterAuditLogs returns the entries matching f, keeping most-recent-first
// order.
func FilterAuditLogs(entries []AuditLog, f AuditFilter) []AuditLog {
	out := make([]AuditLog, 0, len(entries))
	for _, entry := range entries {
		if !f.Matches(entry) {
			continue
		}
		out = append(out, entry)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}
