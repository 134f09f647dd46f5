// Package domain contains the entity model, typed configuration variants and
// persistence contracts shared by every opsdesk layer.
package domain

import "time"

// EntityType identifies the type of record stored in the snapshot.
type EntityType string

// Supported entity types. The string values are the ones recorded in audit
// entries.
const (
	EntityUser             EntityType = "user"
	EntityAmbassador       EntityType = "ambassador"
	EntityClient           EntityType = "client"
	EntityCommission       EntityType = "commission"
	EntityAppointment      EntityType = "appointment"
	EntityDashboardProject EntityType = "dashboard_project"
	EntityAIThread         EntityType = "ai_thread"
	EntityAIMessage        EntityType = "ai_message"
	EntityClientUser       EntityType = "client_user"
)

// Role enumerates user roles.
type Role string

// Known roles.
const (
	RoleAdmin      Role = "admin"
	RoleAmbassador Role = "ambassador"
	RoleClientUser Role = "client_user"
)

// AmbassadorStatus tracks whether an ambassador can take new clients.
type AmbassadorStatus string

// Ambassador statuses.
const (
	AmbassadorActive   AmbassadorStatus = "active"
	AmbassadorInactive AmbassadorStatus = "inactive"
)

// ClientStatus tracks the commercial state of a client.
type ClientStatus string

// Client statuses.
const (
	ClientActive    ClientStatus = "active"
	ClientPaused    ClientStatus = "paused"
	ClientCancelled ClientStatus = "cancelled"
)

// OnboardingStatus tracks client onboarding.
type OnboardingStatus string

// Onboarding statuses.
const (
	OnboardingPending    OnboardingStatus = "pending"
	OnboardingInProgress OnboardingStatus = "in_progress"
	OnboardingComplete   OnboardingStatus = "complete"
)

// CommissionStatus tracks payout state.
type CommissionStatus string

// Commission statuses.
const (
	CommissionPending  CommissionStatus = "pending"
	CommissionPaid     CommissionStatus = "paid"
	CommissionReversed CommissionStatus = "reversed"
)

// AppointmentStatus tracks appointment progress.
type AppointmentStatus string

// Appointment statuses.
const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentDone      AppointmentStatus = "done"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// MessageRole identifies the author of an AI conversation message.
type MessageRole string

// Message roles.
const (
	MessageUser      MessageRole = "user"
	MessageAssistant MessageRole = "assistant"
	MessageSystem    MessageRole = "system"
)

// Base contains common fields for all stored records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is an account able to act on the platform.
type User struct {
	Base
	Email             string    `json:"email"`
	PasswordHash      string    `json:"password_hash"`
	PasswordChangedAt time.Time `json:"password_changed_at"`
	Role              Role      `json:"role"`
}

// Redacted returns a copy safe for audit payloads.
func (u User) Redacted() User {
	if u.PasswordHash != "" {
		u.PasswordHash = "[redacted]"
	}
	return u
}

// Ambassador is a staffing-layer member owning exactly one User.
type Ambassador struct {
	Base
	UserID         string           `json:"user_id"`
	Name           string           `json:"name"`
	Status         AmbassadorStatus `json:"status"`
	CommissionRule *CommissionRule  `json:"commission_rule,omitempty"`
}

// Contract captures the commercial terms with a client.
type Contract struct {
	StartAt              *time.Time `json:"start_at,omitempty"`
	EndAt                *time.Time `json:"end_at,omitempty"`
	MonthlyRetainerCents int64      `json:"monthly_retainer_cents"`
	Notes                string     `json:"notes,omitempty"`
}

// Client is a customer account optionally assigned to an ambassador.
type Client struct {
	Base
	Name             string           `json:"name"`
	Status           ClientStatus     `json:"status"`
	AmbassadorID     *string          `json:"ambassador_id"`
	Contract         Contract         `json:"contract"`
	OnboardingStatus OnboardingStatus `json:"onboarding_status"`
}

// Commission is a signed payout line: positive amounts credit the
// ambassador, negative amounts are deductions or reversals.
type Commission struct {
	Base
	AmbassadorID string           `json:"ambassador_id"`
	ClientID     string           `json:"client_id"`
	AmountCents  int64            `json:"amount_cents"`
	Status       CommissionStatus `json:"status"`
	PeriodStart  time.Time        `json:"period_start"`
	PeriodEnd    time.Time        `json:"period_end"`
	Note         string           `json:"note,omitempty"`
}

// IsDeduction reports whether the commission reduces the ambassador total.
func (c Commission) IsDeduction() bool { return c.AmountCents < 0 }

// Appointment is a scheduled meeting for an ambassador.
type Appointment struct {
	Base
	AmbassadorID string            `json:"ambassador_id"`
	ClientID     *string           `json:"client_id"`
	Title        string            `json:"title"`
	StartAt      time.Time         `json:"start_at"`
	EndAt        time.Time         `json:"end_at"`
	Status       AppointmentStatus `json:"status"`
	Notes        string            `json:"notes,omitempty"`
}

// DashboardProject holds the analytics configuration for one client.
type DashboardProject struct {
	Base
	ClientID      string            `json:"client_id"`
	DataSource    *DataSourceConfig `json:"data_source,omitempty"`
	ColumnMapping *ColumnMapping    `json:"column_mapping,omitempty"`
	KPIs          []KPIRule         `json:"kpis,omitempty"`
	Charts        []ChartSpec       `json:"charts,omitempty"`
	Status        DashboardStatus   `json:"dashboard_status"`
}

// FindKPI returns the KPI rule with the supplied id.
func (p DashboardProject) FindKPI(id string) (KPIRule, bool) {
	for _, kpi := range p.KPIs {
		if kpi.ID == id {
			return kpi, true
		}
	}
	return KPIRule{}, false
}

// AIThread is a per-client conversation log.
type AIThread struct {
	Base
	ClientID string `json:"client_id"`
	Title    string `json:"title"`
}

// AIMessage is one message in an AIThread. Sequence orders messages within
// the thread.
type AIMessage struct {
	Base
	ThreadID string      `json:"thread_id"`
	Role     MessageRole `json:"role"`
	Content  string      `json:"content"`
	Sequence int         `json:"sequence"`
}

// ClientUserLink joins a client_user account to exactly one client. It is
// keyed by UserID.
type ClientUserLink struct {
	UserID    string    `json:"user_id"`
	ClientID  string    `json:"client_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor identifies who performed an audited mutation.
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// SystemActor is used for maintenance operations without an authenticated
// caller.
var SystemActor = Actor{UserID: "system", Role: RoleAdmin}

// Change describes a mutation applied to an entity inside a transaction.
type Change struct {
	Entity   EntityType
	Action   Action
	EntityID string
	Before   any
	After    any
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a single rule finding.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates rule violations from a transaction.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking reports whether any violation blocks commit.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Rule + ": " + v.Message
		}
	}
	return "transaction blocked by rules"
}
