package domain

import "context"

// Transaction exposes the store-level primitives available inside an atomic
// mutation. Every mutating primitive appends exactly one audit entry, except
// where documented as an explicit cascade.
type Transaction interface {
	Snapshot() TransactionView
	Actor() Actor

	CreateUser(User) (User, error)
	RotateUserPassword(id, passwordHash string) (User, error)
	DeleteUser(id string) error

	CreateAmbassador(Ambassador) (Ambassador, error)
	UpdateAmbassador(id string, mutator func(*Ambassador) error) (Ambassador, error)
	// DeleteAmbassador removes the ambassador, nulls ambassador_id on every
	// client referencing it without auditing each client, and deletes the
	// owning user.
	DeleteAmbassador(id string) error

	CreateClient(Client) (Client, error)
	UpdateClient(id string, mutator func(*Client) error) (Client, error)
	// AssignClient sets or clears a client's ambassador. Assignment requires
	// an existing active ambassador.
	AssignClient(clientID string, ambassadorID *string) (Client, error)

	CreateCommission(Commission) (Commission, error)
	UpdateCommission(id string, mutator func(*Commission) error) (Commission, error)
	DeleteCommission(id string) error

	CreateAppointment(Appointment) (Appointment, error)
	UpdateAppointment(id string, mutator func(*Appointment) error) (Appointment, error)
	DeleteAppointment(id string) error

	CreateDashboardProject(DashboardProject) (DashboardProject, error)
	UpdateDashboardProject(id string, mutator func(*DashboardProject) error) (DashboardProject, error)
	TransitionDashboardProject(id string, to DashboardStatus) (DashboardProject, error)
	ResetDashboardProject(id string) (DashboardProject, error)

	CreateAIThread(AIThread) (AIThread, error)
	AppendAIMessage(AIMessage) (AIMessage, error)

	LinkClientUser(userID, clientID string) (ClientUserLink, error)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListUsers() []User
	ListAmbassadors() []Ambassador
	ListClients() []Client
	ListCommissions() []Commission
	ListAppointments() []Appointment
	ListDashboardProjects() []DashboardProject
	ListAIMessages(threadID string) []AIMessage
	ListClientUserLinks() []ClientUserLink
	ListAuditLogs(filter AuditFilter) []AuditLog
	FindUser(id string) (User, bool)
	FindUserByEmail(email string) (User, bool)
	FindAmbassador(id string) (Ambassador, bool)
	FindClient(id string) (Client, bool)
	FindCommission(id string) (Commission, bool)
	FindAppointment(id string) (Appointment, bool)
	FindDashboardProject(id string) (DashboardProject, bool)
	FindDashboardProjectByClient(clientID string) (DashboardProject, bool)
	FindAIThread(id string) (AIThread, bool)
	FindClientUserLink(userID string) (ClientUserLink, bool)
}

// PersistentStore is the repository injected into services. Implementations
// are opened at process start, flush on every successful mutation and are
// closed on shutdown.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, actor Actor, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ExportState() Snapshot
	Close() error
}
