package memory

import (
	"time"

	"opsdesk/pkg/domain"
)

type transaction struct {
	store   *Store
	state   domain.Snapshot
	changes []domain.Change
	now     time.Time
	actor   domain.Actor
}

func (tx *transaction) Snapshot() domain.TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) Actor() domain.Actor { return tx.actor }

// recordChange tracks the change for rule evaluation and prepends the
// matching audit entry.
func (tx *transaction) recordChange(change domain.Change) error {
	before, err := auditPayload(change.Before)
	if err != nil {
		return err
	}
	after, err := auditPayload(change.After)
	if err != nil {
		return err
	}
	entry := domain.AuditLog{
		ID:         tx.store.idFn(),
		ActorID:    tx.actor.UserID,
		ActorRole:  tx.actor.Role,
		Action:     change.Action,
		EntityType: change.Entity,
		EntityID:   change.EntityID,
		Before:     before,
		After:      after,
		CreatedAt:  tx.now,
	}
	tx.changes = append(tx.changes, change)
	tx.state.AuditLogs = append([]domain.AuditLog{entry}, tx.state.AuditLogs...)
	return nil
}

func auditPayload(v any) (domain.ChangePayload, error) {
	if v == nil {
		return domain.UndefinedChangePayload(), nil
	}
	if u, ok := v.(domain.User); ok {
		v = u.Redacted()
	}
	payload, err := domain.NewChangePayloadFromValue(v)
	if err != nil {
		return domain.ChangePayload{}, domain.Validation("", "encode audit payload: %v", err)
	}
	return payload, nil
}

func (tx *transaction) newBase(id string) domain.Base {
	if id == "" {
		id = tx.store.idFn()
	}
	return domain.Base{ID: id, CreatedAt: tx.now, UpdatedAt: tx.now}
}

// Users

func (tx *transaction) CreateUser(u domain.User) (domain.User, error) {
	u.Base = tx.newBase(u.ID)
	if _, exists := tx.state.Users[u.ID]; exists {
		return domain.User{}, domain.Validation(domain.EntityUser, "user %q already exists", u.ID)
	}
	u.Email = domain.NormalizeEmail(u.Email)
	if u.Email == "" {
		return domain.User{}, domain.Validation(domain.EntityUser, "email is required")
	}
	if !domain.ValidRole(u.Role) {
		return domain.User{}, domain.Validation(domain.EntityUser, "unknown role %q", u.Role)
	}
	if _, taken := findUserByEmail(&tx.state, u.Email); taken {
		return domain.User{}, domain.DuplicateEmail(u.Email)
	}
	u.PasswordChangedAt = tx.now
	tx.state.Users[u.ID] = u
	if err := tx.recordChange(domain.Change{Entity: domain.EntityUser, Action: domain.ActionCreate, EntityID: u.ID, After: u}); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (tx *transaction) RotateUserPassword(id, passwordHash string) (domain.User, error) {
	current, ok := tx.state.Users[id]
	if !ok {
		return domain.User{}, domain.NotFound(domain.EntityUser, id)
	}
	if passwordHash == "" {
		return domain.User{}, domain.Validation(domain.EntityUser, "password hash is required")
	}
	before := current
	current.PasswordHash = passwordHash
	current.PasswordChangedAt = tx.now
	current.UpdatedAt = tx.now
	tx.state.Users[id] = current
	if err := tx.recordChange(domain.Change{Entity: domain.EntityUser, Action: domain.ActionUpdatePassword, EntityID: id, Before: before, After: current}); err != nil {
		return domain.User{}, err
	}
	return current, nil
}

func (tx *transaction) DeleteUser(id string) error {
	current, ok := tx.state.Users[id]
	if !ok {
		return domain.NotFound(domain.EntityUser, id)
	}
	for _, amb := range tx.state.Ambassadors {
		if amb.UserID == id {
			return domain.InvalidReference(domain.EntityUser, id, "user still owns ambassador "+amb.ID)
		}
	}
	delete(tx.state.Users, id)
	delete(tx.state.ClientUsers, id)
	return tx.recordChange(domain.Change{Entity: domain.EntityUser, Action: domain.ActionDelete, EntityID: id, Before: current})
}

// Ambassadors

func (tx *transaction) CreateAmbassador(a domain.Ambassador) (domain.Ambassador, error) {
	a.Base = tx.newBase(a.ID)
	if _, exists := tx.state.Ambassadors[a.ID]; exists {
		return domain.Ambassador{}, domain.Validation(domain.EntityAmbassador, "ambassador %q already exists", a.ID)
	}
	owner, ok := tx.state.Users[a.UserID]
	if !ok {
		return domain.Ambassador{}, domain.NotFound(domain.EntityUser, a.UserID)
	}
	if owner.Role != domain.RoleAmbassador {
		return domain.Ambassador{}, domain.InvalidReference(domain.EntityUser, a.UserID, "owning user must have ambassador role")
	}
	for _, existing := range tx.state.Ambassadors {
		if existing.UserID == a.UserID {
			return domain.Ambassador{}, domain.InvalidReference(domain.EntityUser, a.UserID, "user already owns ambassador "+existing.ID)
		}
	}
	if a.Status == "" {
		a.Status = domain.AmbassadorActive
	}
	tx.state.Ambassadors[a.ID] = domain.CloneAmbassador(a)
	if err := tx.recordChange(domain.Change{Entity: domain.EntityAmbassador, Action: domain.ActionCreate, EntityID: a.ID, After: domain.CloneAmbassador(a)}); err != nil {
		return domain.Ambassador{}, err
	}
	return domain.CloneAmbassador(a), nil
}

func (tx *transaction) UpdateAmbassador(id string, mutator func(*domain.Ambassador) error) (domain.Ambassador, error) {
	current, ok := tx.state.Ambassadors[id]
	if !ok {
		return domain.Ambassador{}, domain.NotFound(domain.EntityAmbassador, id)
	}
	before := domain.CloneAmbassador(current)
	if err := mutator(&current); err != nil {
		return domain.Ambassador{}, err
	}
	current.ID = id
	current.UserID = before.UserID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.Ambassadors[id] = domain.CloneAmbassador(current)
	if err := tx.recordChange(domain.Change{Entity: domain.EntityAmbassador, Action: domain.ActionUpdate, EntityID: id, Before: before, After: domain.CloneAmbassador(current)}); err != nil {
		return domain.Ambassador{}, err
	}
	return domain.CloneAmbassador(current), nil
}

func (tx *transaction) DeleteAmbassador(id string) error {
	current, ok := tx.state.Ambassadors[id]
	if !ok {
		return domain.NotFound(domain.EntityAmbassador, id)
	}
	for clientID, client := range tx.state.Clients {
		if client.AmbassadorID != nil && *client.AmbassadorID == id {
			client.AmbassadorID = nil
			client.UpdatedAt = tx.now
			tx.state.Clients[clientID] = client
		}
	}
	delete(tx.state.Ambassadors, id)
	if err := tx.recordChange(domain.Change{Entity: domain.EntityAmbassador, Action: domain.ActionDelete, EntityID: id, Before: domain.CloneAmbassador(current)}); err != nil {
		return err
	}
	if _, ok := tx.state.Users[current.UserID]; !ok {
		return nil
	}
	return tx.DeleteUser(current.UserID)
}

// Clients

func (tx *transaction) CreateClient(c domain.Client) (domain.Client, error) {
	c.Base = tx.newBase(c.ID)
	if _, exists := tx.state.Clients[c.ID]; exists {
		return domain.Client{}, domain.Validation(domain.EntityClient, "client %q already exists", c.ID)
	}
	if c.AmbassadorID != nil {
		if err := tx.checkAssignable(*c.AmbassadorID); err != nil {
			return domain.Client{}, err
		}
	}
	if c.Status == "" {
		c.Status = domain.ClientActive
	}
	if c.OnboardingStatus == "" {
		c.OnboardingStatus = domain.OnboardingPending
	}
	tx.state.Clients[c.ID] = domain.CloneClient(c)
	if err := tx.recordChange(domain.Change{Entity: domain.EntityClient, Action: domain.ActionCreate, EntityID: c.ID, After: domain.CloneClient(c)}); err != nil {
		return domain.Client{}, err
	}
	return domain.CloneClient(c), nil
}

func (tx *transaction) UpdateClient(id string, mutator func(*domain.Client) error) (domain.Client, error) {
	current, ok := tx.state.Clients[id]
	if !ok {
		return domain.Client{}, domain.NotFound(domain.EntityClient, id)
	}
	before := domain.CloneClient(current)
	if err := mutator(&current); err != nil {
		return domain.Client{}, err
	}
	current.ID = id
	current.AmbassadorID = domain.CloneClient(before).AmbassadorID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.Clients[id] = domain.CloneClient(current)
	if err := tx.recordChange(domain.Change{Entity: domain.EntityClient, Action: domain.ActionUpdate, EntityID: id, Before: before, After: domain.CloneClient(current)}); err != nil {
		return domain.Client{}, err
	}
	return domain.CloneClient(current), nil
}

func (tx *transaction) checkAssignable(ambassadorID string) error {
	amb, ok := tx.state.Ambassadors[ambassadorID]
	if !ok {
		return domain.InvalidReference(domain.EntityAmbassador, ambassadorID, "ambassador does not exist")
	}
	if amb.Status != domain.AmbassadorActive {
		return domain.InvalidReference(domain.EntityAmbassador, ambassadorID, "ambassador is not active")
	}
	return nil
}

func (tx *transaction) AssignClient(clientID string, ambassadorID *string) (domain.Client, error) {
	current, ok := tx.state.Clients[clientID]
	if !ok {
		return domain.Client{}, domain.NotFound(domain.EntityClient, clientID)
	}
	action := domain.ActionUnassignAmbassador
	if ambassadorID != nil {
		if err := tx.checkAssignable(*ambassadorID); err != nil {
			return domain.Client{}, err
		}
		action = domain.ActionAssignAmbassador
	}
	before := domain.CloneClient(current)
	if ambassadorID != nil {
		id := *ambassadorID
		current.AmbassadorID = &id
	} else {
		current.AmbassadorID = nil
	}
	current.UpdatedAt = tx.now
	tx.state.Clients[clientID] = domain.CloneClient(current)
	if err := tx.recordChange(domain.Change{Entity: domain.EntityClient, Action: action, EntityID: clientID, Before: before, After: domain.CloneClient(current)}); err != nil {
		return domain.Client{}, err
	}
	return domain.CloneClient(current), nil
}

// Commissions

// checkCommissionRefs verifies the references of c that differ from before.
// A nil before checks every reference. Commissions outlive their ambassador,
// so unchanged dangling ids stay valid on update.
func (tx *transaction) checkCommissionRefs(c domain.Commission, before *domain.Commission) error {
	if before == nil || before.AmbassadorID != c.AmbassadorID {
		if _, ok := tx.state.Ambassadors[c.AmbassadorID]; !ok {
			return domain.NotFound(domain.EntityAmbassador, c.AmbassadorID)
		}
	}
	if before == nil || before.ClientID != c.ClientID {
		if _, ok := tx.state.Clients[c.ClientID]; !ok {
			return domain.NotFound(domain.EntityClient, c.ClientID)
		}
	}
	return nil
}

func (tx *transaction) CreateCommission(c domain.Commission) (domain.Commission, error) {
	c.Base = tx.newBase(c.ID)
	if _, exists := tx.state.Commissions[c.ID]; exists {
		return domain.Commission{}, domain.Validation(domain.EntityCommission, "commission %q already exists", c.ID)
	}
	if err := tx.checkCommissionRefs(c, nil); err != nil {
		return domain.Commission{}, err
	}
	if c.Status == "" {
		c.Status = domain.CommissionPending
	}
	tx.state.Commissions[c.ID] = c
	if err := tx.recordChange(domain.Change{Entity: domain.EntityCommission, Action: domain.ActionCreate, EntityID: c.ID, After: c}); err != nil {
		return domain.Commission{}, err
	}
	return c, nil
}

func (tx *transaction) UpdateCommission(id string, mutator func(*domain.Commission) error) (domain.Commission, error) {
	current, ok := tx.state.Commissions[id]
	if !ok {
		return domain.Commission{}, domain.NotFound(domain.EntityCommission, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Commission{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	if err := tx.checkCommissionRefs(current, &before); err != nil {
		return domain.Commission{}, err
	}
	tx.state.Commissions[id] = current
	if err := tx.recordChange(domain.Change{Entity: domain.EntityCommission, Action: domain.ActionUpdate, EntityID: id, Before: before, After: current}); err != nil {
		return domain.Commission{}, err
	}
	return current, nil
}

func (tx *transaction) DeleteCommission(id string) error {
	current, ok := tx.state.Commissions[id]
	if !ok {
		return domain.NotFound(domain.EntityCommission, id)
	}
	delete(tx.state.Commissions, id)
	return tx.recordChange(domain.Change{Entity: domain.EntityCommission, Action: domain.ActionDelete, EntityID: id, Before: current})
}

// Appointments

func (tx *transaction) checkAppointment(a domain.Appointment, before *domain.Appointment) error {
	if !a.EndAt.After(a.StartAt) {
		return domain.Validation(domain.EntityAppointment, "end_at must be after start_at")
	}
	if before == nil || before.AmbassadorID != a.AmbassadorID {
		if _, ok := tx.state.Ambassadors[a.AmbassadorID]; !ok {
			return domain.NotFound(domain.EntityAmbassador, a.AmbassadorID)
		}
	}
	if a.ClientID != nil && (before == nil || before.ClientID == nil || *before.ClientID != *a.ClientID) {
		if _, ok := tx.state.Clients[*a.ClientID]; !ok {
			return domain.NotFound(domain.EntityClient, *a.ClientID)
		}
	}
	return nil
}

func (tx *transaction) CreateAppointment(a domain.Appointment) (domain.Appointment, error) {
	a.Base = tx.newBase(a.ID)
	if _, exists := tx.state.Appointments[a.ID]; exists {
		return domain.Appointment{}, domain.Validation(domain.EntityAppointment, "appointment %q already exists", a.ID)
	}
	if err := tx.checkAppointment(a, nil); err != nil {
		return domain.Appointment{}, err
	}
	if a.Status == "" {
		a.Status = domain.AppointmentScheduled
	}
	tx.state.Appointments[a.ID] = domain.CloneAppointment(a)
	if err := tx.recordChange(domain.Change{Entity: domain.EntityAppointment, Action: domain.ActionCreate, EntityID: a.ID, After: domain.CloneAppointment(a)}); err != nil {
		return domain.Appointment{}, err
	}
	return domain.CloneAppointment(a), nil
}

func (tx *transaction) UpdateAppointment(id string, mutator func(*domain.Appointment) error) (domain.Appointment, error) {
	current, ok := tx.state.Appointments[id]
	if !ok {
		return domain.Appointment{}, domain.NotFound(domain.EntityAppointment, id)
	}
	before := domain.CloneAppointment(current)
	if err := mutator(&current); err != nil {
		return domain.Appointment{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	if err := tx.checkAppointment(current, &before); err != nil {
		return domain.Appointment{}, err
	}
	tx.state.Appointments[id] = domain.CloneAppointment(current)
	if err := tx.recordChange(domain.Change{Entity: domain.EntityAppointment, Action: domain.ActionUpdate, EntityID: id, Before: before, After: domain.CloneAppointment(current)}); err != nil {
		return domain.Appointment{}, err
	}
	return domain.CloneAppointment(current), nil
}

func (tx *transaction) DeleteAppointment(id string) error {
	current, ok := tx.state.Appointments[id]
	if !ok {
		return domain.NotFound(domain.EntityAppointment, id)
	}
	delete(tx.state.Appointments, id)
	return tx.recordChange(domain.Change{Entity: domain.EntityAppointment, Action: domain.ActionDelete, EntityID: id, Before: current})
}

// Dashboard projects

func (tx *transaction) CreateDashboardProject(p domain.DashboardProject) (domain.DashboardProject, error) {
	p.Base = tx.newBase(p.ID)
	if _, exists := tx.state.DashboardProjects[p.ID]; exists {
		return domain.DashboardProject{}, domain.Validation(domain.EntityDashboardProject, "dashboard project %q already exists", p.ID)
	}
	if _, ok := tx.state.Clients[p.ClientID]; !ok {
		return domain.DashboardProject{}, domain.NotFound(domain.EntityClient, p.ClientID)
	}
	for _, existing := range tx.state.DashboardProjects {
		if existing.ClientID == p.ClientID {
			return domain.DashboardProject{}, domain.Validation(domain.EntityDashboardProject, "client %q already has dashboard project %q", p.ClientID, existing.ID)
		}
	}
	if p.Status == "" {
		p.Status = domain.DashboardNotStarted
	}
	if !p.Status.Valid() {
		return domain.DashboardProject{}, domain.Validation(domain.EntityDashboardProject, "unknown dashboard status %q", p.Status)
	}
	tx.state.DashboardProjects[p.ID] = domain.CloneDashboardProject(p)
	if err := tx.recordChange(domain.Change{Entity: domain.EntityDashboardProject, Action: domain.ActionCreate, EntityID: p.ID, After: domain.CloneDashboardProject(p)}); err != nil {
		return domain.DashboardProject{}, err
	}
	return domain.CloneDashboardProject(p), nil
}

// UpdateDashboardProject changes configuration fields. Status changes go
// through TransitionDashboardProject and ResetDashboardProject.
func (tx *transaction) UpdateDashboardProject(id string, mutator func(*domain.DashboardProject) error) (domain.DashboardProject, error) {
	current, ok := tx.state.DashboardProjects[id]
	if !ok {
		return domain.DashboardProject{}, domain.NotFound(domain.EntityDashboardProject, id)
	}
	before := domain.CloneDashboardProject(current)
	if err := mutator(&current); err != nil {
		return domain.DashboardProject{}, err
	}
	current.ID = id
	current.ClientID = before.ClientID
	current.Status = before.Status
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.DashboardProjects[id] = domain.CloneDashboardProject(current)
	if err := tx.recordChange(domain.Change{Entity: domain.EntityDashboardProject, Action: domain.ActionUpdate, EntityID: id, Before: before, After: domain.CloneDashboardProject(current)}); err != nil {
		return domain.DashboardProject{}, err
	}
	return domain.CloneDashboardProject(current), nil
}

func (tx *transaction) TransitionDashboardProject(id string, to domain.DashboardStatus) (domain.DashboardProject, error) {
	current, ok := tx.state.DashboardProjects[id]
	if !ok {
		return domain.DashboardProject{}, domain.NotFound(domain.EntityDashboardProject, id)
	}
	if !current.Status.CanAdvanceTo(to) {
		return domain.DashboardProject{}, domain.Validation(domain.EntityDashboardProject, "cannot move dashboard from %s to %s", current.Status, to)
	}
	return tx.setDashboardStatus(current, to, domain.ActionTransition)
}

func (tx *transaction) ResetDashboardProject(id string) (domain.DashboardProject, error) {
	current, ok := tx.state.DashboardProjects[id]
	if !ok {
		return domain.DashboardProject{}, domain.NotFound(domain.EntityDashboardProject, id)
	}
	if !current.Status.CanReset() {
		return domain.DashboardProject{}, domain.Validation(domain.EntityDashboardProject, "cannot reset dashboard in status %s", current.Status)
	}
	return tx.setDashboardStatus(current, domain.DashboardConfiguring, domain.ActionReset)
}

func (tx *transaction) setDashboardStatus(current domain.DashboardProject, to domain.DashboardStatus, action domain.Action) (domain.DashboardProject, error) {
	before := domain.CloneDashboardProject(current)
	current.Status = to
	current.UpdatedAt = tx.now
	tx.state.DashboardProjects[current.ID] = domain.CloneDashboardProject(current)
	if err := tx.recordChange(domain.Change{Entity: domain.EntityDashboardProject, Action: action, EntityID: current.ID, Before: before, After: domain.CloneDashboardProject(current)}); err != nil {
		return domain.DashboardProject{}, err
	}
	return domain.CloneDashboardProject(current), nil
}

// AI conversation log

func (tx *transaction) CreateAIThread(t domain.AIThread) (domain.AIThread, error) {
	t.Base = tx.newBase(t.ID)
	if _, exists := tx.state.AIThreads[t.ID]; exists {
		return domain.AIThread{}, domain.Validation(domain.EntityAIThread, "thread %q already exists", t.ID)
	}
	if _, ok := tx.state.Clients[t.ClientID]; !ok {
		return domain.AIThread{}, domain.NotFound(domain.EntityClient, t.ClientID)
	}
	tx.state.AIThreads[t.ID] = t
	if err := tx.recordChange(domain.Change{Entity: domain.EntityAIThread, Action: domain.ActionCreate, EntityID: t.ID, After: t}); err != nil {
		return domain.AIThread{}, err
	}
	return t, nil
}

func (tx *transaction) AppendAIMessage(m domain.AIMessage) (domain.AIMessage, error) {
	m.Base = tx.newBase(m.ID)
	if _, ok := tx.state.AIThreads[m.ThreadID]; !ok {
		return domain.AIMessage{}, domain.NotFound(domain.EntityAIThread, m.ThreadID)
	}
	switch m.Role {
	case domain.MessageUser, domain.MessageAssistant, domain.MessageSystem:
	default:
		return domain.AIMessage{}, domain.Validation(domain.EntityAIMessage, "unknown message role %q", m.Role)
	}
	seq := 0
	for _, existing := range tx.state.AIMessages {
		if existing.ThreadID == m.ThreadID && existing.Sequence >= seq {
			seq = existing.Sequence + 1
		}
	}
	m.Sequence = seq
	tx.state.AIMessages[m.ID] = m
	if err := tx.recordChange(domain.Change{Entity: domain.EntityAIMessage, Action: domain.ActionCreate, EntityID: m.ID, After: m}); err != nil {
		return domain.AIMessage{}, err
	}
	return m, nil
}

// Client user links

func (tx *transaction) LinkClientUser(userID, clientID string) (domain.ClientUserLink, error) {
	user, ok := tx.state.Users[userID]
	if !ok {
		return domain.ClientUserLink{}, domain.NotFound(domain.EntityUser, userID)
	}
	if user.Role != domain.RoleClientUser {
		return domain.ClientUserLink{}, domain.InvalidReference(domain.EntityUser, userID, "only client_user accounts can be linked to a client")
	}
	if _, ok := tx.state.Clients[clientID]; !ok {
		return domain.ClientUserLink{}, domain.NotFound(domain.EntityClient, clientID)
	}
	if existing, linked := tx.state.ClientUsers[userID]; linked {
		return domain.ClientUserLink{}, domain.Validation(domain.EntityClientUser, "user %q already linked to client %q", userID, existing.ClientID)
	}
	link := domain.ClientUserLink{UserID: userID, ClientID: clientID, CreatedAt: tx.now}
	tx.state.ClientUsers[userID] = link
	if err := tx.recordChange(domain.Change{Entity: domain.EntityClientUser, Action: domain.ActionCreate, EntityID: userID, After: link}); err != nil {
		return domain.ClientUserLink{}, err
	}
	return link, nil
}
