package domain

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the complete persisted document. Collections are keyed by id,
// except AuditLogs which is ordered most-recent-first. Revision is the
// optimistic-concurrency stamp incremented on every successful persist.
type Snapshot struct {
	Revision          int64                       `json:"revision"`
	Users             map[string]User             `json:"users"`
	Ambassadors       map[string]Ambassador       `json:"ambassadors"`
	Clients           map[string]Client           `json:"clients"`
	Commissions       map[string]Commission       `json:"commissions"`
	Appointments      map[string]Appointment      `json:"appointments"`
	AuditLogs         []AuditLog                  `json:"audit_logs"`
	DashboardProjects map[string]DashboardProject `json:"dashboard_projects"`
	AIThreads         map[string]AIThread         `json:"ai_threads"`
	AIMessages        map[string]AIMessage        `json:"ai_messages"`
	ClientUsers       map[string]ClientUserLink   `json:"client_users"`
}

// NewSnapshot returns an empty snapshot with every collection materialized.
func NewSnapshot() Snapshot {
	return MigrateSnapshot(Snapshot{})
}

// MigrateSnapshot materializes collections missing from older documents and
// nulls client assignments that point at ambassadors no longer present.
func MigrateSnapshot(s Snapshot) Snapshot {
	if s.Users == nil {
		s.Users = map[string]User{}
	}
	if s.Ambassadors == nil {
		s.Ambassadors = map[string]Ambassador{}
	}
	if s.Clients == nil {
		s.Clients = map[string]Client{}
	}
	if s.Commissions == nil {
		s.Commissions = map[string]Commission{}
	}
	if s.Appointments == nil {
		s.Appointments = map[string]Appointment{}
	}
	if s.AuditLogs == nil {
		s.AuditLogs = []AuditLog{}
	}
	if s.DashboardProjects == nil {
		s.DashboardProjects = map[string]DashboardProject{}
	}
	if s.AIThreads == nil {
		s.AIThreads = map[string]AIThread{}
	}
	if s.AIMessages == nil {
		s.AIMessages = map[string]AIMessage{}
	}
	if s.ClientUsers == nil {
		s.ClientUsers = map[string]ClientUserLink{}
	}
	for id, client := range s.Clients {
		if client.AmbassadorID == nil {
			continue
		}
		if _, ok := s.Ambassadors[*client.AmbassadorID]; !ok {
			client.AmbassadorID = nil
			s.Clients[id] = client
		}
	}
	for id, project := range s.DashboardProjects {
		if !project.Status.Valid() {
			project.Status = DashboardNotStarted
			s.DashboardProjects[id] = project
		}
	}
	return s
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Revision:          s.Revision,
		Users:             cloneMap(s.Users, func(u User) User { return u }),
		Ambassadors:       cloneMap(s.Ambassadors, CloneAmbassador),
		Clients:           cloneMap(s.Clients, CloneClient),
		Commissions:       cloneMap(s.Commissions, func(c Commission) Commission { return c }),
		Appointments:      cloneMap(s.Appointments, CloneAppointment),
		DashboardProjects: cloneMap(s.DashboardProjects, CloneDashboardProject),
		AIThreads:         cloneMap(s.AIThreads, func(t AIThread) AIThread { return t }),
		AIMessages:        cloneMap(s.AIMessages, func(m AIMessage) AIMessage { return m }),
		ClientUsers:       cloneMap(s.ClientUsers, func(l ClientUserLink) ClientUserLink { return l }),
	}
	out.AuditLogs = make([]AuditLog, len(s.AuditLogs))
	for i, entry := range s.AuditLogs {
		entry.Before = NewChangePayload(entry.Before.Raw())
		entry.After = NewChangePayload(entry.After.Raw())
		out.AuditLogs[i] = entry
	}
	return MigrateSnapshot(out)
}

func cloneMap[T any](in map[string]T, cloneFn func(T) T) map[string]T {
	if in == nil {
		return nil
	}
	out := make(map[string]T, len(in))
	for k, v := range in {
		out[k] = cloneFn(v)
	}
	return out
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// CloneAmbassador deep copies an ambassador.
func CloneAmbassador(a Ambassador) Ambassador {
	if a.CommissionRule != nil {
		rule := *a.CommissionRule
		rule.Flat = clonePtr(rule.Flat)
		rule.Percentage = clonePtr(rule.Percentage)
		if rule.Tiered != nil {
			tiers := append([]CommissionTier(nil), rule.Tiered.Tiers...)
			rule.Tiered = &TieredCommission{Tiers: tiers}
		}
		a.CommissionRule = &rule
	}
	return a
}

// CloneClient deep copies a client.
func CloneClient(c Client) Client {
	c.AmbassadorID = clonePtr(c.AmbassadorID)
	c.Contract.StartAt = clonePtr(c.Contract.StartAt)
	c.Contract.EndAt = clonePtr(c.Contract.EndAt)
	return c
}

// CloneAppointment deep copies an appointment.
func CloneAppointment(a Appointment) Appointment {
	a.ClientID = clonePtr(a.ClientID)
	return a
}

// CloneDashboardProject deep copies a dashboard project.
func CloneDashboardProject(p DashboardProject) DashboardProject {
	if p.DataSource != nil {
		ds := *p.DataSource
		ds.Sheets = clonePtr(ds.Sheets)
		ds.CSV = clonePtr(ds.CSV)
		p.DataSource = &ds
	}
	p.ColumnMapping = clonePtr(p.ColumnMapping)
	if p.KPIs != nil {
		p.KPIs = append([]KPIRule(nil), p.KPIs...)
	}
	if p.Charts != nil {
		p.Charts = append([]ChartSpec(nil), p.Charts...)
	}
	return p
}

// SnapshotBuckets lists the persisted collection names in a stable order.
var SnapshotBuckets = []string{
	"users",
	"ambassadors",
	"clients",
	"commissions",
	"appointments",
	"audit_logs",
	"dashboard_projects",
	"ai_threads",
	"ai_messages",
	"client_users",
}

func (s *Snapshot) bucketTarget(bucket string) (any, bool) {
	switch bucket {
	case "users":
		return &s.Users, true
	case "ambassadors":
		return &s.Ambassadors, true
	case "clients":
		return &s.Clients, true
	case "commissions":
		return &s.Commissions, true
	case "appointments":
		return &s.Appointments, true
	case "audit_logs":
		return &s.AuditLogs, true
	case "dashboard_projects":
		return &s.DashboardProjects, true
	case "ai_threads":
		return &s.AIThreads, true
	case "ai_messages":
		return &s.AIMessages, true
	case "client_users":
		return &s.ClientUsers, true
	}
	return nil, false
}

// EncodeBuckets marshals every collection separately for row-per-bucket
// backends.
func (s Snapshot) EncodeBuckets() (map[string][]byte, error) {
	s = MigrateSnapshot(s)
	out := make(map[string][]byte, len(SnapshotBuckets))
	for _, bucket := range SnapshotBuckets {
		target, _ := s.bucketTarget(bucket)
		data, err := json.Marshal(target)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBuckets rebuilds a snapshot from per-bucket payloads. A bucket that
// fails to decode is left empty and reported; unknown buckets are ignored.
func DecodeBuckets(raw map[string][]byte) (Snapshot, []error) {
	var snapshot Snapshot
	var errs []error
	for bucket, payload := range raw {
		if len(payload) == 0 {
			continue
		}
		target, ok := snapshot.bucketTarget(bucket)
		if !ok {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", bucket, err))
			resetBucket(&snapshot, bucket)
		}
	}
	return MigrateSnapshot(snapshot), errs
}

func resetBucket(s *Snapshot, bucket string) {
	switch bucket {
	case "users":
		s.Users = nil
	case "ambassadors":
		s.Ambassadors = nil
	case "clients":
		s.Clients = nil
	case "commissions":
		s.Commissions = nil
	case "appointments":
		s.Appointments = nil
	case "audit_logs":
		s.AuditLogs = nil
	case "dashboard_projects":
		s.DashboardProjects = nil
	case "ai_threads":
		s.AIThreads = nil
	case "ai_messages":
		s.AIMessages = nil
	case "client_users":
		s.ClientUsers = nil
	}
}

// EncodeDocument marshals the snapshot as one JSON document.
func (s Snapshot) EncodeDocument() ([]byte, error) {
	return json.Marshal(MigrateSnapshot(s))
}

// DecodeDocument parses a whole-document snapshot. Missing collections are
// materialized as empty.
func DecodeDocument(data []byte) (Snapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot document: %w", err)
	}
	return MigrateSnapshot(snapshot), nil
}
