package domain

// DashboardStatus tracks the configuration lifecycle of a DashboardProject.
type DashboardStatus string

// Dashboard statuses in lifecycle order.
const (
	DashboardNotStarted  DashboardStatus = "not_started"
	DashboardConfiguring DashboardStatus = "configuring"
	DashboardDraft       DashboardStatus = "draft"
	DashboardReady       DashboardStatus = "ready"
)

var dashboardTransitions = map[DashboardStatus]DashboardStatus{
	DashboardNotStarted:  DashboardConfiguring,
	DashboardConfiguring: DashboardDraft,
	DashboardDraft:       DashboardReady,
}

// Valid reports whether s is a known status.
func (s DashboardStatus) Valid() bool {
	switch s {
	case DashboardNotStarted, DashboardConfiguring, DashboardDraft, DashboardReady:
		return true
	}
	return false
}

// Next returns the forward successor of s. Ready has no successor.
func (s DashboardStatus) Next() (DashboardStatus, bool) {
	next, ok := dashboardTransitions[s]
	return next, ok
}

// CanAdvanceTo reports whether to is the forward successor of s.
func (s DashboardStatus) CanAdvanceTo(to DashboardStatus) bool {
	next, ok := s.Next()
	return ok && next == to
}

// CanReset reports whether s may return to configuring.
func (s DashboardStatus) CanReset() bool {
	return s == DashboardDraft || s == DashboardReady
}
