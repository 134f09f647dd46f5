package core

import (
	"context"

	"opsdesk/internal/changedetect"
	"opsdesk/pkg/domain"
)

// CreateDashboardProject opens the single dashboard project of a client in
// not_started.
func (s *Service) CreateDashboardProject(ctx context.Context, actor domain.Actor, clientID string) (domain.DashboardProject, domain.Result, error) {
	var created domain.DashboardProject
	var res domain.Result
	err := s.run(ctx, "create_dashboard_project", actor, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			var err error
			created, err = tx.CreateDashboardProject(domain.DashboardProject{ClientID: clientID})
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// StartDashboardConfiguration moves a project from not_started to
// configuring.
func (s *Service) StartDashboardConfiguration(ctx context.Context, actor domain.Actor, id string) (domain.DashboardProject, domain.Result, error) {
	return s.transitionDashboard(ctx, "start_dashboard_configuration", actor, id, domain.DashboardConfiguring)
}

// PublishDashboard moves a project from draft to ready.
func (s *Service) PublishDashboard(ctx context.Context, actor domain.Actor, id string) (domain.DashboardProject, domain.Result, error) {
	return s.transitionDashboard(ctx, "publish_dashboard", actor, id, domain.DashboardReady)
}

func (s *Service) transitionDashboard(ctx context.Context, op string, actor domain.Actor, id string, to domain.DashboardStatus) (domain.DashboardProject, domain.Result, error) {
	var updated domain.DashboardProject
	var res domain.Result
	err := s.run(ctx, op, actor, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			var err error
			updated, err = tx.TransitionDashboardProject(id, to)
			return err
		})
		return id, err
	})
	return updated, res, err
}

// ResetDashboard sends a draft or ready project back to configuring. The
// stored configuration is kept.
func (s *Service) ResetDashboard(ctx context.Context, actor domain.Actor, id string) (domain.DashboardProject, domain.Result, error) {
	var updated domain.DashboardProject
	var res domain.Result
	err := s.run(ctx, "reset_dashboard", actor, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			var err error
			updated, err = tx.ResetDashboardProject(id)
			return err
		})
		return id, err
	})
	return updated, res, err
}

// ConfigureDashboardSource stores the data source and column mapping of a
// project that is being configured.
func (s *Service) ConfigureDashboardSource(ctx context.Context, actor domain.Actor, id string, source domain.DataSourceConfig, mapping domain.ColumnMapping) (domain.DashboardProject, domain.Result, error) {
	var updated domain.DashboardProject
	var res domain.Result
	err := s.run(ctx, "configure_dashboard_source", actor, func(ctx context.Context) (string, error) {
		if err := source.Validate(); err != nil {
			return id, err
		}
		if err := mapping.Validate(); err != nil {
			return id, err
		}
		var err error
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			current, ok := tx.Snapshot().FindDashboardProject(id)
			if !ok {
				return domain.NotFound(domain.EntityDashboardProject, id)
			}
			if current.Status != domain.DashboardConfiguring {
				return domain.Validation(domain.EntityDashboardProject, "data source can only change while configuring, status is %s", current.Status)
			}
			var err error
			updated, err = tx.UpdateDashboardProject(id, func(p *domain.DashboardProject) error {
				src, cols := source, mapping
				p.DataSource = &src
				p.ColumnMapping = &cols
				return nil
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// ApplyGeneratedDashboardConfig parses a generated KPI and chart
// configuration, stores it and moves the project from configuring to draft.
// A malformed payload is rejected and nothing is stored.
func (s *Service) ApplyGeneratedDashboardConfig(ctx context.Context, actor domain.Actor, id string, raw []byte) (domain.DashboardProject, domain.Result, error) {
	var updated domain.DashboardProject
	var res domain.Result
	err := s.run(ctx, "apply_generated_dashboard_config", actor, func(ctx context.Context) (string, error) {
		cfg, err := domain.ParseDashboardConfig(raw)
		if err != nil {
			return id, err
		}
		res, err = s.mutate(ctx, actor, func(tx Transaction) error {
			current, ok := tx.Snapshot().FindDashboardProject(id)
			if !ok {
				return domain.NotFound(domain.EntityDashboardProject, id)
			}
			if current.Status != domain.DashboardConfiguring {
				return domain.Validation(domain.EntityDashboardProject, "generated config requires status configuring, status is %s", current.Status)
			}
			if _, err := tx.UpdateDashboardProject(id, func(p *domain.DashboardProject) error {
				p.KPIs = cfg.KPIs
				p.Charts = cfg.Charts
				return nil
			}); err != nil {
				return err
			}
			var err error
			updated, err = tx.TransitionDashboardProject(id, domain.DashboardDraft)
			return err
		})
		return id, err
	})
	return updated, res, err
}

// GetDashboardProject returns one project.
func (s *Service) GetDashboardProject(ctx context.Context, id string) (domain.DashboardProject, error) {
	var project domain.DashboardProject
	err := s.view(ctx, func(v TransactionView) error {
		var ok bool
		if project, ok = v.FindDashboardProject(id); !ok {
			return domain.NotFound(domain.EntityDashboardProject, id)
		}
		return nil
	})
	return project, err
}

// ListDashboardProjects returns every project ordered by creation.
func (s *Service) ListDashboardProjects(ctx context.Context) ([]domain.DashboardProject, error) {
	var out []domain.DashboardProject
	err := s.view(ctx, func(v TransactionView) error {
		out = v.ListDashboardProjects()
		return nil
	})
	return out, err
}

// DetectChanges analyses rows for one KPI of a project over the KPI's
// period. The rows are not stored.
func (s *Service) DetectChanges(ctx context.Context, projectID, kpiID string, rows []changedetect.Row) (changedetect.Result, error) {
	ctx, span := s.tracer.Start(ctx, "detect_changes")
	start := s.clock.Now()
	var kpi domain.KPIRule
	err := s.view(ctx, func(v TransactionView) error {
		project, ok := v.FindDashboardProject(projectID)
		if !ok {
			return domain.NotFound(domain.EntityDashboardProject, projectID)
		}
		if kpi, ok = project.FindKPI(kpiID); !ok {
			return domain.NotFound(domain.EntityDashboardProject, projectID+"/"+kpiID)
		}
		return nil
	})
	var result changedetect.Result
	if err == nil {
		result = changedetect.Analyze(rows, kpi.PeriodDays)
		if result.SkippedRows > 0 {
			s.logger.Warn("rows skipped during change detection", "project_id", projectID, "kpi_id", kpiID, "skipped", result.SkippedRows)
		}
	}
	span.End(err)
	s.metrics.Observe(ctx, "detect_changes", err == nil, s.clock.Now().Sub(start))
	return result, err
}
