package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validationError converts validator output into a domain validation error.
func validationError(entity EntityType, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Validation(entity, "%v", err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
	}
	return Validation(entity, "%s", strings.Join(parts, "; "))
}

// CommissionRuleKind tags the CommissionRule variant.
type CommissionRuleKind string

// Commission rule variants.
const (
	CommissionRuleFlat       CommissionRuleKind = "flat"
	CommissionRulePercentage CommissionRuleKind = "percentage"
	CommissionRuleTiered     CommissionRuleKind = "tiered"
)

// CommissionRule describes how an ambassador earns commission. Exactly the
// field named by Kind is set.
type CommissionRule struct {
	Kind       CommissionRuleKind    `json:"kind" validate:"required,oneof=flat percentage tiered"`
	Flat       *FlatCommission       `json:"flat,omitempty" validate:"omitempty"`
	Percentage *PercentageCommission `json:"percentage,omitempty" validate:"omitempty"`
	Tiered     *TieredCommission     `json:"tiered,omitempty" validate:"omitempty"`
}

// FlatCommission pays a fixed amount per client or per month.
type FlatCommission struct {
	AmountCents int64  `json:"amount_cents" validate:"gte=0"`
	Per         string `json:"per" validate:"required,oneof=client month"`
}

// PercentageCommission pays a share of the client retainer.
type PercentageCommission struct {
	BasisPoints int `json:"basis_points" validate:"gte=0,lte=10000"`
}

// TieredCommission pays increasing shares as retainer volume grows. Tiers are
// ordered by ascending UpToCents; a zero UpToCents on the last tier is
// unbounded.
type TieredCommission struct {
	Tiers []CommissionTier `json:"tiers" validate:"required,min=1,dive"`
}

// CommissionTier is a single bracket of a tiered rule.
type CommissionTier struct {
	UpToCents   int64 `json:"up_to_cents" validate:"gte=0"`
	BasisPoints int   `json:"basis_points" validate:"gte=0,lte=10000"`
}

// Validate checks tags and variant exclusivity.
func (r CommissionRule) Validate() error {
	if err := structValidator().Struct(r); err != nil {
		return validationError(EntityAmbassador, err)
	}
	set := map[CommissionRuleKind]bool{
		CommissionRuleFlat:       r.Flat != nil,
		CommissionRulePercentage: r.Percentage != nil,
		CommissionRuleTiered:     r.Tiered != nil,
	}
	for kind, present := range set {
		if kind == r.Kind && !present {
			return Validation(EntityAmbassador, "commission_rule kind %q requires a %q payload", r.Kind, r.Kind)
		}
		if kind != r.Kind && present {
			return Validation(EntityAmbassador, "commission_rule kind %q must not carry a %q payload", r.Kind, kind)
		}
	}
	if r.Tiered != nil {
		tiers := r.Tiered.Tiers
		for i := 1; i < len(tiers); i++ {
			prev, cur := tiers[i-1].UpToCents, tiers[i].UpToCents
			if prev == 0 || (cur != 0 && cur <= prev) {
				return Validation(EntityAmbassador, "commission_rule tiers must ascend with only the last tier unbounded")
			}
		}
	}
	return nil
}

// DataSourceKind tags the DataSourceConfig variant.
type DataSourceKind string

// Data source variants.
const (
	DataSourceGoogleSheets DataSourceKind = "google_sheets"
	DataSourceCSVUpload    DataSourceKind = "csv_upload"
	DataSourceManual       DataSourceKind = "manual"
)

// DataSourceConfig locates the rows feeding a dashboard.
type DataSourceConfig struct {
	Kind   DataSourceKind `json:"kind" validate:"required,oneof=google_sheets csv_upload manual"`
	Sheets *SheetsSource  `json:"sheets,omitempty" validate:"omitempty"`
	CSV    *CSVSource     `json:"csv,omitempty" validate:"omitempty"`
}

// SheetsSource points at a spreadsheet range.
type SheetsSource struct {
	SpreadsheetID string `json:"spreadsheet_id" validate:"required"`
	Range         string `json:"range,omitempty"`
}

// CSVSource points at an uploaded object.
type CSVSource struct {
	ObjectKey string `json:"object_key" validate:"required"`
	Delimiter string `json:"delimiter,omitempty" validate:"omitempty,len=1"`
}

// Validate checks tags and variant exclusivity.
func (c DataSourceConfig) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		return validationError(EntityDashboardProject, err)
	}
	switch c.Kind {
	case DataSourceGoogleSheets:
		if c.Sheets == nil || c.CSV != nil {
			return Validation(EntityDashboardProject, "data_source kind google_sheets requires only a sheets payload")
		}
	case DataSourceCSVUpload:
		if c.CSV == nil || c.Sheets != nil {
			return Validation(EntityDashboardProject, "data_source kind csv_upload requires only a csv payload")
		}
	case DataSourceManual:
		if c.CSV != nil || c.Sheets != nil {
			return Validation(EntityDashboardProject, "data_source kind manual takes no payload")
		}
	}
	return nil
}

// ColumnMapping maps source columns onto normalized analytics rows.
type ColumnMapping struct {
	DateColumn       string `json:"date_column" validate:"required"`
	ValueColumn      string `json:"value_column" validate:"required"`
	SegmentColumn    string `json:"segment_column,omitempty"`
	SubsegmentColumn string `json:"subsegment_column,omitempty"`
}

// Validate checks required columns.
func (m ColumnMapping) Validate() error {
	if err := structValidator().Struct(m); err != nil {
		return validationError(EntityDashboardProject, err)
	}
	if m.SubsegmentColumn != "" && m.SegmentColumn == "" {
		return Validation(EntityDashboardProject, "column_mapping subsegment_column requires segment_column")
	}
	return nil
}

// KPIRule defines one tracked indicator.
type KPIRule struct {
	ID          string `json:"id" validate:"required,max=64"`
	Label       string `json:"label" validate:"required,max=200"`
	Aggregation string `json:"aggregation" validate:"required,oneof=sum avg count min max"`
	PeriodDays  int    `json:"period_days" validate:"required,gte=1,lte=366"`
	Format      string `json:"format" validate:"required,oneof=number currency percent"`
}

// ChartSpec defines one rendered chart bound to a KPI.
type ChartSpec struct {
	ID      string `json:"id" validate:"required,max=64"`
	Kind    string `json:"kind" validate:"required,oneof=line bar pie table"`
	KPIID   string `json:"kpi_id" validate:"required"`
	GroupBy string `json:"group_by,omitempty" validate:"omitempty,oneof=day segment subsegment"`
	Title   string `json:"title,omitempty" validate:"max=200"`
}

// DashboardConfig is the KPI and chart configuration accepted from the AI
// configuration generator.
type DashboardConfig struct {
	KPIs   []KPIRule   `json:"kpis" validate:"required,min=1,max=20,dive"`
	Charts []ChartSpec `json:"charts" validate:"max=40,dive"`
}

// Validate checks tags and cross references between charts and KPIs.
func (c DashboardConfig) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		return validationError(EntityDashboardProject, err)
	}
	kpis := make(map[string]struct{}, len(c.KPIs))
	for _, kpi := range c.KPIs {
		if _, dup := kpis[kpi.ID]; dup {
			return Validation(EntityDashboardProject, "duplicate kpi id %q", kpi.ID)
		}
		kpis[kpi.ID] = struct{}{}
	}
	charts := make(map[string]struct{}, len(c.Charts))
	for _, chart := range c.Charts {
		if _, dup := charts[chart.ID]; dup {
			return Validation(EntityDashboardProject, "duplicate chart id %q", chart.ID)
		}
		charts[chart.ID] = struct{}{}
		if _, ok := kpis[chart.KPIID]; !ok {
			return Validation(EntityDashboardProject, "chart %q references unknown kpi %q", chart.ID, chart.KPIID)
		}
	}
	return nil
}

// ParseDashboardConfig strictly decodes and validates a generated dashboard
// configuration. Unknown fields, trailing data and schema violations are
// rejected.
func ParseDashboardConfig(raw []byte) (DashboardConfig, error) {
	var cfg DashboardConfig
	if err := decodeStrict(raw, &cfg); err != nil {
		return DashboardConfig{}, Validation(EntityDashboardProject, "malformed dashboard config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return DashboardConfig{}, err
	}
	return cfg, nil
}

// ParseCommissionRule strictly decodes and validates a commission rule.
func ParseCommissionRule(raw []byte) (CommissionRule, error) {
	var rule CommissionRule
	if err := decodeStrict(raw, &rule); err != nil {
		return CommissionRule{}, Validation(EntityAmbassador, "malformed commission rule: %v", err)
	}
	if err := rule.Validate(); err != nil {
		return CommissionRule{}, err
	}
	return rule, nil
}

func decodeStrict(raw []byte, target any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return errors.New("empty payload")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected trailing data")
	}
	return nil
}
