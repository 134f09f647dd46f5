// Package changedetect compares a metric across two consecutive periods and
// attributes the change to the segments that drove it.
package changedetect

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultPeriodDays is used when a non-positive period is supplied.
	DefaultPeriodDays = 30
	// MaxDrivers bounds the number of segments reported as drivers.
	MaxDrivers = 5
	// UnspecifiedSegment labels rows without a segment.
	UnspecifiedSegment = "Unspecified"
	// StableThreshold is the absolute percent change at or below which the
	// metric is reported as stable.
	StableThreshold = 1.0

	dayLayout = "2006-01-02"
)

// Row is one normalized data point supplied by the dataset collaborator.
type Row struct {
	Date       string  `json:"date"`
	Value      float64 `json:"value"`
	Segment    string  `json:"segment"`
	Subsegment string  `json:"subsegment,omitempty"`
}

// Breakdown is the period-over-period change of one subsegment.
type Breakdown struct {
	Subsegment string  `json:"subsegment"`
	Current    float64 `json:"current"`
	Previous   float64 `json:"previous"`
	Change     float64 `json:"change"`
}

// Driver is a segment ranked by the magnitude of its change.
type Driver struct {
	Segment      string      `json:"segment"`
	Current      float64     `json:"current"`
	Previous     float64     `json:"previous"`
	Change       float64     `json:"change"`
	Contribution float64     `json:"contribution_percent"`
	Subsegments  []Breakdown `json:"subsegments,omitempty"`
}

// TrendPoint is the current-window total for one calendar day.
type TrendPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Result is the outcome of Analyze.
type Result struct {
	PeriodDays    int          `json:"period_days"`
	Anchor        string       `json:"anchor,omitempty"`
	CurrentTotal  float64      `json:"current_total"`
	PreviousTotal float64      `json:"previous_total"`
	TotalChange   float64      `json:"total_change"`
	PercentChange float64      `json:"percent_change"`
	Drivers       []Driver     `json:"drivers"`
	Decision      string       `json:"decision"`
	Trend         []TrendPoint `json:"trend"`
	SkippedRows   int          `json:"skipped_rows"`
}

type parsedRow struct {
	day time.Time
	Row
}

type segmentTotals struct {
	name     string
	current  float64
	previous float64
	subs     []*segmentTotals
	subIndex map[string]*segmentTotals
}

func (s *segmentTotals) sub(name string) *segmentTotals {
	if s.subIndex == nil {
		s.subIndex = make(map[string]*segmentTotals)
	}
	if existing, ok := s.subIndex[name]; ok {
		return existing
	}
	created := &segmentTotals{name: name}
	s.subIndex[name] = created
	s.subs = append(s.subs, created)
	return created
}

// zonelessLayouts are spreadsheet style timestamps without an offset. They
// are read as UTC.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDate accepts calendar dates, RFC 3339 timestamps and zone-less
// date-times, and truncates to the UTC day.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(dayLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		parsed := false
		for _, layout := range zonelessLayouts {
			if t, err = time.Parse(layout, raw); err == nil {
				parsed = true
				break
			}
		}
		if !parsed {
			return time.Time{}, fmt.Errorf("unparseable date %q", raw)
		}
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// Analyze compares the window ending at the latest row date with the window
// before it. It is pure: rows are not modified.
func Analyze(rows []Row, periodDays int) Result {
	if periodDays <= 0 {
		periodDays = DefaultPeriodDays
	}
	res := Result{PeriodDays: periodDays, Drivers: []Driver{}, Trend: []TrendPoint{}}

	parsed := make([]parsedRow, 0, len(rows))
	for _, row := range rows {
		day, err := ParseDate(row.Date)
		if err != nil {
			res.SkippedRows++
			continue
		}
		parsed = append(parsed, parsedRow{day: day, Row: row})
	}
	if len(parsed) == 0 {
		res.Decision = decide(res)
		return res
	}

	anchor := parsed[0].day
	for _, p := range parsed[1:] {
		if p.day.After(anchor) {
			anchor = p.day
		}
	}
	res.Anchor = anchor.Format(dayLayout)
	currentStart := anchor.AddDate(0, 0, -periodDays)
	previousStart := anchor.AddDate(0, 0, -2*periodDays)

	var order []*segmentTotals
	index := make(map[string]*segmentTotals)
	daily := make(map[string]float64)
	for _, p := range parsed {
		inCurrent := p.day.After(currentStart) && !p.day.After(anchor)
		inPrevious := p.day.After(previousStart) && !p.day.After(currentStart)
		if !inCurrent && !inPrevious {
			continue
		}
		name := strings.TrimSpace(p.Segment)
		if name == "" {
			name = UnspecifiedSegment
		}
		seg, ok := index[name]
		if !ok {
			seg = &segmentTotals{name: name}
			index[name] = seg
			order = append(order, seg)
		}
		var sub *segmentTotals
		if subName := strings.TrimSpace(p.Subsegment); subName != "" {
			sub = seg.sub(subName)
		}
		if inCurrent {
			res.CurrentTotal += p.Value
			seg.current += p.Value
			if sub != nil {
				sub.current += p.Value
			}
			daily[p.day.Format(dayLayout)] += p.Value
		} else {
			res.PreviousTotal += p.Value
			seg.previous += p.Value
			if sub != nil {
				sub.previous += p.Value
			}
		}
	}

	res.TotalChange = res.CurrentTotal - res.PreviousTotal
	res.PercentChange = percentChange(res.CurrentTotal, res.PreviousTotal)
	res.Drivers = drivers(order, res.TotalChange)
	res.Trend = trend(currentStart, anchor, daily)
	res.Decision = decide(res)
	return res
}

func percentChange(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return (current - previous) / previous * 100
}

func contribution(change, total float64) float64 {
	if total == 0 {
		return 0
	}
	return math.Abs(change) / math.Abs(total) * 100
}

func drivers(order []*segmentTotals, totalChange float64) []Driver {
	ranked := make([]Driver, 0, len(order))
	for _, seg := range order {
		d := Driver{
			Segment:      seg.name,
			Current:      seg.current,
			Previous:     seg.previous,
			Change:       seg.current - seg.previous,
			Contribution: contribution(seg.current-seg.previous, totalChange),
		}
		for _, sub := range seg.subs {
			d.Subsegments = append(d.Subsegments, Breakdown{
				Subsegment: sub.name,
				Current:    sub.current,
				Previous:   sub.previous,
				Change:     sub.current - sub.previous,
			})
		}
		sort.SliceStable(d.Subsegments, func(i, j int) bool {
			return math.Abs(d.Subsegments[i].Change) > math.Abs(d.Subsegments[j].Change)
		})
		ranked = append(ranked, d)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Change) > math.Abs(ranked[j].Change)
	})
	if len(ranked) > MaxDrivers {
		ranked = ranked[:MaxDrivers]
	}
	return ranked
}

// trend zero-fills every day of the current window so charts get a
// continuous series.
func trend(currentStart, anchor time.Time, daily map[string]float64) []TrendPoint {
	var points []TrendPoint
	for day := currentStart.AddDate(0, 0, 1); !day.After(anchor); day = day.AddDate(0, 0, 1) {
		key := day.Format(dayLayout)
		points = append(points, TrendPoint{Date: key, Value: daily[key]})
	}
	return points
}

func decide(res Result) string {
	window := fmt.Sprintf("the previous %d days", res.PeriodDays)
	if math.Abs(res.PercentChange) <= StableThreshold {
		return fmt.Sprintf("Stable: total is within %.0f%% of %s.", StableThreshold, window)
	}
	direction := "increased"
	if res.PercentChange < 0 {
		direction = "decreased"
	}
	sentence := fmt.Sprintf("Total %s by %.0f%% compared with %s", direction, math.Round(math.Abs(res.PercentChange)), window)
	if len(res.Drivers) > 0 {
		top := res.Drivers[0]
		sentence += fmt.Sprintf(", driven mainly by %s (%.0f%% of the change)", top.Segment, math.Round(top.Contribution))
	}
	return sentence + "."
}
