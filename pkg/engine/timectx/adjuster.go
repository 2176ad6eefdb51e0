// Package timectx turns a timestamp into a change-risk multiplier.
package timectx

import (
	"fmt"
	"math"
	"sort"
	"time"
)

type DayType string

const (
	DayWeekday DayType = "WEEKDAY"
	DayWeekend DayType = "WEEKEND"
	DayHoliday DayType = "HOLIDAY"
)

type Window string

const (
	WindowPeak        Window = "PEAK_HOURS"
	WindowBusiness    Window = "BUSINESS_HOURS"
	WindowOffHours    Window = "OFF_HOURS"
	WindowLowTraffic  Window = "LOW_TRAFFIC"
	WindowMaintenance Window = "MAINTENANCE_WINDOW"
)

const (
	MinMultiplier = 0.2
	MaxMultiplier = 2.0

	maxSuggestDays = 31
)

// Weights are the day and window factors. The product is clamped to [0.2, 2.0].
type Weights struct {
	Day    map[DayType]float64
	Window map[Window]float64
}

// DefaultWeights: peak > 1, business slightly above neutral, quiet hours < 1,
// maintenance < 0.5.
func DefaultWeights() Weights {
	return Weights{
		Day: map[DayType]float64{
			DayWeekday: 1.0,
			DayWeekend: 0.7,
			DayHoliday: 0.6,
		},
		Window: map[Window]float64{
			WindowPeak:        1.5,
			WindowBusiness:    1.1,
			WindowOffHours:    0.8,
			WindowLowTraffic:  0.5,
			WindowMaintenance: 0.3,
		},
	}
}

// MaintenanceWindow is a one-off change window, [Start, End).
type MaintenanceWindow struct {
	Name  string    `yaml:"name" json:"name"`
	Start time.Time `yaml:"start" json:"start"`
	End   time.Time `yaml:"end" json:"end"`
}

func (w MaintenanceWindow) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// Context is the time-derived part of a risk assessment.
type Context struct {
	Timestamp  time.Time `json:"timestamp"`
	DayType    DayType   `json:"day_type"`
	TimeWindow Window    `json:"time_window"`
	Multiplier float64   `json:"multiplier"`
	Factors    []string  `json:"factors"`
}

// Adjustment is a base score scaled by its time context.
type Adjustment struct {
	BaseScore     float64 `json:"base_score"`
	AdjustedScore float64 `json:"adjusted_score"`
	Context
}

// DeploymentWindow is a candidate hour for a change.
type DeploymentWindow struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Multiplier float64   `json:"multiplier"`
	DayType    DayType   `json:"day_type"`
	TimeWindow Window    `json:"time_window"`
}

// Adjust is the stateless form: explicit holidays and maintenance windows, UTC-free
// (the timestamp's own location decides the hour of day).
func Adjust(baseScore float64, ts time.Time, holidays []time.Time, windows []MaintenanceWindow) Adjustment {
	cal := Calendar{Maintenance: windows}
	for _, h := range holidays {
		cal.Holidays = append(cal.Holidays, Holiday{Date: h})
	}
	a := New(WithLocation(ts.Location()), WithCalendar(cal))
	return a.Adjust(baseScore, ts)
}

// Adjuster evaluates timestamps against a calendar. It is read-only after construction.
type Adjuster struct {
	loc     *time.Location
	cal     Calendar
	weights Weights
}

type Option func(*Adjuster)

func WithLocation(loc *time.Location) Option {
	return func(a *Adjuster) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithCalendar installs cal. Recurring windows that fail to parse are ignored;
// use LoadCalendar to surface those errors.
func WithCalendar(cal Calendar) Option {
	return func(a *Adjuster) {
		cal.Recurring = append([]RecurringWindow(nil), cal.Recurring...)
		cal.Maintenance = append([]MaintenanceWindow(nil), cal.Maintenance...)
		_ = cal.compile()
		a.cal = cal
	}
}

func WithWeights(w Weights) Option {
	return func(a *Adjuster) { a.weights = w }
}

func New(opts ...Option) *Adjuster {
	a := &Adjuster{loc: time.UTC, weights: DefaultWeights()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Location returns the zone used for hour-of-day classification.
func (a *Adjuster) Location() *time.Location {
	return a.loc
}

// Adjust scales baseScore by the multiplier of ts.
func (a *Adjuster) Adjust(baseScore float64, ts time.Time) Adjustment {
	c := a.Context(ts)
	return Adjustment{
		BaseScore:     baseScore,
		AdjustedScore: math.Round(baseScore*c.Multiplier*100) / 100,
		Context:       c,
	}
}

// Context classifies ts. Holidays override weekday/weekend; maintenance windows
// override the hour-of-day window.
func (a *Adjuster) Context(ts time.Time) Context {
	local := ts.In(a.loc)
	c := Context{Timestamp: local}

	if h, ok := a.cal.holidayOn(local); ok {
		c.DayType = DayHoliday
		if h.Name != "" {
			c.Factors = append(c.Factors, fmt.Sprintf("holiday: %s (%s)", h.Name, local.Format("2006-01-02")))
		} else {
			c.Factors = append(c.Factors, fmt.Sprintf("holiday (%s)", local.Format("2006-01-02")))
		}
	} else if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		c.DayType = DayWeekend
		c.Factors = append(c.Factors, "weekend: reduced traffic and change volume")
	} else {
		c.DayType = DayWeekday
		c.Factors = append(c.Factors, "weekday")
	}

	if name, ok := a.cal.maintenanceAt(local); ok {
		c.TimeWindow = WindowMaintenance
		c.Factors = append(c.Factors, "maintenance window: "+name)
	} else {
		c.TimeWindow = classifyHour(local.Hour(), c.DayType)
		c.Factors = append(c.Factors, windowReason(c.TimeWindow))
	}

	raw := a.weights.Day[c.DayType] * a.weights.Window[c.TimeWindow]
	c.Multiplier = clampMultiplier(raw)
	if c.Multiplier != raw {
		c.Factors = append(c.Factors, fmt.Sprintf("multiplier clamped from %.2f to %.2f", raw, c.Multiplier))
	}
	return c
}

// SuggestDeploymentWindows returns every whole hour in [from, from+daysAhead) whose
// multiplier is below 1, lowest risk first.
func (a *Adjuster) SuggestDeploymentWindows(from time.Time, daysAhead int) []DeploymentWindow {
	if daysAhead <= 0 {
		return []DeploymentWindow{}
	}
	if daysAhead > maxSuggestDays {
		daysAhead = maxSuggestDays
	}

	// Slots follow the local wall clock, which is not hour-aligned in every zone.
	local := from.In(a.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, a.loc)
	if start.Before(from) {
		start = start.Add(time.Hour)
	}

	out := make([]DeploymentWindow, 0, daysAhead*8)
	for i := 0; i < daysAhead*24; i++ {
		slot := start.Add(time.Duration(i) * time.Hour)
		c := a.Context(slot)
		if c.Multiplier >= 1.0 {
			continue
		}
		out = append(out, DeploymentWindow{
			Start:      slot,
			End:        slot.Add(time.Hour),
			Multiplier: c.Multiplier,
			DayType:    c.DayType,
			TimeWindow: c.TimeWindow,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Multiplier < out[j].Multiplier
	})
	return out
}

// classifyHour maps an hour of day to a traffic window.
// Peak and business hours only exist on working days.
func classifyHour(hour int, day DayType) Window {
	if hour < 6 {
		return WindowLowTraffic
	}
	if day != DayWeekday {
		return WindowOffHours
	}
	switch {
	case hour >= 9 && hour < 12, hour >= 14 && hour < 17:
		return WindowPeak
	case hour >= 8 && hour < 18:
		return WindowBusiness
	default:
		return WindowOffHours
	}
}

func windowReason(w Window) string {
	switch w {
	case WindowPeak:
		return "peak traffic hours"
	case WindowBusiness:
		return "business hours"
	case WindowLowTraffic:
		return "low traffic overnight"
	default:
		return "off hours"
	}
}

func clampMultiplier(v float64) float64 {
	if math.IsNaN(v) || v < MinMultiplier {
		return MinMultiplier
	}
	if v > MaxMultiplier {
		return MaxMultiplier
	}
	return v
}
