package timectx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DrSkyle/faultline/pkg/config"
)

var ErrInvalidCalendar = errors.New("invalid change calendar")

type Holiday struct {
	Date time.Time `yaml:"date" json:"date"`
	Name string    `yaml:"name" json:"name"`
}

// RecurringWindow repeats weekly, e.g. "sunday 02:00 for 3h".
type RecurringWindow struct {
	Name     string        `yaml:"name" json:"name"`
	Weekday  string        `yaml:"weekday" json:"weekday"`
	Start    string        `yaml:"start" json:"start"`
	Duration time.Duration `yaml:"duration" json:"duration"`

	weekday  time.Weekday
	offset   time.Duration
	compiled bool
}

// Calendar holds holidays and change windows.
type Calendar struct {
	Holidays    []Holiday           `yaml:"holidays" json:"holidays"`
	Maintenance []MaintenanceWindow `yaml:"maintenance_windows" json:"maintenance_windows"`
	Recurring   []RecurringWindow   `yaml:"recurring_windows" json:"recurring_windows"`
}

func LoadCalendarFile(path string) (Calendar, error) {
	f, err := os.Open(path)
	if err != nil {
		return Calendar{}, fmt.Errorf("open calendar: %w", err)
	}
	defer f.Close()
	return LoadCalendar(f)
}

func LoadCalendar(r io.Reader) (Calendar, error) {
	var cal Calendar
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cal); err != nil && !errors.Is(err, io.EOF) {
		return Calendar{}, fmt.Errorf("%w: %v", ErrInvalidCalendar, err)
	}
	if err := cal.compile(); err != nil {
		return Calendar{}, err
	}
	return cal, nil
}

func (c *Calendar) compile() error {
	var errs []error
	for i, w := range c.Maintenance {
		if !w.End.After(w.Start) {
			errs = append(errs, fmt.Errorf("%w: maintenance window %q ends before it starts", ErrInvalidCalendar, w.Name))
		}
		if w.Name == "" {
			c.Maintenance[i].Name = fmt.Sprintf("window-%d", i+1)
		}
	}
	for i := range c.Recurring {
		w := &c.Recurring[i]
		wd, ok := parseWeekday(w.Weekday)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: recurring window %q has unknown weekday %q", ErrInvalidCalendar, w.Name, w.Weekday))
			continue
		}
		tod, err := time.Parse("15:04", w.Start)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: recurring window %q start %q: %v", ErrInvalidCalendar, w.Name, w.Start, err))
			continue
		}
		if w.Duration <= 0 || w.Duration > 24*time.Hour {
			errs = append(errs, fmt.Errorf("%w: recurring window %q duration must be within (0, 24h]", ErrInvalidCalendar, w.Name))
			continue
		}
		if w.Name == "" {
			w.Name = fmt.Sprintf("%s-%s", strings.ToLower(wd.String()), w.Start)
		}
		w.weekday = wd
		w.offset = time.Duration(tod.Hour())*time.Hour + time.Duration(tod.Minute())*time.Minute
		w.compiled = true
	}
	return errors.Join(errs...)
}

// holidayOn matches on calendar date in ts's location.
func (c Calendar) holidayOn(ts time.Time) (Holiday, bool) {
	y, m, d := ts.Date()
	for _, h := range c.Holidays {
		hy, hm, hd := h.Date.Date()
		if hy == y && hm == m && hd == d {
			return h, true
		}
	}
	return Holiday{}, false
}

func (c Calendar) maintenanceAt(ts time.Time) (string, bool) {
	for _, w := range c.Maintenance {
		if w.Contains(ts) {
			return w.Name, true
		}
	}
	for _, w := range c.Recurring {
		if !w.compiled {
			continue
		}
		// A window may start the previous day and run past midnight.
		for _, back := range []int{0, -1} {
			day := ts.AddDate(0, 0, back)
			if day.Weekday() != w.weekday {
				continue
			}
			y, m, d := day.Date()
			start := time.Date(y, m, d, 0, 0, 0, 0, ts.Location()).Add(w.offset)
			if !ts.Before(start) && ts.Before(start.Add(w.Duration)) {
				return w.Name, true
			}
		}
	}
	return "", false
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, true
		}
	}
	return 0, false
}

// NewFromConfig resolves the timezone and loads the calendar file, if any.
func NewFromConfig(cfg config.TimeContextConfig) (*Adjuster, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	var cal Calendar
	if cfg.CalendarFile != "" {
		c, err := LoadCalendarFile(cfg.CalendarFile)
		if err != nil {
			return nil, err
		}
		cal = c
	}
	return New(WithLocation(loc), WithCalendar(cal)), nil
}
