package clock

import (
	"time"

	"github.com/smallbiznis/goalforge/internal/config"
	"go.uber.org/fx"
)

// DateLayout is the calendar-date key used by the completion ledger and streak snapshots.
const DateLayout = "2006-01-02"

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
	fx.Provide(NewCalendar),
)

// Calendar derives calendar dates from server time in one canonical timezone.
type Calendar struct {
	clock Clock
	loc   *time.Location
}

func NewCalendar(c Clock, cfg config.Config) *Calendar {
	return NewCalendarIn(c, cfg.Location())
}

func NewCalendarIn(c Clock, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{clock: c, loc: loc}
}

func (c *Calendar) Now() time.Time {
	return c.clock.Now()
}

// Today returns the current calendar date as YYYY-MM-DD.
func (c *Calendar) Today() string {
	return c.DateOf(c.clock.Now())
}

func (c *Calendar) DateOf(t time.Time) string {
	return t.In(c.loc).Format(DateLayout)
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

// AddDays shifts a YYYY-MM-DD date by n calendar days.
func AddDays(date string, n int) (string, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}

// DaysBetween returns to minus from in whole calendar days.
func DaysBetween(from, to string) (int, error) {
	a, err := time.Parse(DateLayout, from)
	if err != nil {
		return 0, err
	}
	b, err := time.Parse(DateLayout, to)
	if err != nil {
		return 0, err
	}
	return int(b.Sub(a).Hours() / 24), nil
}
