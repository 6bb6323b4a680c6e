package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes when work should run next.
type Schedule interface {
	Next(from time.Time) time.Time
}

// Func adapts a plain function to the Schedule interface.
type Func func(from time.Time) time.Time

func (f Func) Next(from time.Time) time.Time { return f(from) }

// Every returns a schedule that fires at fixed intervals.
func Every(d time.Duration) Schedule {
	return Func(func(from time.Time) time.Time {
		return from.Add(d)
	})
}

// Daily returns a schedule that fires once a day at the given wall-clock
// time, in UTC.
func Daily(hour, minute int) Schedule {
	return Func(func(from time.Time) time.Time {
		from = from.UTC()
		next := atClock(from, 0, hour, minute)
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	})
}

// Weekly returns a schedule that fires once a week on the given weekday at
// the given wall-clock time, in UTC.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return Func(func(from time.Time) time.Time {
		from = from.UTC()
		offset := (int(day) - int(from.Weekday()) + 7) % 7
		next := atClock(from, offset, hour, minute)
		if !next.After(from) {
			next = next.AddDate(0, 0, 7)
		}
		return next
	})
}

// Cron returns a schedule from a standard five-field cron expression.
// Panics on an invalid expression, as schedules are wired at startup.
func Cron(expr string) Schedule {
	parsed, err := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(expr)
	if err != nil {
		panic("invalid cron expression: " + err.Error())
	}
	return Func(parsed.Next)
}

// atClock returns the given wall-clock time dayOffset days from ref, in
// ref's location.
func atClock(ref time.Time, dayOffset, hour, minute int) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day()+dayOffset, hour, minute, 0, 0, ref.Location())
}
