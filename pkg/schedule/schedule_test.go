package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvery_AdvancesByInterval(t *testing.T) {
	s := Every(10 * time.Minute)
	from := time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)

	next := s.Next(from)
	assert.Equal(t, from.Add(10*time.Minute), next)
	assert.Equal(t, from.Add(20*time.Minute), s.Next(next))
}

func TestDaily_SameDayWhenStillAhead(t *testing.T) {
	s := Daily(3, 15)
	from := time.Date(2026, 2, 10, 1, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 2, 10, 3, 15, 0, 0, time.UTC), s.Next(from))
}

func TestDaily_RollsToTomorrowOncePassed(t *testing.T) {
	s := Daily(3, 15)
	from := time.Date(2026, 2, 10, 3, 15, 0, 0, time.UTC)

	// Exactly at the scheduled instant means the run already fired.
	assert.Equal(t, time.Date(2026, 2, 11, 3, 15, 0, 0, time.UTC), s.Next(from))
}

func TestWeekly_LaterInTheSameWeek(t *testing.T) {
	s := Weekly(time.Sunday, 2, 0)
	from := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC) // a Tuesday

	assert.Equal(t, time.Date(2026, 2, 15, 2, 0, 0, 0, time.UTC), s.Next(from))
}

func TestWeekly_WrapsWhenDayPassed(t *testing.T) {
	s := Weekly(time.Sunday, 2, 0)
	from := time.Date(2026, 2, 15, 3, 0, 0, 0, time.UTC) // Sunday, after 02:00

	assert.Equal(t, time.Date(2026, 2, 22, 2, 0, 0, 0, time.UTC), s.Next(from))
}

func TestCron_FiveFieldExpression(t *testing.T) {
	s := Cron("*/10 * * * *")
	from := time.Date(2026, 2, 10, 6, 3, 0, 0, time.UTC)

	next := s.Next(from)
	assert.Equal(t, 10, next.Minute())
	assert.Equal(t, 6, next.Hour())
}

func TestCron_DayOfWeekField(t *testing.T) {
	s := Cron("0 4 * * 6")                               // Saturdays at 04:00
	from := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC) // a Tuesday

	next := s.Next(from)
	assert.Equal(t, time.Saturday, next.Weekday())
	assert.Equal(t, 4, next.Hour())
}

func TestCron_InvalidExpressionPanics(t *testing.T) {
	assert.Panics(t, func() {
		Cron("every ten minutes")
	})
}
