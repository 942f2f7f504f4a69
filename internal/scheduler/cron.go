package scheduler

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// CronSchedule is a parsed 5-field cron expression
// (minute hour day month weekday).
type CronSchedule struct {
	minute  fieldSet
	hour    fieldSet
	day     fieldSet
	month   fieldSet
	weekday fieldSet

	dayAny     bool
	weekdayAny bool
}

// fieldSet is a bitmask of allowed values for one cron field.
type fieldSet uint64

func (f fieldSet) has(v int) bool { return f&(1<<uint(v)) != 0 }

// ParseCron parses a 5-field expression. Each field accepts "*", single
// values, ranges (a-b), steps (*/n, a-b/n) and comma lists. Weekday 0 and
// 7 both mean Sunday.
func ParseCron(expr string) (*CronSchedule, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 5 {
		return nil, eris.Errorf("scheduler: cron %q: want 5 fields, got %d", expr, len(fields))
	}

	s := &CronSchedule{
		dayAny:     fields[2] == "*",
		weekdayAny: fields[4] == "*",
	}

	specs := []struct {
		raw      string
		min, max int
		dst      *fieldSet
	}{
		{fields[0], 0, 59, &s.minute},
		{fields[1], 0, 23, &s.hour},
		{fields[2], 1, 31, &s.day},
		{fields[3], 1, 12, &s.month},
		{fields[4], 0, 7, &s.weekday},
	}
	for _, spec := range specs {
		set, err := parseField(spec.raw, spec.min, spec.max)
		if err != nil {
			return nil, eris.Wrapf(err, "scheduler: cron %q", expr)
		}
		*spec.dst = set
	}

	// fold weekday 7 onto Sunday
	if s.weekday.has(7) {
		s.weekday |= 1
	}
	return s, nil
}

func parseField(raw string, min, max int) (fieldSet, error) {
	var set fieldSet
	for _, part := range strings.Split(raw, ",") {
		lo, hi, step := min, max, 1

		rangePart := part
		if i := strings.IndexByte(part, '/'); i >= 0 {
			rangePart = part[:i]
			n, err := strconv.Atoi(part[i+1:])
			if err != nil || n <= 0 {
				return 0, eris.Errorf("bad step %q", part)
			}
			step = n
		}

		switch {
		case rangePart == "*":
			// full range
		case strings.Contains(rangePart, "-"):
			bounds := strings.SplitN(rangePart, "-", 2)
			a, errA := strconv.Atoi(bounds[0])
			b, errB := strconv.Atoi(bounds[1])
			if errA != nil || errB != nil {
				return 0, eris.Errorf("bad range %q", part)
			}
			lo, hi = a, b
		default:
			v, err := strconv.Atoi(rangePart)
			if err != nil {
				return 0, eris.Errorf("bad value %q", part)
			}
			lo, hi = v, v
		}

		if lo < min || hi > max || lo > hi {
			return 0, eris.Errorf("value %q out of range %d-%d", part, min, max)
		}
		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	return set, nil
}

// Matches reports whether t (truncated to the minute) satisfies the
// schedule. Day-of-month and day-of-week follow the standard cron rule:
// when both are restricted, either may match.
func (s *CronSchedule) Matches(t time.Time) bool {
	if !s.minute.has(t.Minute()) || !s.hour.has(t.Hour()) || !s.month.has(int(t.Month())) {
		return false
	}

	dayOK := s.day.has(t.Day())
	dowOK := s.weekday.has(int(t.Weekday()))
	if !s.dayAny && !s.weekdayAny {
		return dayOK || dowOK
	}
	return dayOK && dowOK
}

// Next returns the first matching minute strictly after t, or the zero
// time when none exists within the next year.
func (s *CronSchedule) Next(t time.Time) time.Time {
	cur := t.Truncate(time.Minute).Add(time.Minute)
	limit := cur.AddDate(1, 0, 1)
	for ; cur.Before(limit); cur = cur.Add(time.Minute) {
		if s.Matches(cur) {
			return cur
		}
	}
	return time.Time{}
}
