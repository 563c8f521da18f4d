package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tourops/dispatch-core/internal/direrr"
	"github.com/tourops/dispatch-core/internal/models"
)

// C1: time & key primitives. HH:MM arithmetic, tourRunKey, and date
// normalization to a tenant-local day (spec §4.1).

// Minutes parses "HH:MM" (24h, minute precision) into minutes since
// midnight. "24:00" is accepted only with minute 0; otherwise hours must
// be 0-23.
func Minutes(t string) (int, error) {
	parts := strings.SplitN(t, ":", 2)
	if len(parts) != 2 {
		return 0, direrr.Validation(fmt.Sprintf("invalid time %q", t))
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) != 2 {
		return 0, direrr.Validation(fmt.Sprintf("invalid time %q", t))
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 {
		return 0, direrr.Validation(fmt.Sprintf("invalid time %q", t))
	}
	if h == 24 {
		if m != 0 {
			return 0, direrr.Validation(fmt.Sprintf("invalid time %q: 24:00 is the only valid hour-24 value", t))
		}
		return 24 * 60, nil
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, direrr.Validation(fmt.Sprintf("invalid time %q", t))
	}
	return h*60 + m, nil
}

// MustMinutes is Minutes without an error return, for call sites that
// have already validated the string (e.g. values just loaded from the
// store). Invalid input yields 0 rather than panicking.
func MustMinutes(t string) int {
	m, err := Minutes(t)
	if err != nil {
		return 0
	}
	return m
}

// FormatHHMM renders minutes-since-midnight back to "HH:MM". Values above
// 24*60 are not expected but are clamped to 24:00 to stay representable.
func FormatHHMM(totalMinutes int) string {
	if totalMinutes < 0 {
		totalMinutes = 0
	}
	if totalMinutes >= 24*60 {
		return "24:00"
	}
	return fmt.Sprintf("%02d:%02d", totalMinutes/60, totalMinutes%60)
}

// AddMinutes returns t shifted forward by n minutes (n may be negative).
func AddMinutes(t string, n int) (string, error) {
	m, err := Minutes(t)
	if err != nil {
		return "", err
	}
	return FormatHHMM(m + n), nil
}

// Difference returns minutes(b) - minutes(a).
func Difference(a, b string) (int, error) {
	am, err := Minutes(a)
	if err != nil {
		return 0, err
	}
	bm, err := Minutes(b)
	if err != nil {
		return 0, err
	}
	return bm - am, nil
}

// Overlaps reports whether two [start, end) intervals share any minute;
// touching ends do not overlap (spec invariant 2, §4.5 step 3c).
func Overlaps(aStart, aEnd, bStart, bEnd string) bool {
	as, ae := MustMinutes(aStart), MustMinutes(aEnd)
	bs, be := MustMinutes(bStart), MustMinutes(bEnd)
	return as < be && bs < ae
}

// IntervalOverlaps is the models.ScheduleInterval-typed convenience form.
func IntervalOverlaps(a, b models.ScheduleInterval) bool {
	return Overlaps(a.Start, a.End, b.Start, b.End)
}

// TourRunKey builds "{tourId}|{YYYY-MM-DD}|{HH:MM}" (spec §4.1).
func TourRunKey(tourID, date, hhmm string) string {
	return tourID + "|" + date + "|" + hhmm
}

// ParseTourRunKey splits a tourRunKey back into its three parts.
func ParseTourRunKey(key string) (tourID, date, hhmm string, err error) {
	parts := strings.Split(key, "|")
	if len(parts) != 3 {
		return "", "", "", direrr.Validation(fmt.Sprintf("invalid tour run key %q", key))
	}
	return parts[0], parts[1], parts[2], nil
}

// FormatDateKey normalizes a date to YYYY-MM-DD in loc (the tenant's
// operational timezone). Two entry points receiving the same logical day
// must produce the same key, whether they start from a calendar-day
// string already in that shape or from a timestamp.
func FormatDateKey(d time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return d.In(loc).Format("2006-01-02")
}

// ParseDateKey parses a YYYY-MM-DD string as a calendar day, independent
// of time zone (used when the input is already a normalized key rather
// than a timestamp).
func ParseDateKey(key string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", key)
	if err != nil {
		return time.Time{}, direrr.Validation(fmt.Sprintf("invalid date %q", key))
	}
	return d, nil
}

// DayOfWeek returns 0=Sunday ... 6=Saturday for a YYYY-MM-DD date key.
func DayOfWeek(dateKey string) (int, error) {
	d, err := ParseDateKey(dateKey)
	if err != nil {
		return 0, err
	}
	return int(d.Weekday()), nil
}
