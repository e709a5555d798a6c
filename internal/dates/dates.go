// Package dates normalizes the many shapes an expiry date can take in a
// workbook (native times, serial numbers, text) into DD-MM-YYYY.
package dates

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layout is the canonical output form
const Layout = "02-01-2006"

var textLayouts = []string{
	"2006-1-2 15:04:05",
	"2006-1-2",
	"2-1-2006",
}

// serialEpoch is day zero for spreadsheet date serials
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// oldest is the sort key for values that do not parse
var oldest = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// Normalize renders v as DD-MM-YYYY when it can be read as a date.
// Text that is neither a known layout nor date shaped is returned as is.
func Normalize(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.Format(Layout)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format(Layout)
	case float64:
		return FromSerial(t)
	case float32:
		return FromSerial(float64(t))
	case int:
		return FromSerial(float64(t))
	case int32:
		return FromSerial(float64(t))
	case int64:
		return FromSerial(float64(t))
	case string:
		return normalizeText(t)
	default:
		return normalizeText(fmt.Sprint(v))
	}
}

// FromSerial converts a spreadsheet serial day number, ignoring the time fraction
func FromSerial(serial float64) string {
	return serialEpoch.AddDate(0, 0, int(serial)).Format(Layout)
}

func normalizeText(s string) string {
	s = strings.TrimSpace(s)
	cleaned := s
	if i := strings.Index(cleaned, "+"); i >= 0 {
		cleaned = cleaned[:i]
	}
	if i := strings.Index(cleaned, "."); i >= 0 {
		cleaned = cleaned[:i]
	}
	cleaned = strings.ReplaceAll(strings.TrimSpace(cleaned), "/", "-")

	for _, layout := range textLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format(Layout)
		}
	}
	if LooksLikeDate(cleaned) {
		return cleaned
	}
	return s
}

// LooksLikeDate reports whether s is three numeric parts split by - or /
// (in any mix) with a plausible day first and month second.
func LooksLikeDate(s string) bool {
	s = strings.ReplaceAll(strings.TrimSpace(s), "/", "-")
	if len(s) < 5 {
		return false
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		if p == "" || strings.ContainsAny(p, "+") {
			return false
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return false
		}
		nums[i] = n
	}
	return nums[0] >= 1 && nums[0] <= 31 && nums[1] >= 1 && nums[1] <= 12
}

// SortKey parses a normalized date, mapping failures to 1900-01-01
func SortKey(s string) time.Time {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return oldest
	}
	return t
}

// UpcomingThursdays returns n weekly Thursdays strictly after now
func UpcomingThursdays(now time.Time, n int) []string {
	daysAhead := (int(time.Thursday) - int(now.Weekday()) + 7) % 7
	if daysAhead == 0 {
		daysAhead = 7
	}
	first := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, daysAhead)

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, first.AddDate(0, 0, 7*i).Format(Layout))
	}
	return out
}
