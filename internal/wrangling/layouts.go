package wrangling

import (
	"fmt"
	"strings"
	"time"

	"traffic-platform/internal/models"
)

// dateLayout is one supported way a table header spells its date.
// match returns the raw day, month and year parts, or ok=false if the
// header does not use this layout.
type dateLayout struct {
	name  string
	match func(fields []string) (day, month, year string, ok bool)
}

// dateLayouts is tried in order; the first layout yielding a valid calendar date wins.
var dateLayouts = []dateLayout{
	{name: "combined", match: matchCombinedDate},
	{name: "separate", match: matchSeparateDate},
}

// matchCombinedDate handles headers like `Zählstelle 1001,Mo,1.1,2015`
func matchCombinedDate(fields []string) (string, string, string, bool) {
	if len(fields) < 4 {
		return "", "", "", false
	}

	parts := strings.Split(stripSpaces(fields[2]), ".")
	if len(parts) != 2 || !isDayOrMonth(parts[0]) || !isDayOrMonth(parts[1]) {
		return "", "", "", false
	}

	year, ok := yearPrefix(fields[3])
	if !ok {
		return "", "", "", false
	}

	return parts[0], parts[1], year, true
}

// matchSeparateDate handles headers like `Zählstelle 1001,Mo,1,1,2015`
func matchSeparateDate(fields []string) (string, string, string, bool) {
	if len(fields) < 5 {
		return "", "", "", false
	}

	day, month := stripSpaces(fields[2]), stripSpaces(fields[3])
	if !isDayOrMonth(day) || !isDayOrMonth(month) {
		return "", "", "", false
	}

	year, ok := yearPrefix(fields[4])
	if !ok {
		return "", "", "", false
	}

	return day, month, year, true
}

// headerDate resolves the DD.MM.YYYY date of a header line
func headerDate(fields []string) (string, error) {
	for _, layout := range dateLayouts {
		day, month, year, ok := layout.match(fields)
		if !ok {
			continue
		}

		date := zeroPad(day) + "." + zeroPad(month) + "." + year
		if _, err := time.Parse(models.DateLayout, date); err != nil {
			continue
		}
		return date, nil
	}

	return "", fmt.Errorf("no date layout matched")
}

// yearPrefix keeps the first four characters of a year field, e.g. "2015 (Jan)" -> "2015"
func yearPrefix(field string) (string, bool) {
	field = strings.TrimSpace(field)
	if len(field) < 4 {
		return "", false
	}
	year := field[:4]
	for _, r := range year {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return year, true
}

func isDayOrMonth(s string) bool {
	if len(s) == 0 || len(s) > 2 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// zeroPad pads a one-digit day or month to two digits
func zeroPad(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func stripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}
