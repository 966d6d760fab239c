package invoice

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseAmount coerces a model-supplied total into a number. It strips
// currency symbols and codes, handles both 1,234.56 and 1.234,56 styles,
// and reads parentheses or a trailing minus as negative.
func ParseAmount(amountStr string) (float64, error) {
	cleaned := strings.TrimSpace(amountStr)
	negative := false

	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "("), ")")
	}

	cleaned = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			return r
		}
		return -1
	}, cleaned)

	if strings.HasSuffix(cleaned, "-") {
		negative = !negative
		cleaned = strings.TrimSuffix(cleaned, "-")
	}
	if strings.HasPrefix(cleaned, "-") {
		negative = !negative
		cleaned = strings.TrimPrefix(cleaned, "-")
	}
	cleaned = strings.Trim(cleaned, ".,")

	if cleaned == "" || strings.Contains(cleaned, "-") {
		return 0, fmt.Errorf("unable to parse amount: %s (cleaned: %s)", amountStr, cleaned)
	}

	cleaned = normalizeSeparators(cleaned)

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse amount: %s (cleaned: %s)", amountStr, cleaned)
	}
	if negative {
		amount = -amount
	}
	return amount, nil
}

// normalizeSeparators rewrites digits with ',' and '.' to a plain decimal.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// The later separator is the decimal one.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		parts := strings.Split(s, ",")
		if len(parts) == 2 && len(parts[1]) <= 2 {
			// 1234,50
			return parts[0] + "." + parts[1]
		}
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		// 1.234.567
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// IsPlausibleAmount reports whether a total looks like a real invoice total:
// non-zero, below a hundred million and with at most cent precision.
func IsPlausibleAmount(amount float64) bool {
	a := math.Abs(amount)
	if a == 0 || a >= 1e8 || math.IsNaN(a) || math.IsInf(a, 0) {
		return false
	}
	cents := a * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"2-Jan-2006",
	"2-Jan-06",
	"02-Jan-2006",
	"Jan. 2, 2006",
	"Mon, Jan 2, 2006",
	"Monday, January 2, 2006",
	"2006-Jan-02",
}

var (
	ordinalRe     = regexp.MustCompile(`(?i)(\d)(st|nd|rd|th|er)\b`)
	numericDateRe = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{2}|\d{4})$`)
	isoPrefixRe   = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[T ]`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

var frenchMonths = strings.NewReplacer(
	"janvier", "January", "février", "February", "fevrier", "February",
	"mars", "March", "avril", "April", "mai", "May", "juin", "June",
	"juillet", "July", "août", "August", "aout", "August",
	"septembre", "September", "octobre", "October",
	"novembre", "November", "décembre", "December", "decembre", "December",
)

// NormalizeDate converts a date to YYYY-MM-DD. The second result is false
// when no known layout matched, in which case the trimmed input is returned
// unchanged. All-numeric dates are read month first unless the first part
// cannot be a month.
func NormalizeDate(s string) (string, bool) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return "", false
	}

	if m := isoPrefixRe.FindStringSubmatch(raw); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]); err == nil {
			return t.Format("2006-01-02"), true
		}
	}

	if m := numericDateRe.FindStringSubmatch(raw); m != nil {
		if d, ok := numericDate(m[1], m[2], m[3]); ok {
			return d, true
		}
		return raw, false
	}

	candidate := strings.TrimSuffix(raw, ".")
	candidate = ordinalRe.ReplaceAllString(candidate, "$1")
	candidate = frenchMonths.Replace(strings.ToLower(candidate))
	candidate = spaceRe.ReplaceAllString(candidate, " ")
	candidate = strings.Replace(candidate, "sept ", "sep ", 1)
	candidate = strings.Replace(candidate, "sept.", "sep.", 1)

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, candidate); err == nil && plausibleYear(t) {
			return t.Format("2006-01-02"), true
		}
	}
	return raw, false
}

// IsISODate reports whether s is already a valid YYYY-MM-DD date.
func IsISODate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil && len(s) == 10
}

func numericDate(a, b, y string) (string, bool) {
	first, _ := strconv.Atoi(a)
	second, _ := strconv.Atoi(b)
	year, _ := strconv.Atoi(y)
	if len(y) == 2 {
		year += 2000
	}

	month, day := first, second
	if first > 12 {
		month, day = second, first
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(month) || t.Day() != day || !plausibleYear(t) {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

func plausibleYear(t time.Time) bool {
	return t.Year() >= 1900 && t.Year() <= 2100
}
