// Package dates provides year extraction and plausibility checks for
// genealogical date strings.
//
// Genealogical records rarely carry clean timestamps. Dates arrive as
// "1965", "1965-03", "1965-03-21", or free text like "about 1850". The
// consistency engine only ever reasons about calendar years, so this
// package extracts years tolerantly and applies plausibility rules that
// stay permissive when data is missing: unknown dates must never block
// entry, only surface as warnings upstream.
package dates

import (
	"regexp"
	"strconv"
)

// DefaultMinParentAge is the minimum plausible age gap, in years, between
// a parent's birth and a child's birth.
const DefaultMinParentAge = 12

var (
	yearPattern     = regexp.MustCompile(`(\d{4})`)
	yearOnly        = regexp.MustCompile(`^\d{4}$`)
	yearMonth       = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
	yearMonthDay    = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	daysInMonthBase = [13]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
)

// ExtractYear returns the first 4-digit run found in the date string.
// The second return value is false when no year is present.
//
// Example:
//
//	dates.ExtractYear("1965-03-21") => 1965, true
//	dates.ExtractYear("about 1850") => 1850, true
//	dates.ExtractYear("unknown")    => 0, false
func ExtractYear(dateStr string) (int, bool) {
	m := yearPattern.FindString(dateStr)
	if m == "" {
		return 0, false
	}
	year, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return year, true
}

// IsParentAgePlausible reports whether the age gap between a parent's and a
// child's birth date is at least minAge years. If either year is unknown the
// check passes: missing data is a soft warning upstream, never a rejection.
//
// Example:
//
//	dates.IsParentAgePlausible("1965", "1990", 12) => true  (gap 25)
//	dates.IsParentAgePlausible("1985", "1990", 12) => false (gap 5)
//	dates.IsParentAgePlausible("", "1990", 12)     => true  (unknown parent)
func IsParentAgePlausible(parentBirth, childBirth string, minAge int) bool {
	p, okP := ExtractYear(parentBirth)
	c, okC := ExtractYear(childBirth)
	if !okP || !okC {
		return true
	}
	return p+minAge <= c
}

// IsLeapYear reports whether year is a Gregorian leap year: divisible by 4
// and (not divisible by 100 or divisible by 400).
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// IsLeapYearValid reports whether a structured date string denotes a real
// calendar date. The interesting case is February 29 of a non-leap year,
// which genealogy software sees surprisingly often from transcription
// errors.
//
// Accepted shapes are "YYYY", "YYYY-MM", and "YYYY-MM-DD". An empty string
// passes (nothing to reject); any other shape, or an out-of-range month or
// day, is rejected.
//
// Example:
//
//	dates.IsLeapYearValid("2000-02-29") => true  (2000 is a leap year)
//	dates.IsLeapYearValid("1900-02-29") => false (1900 is not)
//	dates.IsLeapYearValid("2021-02-29") => false (not a leap year)
//	dates.IsLeapYearValid("1965")       => true
func IsLeapYearValid(dateStr string) bool {
	if dateStr == "" {
		return true
	}
	if yearOnly.MatchString(dateStr) {
		return true
	}
	if m := yearMonth.FindStringSubmatch(dateStr); m != nil {
		month, _ := strconv.Atoi(m[2])
		return month >= 1 && month <= 12
	}
	if m := yearMonthDay.FindStringSubmatch(dateStr); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 || day < 1 {
			return false
		}
		maxDay := daysInMonthBase[month]
		if month == 2 && IsLeapYear(year) {
			maxDay = 29
		}
		return day <= maxDay
	}
	return false
}
