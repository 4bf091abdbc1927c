package dates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractYear(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
		ok    bool
	}{
		{"year only", "1965", 1965, true},
		{"full date", "1965-03-21", 1965, true},
		{"free text", "about 1850", 1850, true},
		{"first run wins", "1920-1985", 1920, true},
		{"no year", "unknown", 0, false},
		{"short digits", "196", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractYear(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsParentAgePlausible(t *testing.T) {
	tests := []struct {
		name        string
		parentBirth string
		childBirth  string
		want        bool
	}{
		{"gap 25 years", "1965", "1990", true},
		{"gap exactly minAge", "1978", "1990", true},
		{"gap below minAge", "1985", "1990", false},
		{"parent younger than child", "1990", "1965", false},
		{"unknown parent year", "", "1990", true},
		{"unknown child year", "1965", "", true},
		{"both unknown", "someday", "eventually", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsParentAgePlausible(tt.parentBirth, tt.childBirth, DefaultMinParentAge))
		})
	}
}

func TestIsLeapYearValid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"divisible by 400", "2000-02-29", true},
		{"century non-leap", "1900-02-29", false},
		{"ordinary non-leap", "2021-02-29", false},
		{"ordinary leap", "2020-02-29", true},
		{"feb 28 always fine", "1900-02-28", true},
		{"year only", "1965", true},
		{"year and month", "1965-03", true},
		{"month out of range", "1965-13", false},
		{"day out of range", "1965-04-31", false},
		{"zero day", "1965-04-00", false},
		{"empty", "", true},
		{"free text rejected", "about 1850", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLeapYearValid(tt.input))
		})
	}
}

func TestIsLeapYear(t *testing.T) {
	assert.True(t, IsLeapYear(2000))
	assert.True(t, IsLeapYear(2024))
	assert.False(t, IsLeapYear(1900))
	assert.False(t, IsLeapYear(2023))
}
