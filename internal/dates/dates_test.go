package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEquivalentRepresentations(t *testing.T) {
	want := "16-10-2025"
	inputs := []any{
		time.Date(2025, time.October, 16, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.October, 16, 15, 30, 0, 0, time.Local),
		45946.0,
		45946.75,
		45946,
		"2025-10-16 00:00:00",
		"2025-10-16 00:00:00+00:00",
		"2025-10-16 09:15:00.000",
		"2025-10-16",
		"16-10-2025",
		"16/10/2025",
		" 16-10-2025 ",
	}
	for _, in := range inputs {
		assert.Equal(t, want, Normalize(in), "input %#v", in)
	}
}

func TestNormalizeUnpaddedText(t *testing.T) {
	assert.Equal(t, "01-05-2025", Normalize("1-5-2025"))
	assert.Equal(t, "01-05-2025", Normalize("1/5/2025"))
	assert.Equal(t, "16-10-2025", Normalize("16/10-2025"))
	assert.Equal(t, "01-05-2025", Normalize("1-5/2025"))
}

func TestNormalizePassThrough(t *testing.T) {
	assert.Equal(t, "NIFTY", Normalize("NIFTY"))
	assert.Equal(t, "31-12-99", Normalize("31/12/99"))
	assert.Equal(t, "", Normalize(nil))
}

func TestLooksLikeDate(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"16-10-2025", true},
		{"16/10/2025", true},
		{"16/10-2025", true},
		{"16-10/2025", true},
		{"1-1-2025", true},
		{"32-10-2025", false},
		{"16-13-2025", false},
		{"2025-10-16", false},
		{"NIFTY", false},
		{"1-1", false},
		{"16/10/2025/1", false},
		{"a-b-c", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksLikeDate(tt.in))
		})
	}
}

func TestSortKey(t *testing.T) {
	assert.Equal(t, time.Date(2025, time.October, 16, 0, 0, 0, 0, time.UTC), SortKey("16-10-2025"))
	assert.Equal(t, time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC), SortKey("soon"))
}

func TestUpcomingThursdays(t *testing.T) {
	t.Run("from a monday", func(t *testing.T) {
		monday := time.Date(2025, time.October, 13, 10, 0, 0, 0, time.UTC)
		got := UpcomingThursdays(monday, 12)
		assert.Len(t, got, 12)
		assert.Equal(t, "16-10-2025", got[0])
		assert.Equal(t, "23-10-2025", got[1])
		assert.Equal(t, "01-01-2026", got[11])
	})

	t.Run("on a thursday skips today", func(t *testing.T) {
		thursday := time.Date(2025, time.October, 16, 9, 0, 0, 0, time.UTC)
		got := UpcomingThursdays(thursday, 2)
		assert.Equal(t, []string{"23-10-2025", "30-10-2025"}, got)
	})
}
