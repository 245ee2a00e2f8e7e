package grant

import (
	"errors"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		amount string
		unit   string
		want   time.Duration
	}{
		{"30", "mins", 30 * time.Minute},
		{"1", "min", time.Minute},
		{"45", "MINUTES", 45 * time.Minute},
		{"1", "minute", time.Minute},
		{"2", "hr", 2 * time.Hour},
		{"2", "hrs", 2 * time.Hour},
		{"1", "Hour", time.Hour},
		{"12", "hours", 12 * time.Hour},
		{"1", "day", 24 * time.Hour},
		{"7", "DAYS", 7 * 24 * time.Hour},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.amount, tc.unit)
		if err != nil {
			t.Fatalf("ParseDuration(%q, %q): %v", tc.amount, tc.unit, err)
		}
		if got != tc.want {
			t.Fatalf("ParseDuration(%q, %q) = %v, want %v", tc.amount, tc.unit, got, tc.want)
		}
	}
}

func TestParseDurationRejects(t *testing.T) {
	cases := []struct {
		amount string
		unit   string
	}{
		{"0", "mins"},
		{"-1", "mins"},
		{"ten", "mins"},
		{"1.5", "hours"},
		{"", "mins"},
		{"30", "seconds"},
		{"30", ""},
		{"30", "m"},
	}
	for _, tc := range cases {
		_, err := ParseDuration(tc.amount, tc.unit)
		var re *ReplyError
		if !errors.As(err, &re) {
			t.Fatalf("ParseDuration(%q, %q): expected ReplyError, got %v", tc.amount, tc.unit, err)
		}
		if re.Kind != KindValidation {
			t.Fatalf("ParseDuration(%q, %q): kind = %v", tc.amount, tc.unit, re.Kind)
		}
	}
}
