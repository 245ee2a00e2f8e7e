package grant

import (
	"strconv"
	"strings"
	"time"
)

// ParseDuration turns an "amount unit" pair like ("30", "mins") into a
// duration. Units are minutes, hours, or days, case-insensitive, with
// the usual abbreviations. Failures come back as ReplyErrors.
func ParseDuration(amountRaw, unitRaw string) (time.Duration, error) {
	n, err := strconv.Atoi(amountRaw)
	if err != nil || n <= 0 {
		return 0, errBadAmount()
	}

	var unit time.Duration
	switch strings.ToUpper(unitRaw) {
	case "MIN", "MINS", "MINUTE", "MINUTES":
		unit = time.Minute
	case "HR", "HRS", "HOUR", "HOURS":
		unit = time.Hour
	case "DAY", "DAYS":
		unit = 24 * time.Hour
	default:
		return 0, errBadUnit()
	}
	return time.Duration(n) * unit, nil
}
