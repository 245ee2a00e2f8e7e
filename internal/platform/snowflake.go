package platform

import (
	"strconv"
	"time"
)

// Discord epoch: first second of 2015, in Unix milliseconds.
const snowflakeEpochMillis = 1420070400000

// CreatedAt extracts the creation time embedded in a snowflake ID.
// Returns the zero time for IDs that are not decimal snowflakes.
func CreatedAt(id string) time.Time {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return time.Time{}
	}
	ms := int64(n>>22) + snowflakeEpochMillis
	return time.UnixMilli(ms).UTC()
}
