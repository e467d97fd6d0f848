package inventory

import (
	"strings"
	"time"
)

// ParseInstallDate accepts only an 8 digit YYYYMMDD string. Anything else
// means "no date"; callers must not treat that as an error.
func ParseInstallDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) != 8 {
		return time.Time{}, false
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return time.Time{}, false
		}
	}
	t, err := time.ParseInLocation("20060102", raw, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.In(time.Local).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}
