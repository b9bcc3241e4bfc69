package lane

import "time"

// Clock supplies wall-clock time for rush-hour classification. The
// second return is false while the time source is not yet
// synchronized (e.g. NTP still settling); rush hour then defaults to
// false until it resolves.
type Clock interface {
	Now() (time.Time, bool)
}

// SystemClock reads the host clock, which is assumed synchronized.
type SystemClock struct{}

func (SystemClock) Now() (time.Time, bool) { return time.Now(), true }

// RushHour reports whether the hour is inside the morning (07:00 to
// 09:59) or evening (17:00 to 19:59) peak window.
func RushHour(hour int) bool {
	return (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19)
}
