// internal/domain/notification/timezone.go
package notification

import "time"

const displayLayout = "02.01.2006 15:04 MST"

// LocationFor resolves an IANA timezone name, falling back to UTC when the
// name is empty or unknown. The fallback keeps a corrupt settings row from
// ever breaking rendering.
func LocationFor(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FormatInZone renders an instant in the user's timezone for display.
// Rendering is the only place a user timezone is applied; all scheduling
// arithmetic stays in the stored UTC instants.
func FormatInZone(t time.Time, tz string) string {
	return t.In(LocationFor(tz)).Format(displayLayout)
}
