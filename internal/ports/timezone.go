package ports

import "time"

// TimezoneResolver maps IANA zone names to locations. Unknown names resolve
// to UTC; the resolver reports them but never fails.
type TimezoneResolver interface {
	Location(name string) *time.Location
}
