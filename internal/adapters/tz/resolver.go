// Package tz resolves IANA zone names for users.
package tz

import (
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/emiliopalmerini/studi/internal/ports"
)

// Resolver caches loaded locations. Unknown or empty names resolve to UTC
// and are reported once per name.
type Resolver struct {
	logger ports.Logger

	mu    sync.Mutex
	cache map[string]*time.Location
}

func NewResolver(logger ports.Logger) *Resolver {
	if logger == nil {
		logger = ports.NopLogger{}
	}
	return &Resolver{logger: logger, cache: map[string]*time.Location{}}
}

func (r *Resolver) Location(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" || name == "UTC" {
		return time.UTC
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if loc, ok := r.cache[name]; ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		r.logger.Warn("unknown timezone, falling back to UTC", "timezone", name, "error", err)
		loc = time.UTC
	}
	r.cache[name] = loc
	return loc
}
