package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/emiliopalmerini/studi/internal/domain"
	"github.com/emiliopalmerini/studi/internal/normalize"
	"github.com/emiliopalmerini/studi/internal/period"
)

// localLayouts are accepted for instants without an explicit offset; they
// are read in the user's timezone.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseInstant reads an RFC 3339 timestamp, or a local date-time in loc.
// An empty string yields the zero time.
func parseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse time %q (use RFC 3339 or YYYY-MM-DD HH:MM)", domain.ErrInvalidInput, s)
}

func optionalInstant(s string, loc *time.Location) (*time.Time, error) {
	t, err := parseInstant(s, loc)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

// resolveUser accepts a user ID or a username.
func resolveUser(ctx context.Context, app *AppContext, ref string) (*domain.User, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: --user is required", domain.ErrInvalidInput)
	}
	u, err := app.Repos.Users.GetByID(ctx, ref)
	if err != nil {
		return nil, err
	}
	if u != nil {
		return u, nil
	}
	users, err := app.Repos.Users.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Username == ref {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", ref, domain.ErrNotFound)
}

// sessionLocation returns the timezone of the session's owner.
func sessionLocation(ctx context.Context, app *AppContext, sessionID string) (*time.Location, error) {
	s, err := app.Repos.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	u, err := app.Repos.Users.GetByID(ctx, s.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", s.UserID, domain.ErrNotFound)
	}
	return app.Timezone.Location(u.Timezone), nil
}

// dateOrToday parses a YYYY-MM-DD flag, defaulting to today in loc.
func dateOrToday(s string, loc *time.Location) (civil.Date, error) {
	if strings.TrimSpace(s) == "" {
		return normalize.LocalDate(time.Now(), loc), nil
	}
	return period.ParseDate(s)
}

func ratingFlag(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
