package directory

import (
	"context"
	"strings"
)

// Directory resolves officer IDs to display names. Names are cosmetic and
// are stored alongside the ID, never re-validated.
type Directory interface {
	DisplayName(ctx context.Context, officerID string) (string, bool)
}

// Static is a directory loaded once from configuration.
type Static struct {
	names map[string]string
}

func NewStatic(names map[string]string) *Static {
	normalized := make(map[string]string, len(names))
	for id, name := range names {
		normalized[strings.TrimSpace(id)] = strings.TrimSpace(name)
	}
	return &Static{names: normalized}
}

func (s *Static) DisplayName(_ context.Context, officerID string) (string, bool) {
	name, ok := s.names[strings.TrimSpace(officerID)]
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// Lookup returns a pointer to the display name, or nil when d is nil or
// does not know the officer.
func Lookup(ctx context.Context, d Directory, officerID string) *string {
	if d == nil {
		return nil
	}
	name, ok := d.DisplayName(ctx, officerID)
	if !ok {
		return nil
	}
	return &name
}
