package series

import (
	"fmt"
	"strings"

	"dindin/internal/core"
)

// Scope selects which members of a series a mutation touches.
type Scope string

const (
	ScopeSingle Scope = "single"
	ScopeFuture Scope = "future"
	ScopeAll    Scope = "all"
)

// ParseScope accepts "single", "future" and "all". "series" is accepted as
// a legacy alias of "all"; an empty string means "single".
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return ScopeSingle, nil
	case "future":
		return ScopeFuture, nil
	case "all", "series":
		return ScopeAll, nil
	default:
		return "", fmt.Errorf("%w: unknown scope %q", core.ErrInvalidInput, s)
	}
}

func (s Scope) String() string {
	return string(s)
}

// effective collapses the scope to single when there is no series.
func (s Scope) effective(seriesID *string) Scope {
	if seriesID == nil || *seriesID == "" || s == "" {
		return ScopeSingle
	}
	return s
}
