package models

import "time"

// ScopeGlobal is the single system-wide allowlist scope. The storage
// schema keys by scope, so additional scopes are a data change only.
const ScopeGlobal = "global"

// Allowlist is the set of origin addresses permitted past the first gate.
// Mutated only through a full replace; there are no partial updates.
type Allowlist struct {
	Scope     string
	Origins   []string
	UpdatedAt time.Time // zero if the scope has never been set
}

// Contains reports whether origin is a member of the allowlist.
// An empty allowlist contains nothing: never set means nothing is allowed.
func (a *Allowlist) Contains(origin string) bool {
	for _, o := range a.Origins {
		if o == origin {
			return true
		}
	}
	return false
}

// IsSet reports whether the allowlist has ever been written.
func (a *Allowlist) IsSet() bool {
	return !a.UpdatedAt.IsZero()
}
