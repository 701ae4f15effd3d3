package watchlist

import (
	"github.com/MrSnakeDoc/breachwatch/internal/apperr"
	"github.com/MrSnakeDoc/breachwatch/internal/domain"
)

// UserCanAccess decides whether caller may view or mutate rec. The decision
// is recomputed on every call from the caller's current watchlist.
func UserCanAccess(rec *domain.BreachRecord, caller Caller) bool {
	if caller.IsAdmin() {
		return true
	}
	if caller.ResolvableDomain() == "" {
		return false
	}
	return ScopeFor(caller).Matches(rec)
}

// Authorize wraps UserCanAccess into the generic forbidden error. The error
// never says which rule failed.
func Authorize(rec *domain.BreachRecord, caller Caller) error {
	if UserCanAccess(rec, caller) {
		return nil
	}
	return apperr.Forbidden()
}
