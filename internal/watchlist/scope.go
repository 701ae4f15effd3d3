package watchlist

import (
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
)

// Caller is the identity a request acts as, with its watchlist resolved
// from the store for this request only.
type Caller struct {
	UserID    int64
	Username  string
	Role      domain.Role
	CompanyID *int64
	// Domain is the linked company's domain, empty for unlinked members.
	Domain string
	// Watchlist holds the raw entry values of the caller's company.
	Watchlist []string
}

func (c Caller) IsAdmin() bool { return c.Role == domain.RoleAdmin }

// OwnsCompany reports whether the caller is linked to companyID.
func (c Caller) OwnsCompany(companyID int64) bool {
	return c.CompanyID != nil && *c.CompanyID == companyID
}

// Scope is the set of breach records a caller may see.
type Scope struct {
	unrestricted bool
	predicate    *Predicate
	key          string
}

const (
	scopeKeyAll  = "all"
	scopeKeyNone = "none"
)

// ScopeFor resolves the caller's visibility:
//   - admins see everything
//   - members without a domain see nothing
//   - members whose company has no entries see records with domain == company domain
//   - otherwise the company domain plus every entry value feed the full rule set
func ScopeFor(c Caller) Scope {
	if c.IsAdmin() {
		return Scope{unrestricted: true, key: scopeKeyAll}
	}
	d := c.ResolvableDomain()
	if d == "" {
		return Scope{key: scopeKeyNone}
	}
	if len(Normalize(c.Watchlist)) == 0 {
		return Scope{predicate: DomainEqualsPredicate(d), key: d}
	}
	values := make([]string, 0, len(c.Watchlist)+1)
	values = append(values, d)
	values = append(values, c.Watchlist...)
	return Scope{predicate: BuildMatchPredicate(values), key: d}
}

// ResolvableDomain is the caller's company domain, trimmed and lower-cased.
// Empty means the caller can resolve no records.
func (c Caller) ResolvableDomain() string { return normalizeDomain(c.Domain) }

func normalizeDomain(d string) string { return strings.ToLower(strings.TrimSpace(d)) }

func (s Scope) Unrestricted() bool { return s.unrestricted }

// Predicate is nil both for admins and for members that see nothing;
// check Unrestricted first.
func (s Scope) Predicate() *Predicate { return s.predicate }

// Key identifies the scope in caches: "all", "none" or the tenant domain.
func (s Scope) Key() string { return s.key }

func (s Scope) Matches(rec *domain.BreachRecord) bool {
	if s.unrestricted {
		return true
	}
	return s.predicate.Matches(rec)
}

// Apply narrows a select over breach_records to the scope.
func (s Scope) Apply(q sq.SelectBuilder) sq.SelectBuilder {
	if s.unrestricted {
		return q
	}
	return q.Where(s.predicate)
}
