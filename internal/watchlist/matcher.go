// Package watchlist decides which breach records a tenant can see.
//
// A tenant claims records through its primary domain and its watchlist
// entries. Each claimed value expands into a fixed set of rules over the
// record's domain, username and url; a record belongs to the tenant when any
// rule holds for any value. The same Predicate filters rows in memory
// (Matches) and in SQL (ToSql), so list queries and per-record checks
// cannot drift apart.
//
// Matching over-approximates: substring rules are part of the set and
// false positives are expected behavior.
package watchlist

import (
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
)

// Column names of the breach_records table the SQL form filters on.
const (
	ColumnDomain   = "domain"
	ColumnUsername = "username"
	ColumnURL      = "url"
)

type op int

const (
	opContains       op = iota // field contains v
	opEquals                   // field == v
	opEmailDomain              // field ends with "@v"
	opEmailSubdomain           // field matches "*@*.v"
)

type rule struct {
	name   string
	column string
	op     op
}

var (
	ruleDomainContains   = rule{name: "domain_contains", column: ColumnDomain, op: opContains}
	ruleDomainEquals     = rule{name: "domain_equals", column: ColumnDomain, op: opEquals}
	ruleEmailDomain      = rule{name: "email_domain", column: ColumnUsername, op: opEmailDomain}
	ruleEmailSubdomain   = rule{name: "email_subdomain", column: ColumnUsername, op: opEmailSubdomain}
	ruleUsernameEquals   = rule{name: "username_equals", column: ColumnUsername, op: opEquals}
	ruleUsernameContains = rule{name: "username_contains", column: ColumnUsername, op: opContains}
	ruleURLContains      = rule{name: "url_contains", column: ColumnURL, op: opContains}
)

// watchlistRules are applied to every claimed value.
var watchlistRules = []rule{
	ruleDomainContains,
	ruleDomainEquals,
	ruleEmailDomain,
	ruleEmailSubdomain,
	ruleUsernameEquals,
	ruleUsernameContains,
	ruleURLContains,
}

// fallbackRules are used for tenants without watchlist entries.
var fallbackRules = []rule{ruleDomainEquals}

func (r rule) field(rec *domain.BreachRecord) string {
	switch r.column {
	case ColumnDomain:
		return rec.Domain
	case ColumnUsername:
		return rec.Username
	case ColumnURL:
		return rec.URL
	default:
		return ""
	}
}

// match evaluates the rule for one normalized value.
func (r rule) match(rec *domain.BreachRecord, v string) bool {
	s := strings.ToLower(r.field(rec))
	if s == "" {
		return false
	}
	switch r.op {
	case opContains:
		return strings.Contains(s, v)
	case opEquals:
		return s == v
	case opEmailDomain:
		return strings.HasSuffix(s, "@"+v)
	case opEmailSubdomain:
		if !strings.HasSuffix(s, "."+v) {
			return false
		}
		return strings.Contains(s[:len(s)-len(v)-1], "@")
	default:
		return false
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern returns the LIKE pattern matching any text that contains
// v, lower-cased, with wildcards escaped for ESCAPE '\'.
func ContainsPattern(v string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(v))) + "%"
}

// sql renders the rule for one normalized value.
func (r rule) sql(v string) (string, interface{}) {
	col := fmt.Sprintf("LOWER(%s)", r.column)
	esc := likeEscaper.Replace(v)
	switch r.op {
	case opEquals:
		return col + " = ?", v
	case opEmailDomain:
		return col + ` LIKE ? ESCAPE '\'`, "%@" + esc
	case opEmailSubdomain:
		return col + ` LIKE ? ESCAPE '\'`, "%@%." + esc
	default:
		return col + ` LIKE ? ESCAPE '\'`, "%" + esc + "%"
	}
}

// Predicate is an OR over (rule, value) pairs. A nil *Predicate matches
// nothing, both in memory and in SQL.
type Predicate struct {
	values []string
	rules  []rule
}

// BuildMatchPredicate normalizes values (trim, lower-case, drop empty,
// dedupe) and returns the predicate matching any of them, or nil when no
// value survives normalization.
func BuildMatchPredicate(values []string) *Predicate {
	normalized := Normalize(values)
	if len(normalized) == 0 {
		return nil
	}
	return &Predicate{values: normalized, rules: watchlistRules}
}

// DomainEqualsPredicate matches records whose domain equals domain,
// case-insensitively. Nil when domain is blank.
func DomainEqualsPredicate(d string) *Predicate {
	normalized := Normalize([]string{d})
	if len(normalized) == 0 {
		return nil
	}
	return &Predicate{values: normalized, rules: fallbackRules}
}

// Normalize trims and lower-cases values, dropping empties and duplicates
// while keeping first-seen order.
func Normalize(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		v := strings.ToLower(strings.TrimSpace(raw))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Values returns the normalized values the predicate claims.
func (p *Predicate) Values() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.values))
	copy(out, p.values)
	return out
}

// Matches reports whether rec satisfies any (rule, value) pair.
func (p *Predicate) Matches(rec *domain.BreachRecord) bool {
	_, ok := p.MatchedRule(rec)
	return ok
}

// MatchedRule returns the name of the first rule that holds. It is for
// server-side diagnostics only and must never reach a caller.
func (p *Predicate) MatchedRule(rec *domain.BreachRecord) (string, bool) {
	if p == nil || rec == nil {
		return "", false
	}
	for _, v := range p.values {
		for _, r := range p.rules {
			if r.match(rec, v) {
				return r.name, true
			}
		}
	}
	return "", false
}

// ToSql implements squirrel.Sqlizer with '?' placeholders; the statement
// builder rewrites them for the target dialect.
func (p *Predicate) ToSql() (string, []interface{}, error) {
	if p == nil {
		return "(1=0)", nil, nil
	}
	parts := make([]string, 0, len(p.values)*len(p.rules))
	args := make([]interface{}, 0, len(p.values)*len(p.rules))
	for _, v := range p.values {
		for _, r := range p.rules {
			clause, arg := r.sql(v)
			parts = append(parts, clause)
			args = append(args, arg)
		}
	}
	return "(" + strings.Join(parts, " OR ") + ")", args, nil
}
