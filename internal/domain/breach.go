package domain

import (
	"strings"
	"time"
)

// BreachRecord is one leaked-credential sighting imported from a feed or
// entered by an analyst.
//
// It carries NO reference to a Company: which tenants can see it is always
// recomputed from the current watchlists, so editing a watchlist changes
// visibility of historical records too.
type BreachRecord struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	ID int64 `json:"id"`

	// ExternalID is the identifier assigned by the upstream feed, if any.
	ExternalID string `json:"external_id,omitempty"`

	// ─────────────────────────────
	// Matched fields
	// Any of them may be empty: feeds are heterogeneous.
	// ─────────────────────────────

	// Domain is the site the credential belongs to.
	// Example: techcorp.com
	Domain string `json:"domain,omitempty"`

	// Username is an email, a handle or sometimes the domain itself.
	// Example: alice@it.techcorp.com
	Username string `json:"username,omitempty"`

	// URL is the login page the credential was captured on.
	URL string `json:"url,omitempty"`

	// ─────────────────────────────
	// Descriptive fields
	// ─────────────────────────────

	Password string `json:"password,omitempty"`
	Source   string `json:"source,omitempty"`
	Type     string `json:"type,omitempty"`

	// ─────────────────────────────
	// Bookkeeping
	// ─────────────────────────────

	IsMarked  bool       `json:"is_marked"`
	MarkedBy  *int64     `json:"marked_by,omitempty"`
	MarkedAt  *time.Time `json:"marked_at,omitempty"`
	CreatedBy *int64     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Known breach types. Type is free text, these are the values feeds use.
const (
	BreachTypeCombolist = "combolist"
	BreachTypeStealer   = "stealer"
	BreachTypeMalware   = "malware"
	BreachTypePastebin  = "pastebin"
	BreachTypeBreach    = "breach"
	BreachTypePhishing  = "phishing"
	BreachTypeDarkweb   = "darkweb"
)

var KnownBreachTypes = []string{
	BreachTypeCombolist,
	BreachTypeStealer,
	BreachTypeMalware,
	BreachTypePastebin,
	BreachTypeBreach,
	BreachTypePhishing,
	BreachTypeDarkweb,
}

// ConsumerTypes and CorporateTypes split the dashboard totals.
var (
	ConsumerTypes  = []string{BreachTypeCombolist}
	CorporateTypes = []string{BreachTypeStealer, BreachTypeMalware}
)

// Normalize trims every text field and lower-cases the matched ones.
func (r *BreachRecord) Normalize() {
	r.ExternalID = strings.TrimSpace(r.ExternalID)
	r.Domain = strings.ToLower(strings.TrimSpace(r.Domain))
	r.Username = strings.TrimSpace(r.Username)
	r.URL = strings.TrimSpace(r.URL)
	r.Source = strings.TrimSpace(r.Source)
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
}

// BreachFilter narrows a breach listing. Zero values mean "no restriction".
type BreachFilter struct {
	Search    string
	Type      string
	Source    string
	DateRange DateRange
	Marked    *bool
	Page      int
	PerPage   int
}

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Normalize clamps pagination and canonicalizes the date range.
func (f *BreachFilter) Normalize() {
	f.Search = strings.TrimSpace(f.Search)
	f.Type = strings.ToLower(strings.TrimSpace(f.Type))
	f.Source = strings.TrimSpace(f.Source)
	f.DateRange = ParseDateRange(string(f.DateRange))
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
}

// Offset returns the row offset for the current page.
func (f BreachFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

type BreachPage struct {
	Items   []*BreachRecord `json:"items"`
	Total   int64           `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
}

// KeyCount is one bucket of a grouped count.
type KeyCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Window restricts an aggregate. Zero values mean no restriction.
type Window struct {
	Since  time.Time
	Until  time.Time
	Types  []string
	Marked *bool
}
