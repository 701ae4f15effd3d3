package domain

import (
	"strings"
	"time"
)

// Company is a tenant. Its Domain is the primary claim on breach records;
// watchlist entries extend the claim.
type Company struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Domain      string    `json:"domain"`
	CompanyType string    `json:"company_type,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleMember }

type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	CompanyID    *int64     `json:"company_id,omitempty"`
	IsActive     bool       `json:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// CompanyDomain is filled by the store from the linked company.
	// Empty for unlinked users.
	CompanyDomain string `json:"company_domain,omitempty"`
}

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// EmailDomain returns the part after '@', lower-cased, or "".
func EmailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}

// EntryType is the kind of value a watchlist entry claims.
type EntryType string

const (
	EntryDomain    EntryType = "domain"
	EntryURL       EntryType = "url"
	EntryEmail     EntryType = "email"
	EntrySlug      EntryType = "slug"
	EntryIPAddress EntryType = "ip_address"
)

var EntryTypes = []EntryType{EntryDomain, EntryURL, EntryEmail, EntrySlug, EntryIPAddress}

func (t EntryType) Valid() bool {
	for _, known := range EntryTypes {
		if t == known {
			return true
		}
	}
	return false
}

type WatchlistEntry struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	EntryType   EntryType `json:"entry_type"`
	EntryValue  string    `json:"entry_value"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Values extracts the raw entry values.
func Values(entries []*WatchlistEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.EntryValue)
	}
	return out
}

// UserFilter narrows a user listing. Zero values mean no restriction.
type UserFilter struct {
	CompanyID  *int64
	Role       Role
	ActiveOnly bool
}
