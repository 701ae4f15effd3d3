package seed

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/validation"
)

// Plan is a validated, normalized seed ready to apply.
type Plan struct {
	Companies []CompanyPlan
	Users     []UserPlan
}

type CompanyPlan struct {
	Company *domain.Company
	Entries []*domain.WatchlistEntry
}

type UserPlan struct {
	User          *domain.User
	Password      string
	CompanyDomain string
}

type Mapper struct{}

func NewMapper() *Mapper { return &Mapper{} }

// Map validates every document and reports all problems at once.
func (m *Mapper) Map(f *File) (*Plan, error) {
	var (
		plan    Plan
		errs    []error
		domains = map[string]bool{}
	)

	for i, c := range f.Companies {
		name := strings.TrimSpace(c.Name)
		d := strings.ToLower(strings.TrimSpace(c.Domain))
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("companies[%d]: name is required", i))
			continue
		case !validation.IsDomain(d):
			errs = append(errs, fmt.Errorf("companies[%d]: invalid domain %q", i, c.Domain))
			continue
		case domains[d]:
			errs = append(errs, fmt.Errorf("companies[%d]: duplicate domain %q", i, d))
			continue
		}
		domains[d] = true

		cp := CompanyPlan{Company: &domain.Company{
			Name:        name,
			Domain:      d,
			CompanyType: strings.TrimSpace(c.Type),
			Description: strings.TrimSpace(c.Description),
		}}
		for j, e := range c.Watchlist {
			t := domain.EntryType(strings.ToLower(strings.TrimSpace(e.Type)))
			v := strings.ToLower(strings.TrimSpace(e.Value))
			if !t.Valid() || v == "" {
				errs = append(errs, fmt.Errorf("companies[%d].watchlist[%d]: invalid entry %q=%q", i, j, e.Type, e.Value))
				continue
			}
			cp.Entries = append(cp.Entries, &domain.WatchlistEntry{
				EntryType:   t,
				EntryValue:  v,
				Description: strings.TrimSpace(e.Description),
			})
		}
		plan.Companies = append(plan.Companies, cp)
	}

	for i, u := range f.Users {
		username := strings.TrimSpace(u.Username)
		email := strings.ToLower(strings.TrimSpace(u.Email))
		role := domain.Role(strings.ToLower(strings.TrimSpace(u.Role)))
		if role == "" {
			role = domain.RoleMember
		}
		company := strings.ToLower(strings.TrimSpace(u.Company))

		switch {
		case username == "" || email == "":
			errs = append(errs, fmt.Errorf("users[%d]: username and email are required", i))
			continue
		case !role.Valid():
			errs = append(errs, fmt.Errorf("users[%d]: invalid role %q", i, u.Role))
			continue
		case len(u.Password) < 8 || !validation.IsStrongPassword(u.Password):
			errs = append(errs, fmt.Errorf("users[%d]: password too weak", i))
			continue
		}

		plan.Users = append(plan.Users, UserPlan{
			User: &domain.User{
				Username: username,
				Email:    email,
				Role:     role,
				IsActive: u.Active == nil || *u.Active,
			},
			Password:      u.Password,
			CompanyDomain: company,
		})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &plan, nil
}
