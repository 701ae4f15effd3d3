// Package feeds parses breach feed files and imports them.
package feeds

import (
	"strings"
	"time"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
)

type Parser interface {
	Format() string
	Parse(data []byte) ([]*domain.BreachRecord, error)
}

type Registry struct{ byFormat map[string]Parser }

func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{byFormat: map[string]Parser{}}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// Default returns a registry with the csv and jsonl parsers.
func Default() *Registry { return NewRegistry(NewCSV(), NewJSONL()) }

func (r *Registry) Register(p Parser) { r.byFormat[p.Format()] = p }

func (r *Registry) Get(format string) (Parser, bool) {
	p, ok := r.byFormat[strings.ToLower(strings.TrimSpace(format))]
	return p, ok
}

// fieldAliases maps accepted column or key names to record fields.
var fieldAliases = map[string]string{
	"external_id": "external_id",
	"id":          "external_id",
	"domain":      "domain",
	"username":    "username",
	"email":       "username",
	"login":       "username",
	"password":    "password",
	"pass":        "password",
	"url":         "url",
	"source":      "source",
	"type":        "type",
	"created_at":  "created_at",
	"date":        "created_at",
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// parseTime accepts RFC 3339, "YYYY-MM-DD HH:MM:SS" and "YYYY-MM-DD" in UTC.
// Anything else is the zero time, which the store replaces by now.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// set assigns value to the field named by a canonical key.
func set(r *domain.BreachRecord, field, value string) {
	value = strings.TrimSpace(value)
	switch field {
	case "external_id":
		r.ExternalID = value
	case "domain":
		r.Domain = value
	case "username":
		r.Username = value
	case "password":
		r.Password = value
	case "url":
		r.URL = value
	case "source":
		r.Source = value
	case "type":
		r.Type = value
	case "created_at":
		r.CreatedAt = parseTime(value)
	}
}
