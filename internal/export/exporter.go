// Package export writes breach records as downloadable files.
package export

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
)

type Exporter interface {
	Format() string
	ContentType() string
	Write(w io.Writer, records []*domain.BreachRecord) error
}

type Registry struct{ byFormat map[string]Exporter }

func NewRegistry(exporters ...Exporter) *Registry {
	r := &Registry{byFormat: map[string]Exporter{}}
	for _, e := range exporters {
		r.Register(e)
	}
	return r
}

// Default returns a registry with the csv, json and xlsx exporters.
func Default() *Registry {
	return NewRegistry(NewCSV(), NewJSON(), NewXLSX())
}

func (r *Registry) Register(e Exporter) { r.byFormat[e.Format()] = e }

func (r *Registry) Get(format string) (Exporter, bool) {
	e, ok := r.byFormat[strings.ToLower(strings.TrimSpace(format))]
	return e, ok
}

// Formats lists the registered formats, sorted.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.byFormat))
	for f := range r.byFormat {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Filename is breached_credentials_<YYYYMMDD_HHMMSS>.<ext>.
func Filename(format string, at time.Time) string {
	return fmt.Sprintf("breached_credentials_%s.%s", at.Format("20060102_150405"), format)
}

var header = []string{"ID", "Domain", "Username", "Password", "URL", "Source", "Type", "Marked", "Created At"}

func row(r *domain.BreachRecord) []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.Domain,
		r.Username,
		r.Password,
		r.URL,
		r.Source,
		r.Type,
		strconv.FormatBool(r.IsMarked),
		r.CreatedAt.UTC().Format(time.RFC3339),
	}
}
