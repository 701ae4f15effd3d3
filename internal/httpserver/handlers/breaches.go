package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/breachwatch/internal/apperr"
	"github.com/MrSnakeDoc/breachwatch/internal/breach"
	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/export"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/respond"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
)

// breachFilter reads ?search, type, source, date_range, marked, page, per_page.
func breachFilter(r *http.Request) domain.BreachFilter {
	q := r.URL.Query()
	return domain.BreachFilter{
		Search:    q.Get("search"),
		Type:      q.Get("type"),
		Source:    q.Get("source"),
		DateRange: domain.DateRange(q.Get("date_range")),
		Marked:    queryBool(r, "marked"),
		Page:      queryInt(r, "page", 1),
		PerPage:   queryInt(r, "per_page", domain.DefaultPerPage),
	}
}

func ListBreaches(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		page, err := d.Breaches.List(r.Context(), c, breachFilter(r))
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, page)
	}
}

func GetBreach(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		id, err := pathID(r, "id")
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		rec, err := d.Breaches.Get(r.Context(), c, id)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, rec)
	}
}

func CreateBreach(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		var in breach.Input
		if err := respond.Decode(w, r, &in); err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		rec, err := d.Breaches.Create(r.Context(), c, in)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.Created(w, rec)
	}
}

func UpdateBreach(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		id, err := pathID(r, "id")
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		var in breach.Input
		if err := respond.Decode(w, r, &in); err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		rec, err := d.Breaches.Update(r.Context(), c, id, in)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, rec)
	}
}

func DeleteBreach(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		id, err := pathID(r, "id")
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		if err := d.Breaches.Delete(r.Context(), c, id); err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, map[string]int64{"deleted": id})
	}
}

func ToggleBreachMark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		id, err := pathID(r, "id")
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		rec, err := d.Breaches.ToggleMark(r.Context(), c, id)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, rec)
	}
}

// ExportBreaches streams the caller's filtered records as a download.
// The format defaults to csv.
func ExportBreaches(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}

		format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
		if format == "" {
			format = "csv"
		}
		exp, ok := d.Exporters.Get(format)
		if !ok {
			respond.Fail(w, apperr.Validation("Unsupported export format.").
				WithDetail("supported", d.Exporters.Formats()))
			return
		}

		records, err := d.Breaches.Export(r.Context(), c, breachFilter(r), exp.Format())
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}

		w.Header().Set("Content-Type", exp.ContentType())
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="%s"`, export.Filename(exp.Format(), d.Now())))
		w.Header().Set("Cache-Control", "no-store")
		if err := exp.Write(w, records); err != nil {
			// headers are gone, the client sees a truncated file
			d.Logger.Error("export write failed",
				logger.String("format", exp.Format()),
				logger.Int("records", len(records)),
				logger.Error(err))
		}
	}
}

func Search(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		res, err := d.Breaches.Search(r.Context(), c, r.URL.Query().Get("q"))
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, res)
	}
}
