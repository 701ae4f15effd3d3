package handlers

import (
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/respond"
)

// ListAuditLogs accepts ?user_id, action, resource_type, page and per_page.
// Admin-only; the route enforces it.
func ListAuditLogs(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, err := d.Audit.List(r.Context(), domain.AuditFilter{
			UserID:       queryInt64(r, "user_id"),
			Action:       domain.AuditAction(strings.ToLower(strings.TrimSpace(q.Get("action")))),
			ResourceType: strings.TrimSpace(q.Get("resource_type")),
			Page:         queryInt(r, "page", 1),
			PerPage:      queryInt(r, "per_page", 50),
		})
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, page)
	}
}
