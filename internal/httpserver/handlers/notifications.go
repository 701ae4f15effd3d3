package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/respond"
)

// ListNotifications accepts ?limit and unread=true.
func ListNotifications(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		unread := queryBool(r, "unread")
		inbox, err := d.Notifications.List(r.Context(), c.UserID, queryInt(r, "limit", 0), unread != nil && *unread)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, inbox)
	}
}

func MarkNotificationRead(d deps.Deps) http.HandlerFunc {
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
		n, err := d.Notifications.MarkRead(r.Context(), c.UserID, id)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, n)
	}
}

func MarkAllNotificationsRead(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		n, err := d.Notifications.MarkAllRead(r.Context(), c.UserID)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, map[string]int64{"marked": n})
	}
}
