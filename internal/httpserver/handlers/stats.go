package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/respond"
)

func Analysis(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		a, err := d.Stats.Analysis(r.Context(), c)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, a)
	}
}

func Dashboard(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		dash, err := d.Stats.Dashboard(r.Context(), c, d.Now())
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, dash)
	}
}
