package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/breachwatch/internal/auth"
	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/respond"
)

func Login(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in auth.LoginInput
		if err := respond.Decode(w, r, &in); err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		res, err := d.Auth.Login(r.Context(), in)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, res)
	}
}

type meResponse struct {
	User      *domain.User `json:"user"`
	Watchlist []string     `json:"watchlist"`
}

// Me returns the current user with the watchlist values scoping its reads.
func Me(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		u, err := d.Accounts.GetUser(r.Context(), c, c.UserID)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		values := c.Watchlist
		if values == nil {
			values = []string{}
		}
		respond.OK(w, meResponse{User: u, Watchlist: values})
	}
}
