package handlers

import (
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/breachwatch/internal/account"
	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/respond"
)

// ListUsers accepts ?company_id, role and active=true.
func ListUsers(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		f := domain.UserFilter{
			CompanyID: queryInt64(r, "company_id"),
			Role:      domain.Role(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("role")))),
		}
		if active := queryBool(r, "active"); active != nil {
			f.ActiveOnly = *active
		}
		out, err := d.Accounts.ListUsers(r.Context(), c, f)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, out)
	}
}

func GetUser(d deps.Deps) http.HandlerFunc {
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
		u, err := d.Accounts.GetUser(r.Context(), c, id)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, u)
	}
}

func CreateUser(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		var in account.CreateUserInput
		if err := respond.Decode(w, r, &in); err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		u, err := d.Accounts.CreateUser(r.Context(), c, in)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.Created(w, u)
	}
}

func UpdateUser(d deps.Deps) http.HandlerFunc {
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
		var in account.UpdateUserInput
		if err := respond.Decode(w, r, &in); err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		u, err := d.Accounts.UpdateUser(r.Context(), c, id, in)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, u)
	}
}

func DeleteUser(d deps.Deps) http.HandlerFunc {
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
		if err := d.Accounts.DeleteUser(r.Context(), c, id); err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, map[string]int64{"deleted": id})
	}
}
