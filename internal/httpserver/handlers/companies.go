package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/breachwatch/internal/account"
	"github.com/MrSnakeDoc/breachwatch/internal/apperr"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/respond"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

func ListCompanies(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		out, err := d.Accounts.ListCompanies(r.Context(), c, r.URL.Query().Get("search"))
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, out)
	}
}

func GetCompany(d deps.Deps) http.HandlerFunc {
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
		company, err := d.Accounts.GetCompany(r.Context(), c, id)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, company)
	}
}

func CreateCompany(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := caller(r)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		var in account.CompanyInput
		if err := respond.Decode(w, r, &in); err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		company, err := d.Accounts.CreateCompany(r.Context(), c, in)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.Created(w, company)
	}
}

func UpdateCompany(d deps.Deps) http.HandlerFunc {
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
		var in account.CompanyInput
		if err := respond.Decode(w, r, &in); err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		company, err := d.Accounts.UpdateCompany(r.Context(), c, id, in)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, company)
	}
}

func DeleteCompany(d deps.Deps) http.HandlerFunc {
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
		if err := d.Accounts.DeleteCompany(r.Context(), c, id); err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, map[string]int64{"deleted": id})
	}
}

// ListWatchlist is open to admins and to members of the company.
func ListWatchlist(d deps.Deps) http.HandlerFunc {
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
		if !watchlist.CanManage(c, id) {
			respond.Fail(w, apperr.Forbidden())
			return
		}
		entries, err := d.Watchlist.ListWatchlist(r.Context(), id)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, entries)
	}
}

func AddWatchlistEntry(d deps.Deps) http.HandlerFunc {
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
		var in watchlist.AddEntryInput
		if err := respond.Decode(w, r, &in); err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		entry, err := d.Watchlist.AddEntry(r.Context(), c, id, in)
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.Created(w, entry)
	}
}

func RemoveWatchlistEntry(d deps.Deps) http.HandlerFunc {
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
		entryID, err := pathID(r, "entryID")
		if err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		if err := d.Watchlist.RemoveEntry(r.Context(), c, id, entryID); err != nil {
			respond.Error(w, r, d.Logger, err)
			return
		}
		respond.OK(w, map[string]int64{"deleted": entryID})
	}
}
