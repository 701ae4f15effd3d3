package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/breachwatch/internal/apperr"
	"github.com/MrSnakeDoc/breachwatch/internal/httpserver/mw"
	"github.com/MrSnakeDoc/breachwatch/internal/watchlist"
)

// caller returns the authenticated caller. Routes behind mw.Authenticate
// always have one; the error guards against a miswired route.
func caller(r *http.Request) (watchlist.Caller, error) {
	c, ok := mw.CallerFrom(r.Context())
	if !ok {
		return watchlist.Caller{}, apperr.Unauthorized("Authentication required.")
	}
	return c, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.Validation("Invalid " + name + ".").WithDetail("field", name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil {
		return def
	}
	return v
}

// queryBool returns nil when the parameter is absent or not a boolean.
func queryBool(r *http.Request, name string) *bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(name)))
	if err != nil {
		return nil
	}
	return &v
}

func queryInt64(r *http.Request, name string) *int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get(name)), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
