// Package respond writes the {success, data|error} JSON envelope shared by
// every /api endpoint.
package respond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/breachwatch/internal/apperr"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
)

// MaxBodyBytes bounds request bodies read by Decode.
const MaxBodyBytes = 1 << 20

type envelope struct {
	Success bool             `json:"success"`
	Data    any              `json:"data,omitempty"`
	Error   *apperr.AppError `json:"error,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func OK(w http.ResponseWriter, data any) { JSON(w, http.StatusOK, data) }

func Created(w http.ResponseWriter, data any) { JSON(w, http.StatusCreated, data) }

// Error maps err to its status. Internal errors are logged with the request
// id and their cause never leaves the process.
func Error(w http.ResponseWriter, r *http.Request, log logger.Logger, err error) {
	appErr := apperr.From(err)
	if appErr.Code == apperr.CodeInternal && log != nil {
		log.Error("request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Error(err))
	}
	Fail(w, appErr)
}

// Fail writes e without logging.
func Fail(w http.ResponseWriter, e *apperr.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(e.HTTPStatus)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: e})
}

// Decode reads one JSON object from the body into dst.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperr.Validation("Request body is required.")
		case errors.As(err, &tooLarge):
			return apperr.Validation("Request body is too large.")
		default:
			return apperr.Validation("Request body is not valid JSON.")
		}
	}
	return nil
}
