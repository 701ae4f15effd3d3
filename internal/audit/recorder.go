// Package audit records who changed what. Recording is best-effort: a
// failed insert is logged and never fails the action being audited.
package audit

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
	"github.com/MrSnakeDoc/breachwatch/internal/logger"
)

const maxUserAgent = 500

type Store interface {
	InsertAuditLog(ctx context.Context, l *domain.AuditLog) error
	ListAuditLogs(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditLog, int64, error)
}

type Recorder struct {
	store  Store
	logger logger.Logger
}

func NewRecorder(store Store, log logger.Logger) *Recorder {
	return &Recorder{store: store, logger: log}
}

// Record fills request id, client ip and user agent from ctx and stores e.
func (r *Recorder) Record(ctx context.Context, e *domain.AuditLog) {
	if info, ok := RequestFrom(ctx); ok {
		if e.RequestID == "" {
			e.RequestID = info.ID
		}
		if e.IPAddress == "" {
			e.IPAddress = info.IP
		}
		if e.UserAgent == "" {
			e.UserAgent = info.UserAgent
		}
	}
	if e.RequestID == "" {
		e.RequestID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = domain.AuditSuccess
	}
	e.UserAgent = truncate(e.UserAgent, maxUserAgent)

	if err := r.store.InsertAuditLog(ctx, e); err != nil {
		r.logger.Warn("failed to record audit log",
			logger.String("action", string(e.Action)),
			logger.String("resource_type", e.ResourceType),
			logger.String("request_id", e.RequestID),
			logger.Error(err))
	}
}

type Page struct {
	Items   []*domain.AuditLog `json:"items"`
	Total   int64              `json:"total"`
	Page    int                `json:"page"`
	PerPage int                `json:"per_page"`
}

// List returns one page of audit logs, newest first.
func (r *Recorder) List(ctx context.Context, f domain.AuditFilter) (*Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > domain.MaxPerPage {
		f.PerPage = 50
	}
	items, total, err := r.store.ListAuditLogs(ctx, f)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Page: f.Page, PerPage: f.PerPage}, nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
