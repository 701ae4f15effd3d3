package domain

import "time"

type Notification struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Link      string     `json:"link,omitempty"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

const NotificationNewBreach = "new_breach"

type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
	AuditMark   AuditAction = "mark"
	AuditUnmark AuditAction = "unmark"
	AuditLogin  AuditAction = "login"
	AuditExport AuditAction = "export"
	AuditImport AuditAction = "import"
)

const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

type AuditLog struct {
	ID           int64       `json:"id"`
	RequestID    string      `json:"request_id"`
	UserID       *int64      `json:"user_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Description  string      `json:"description,omitempty"`
	IPAddress    string      `json:"ip_address,omitempty"`
	UserAgent    string      `json:"user_agent,omitempty"`
	OldValues    string      `json:"old_values,omitempty"`
	NewValues    string      `json:"new_values,omitempty"`
	Status       string      `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

type AuditFilter struct {
	UserID       *int64
	Action       AuditAction
	ResourceType string
	Page         int
	PerPage      int
}
