package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
)

type JSON struct{}

func NewJSON() *JSON { return &JSON{} }

func (*JSON) Format() string      { return "json" }
func (*JSON) ContentType() string { return "application/json" }

type jsonRecord struct {
	ID        int64     `json:"id"`
	Domain    string    `json:"domain"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	URL       string    `json:"url"`
	Source    string    `json:"source"`
	Type      string    `json:"type"`
	IsMarked  bool      `json:"is_marked"`
	CreatedAt time.Time `json:"created_at"`
}

// Write emits a single indented array. Empty exports produce "[]".
func (*JSON) Write(w io.Writer, records []*domain.BreachRecord) error {
	out := make([]jsonRecord, 0, len(records))
	for _, r := range records {
		out = append(out, jsonRecord{
			ID:        r.ID,
			Domain:    r.Domain,
			Username:  r.Username,
			Password:  r.Password,
			URL:       r.URL,
			Source:    r.Source,
			Type:      r.Type,
			IsMarked:  r.IsMarked,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
