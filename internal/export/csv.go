package export

import (
	"encoding/csv"
	"io"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
)

type CSV struct{}

func NewCSV() *CSV { return &CSV{} }

func (*CSV) Format() string      { return "csv" }
func (*CSV) ContentType() string { return "text/csv; charset=utf-8" }

func (*CSV) Write(w io.Writer, records []*domain.BreachRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
