package feeds

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
)

type CSV struct{}

func NewCSV() *CSV { return &CSV{} }

func (*CSV) Format() string { return "csv" }

// Parse maps columns by header name, case-insensitively. Unknown columns
// are ignored; a header without any known column is an error.
func (*CSV) Parse(data []byte) ([]*domain.BreachRecord, error) {
	r := csv.NewReader(bytes.NewReader(stripBOM(data)))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	head, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[int]string, len(head))
	for i, h := range head {
		if field, ok := fieldAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			columns[i] = field
		}
	}
	if len(columns) == 0 {
		return nil, errors.New("csv header has no known column")
	}

	var out []*domain.BreachRecord
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		b := &domain.BreachRecord{}
		for i, v := range rec {
			if field, ok := columns[i]; ok {
				set(b, field, v)
			}
		}
		out = append(out, b)
	}
	return out, nil
}

func stripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
}
