package feeds

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/breachwatch/internal/domain"
)

const maxLine = 1 << 20

type JSONL struct{}

func NewJSONL() *JSONL { return &JSONL{} }

func (*JSONL) Format() string { return "jsonl" }

// Parse reads one JSON object per line. Blank lines are skipped; keys use
// the same aliases as CSV headers and non-string values are stringified.
func (*JSONL) Parse(data []byte) ([]*domain.BreachRecord, error) {
	sc := bufio.NewScanner(bytes.NewReader(stripBOM(data)))
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var out []*domain.BreachRecord
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("jsonl line %d: %w", line, err)
		}
		b := &domain.BreachRecord{}
		for k, v := range obj {
			field, ok := fieldAliases[strings.ToLower(strings.TrimSpace(k))]
			if !ok || v == nil {
				continue
			}
			set(b, field, stringify(v))
		}
		out = append(out, b)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}
	return out, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
