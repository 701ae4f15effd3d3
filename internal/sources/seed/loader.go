package seed

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var templateVar = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Loader reads a seed file.
type Loader struct {
	filePath string
	lookup   func(string) (string, bool)
}

func NewLoader(filePath string) *Loader {
	return &Loader{filePath: filePath, lookup: os.LookupEnv}
}

// Load reads and parses the file. {{NAME}} placeholders are replaced by the
// environment variable NAME, so secrets can stay out of the file.
func (l *Loader) Load() (*File, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	data = l.expand(data)

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed yaml: %w", err)
	}
	return &f, nil
}

// expand substitutes placeholders. Unset variables become empty strings.
func (l *Loader) expand(data []byte) []byte {
	return templateVar.ReplaceAllFunc(data, func(m []byte) []byte {
		name := strings.TrimSpace(string(templateVar.FindSubmatch(m)[1]))
		v, _ := l.lookup(name)
		return []byte(v)
	})
}
