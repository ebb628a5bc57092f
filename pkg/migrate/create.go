package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pressly/goose/v3"
)

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

// CreateSQLMigration writes a timestamped goose SQL migration into dir and
// returns its path. The name is lower-cased and reduced to [a-z0-9_].
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := sanitizeName(name)
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	goose.SetSequential(false)
	if err := goose.Create(nil, dir, safe, "sql"); err != nil {
		return "", fmt.Errorf("goose create %q: %w", safe, err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*_"+safe+".sql"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("locate created migration %q in %q", safe, dir)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

func sanitizeName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}
