package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pressly/goose/v3"
)

var sqlFileRe = regexp.MustCompile(`^\d{14}_[a-z0-9_]+\.sql$`)

// ValidateDir checks the migrations goose would apply from dir: timestamped
// snake_case file names, unique versions, both Up and Down sections, and
// balanced StatementBegin/StatementEnd blocks.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	migrations, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
	if err != nil {
		return fmt.Errorf("collect migrations in %q: %w", dir, err)
	}

	for _, m := range migrations {
		name := filepath.Base(m.Source)
		if !sqlFileRe.MatchString(name) {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}

		b, err := os.ReadFile(m.Source)
		if err != nil {
			return fmt.Errorf("read file %q: %w", m.Source, err)
		}
		if err := checkSections(name, string(b)); err != nil {
			return err
		}
	}
	return nil
}

func checkSections(name, txt string) error {
	up := strings.Index(txt, "-- +goose Up")
	down := strings.Index(txt, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	case down < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	case down < up:
		return fmt.Errorf("migration %q has Down before Up", name)
	}
	begins := strings.Count(txt, "-- +goose StatementBegin")
	ends := strings.Count(txt, "-- +goose StatementEnd")
	if begins != ends {
		return fmt.Errorf("migration %q has %d StatementBegin and %d StatementEnd", name, begins, ends)
	}
	return nil
}
