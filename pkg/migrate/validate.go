package migrate

import (
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var migrationNameRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

const (
	upMarker   = "-- +goose Up"
	downMarker = "-- +goose Down"
)

// File is a parsed migration filename.
type File struct {
	Version int64
	Name    string
	Path    string
}

func parseFileName(name string) (File, error) {
	m := migrationNameRe.FindStringSubmatch(name)
	if m == nil {
		return File{}, fmt.Errorf("invalid migration filename %q (want YYYYMMDDHHMMSS_name.sql)", name)
	}
	version, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return File{}, fmt.Errorf("migration %q: %w", name, err)
	}
	return File{Version: version, Name: m[2], Path: name}, nil
}

// List returns the migrations in migrations ordered by version. Files that are
// not .sql are ignored.
func List(migrations fs.FS) ([]File, error) {
	if migrations == nil {
		return nil, fmt.Errorf("migrations fs is required")
	}
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	files := make([]File, 0, len(entries))
	byVersion := make(map[int64]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		file, err := parseFileName(entry.Name())
		if err != nil {
			return nil, err
		}
		if prev, dup := byVersion[file.Version]; dup {
			return nil, fmt.Errorf("migrations %q and %q share version %d", prev, file.Path, file.Version)
		}
		byVersion[file.Version] = file.Path
		files = append(files, file)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

// Validate checks naming, version uniqueness and that each file declares both
// goose sections.
func Validate(migrations fs.FS) error {
	files, err := List(migrations)
	if err != nil {
		return err
	}
	for _, file := range files {
		body, err := fs.ReadFile(migrations, file.Path)
		if err != nil {
			return fmt.Errorf("read %q: %w", file.Path, err)
		}
		text := string(body)
		for _, marker := range []string{upMarker, downMarker} {
			if !strings.Contains(text, marker) {
				return fmt.Errorf("migration %q is missing %q", file.Path, marker)
			}
		}
	}
	return nil
}

func ValidateDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("dir is required")
	}
	return Validate(Disk(dir))
}
