package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// versionLayout keeps versions sortable as integers
const versionLayout = "20060102150405"

var fileTemplate = template.Must(template.New("migration").Parse(
	`-- Migration: {{.Name}}{{if .Down}} (rollback){{end}}
{{- if .Description}}
-- Description: {{.Description}}
{{- end}}

`))

// Entry is one migration version found in a source
type Entry struct {
	Version uint64
	Name    string
	HasDown bool
}

// Pair is a freshly written up/down file pair
type Pair struct {
	Version  uint64
	UpPath   string
	DownPath string
}

// Create writes an empty up/down pair into dir stamped with now. Existing
// files are never overwritten.
func Create(dir, name, description string, now time.Time) (*Pair, error) {
	slug := Slug(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	stamp := now.UTC().Format(versionLayout)
	version, _ := strconv.ParseUint(stamp, 10, 64)
	base := filepath.Join(dir, stamp+"_"+slug)
	pair := &Pair{Version: version, UpPath: base + ".up.sql", DownPath: base + ".down.sql"}

	if err := writeTemplate(pair.UpPath, slug, description, false); err != nil {
		return nil, err
	}
	if err := writeTemplate(pair.DownPath, slug, description, true); err != nil {
		_ = os.Remove(pair.UpPath)
		return nil, err
	}
	return pair, nil
}

func writeTemplate(path, name, description string, down bool) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	return fileTemplate.Execute(f, struct {
		Name, Description string
		Down              bool
	}{name, description, down})
}

// Slug lowercases name and joins its words with single underscores
func Slug(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})
	out := words[:0]
	for _, w := range words {
		w = strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				return r
			}
			return -1
		}, w)
		if w != "" {
			out = append(out, w)
		}
	}
	return strings.Join(out, "_")
}

// Scan lists the versions in fsys in ascending order. Files that do not
// follow <version>_<name>.(up|down).sql are ignored; a down file without
// its up file is an error.
func Scan(fsys fs.FS) ([]Entry, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}

	byVersion := map[uint64]*Entry{}
	downOnly := map[uint64]string{}
	for _, file := range names {
		version, name, direction, ok := parseFileName(file)
		if !ok {
			continue
		}
		e, seen := byVersion[version]
		switch direction {
		case "up":
			if seen {
				return nil, fmt.Errorf("duplicate migration version %d", version)
			}
			_, hasDown := downOnly[version]
			delete(downOnly, version)
			byVersion[version] = &Entry{Version: version, Name: name, HasDown: hasDown}
		case "down":
			if seen {
				e.HasDown = true
			} else {
				downOnly[version] = file
			}
		}
	}
	for _, file := range downOnly {
		return nil, errors.New("rollback without migration: " + file)
	}

	entries := make([]Entry, 0, len(byVersion))
	for _, e := range byVersion {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Version < entries[j].Version })
	return entries, nil
}

func parseFileName(file string) (version uint64, name, direction string, ok bool) {
	rest, found := strings.CutSuffix(file, ".sql")
	if !found {
		return 0, "", "", false
	}
	dot := strings.LastIndexByte(rest, '.')
	if dot < 0 {
		return 0, "", "", false
	}
	direction = rest[dot+1:]
	if direction != "up" && direction != "down" {
		return 0, "", "", false
	}
	stamp, name, found := strings.Cut(rest[:dot], "_")
	if !found {
		return 0, "", "", false
	}
	version, err := strconv.ParseUint(stamp, 10, 64)
	if err != nil {
		return 0, "", "", false
	}
	return version, name, direction, true
}
