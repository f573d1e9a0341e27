// Package resources loads the SQL skeletons the compiler fills in.
//
// Criterion templates live under sql/criteria and are named after the
// criterion kind with a lower-case first letter (conditionOccurrence.sql).
// Composition templates live directly under sql.
package resources

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/cohortsql/internal/cohort"
)

//go:embed sql
var embedded embed.FS

// Source provides template text by name.
type Source interface {
	// Template returns the text of sql/<name>.sql.
	Template(name string) (string, error)
}

// FSSource reads templates from a filesystem rooted above the sql directory.
type FSSource struct {
	fsys fs.FS
}

// New creates a Source over fsys.
func New(fsys fs.FS) *FSSource {
	return &FSSource{fsys: fsys}
}

// Default returns the templates compiled into the binary.
func Default() *FSSource {
	return New(embedded)
}

// Template implements Source.
func (s *FSSource) Template(name string) (string, error) {
	p := path.Join("sql", name+".sql")
	data, err := fs.ReadFile(s.fsys, p)
	if err != nil {
		return "", fmt.Errorf("load template %s: %w", name, err)
	}
	return string(data), nil
}

// CriterionTemplate returns the name of the template for kind.
func CriterionTemplate(kind cohort.Kind) string {
	s := string(kind)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return path.Join("criteria", s)
	}
	return path.Join("criteria", string(unicode.ToLower(r))+s[size:])
}

// Names lists every template available in the source, without the .sql
// extension.
func (s *FSSource) Names() ([]string, error) {
	var names []string
	err := fs.WalkDir(s.fsys, "sql", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".sql") {
			return nil
		}
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(p, "sql/"), ".sql"))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return names, nil
}
