package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Dialect is a SQL flavour the generic output can be translated to.
type Dialect string

const (
	// DialectGeneric leaves the SQL unchanged.
	DialectGeneric    Dialect = "generic"
	DialectSQLite     Dialect = "sqlite"
	DialectPostgreSQL Dialect = "postgresql"
)

// Dialects lists the supported dialects.
func Dialects() []Dialect {
	return []Dialect{DialectGeneric, DialectSQLite, DialectPostgreSQL}
}

// ParseDialect resolves a dialect name. Matching ignores case and accepts
// "postgres" for PostgreSQL.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "", "generic":
		return DialectGeneric, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgresql", "postgres":
		return DialectPostgreSQL, nil
	default:
		return "", fmt.Errorf("unknown dialect %q", s)
	}
}

var (
	dateFromParts = regexp.MustCompile(`(?i)\bDATEFROMPARTS\(\s*(\d+),\s*(\d+),\s*(\d+)\s*\)`)
	dateAdd       = regexp.MustCompile(`(?i)\bDATEADD\(day,\s*(-?\d+),\s*([^,()]+?)\s*\)`)
	dateDiff      = regexp.MustCompile(`(?i)\bDATEDIFF\(d,\s*([^,()]+?),\s*([^,()]+?)\s*\)`)
	year          = regexp.MustCompile(`(?i)\bYEAR\(([^()]+)\)`)
	tempTable     = regexp.MustCompile(`#([A-Za-z_][A-Za-z0-9_]*)`)
)

// Normalizer translates the generic constructs the compiler emits: day
// arithmetic, YEAR, DATEFROMPARTS and #temp table names.
type Normalizer struct {
	dialect Dialect
}

// NewNormalizer creates a normalizer for dialect.
func NewNormalizer(dialect Dialect) *Normalizer {
	return &Normalizer{dialect: dialect}
}

// Normalize converts sql to the target dialect.
func (n *Normalizer) Normalize(sql string) string {
	switch n.dialect {
	case DialectSQLite:
		return n.normalizeForSQLite(sql)
	case DialectPostgreSQL:
		return n.normalizeForPostgres(sql)
	default:
		return sql
	}
}

// normalizeForSQLite relies on dates stored as ISO text.
func (n *Normalizer) normalizeForSQLite(sql string) string {
	sql = dateFromParts.ReplaceAllStringFunc(sql, func(m string) string {
		return "'" + isoDate(dateFromParts.FindStringSubmatch(m)) + "'"
	})
	sql = dateAdd.ReplaceAllStringFunc(sql, func(m string) string {
		g := dateAdd.FindStringSubmatch(m)
		days, _ := strconv.Atoi(g[1])
		return fmt.Sprintf("date(%s, '%+d days')", g[2], days)
	})
	sql = dateDiff.ReplaceAllString(sql, "CAST(julianday($2) - julianday($1) AS INTEGER)")
	sql = year.ReplaceAllString(sql, "CAST(strftime('%Y', $1) AS INTEGER)")
	return tempTable.ReplaceAllString(sql, "$1")
}

func (n *Normalizer) normalizeForPostgres(sql string) string {
	sql = dateFromParts.ReplaceAllString(sql, "make_date($1, $2, $3)")
	sql = dateAdd.ReplaceAllStringFunc(sql, func(m string) string {
		g := dateAdd.FindStringSubmatch(m)
		return fmt.Sprintf("CAST(%s + INTERVAL '%s day' AS date)", g[2], g[1])
	})
	sql = dateDiff.ReplaceAllString(sql, "(CAST($2 AS date) - CAST($1 AS date))")
	sql = year.ReplaceAllString(sql, "EXTRACT(YEAR FROM $1)")
	return tempTable.ReplaceAllString(sql, "$1")
}

func isoDate(g []string) string {
	y, _ := strconv.Atoi(g[1])
	m, _ := strconv.Atoi(g[2])
	d, _ := strconv.Atoi(g[3])
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}
