package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	out, err := Render("SELECT @indexId AS index_id FROM @cdm_database_schema.PERSON", map[string]string{
		"indexId":             "3",
		"cdm_database_schema": "main",
		"unused":              "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 3 AS index_id FROM main.PERSON", out)
}

func TestRender_ValuesNotRescanned(t *testing.T) {
	out, err := Render("SELECT @a, @b", map[string]string{"a": "@b", "b": "2"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT @b, 2", out)
}

func TestRender_Unbound(t *testing.T) {
	_, err := Render("SELECT @z FROM @cdm_database_schema.T WHERE x = @a", map[string]string{"cdm_database_schema": "main"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnbound)
	assert.Contains(t, err.Error(), "@a, @z")
}

func TestMerge(t *testing.T) {
	m := Merge(map[string]string{"a": "1", "b": "1"}, map[string]string{"b": "2"})
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, m)
}

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]Dialect{
		"":           DialectGeneric,
		"SQLite":     DialectSQLite,
		"postgres":   DialectPostgreSQL,
		"postgresql": DialectPostgreSQL,
	} {
		got, err := ParseDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDialect("oracle")
	assert.Error(t, err)
}

func TestNormalize_SQLite(t *testing.T) {
	n := NewNormalizer(DialectSQLite)
	tests := []struct {
		in, want string
	}{
		{"DATEADD(day,-365,p.start_date)", "date(p.start_date, '-365 days')"},
		{"COALESCE(x.end_date, DATEADD(day,1,x.start_date))", "COALESCE(x.end_date, date(x.start_date, '+1 days'))"},
		{"DATEDIFF(d, C.start_date, C.end_date)", "CAST(julianday(C.end_date) - julianday(C.start_date) AS INTEGER)"},
		{"YEAR(C.start_date) - P.year_of_birth", "CAST(strftime('%Y', C.start_date) AS INTEGER) - P.year_of_birth"},
		{"C.start_date >= DATEFROMPARTS(2020, 1, 5)", "C.start_date >= '2020-01-05'"},
		{"DATEFROMPARTS(2099,12,31)", "'2099-12-31'"},
		{"SELECT concept_id FROM #Codesets", "SELECT concept_id FROM Codesets"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, n.Normalize(tt.in), tt.in)
	}
}

func TestNormalize_PostgreSQL(t *testing.T) {
	n := NewNormalizer(DialectPostgreSQL)
	assert.Equal(t, "CAST(p.start_date + INTERVAL '-30 day' AS date)", n.Normalize("DATEADD(day,-30,p.start_date)"))
	assert.Equal(t, "(CAST(C.end_date AS date) - CAST(C.start_date AS date))", n.Normalize("DATEDIFF(d, C.start_date, C.end_date)"))
	assert.Equal(t, "EXTRACT(YEAR FROM E.start_date)", n.Normalize("YEAR(E.start_date)"))
	assert.Equal(t, "make_date(2020, 1, 5)", n.Normalize("DATEFROMPARTS(2020, 1, 5)"))
	assert.Equal(t, "INSERT INTO qualified_events", n.Normalize("INSERT INTO #qualified_events"))
}

func TestNormalize_Generic(t *testing.T) {
	sql := "SELECT DATEADD(day,1,x) FROM #Codesets"
	assert.Equal(t, sql, NewNormalizer(DialectGeneric).Normalize(sql))
}
