// Package sqltmpl provides SQL skeletons with declared substitution slots.
//
// A Template is parsed once from its text and a list of slot declarations.
// Every declared slot must occur exactly once in the text. Fill replaces
// the slots in a single pass over the template's own tokens, so text that
// is inserted into a slot is never substituted again, and a template can
// never come back with one of its slots still in it.
//
// Tokens that are not declared slots (for example @cdm_database_schema) are
// parameters. They pass through Fill untouched and are bound later by a
// rendering step.
package sqltmpl

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// tokenPattern matches @name placeholders.
var tokenPattern = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_]*)`)

var (
	// ErrMissingSlot is returned when a declared slot is absent from the
	// template text or has no value in Fill.
	ErrMissingSlot = errors.New("missing slot")
	// ErrDuplicateSlot is returned when a declared slot occurs more than once.
	ErrDuplicateSlot = errors.New("duplicate slot")
	// ErrUnknownSlot is returned when Fill is given a value for an
	// undeclared slot.
	ErrUnknownSlot = errors.New("unknown slot")
	// ErrArity is returned when a single-valued slot gets zero or several
	// values.
	ErrArity = errors.New("slot arity")
)

// Slot declares a substitution point.
//
// A Single slot takes exactly one value which is inserted verbatim. Any other
// slot takes a list: values are joined with Sep, and Prefix is emitted in
// front of the joined text only when the list is non-empty.
type Slot struct {
	Name   string
	Single bool
	Prefix string
	Sep    string
}

// Fragment declares a single-valued slot.
func Fragment(name string) Slot {
	return Slot{Name: name, Single: true}
}

// List declares a list slot.
func List(name, prefix, sep string) Slot {
	return Slot{Name: name, Prefix: prefix, Sep: sep}
}

// Values maps slot names to their values.
type Values map[string][]string

// Template is a parsed SQL skeleton.
type Template struct {
	name  string
	text  string
	slots map[string]Slot
}

// Parse validates text against the slot declarations.
func Parse(name, text string, slots ...Slot) (*Template, error) {
	declared := make(map[string]Slot, len(slots))
	for _, s := range slots {
		if _, dup := declared[s.Name]; dup {
			return nil, fmt.Errorf("template %s: slot @%s declared twice: %w", name, s.Name, ErrDuplicateSlot)
		}
		declared[s.Name] = s
	}

	counts := make(map[string]int)
	for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
		if _, ok := declared[m[1]]; ok {
			counts[m[1]]++
		}
	}
	for _, s := range sortedSlots(declared) {
		switch n := counts[s]; {
		case n == 0:
			return nil, fmt.Errorf("template %s: slot @%s not found: %w", name, s, ErrMissingSlot)
		case n > 1:
			return nil, fmt.Errorf("template %s: slot @%s occurs %d times: %w", name, s, n, ErrDuplicateSlot)
		}
	}

	return &Template{name: name, text: text, slots: declared}, nil
}

// Name returns the template name.
func (t *Template) Name() string {
	return t.name
}

// Text returns the unfilled template text.
func (t *Template) Text() string {
	return t.text
}

// Slots returns the declared slot names, sorted.
func (t *Template) Slots() []string {
	return sortedSlots(t.slots)
}

// Fill substitutes every declared slot.
func (t *Template) Fill(values Values) (string, error) {
	for name := range values {
		if _, ok := t.slots[name]; !ok {
			return "", fmt.Errorf("template %s: @%s: %w", t.name, name, ErrUnknownSlot)
		}
	}

	rendered := make(map[string]string, len(t.slots))
	for _, name := range sortedSlots(t.slots) {
		s := t.slots[name]
		vals, ok := values[name]
		if !ok {
			return "", fmt.Errorf("template %s: no value for @%s: %w", t.name, name, ErrMissingSlot)
		}
		if s.Single {
			if len(vals) != 1 {
				return "", fmt.Errorf("template %s: @%s takes one value, got %d: %w", t.name, name, len(vals), ErrArity)
			}
			rendered[name] = vals[0]
			continue
		}
		if len(vals) == 0 {
			rendered[name] = ""
			continue
		}
		rendered[name] = s.Prefix + strings.Join(vals, s.Sep)
	}

	return tokenPattern.ReplaceAllStringFunc(t.text, func(tok string) string {
		if v, ok := rendered[tok[1:]]; ok {
			return v
		}
		return tok
	}), nil
}

// Parameters returns the @name tokens of sql in order of first appearance.
func Parameters(sql string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range tokenPattern.FindAllStringSubmatch(sql, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// QuoteString returns s as a single-quoted SQL string literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func sortedSlots(m map[string]Slot) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
