// Package keyset implements storage-agnostic seek pagination.
//
// A Spec is an ordered list of sort keys whose final key is unique per row.
// The package provides:
//
//   - Codec: opaque, URL-safe cursors carrying the last-seen value of every
//     active sort key.
//   - Build: the seek predicate "rows strictly after the cursor row" for an
//     arbitrary multi-key order, as a structured Predicate that renders to SQL.
//   - Round and RoundExpr: the single rounding helper shared by the SELECT
//     list, the ORDER BY clause and the seek predicate for derived float
//     columns.
//
// Column expressions are trusted SQL fragments assembled by the caller; cursor
// values are always bound as parameters.
package keyset

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the value type of a sort column.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindTime
)

// Column is a sortable column. Expr is used verbatim in the SELECT list, the
// ORDER BY clause and the seek predicate.
type Column struct {
	Name string
	Expr string
	Kind Kind
}

// Key is one (column, direction) element of a sort order.
type Key struct {
	Column Column
	Desc   bool
}

// Asc returns an ascending key on c.
func Asc(c Column) Key { return Key{Column: c} }

// Desc returns a descending key on c.
func Desc(c Column) Key { return Key{Column: c, Desc: true} }

// Direction returns the SQL direction keyword.
func (k Key) Direction() string {
	if k.Desc {
		return "DESC"
	}
	return "ASC"
}

// Spec is an ordered sort specification. The final key must be unique across
// rows so the order is strict.
type Spec []Key

// ErrEmptySpec is returned when a spec has no keys.
var ErrEmptySpec = errors.New("keyset: empty sort spec")

// Validate checks that the spec is usable for seek pagination.
func (s Spec) Validate() error {
	if len(s) == 0 {
		return ErrEmptySpec
	}
	seen := make(map[string]struct{}, len(s))
	for _, k := range s {
		if k.Column.Name == "" || k.Column.Expr == "" {
			return fmt.Errorf("keyset: column without name or expression")
		}
		if _, dup := seen[k.Column.Name]; dup {
			return fmt.Errorf("keyset: duplicate column %q", k.Column.Name)
		}
		seen[k.Column.Name] = struct{}{}
	}
	return nil
}

// Names returns the column names in order.
func (s Spec) Names() []string {
	names := make([]string, len(s))
	for i, k := range s {
		names[i] = k.Column.Name
	}
	return names
}

// Has reports whether the spec contains a column with the given name.
func (s Spec) Has(name string) bool {
	for _, k := range s {
		if k.Column.Name == name {
			return true
		}
	}
	return false
}

// OrderBy renders the ORDER BY list, without the keyword.
func (s Spec) OrderBy() string {
	parts := make([]string, len(s))
	for i, k := range s {
		parts[i] = k.Column.Expr + " " + k.Direction()
	}
	return strings.Join(parts, ", ")
}

// Values maps column names to the last-seen row's values. Values are int64,
// float64 or time.Time according to the column Kind.
type Values map[string]any
