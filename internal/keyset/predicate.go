package keyset

import (
	"fmt"
	"strings"
)

// Op is a comparison operator in a seek predicate.
type Op string

const (
	OpEq Op = "="
	OpLt Op = "<"
	OpGt Op = ">"
)

// Cond compares a key's column against a cursor value.
type Cond struct {
	Key   Key
	Op    Op
	Value any
}

// Branch is one disjunct of a seek predicate: all Eq conditions hold and Cmp
// holds.
type Branch struct {
	Eq  []Cond
	Cmp Cond
}

// Predicate selects the rows strictly after a cursor row:
//
//	OR_i ( AND_{j<i} col_j = v_j  AND  col_i OP v_i )
//
// where OP is < for a descending key and > for an ascending one.
type Predicate struct {
	Branches []Branch
}

// Empty reports whether the predicate has no branches.
func (p Predicate) Empty() bool {
	return len(p.Branches) == 0
}

// Build returns the seek predicate for spec positioned after values. values
// must hold an entry for every key, as guaranteed by Decode.
func Build(spec Spec, values Values) Predicate {
	if len(values) == 0 {
		return Predicate{}
	}

	branches := make([]Branch, 0, len(spec))
	for i, k := range spec {
		eq := make([]Cond, 0, i)
		for _, prev := range spec[:i] {
			eq = append(eq, Cond{Key: prev, Op: OpEq, Value: values[prev.Column.Name]})
		}
		op := OpGt
		if k.Desc {
			op = OpLt
		}
		branches = append(branches, Branch{
			Eq:  eq,
			Cmp: Cond{Key: k, Op: op, Value: values[k.Column.Name]},
		})
	}
	return Predicate{Branches: branches}
}

// SQL renders the predicate using positional parameters starting at
// argIndex. Each column's value is bound once and referenced from every
// branch. It returns the fragment, its arguments and the next free index.
func (p Predicate) SQL(argIndex int) (string, []any, int) {
	if p.Empty() {
		return "", nil, argIndex
	}

	placeholders := make(map[string]string)
	var args []any
	bind := func(c Cond) string {
		name := c.Key.Column.Name
		if ph, ok := placeholders[name]; ok {
			return ph
		}
		ph := fmt.Sprintf("$%d", argIndex)
		argIndex++
		placeholders[name] = ph
		args = append(args, c.Value)
		return ph
	}

	disjuncts := make([]string, 0, len(p.Branches))
	for _, b := range p.Branches {
		terms := make([]string, 0, len(b.Eq)+1)
		for _, c := range b.Eq {
			terms = append(terms, fmt.Sprintf("%s %s %s", c.Key.Column.Expr, c.Op, bind(c)))
		}
		terms = append(terms, fmt.Sprintf("%s %s %s", b.Cmp.Key.Column.Expr, b.Cmp.Op, bind(b.Cmp)))
		disjuncts = append(disjuncts, "("+strings.Join(terms, " AND ")+")")
	}

	return "(" + strings.Join(disjuncts, " OR ") + ")", args, argIndex
}
