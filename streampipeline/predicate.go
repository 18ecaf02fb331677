package streampipeline

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Predicate is a compiled event-map match expression: a conjunction of
// clauses, each either an existence test ("$.a.b != null") or an equality
// test ("$.x == \"done\"") against a gjson path. Grounded on spec.md §4.4's
// "restricted JSONPath-with-existence" grammar and implemented as a
// miniature compiled matcher per the Design Note in spec.md §9, rather than
// a general JSONPath engine.
type Predicate struct {
	clauses []clause
}

type clauseOp int

const (
	opExists clauseOp = iota
	opNotExists
	opEquals
	opNotEquals
)

type clause struct {
	path string
	op   clauseOp
	want string
}

// CompilePredicate parses a match expression, which may be a single clause
// or several joined with "&&". Each clause is one of:
//
//	$.path != null     (existence)
//	$.path == null      (absence)
//	$.path == "literal"  (string equality)
//	$.path == literal    (bare-token equality, e.g. an enum or bool)
//
// A bare "$.path" with no operator is shorthand for an existence test.
func CompilePredicate(expr string) Predicate {
	parts := strings.Split(expr, "&&")
	clauses := make([]clause, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		clauses = append(clauses, compileClause(part))
	}
	return Predicate{clauses: clauses}
}

func compileClause(part string) clause {
	switch {
	case strings.Contains(part, "!="):
		path, rhs := splitOperator(part, "!=")
		if rhs == "null" {
			return clause{path: path, op: opExists}
		}
		return clause{path: path, op: opNotEquals, want: unquote(rhs)}
	case strings.Contains(part, "=="):
		path, rhs := splitOperator(part, "==")
		if rhs == "null" {
			return clause{path: path, op: opNotExists}
		}
		return clause{path: path, op: opEquals, want: unquote(rhs)}
	default:
		return clause{path: strings.TrimSpace(part), op: opExists}
	}
}

func splitOperator(part, op string) (path, rhs string) {
	segments := strings.SplitN(part, op, 2)
	return strings.TrimSpace(segments[0]), strings.TrimSpace(segments[1])
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// gjsonPath translates a manifest match/field path into gjson's own syntax:
// it strips the leading "$." root sigil the manifest grammar uses (gjson
// paths carry no root sigil) and rewrites bracket array indices ("choices[0]")
// into gjson's dot-index form ("choices.0"), since gjson does not accept
// bracket indexing.
func gjsonPath(path string) string {
	trimmed := strings.TrimPrefix(path, "$.")
	trimmed = strings.ReplaceAll(trimmed, "[", ".")
	trimmed = strings.ReplaceAll(trimmed, "]", "")
	return trimmed
}

// Match reports whether frame (a JSON document) satisfies every clause.
func (p Predicate) Match(frame []byte) bool {
	for _, c := range p.clauses {
		if !matchClause(frame, c) {
			return false
		}
	}
	return true
}

func matchClause(frame []byte, c clause) bool {
	result := gjson.GetBytes(frame, gjsonPath(c.path))
	switch c.op {
	case opExists:
		return result.Exists() && result.Type != gjson.Null
	case opNotExists:
		return !result.Exists() || result.Type == gjson.Null
	case opEquals:
		return result.Exists() && valueEquals(result, c.want)
	case opNotEquals:
		return !result.Exists() || !valueEquals(result, c.want)
	default:
		return false
	}
}

func valueEquals(result gjson.Result, want string) bool {
	if result.Type == gjson.True || result.Type == gjson.False {
		if b, err := strconv.ParseBool(want); err == nil {
			return result.Bool() == b
		}
	}
	return result.String() == want
}

// Extract evaluates a gjson path (in the manifest's "$."-prefixed grammar)
// against frame and returns the extracted value and whether it exists.
func Extract(frame []byte, path string) (gjson.Result, bool) {
	result := gjson.GetBytes(frame, gjsonPath(path))
	return result, result.Exists()
}
