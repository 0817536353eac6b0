package ast

import "github.com/webql/webql/token"

// Statement is the sum type of all statement AST nodes: SELECT, NAVIGATE,
// SET, SHOW, FOR, IF, INSERT, UPDATE, DELETE, WITH.
type Statement interface {
	statementNode()
	Pos() token.Position
}

type stmtBase struct {
	Position token.Position
}

func (stmtBase) statementNode()          {}
func (b stmtBase) Pos() token.Position { return b.Position }

// Field is one projected column of a SELECT: an expression plus its
// resolved output name (identifier name, dotted-path root, or otherwise the
// alias or the default "expr").
type Field struct {
	Expr  Expression
	Alias string // explicit "AS alias", or "" if none was given
	Name  string // resolved output name used for duplicate-name checks
	Path  string // full dotted path, for Member-expression fields
}

// SortField is one ORDER BY key.
type SortField struct {
	Field      Expression
	Descending bool
}

// Source is the FROM clause of a SELECT: exactly one of URL/Subquery/Variable is set.
type Source struct {
	URL      *Literal
	Subquery Statement
	Variable string
}

// Select is `SELECT fields FROM source [WHERE ...] [ORDER BY ...] [LIMIT ... [OFFSET ...]]`.
type Select struct {
	stmtBase
	Fields  []Field
	From    Source
	Where   Expression // nil if omitted
	OrderBy []SortField
	Limit   *int
	Offset  *int
}

// NewSelect constructs a Select statement.
func NewSelect(pos token.Position, fields []Field, from Source, where Expression, orderBy []SortField, limit, offset *int) *Select {
	return &Select{stmtBase: stmtBase{pos}, Fields: fields, From: from, Where: where, OrderBy: orderBy, Limit: limit, Offset: offset}
}

// NavigateOptions is the validated object literal following `WITH` in a
// NAVIGATE statement.
type NavigateOptions struct {
	Proxy      map[string]Expression
	Browser    map[string]Expression
	WaitFor    Expression
	WaitUntil  Expression
	Timeout    Expression
	Screenshot Expression
}

// Navigate is `NAVIGATE TO url [WITH {...}] [CAPTURE fields]`.
type Navigate struct {
	stmtBase
	URL     Expression
	Options *NavigateOptions // nil if WITH was omitted
	Capture []Field
}

// NewNavigate constructs a Navigate statement.
func NewNavigate(pos token.Position, url Expression, options *NavigateOptions, capture []Field) *Navigate {
	return &Navigate{stmtBase: stmtBase{pos}, URL: url, Options: options, Capture: capture}
}

// Set is `SET dotted.path = expr`.
type Set struct {
	stmtBase
	Path  string
	Value Expression
}

// NewSet constructs a Set statement.
func NewSet(pos token.Position, path string, value Expression) *Set {
	return &Set{stmtBase: stmtBase{pos}, Path: path, Value: value}
}

// Show is `SHOW name` (e.g. SHOW CACHE, SHOW METRICS).
type Show struct {
	stmtBase
	Name string
}

// NewShow constructs a Show statement.
func NewShow(pos token.Position, name string) *Show {
	return &Show{stmtBase: stmtBase{pos}, Name: name}
}

// For is `FOR EACH var IN iterable { body... }`.
type For struct {
	stmtBase
	Variable string
	Iterable Expression
	Body     []Statement
}

// NewFor constructs a For statement.
func NewFor(pos token.Position, variable string, iterable Expression, body []Statement) *For {
	return &For{stmtBase: stmtBase{pos}, Variable: variable, Iterable: iterable, Body: body}
}

// If is `IF cond THEN then... [ELSE else...]`.
type If struct {
	stmtBase
	Condition Expression
	Then      []Statement
	Else      []Statement // nil if no else branch
}

// NewIf constructs an If statement.
func NewIf(pos token.Position, condition Expression, then, els []Statement) *If {
	return &If{stmtBase: stmtBase{pos}, Condition: condition, Then: then, Else: els}
}

// Insert is `INSERT INTO target VALUES (...)`.
type Insert struct {
	stmtBase
	Target string
	Values []Expression
}

// NewInsert constructs an Insert statement.
func NewInsert(pos token.Position, target string, values []Expression) *Insert {
	return &Insert{stmtBase: stmtBase{pos}, Target: target, Values: values}
}

// Assignment is one `path = expr` pair inside an UPDATE.
type Assignment struct {
	Path  string
	Value Expression
}

// Update is `UPDATE target SET path = expr, ... [WHERE ...]`.
type Update struct {
	stmtBase
	Target      string
	Assignments []Assignment
	Where       Expression
}

// NewUpdate constructs an Update statement.
func NewUpdate(pos token.Position, target string, assignments []Assignment, where Expression) *Update {
	return &Update{stmtBase: stmtBase{pos}, Target: target, Assignments: assignments, Where: where}
}

// Delete is `DELETE FROM target [WHERE ...]`.
type Delete struct {
	stmtBase
	Target string
	Where  Expression
}

// NewDelete constructs a Delete statement.
func NewDelete(pos token.Position, target string, where Expression) *Delete {
	return &Delete{stmtBase: stmtBase{pos}, Target: target, Where: where}
}

// CTE is one `name AS (statement)` common table expression.
type CTE struct {
	Name  string
	Query Statement
}

// With is `WITH name AS (...), ... statement`.
type With struct {
	stmtBase
	CTEs  []CTE
	Query Statement
}

// NewWith constructs a With statement.
func NewWith(pos token.Position, ctes []CTE, query Statement) *With {
	return &With{stmtBase: stmtBase{pos}, CTEs: ctes, Query: query}
}
