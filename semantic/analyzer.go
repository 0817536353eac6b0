// Package semantic implements semantic analysis: symbol table construction,
// bottom-up type inference, and structural validation. Symbol binding and
// type inference are driven by one recursive walk (package-private type
// walker) so that identifier resolution always sees the scope that is
// actually current at that point in the tree - re-deriving scopes in a
// second independent pass over the same AST would require either
// re-running Push/Pop in lockstep with the first pass (fragile) or
// threading scope pointers back out of phase 1 for every expression site
// (more bookkeeping than the single-walk design needs). Structural
// validation runs as a genuinely separate third phase, since it only
// consults the already-annotated AST and the already-built symbol table -
// it never needs to redo scope resolution.
package semantic

import (
	"github.com/webql/webql/ast"
	werrors "github.com/webql/webql/errors"
	"github.com/webql/webql/symtable"
	"github.com/webql/webql/types"
)

// Config tunes the analyzer the way engine.Config tunes the Engine.
type Config struct {
	// AllowUndefinedVariables permits identifiers with no bound symbol to
	// pass resolution (they may resolve to DOM fields at runtime).
	AllowUndefinedVariables bool
	// MaxNestingDepth bounds statement nesting (FOR/IF/subquery/WITH).
	// Zero means use the default of 10.
	MaxNestingDepth int
	// AllowedURLProtocols overrides the default {http:, https:, about:}
	// protocol allow-list used to validate URL literals.
	AllowedURLProtocols []string
}

func (c Config) maxDepth() int {
	if c.MaxNestingDepth <= 0 {
		return 10
	}
	return c.MaxNestingDepth
}

func (c Config) allowedProtocols() []string {
	if len(c.AllowedURLProtocols) == 0 {
		// about: admits 'about:blank', the conventional no-op target.
		return []string{"http:", "https:", "about:"}
	}
	return c.AllowedURLProtocols
}

// Annotated is the AST plus the symbol table produced during analysis and a
// per-expression inferred-type mapping.
type Annotated struct {
	Statement ast.Statement
	Symbols   *symtable.Table
	Types     map[ast.Expression]types.DataType
}

// TypeOf returns the inferred type of e, or UNKNOWN if e was never visited.
func (a *Annotated) TypeOf(e ast.Expression) types.DataType {
	if t, ok := a.Types[e]; ok {
		return t
	}
	return types.UNKNOWN
}

// Analyzer orchestrates symbol-table construction, type inference, and
// validation into a single annotated AST.
type Analyzer struct {
	cfg Config
}

// New returns an Analyzer with the given configuration.
func New(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze runs analysis over stmt and returns the annotated AST, or the
// first SemanticError/TypeCheckError/ValidationError encountered.
func (a *Analyzer) Analyze(stmt ast.Statement) (*Annotated, error) {
	w := &walker{
		symbols: symtable.New(),
		cfg:     a.cfg,
		types:   map[ast.Expression]types.DataType{},
	}
	if err := w.walkStatement(stmt, 0); err != nil {
		return nil, err
	}

	annotated := &Annotated{Statement: stmt, Symbols: w.symbols, Types: w.types}

	v := &validator{annotated: annotated, cfg: a.cfg}
	if err := v.validateStatement(stmt); err != nil {
		return nil, err
	}
	return annotated, nil
}

func depthError(depth, max int) error {
	return werrors.Semantic.New("maximum statement nesting depth exceeded").
		WithContext("depth", depth).WithContext("max", max)
}
