// Package plan lowers an annotated/optimized AST into a flat step list the
// executor can run. A Step is a declarative record the executor interprets,
// not a Go value implementing an interface, since several step kinds
// (NAVIGATE, CLICK, SCREENSHOT, ...) have no meaning until a browser/proxy
// controller is attached at execution time.
package plan

import (
	"fmt"

	"github.com/webql/webql/ast"
	"github.com/webql/webql/optimizer"
)

// Kind is the closed set of ~25 execution step kinds.
type Kind int

const (
	NAVIGATE Kind = iota
	DOM_QUERY
	CLICK
	TYPE
	WAIT
	SCREENSHOT
	PDF
	EVALUATE_JS
	INTERCEPT_REQUEST
	MODIFY_REQUEST
	CACHE_LOOKUP
	CACHE_STORE
	FILTER
	MAP
	REDUCE
	JOIN
	SORT
	LIMIT
	BRANCH
	LOOP
	PARALLEL
	SEQUENTIAL
	ASSIGN
	READ_VARIABLE
	WRITE_VARIABLE
)

var kindNames = map[Kind]string{
	NAVIGATE: "NAVIGATE", DOM_QUERY: "DOM_QUERY", CLICK: "CLICK", TYPE: "TYPE",
	WAIT: "WAIT", SCREENSHOT: "SCREENSHOT", PDF: "PDF", EVALUATE_JS: "EVALUATE_JS",
	INTERCEPT_REQUEST: "INTERCEPT_REQUEST", MODIFY_REQUEST: "MODIFY_REQUEST",
	CACHE_LOOKUP: "CACHE_LOOKUP", CACHE_STORE: "CACHE_STORE", FILTER: "FILTER",
	MAP: "MAP", REDUCE: "REDUCE", JOIN: "JOIN", SORT: "SORT", LIMIT: "LIMIT",
	BRANCH: "BRANCH", LOOP: "LOOP", PARALLEL: "PARALLEL", SEQUENTIAL: "SEQUENTIAL",
	ASSIGN: "ASSIGN", READ_VARIABLE: "READ_VARIABLE", WRITE_VARIABLE: "WRITE_VARIABLE",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// JoinType is the closed set of JOIN combination modes.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
	FullJoin
)

// Step is one node of the flat plan. Only the fields relevant to Kind are
// populated: the step-kind-specific payload is modeled as a fat struct
// (closed Kind switch) rather than an interface{} payload, so the
// executor's dispatch is a compile-time exhaustive switch, the same
// "tagged variants, no inheritance" convention the AST uses.
type Step struct {
	ID            string
	Kind          Kind
	Dependencies  []string
	Cacheable     bool
	CacheKey      string
	EstimatedCost float64

	URL             ast.Expression     // NAVIGATE
	NavigateOptions *ast.NavigateOptions
	Selector        string             // CLICK/TYPE/WAIT/SCREENSHOT/DOM_QUERY
	Fields          []ast.Field        // DOM_QUERY/MAP projection
	InputVariable   string             // FILTER/MAP/REDUCE/SORT/LIMIT/JOIN source
	OutputVariable  string             // binds this step's result for later reference
	Predicate       ast.Expression     // FILTER/BRANCH condition
	InitialValue    ast.Expression     // REDUCE
	Accumulator     string             // REDUCE accumulator name
	Element         string             // MAP/REDUCE/FILTER per-element binding name
	SortKeys        []ast.SortField    // SORT
	Limit           *int               // LIMIT
	Offset          *int               // LIMIT
	Then            *Plan              // BRANCH
	Else            *Plan              // BRANCH
	Body            *Plan              // LOOP
	IterVariable    string             // LOOP iterator binding name
	Iterable        ast.Expression     // LOOP source collection
	Children        []*Plan            // PARALLEL/SEQUENTIAL
	Path            string             // ASSIGN/SET target dotted path
	Value           ast.Expression     // ASSIGN/WRITE_VARIABLE value
	VariableName    string             // READ_VARIABLE/WRITE_VARIABLE
	LeftKey         ast.Expression     // JOIN
	RightKey        ast.Expression     // JOIN
	JoinType        JoinType           // JOIN
}

// ResourceEstimate aggregates the browser/page/connection/memory/CPU
// requirements every step in a plan implies.
type ResourceEstimate struct {
	Browsers    int
	Pages       int
	Connections int
	MemoryMB    int
	CPU         int
}

// Plan is a lowered statement: a flat, ordered step list plus the id of the
// step whose result is the statement's overall result.
type Plan struct {
	Steps     []*Step
	ResultID  string
	Resources ResourceEstimate
}

// StepByID returns the step with the given id, or nil.
func (p *Plan) StepByID(id string) *Step {
	for _, s := range p.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}
