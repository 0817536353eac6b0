package plan

import (
	"encoding/json"
	"fmt"

	"github.com/webql/webql/ast"
	"github.com/webql/webql/depgraph"
)

// Snapshot is the textual encoding of a compiled plan: ids, steps,
// dependency adjacency, roots, leaves, the cacheable-step list, and
// parallel groups. It is produced by Serialize and consumed by
// Deserialize; Deserialize re-validates the rebuilt Plan the way
// depgraph.Build already validates a freshly-planned one, so a corrupted
// or hand-edited snapshot is rejected rather than silently accepted.
type Snapshot struct {
	ResultID       string            `json:"resultId"`
	Resources      ResourceEstimate  `json:"resources"`
	Steps          []stepDTO         `json:"steps"`
	Roots          []string          `json:"roots"`
	Leaves         []string          `json:"leaves"`
	CacheableSteps []string          `json:"cacheableSteps"`
	ParallelGroups [][]string        `json:"parallelGroups"`
}

type fieldDTO struct {
	Expr  json.RawMessage `json:"expr"`
	Alias string          `json:"alias,omitempty"`
	Name  string          `json:"name,omitempty"`
	Path  string          `json:"path,omitempty"`
}

type sortFieldDTO struct {
	Field      json.RawMessage `json:"field"`
	Descending bool            `json:"descending,omitempty"`
}

type navigateOptionsDTO struct {
	Proxy      map[string]json.RawMessage `json:"proxy,omitempty"`
	Browser    map[string]json.RawMessage `json:"browser,omitempty"`
	WaitFor    json.RawMessage            `json:"waitFor,omitempty"`
	WaitUntil  json.RawMessage            `json:"waitUntil,omitempty"`
	Timeout    json.RawMessage            `json:"timeout,omitempty"`
	Screenshot json.RawMessage            `json:"screenshot,omitempty"`
}

// stepDTO is the wire shape of one plan.Step, using json.RawMessage for
// every ast.Expression field so ast.MarshalExpression/UnmarshalExpression
// stays the single source of truth for expression encoding.
type stepDTO struct {
	ID            string         `json:"id"`
	Kind          string         `json:"kind"`
	Dependencies  []string       `json:"dependencies,omitempty"`
	Cacheable     bool           `json:"cacheable,omitempty"`
	CacheKey      string         `json:"cacheKey,omitempty"`
	EstimatedCost float64        `json:"estimatedCost"`

	URL             json.RawMessage     `json:"url,omitempty"`
	NavigateOptions *navigateOptionsDTO `json:"navigateOptions,omitempty"`
	Selector        string              `json:"selector,omitempty"`
	Fields          []fieldDTO          `json:"fields,omitempty"`
	InputVariable   string              `json:"inputVariable,omitempty"`
	OutputVariable  string              `json:"outputVariable,omitempty"`
	Predicate       json.RawMessage     `json:"predicate,omitempty"`
	InitialValue    json.RawMessage     `json:"initialValue,omitempty"`
	Accumulator     string              `json:"accumulator,omitempty"`
	Element         string              `json:"element,omitempty"`
	SortKeys        []sortFieldDTO      `json:"sortKeys,omitempty"`
	Limit           *int                `json:"limit,omitempty"`
	Offset          *int                `json:"offset,omitempty"`
	Then            *planDTO            `json:"then,omitempty"`
	Else            *planDTO            `json:"else,omitempty"`
	Body            *planDTO            `json:"body,omitempty"`
	IterVariable    string              `json:"iterVariable,omitempty"`
	Iterable        json.RawMessage     `json:"iterable,omitempty"`
	Children        []*planDTO          `json:"children,omitempty"`
	Path            string              `json:"path,omitempty"`
	Value           json.RawMessage     `json:"value,omitempty"`
	VariableName    string              `json:"variableName,omitempty"`
	LeftKey         json.RawMessage     `json:"leftKey,omitempty"`
	RightKey        json.RawMessage     `json:"rightKey,omitempty"`
	JoinType        string              `json:"joinType,omitempty"`
}

// planDTO is the wire shape of a nested (detached) Plan, e.g. a LOOP body
// or a BRANCH arm.
type planDTO struct {
	ResultID string    `json:"resultId"`
	Steps    []stepDTO `json:"steps"`
}

var joinTypeNames = map[JoinType]string{
	InnerJoin: "INNER", LeftJoin: "LEFT", RightJoin: "RIGHT", FullJoin: "FULL",
}

func parseJoinType(s string) (JoinType, error) {
	for k, v := range joinTypeNames {
		if v == s {
			return k, nil
		}
	}
	if s == "" {
		return InnerJoin, nil
	}
	return 0, fmt.Errorf("plan: unknown join type %q", s)
}

func parseKind(s string) (Kind, error) {
	for k, v := range kindNames {
		if v == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("plan: unknown step kind %q", s)
}

func marshalExpr(e ast.Expression) json.RawMessage {
	raw, err := ast.MarshalExpression(e)
	if err != nil {
		// Every expression produced by this module's own parser/optimizer
		// is a closed, known variant; MarshalExpression only fails on a
		// foreign Expression implementation, which cannot reach here.
		panic(err)
	}
	return raw
}

func marshalFields(fields []ast.Field) []fieldDTO {
	out := make([]fieldDTO, len(fields))
	for i, f := range fields {
		out[i] = fieldDTO{Expr: marshalExpr(f.Expr), Alias: f.Alias, Name: f.Name, Path: f.Path}
	}
	return out
}

func unmarshalFields(dtos []fieldDTO) ([]ast.Field, error) {
	out := make([]ast.Field, len(dtos))
	for i, d := range dtos {
		e, err := ast.UnmarshalExpression(d.Expr)
		if err != nil {
			return nil, err
		}
		out[i] = ast.Field{Expr: e, Alias: d.Alias, Name: d.Name, Path: d.Path}
	}
	return out, nil
}

func marshalSortKeys(keys []ast.SortField) []sortFieldDTO {
	out := make([]sortFieldDTO, len(keys))
	for i, k := range keys {
		out[i] = sortFieldDTO{Field: marshalExpr(k.Field), Descending: k.Descending}
	}
	return out
}

func unmarshalSortKeys(dtos []sortFieldDTO) ([]ast.SortField, error) {
	out := make([]ast.SortField, len(dtos))
	for i, d := range dtos {
		e, err := ast.UnmarshalExpression(d.Field)
		if err != nil {
			return nil, err
		}
		out[i] = ast.SortField{Field: e, Descending: d.Descending}
	}
	return out, nil
}

func marshalNavigateOptions(o *ast.NavigateOptions) *navigateOptionsDTO {
	if o == nil {
		return nil
	}
	dto := &navigateOptionsDTO{
		WaitFor:    marshalExpr(o.WaitFor),
		WaitUntil:  marshalExpr(o.WaitUntil),
		Timeout:    marshalExpr(o.Timeout),
		Screenshot: marshalExpr(o.Screenshot),
	}
	if len(o.Proxy) > 0 {
		dto.Proxy = map[string]json.RawMessage{}
		for k, v := range o.Proxy {
			dto.Proxy[k] = marshalExpr(v)
		}
	}
	if len(o.Browser) > 0 {
		dto.Browser = map[string]json.RawMessage{}
		for k, v := range o.Browser {
			dto.Browser[k] = marshalExpr(v)
		}
	}
	return dto
}

func unmarshalNavigateOptions(dto *navigateOptionsDTO) (*ast.NavigateOptions, error) {
	if dto == nil {
		return nil, nil
	}
	waitFor, err := ast.UnmarshalExpression(dto.WaitFor)
	if err != nil {
		return nil, err
	}
	waitUntil, err := ast.UnmarshalExpression(dto.WaitUntil)
	if err != nil {
		return nil, err
	}
	timeout, err := ast.UnmarshalExpression(dto.Timeout)
	if err != nil {
		return nil, err
	}
	screenshot, err := ast.UnmarshalExpression(dto.Screenshot)
	if err != nil {
		return nil, err
	}
	opts := &ast.NavigateOptions{WaitFor: waitFor, WaitUntil: waitUntil, Timeout: timeout, Screenshot: screenshot}
	if dto.Proxy != nil {
		opts.Proxy = map[string]ast.Expression{}
		for k, v := range dto.Proxy {
			e, err := ast.UnmarshalExpression(v)
			if err != nil {
				return nil, err
			}
			opts.Proxy[k] = e
		}
	}
	if dto.Browser != nil {
		opts.Browser = map[string]ast.Expression{}
		for k, v := range dto.Browser {
			e, err := ast.UnmarshalExpression(v)
			if err != nil {
				return nil, err
			}
			opts.Browser[k] = e
		}
	}
	return opts, nil
}

func marshalPlan(p *Plan) *planDTO {
	if p == nil {
		return nil
	}
	steps := make([]stepDTO, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = marshalStep(s)
	}
	return &planDTO{ResultID: p.ResultID, Steps: steps}
}

func unmarshalPlan(dto *planDTO) (*Plan, error) {
	if dto == nil {
		return nil, nil
	}
	steps := make([]*Step, len(dto.Steps))
	for i, d := range dto.Steps {
		s, err := unmarshalStep(d)
		if err != nil {
			return nil, err
		}
		steps[i] = s
	}
	p := &Plan{Steps: steps, ResultID: dto.ResultID}
	p.Resources = aggregateResources(steps)
	return p, nil
}

func marshalStep(s *Step) stepDTO {
	children := make([]*planDTO, len(s.Children))
	for i, c := range s.Children {
		children[i] = marshalPlan(c)
	}
	return stepDTO{
		ID: s.ID, Kind: s.Kind.String(), Dependencies: s.Dependencies,
		Cacheable: s.Cacheable, CacheKey: s.CacheKey, EstimatedCost: s.EstimatedCost,
		URL: marshalExpr(s.URL), NavigateOptions: marshalNavigateOptions(s.NavigateOptions),
		Selector: s.Selector, Fields: marshalFields(s.Fields),
		InputVariable: s.InputVariable, OutputVariable: s.OutputVariable,
		Predicate: marshalExpr(s.Predicate), InitialValue: marshalExpr(s.InitialValue),
		Accumulator: s.Accumulator, Element: s.Element, SortKeys: marshalSortKeys(s.SortKeys),
		Limit: s.Limit, Offset: s.Offset,
		Then: marshalPlan(s.Then), Else: marshalPlan(s.Else), Body: marshalPlan(s.Body),
		IterVariable: s.IterVariable, Iterable: marshalExpr(s.Iterable), Children: children,
		Path: s.Path, Value: marshalExpr(s.Value), VariableName: s.VariableName,
		LeftKey: marshalExpr(s.LeftKey), RightKey: marshalExpr(s.RightKey), JoinType: joinTypeNames[s.JoinType],
	}
}

func unmarshalStep(d stepDTO) (*Step, error) {
	kind, err := parseKind(d.Kind)
	if err != nil {
		return nil, err
	}
	url, err := ast.UnmarshalExpression(d.URL)
	if err != nil {
		return nil, err
	}
	navOpts, err := unmarshalNavigateOptions(d.NavigateOptions)
	if err != nil {
		return nil, err
	}
	fields, err := unmarshalFields(d.Fields)
	if err != nil {
		return nil, err
	}
	predicate, err := ast.UnmarshalExpression(d.Predicate)
	if err != nil {
		return nil, err
	}
	initial, err := ast.UnmarshalExpression(d.InitialValue)
	if err != nil {
		return nil, err
	}
	sortKeys, err := unmarshalSortKeys(d.SortKeys)
	if err != nil {
		return nil, err
	}
	then, err := unmarshalPlan(d.Then)
	if err != nil {
		return nil, err
	}
	els, err := unmarshalPlan(d.Else)
	if err != nil {
		return nil, err
	}
	body, err := unmarshalPlan(d.Body)
	if err != nil {
		return nil, err
	}
	iterable, err := ast.UnmarshalExpression(d.Iterable)
	if err != nil {
		return nil, err
	}
	children := make([]*Plan, len(d.Children))
	for i, c := range d.Children {
		cp, err := unmarshalPlan(c)
		if err != nil {
			return nil, err
		}
		children[i] = cp
	}
	value, err := ast.UnmarshalExpression(d.Value)
	if err != nil {
		return nil, err
	}
	leftKey, err := ast.UnmarshalExpression(d.LeftKey)
	if err != nil {
		return nil, err
	}
	rightKey, err := ast.UnmarshalExpression(d.RightKey)
	if err != nil {
		return nil, err
	}
	joinType, err := parseJoinType(d.JoinType)
	if err != nil {
		return nil, err
	}
	return &Step{
		ID: d.ID, Kind: kind, Dependencies: d.Dependencies, Cacheable: d.Cacheable,
		CacheKey: d.CacheKey, EstimatedCost: d.EstimatedCost,
		URL: url, NavigateOptions: navOpts, Selector: d.Selector, Fields: fields,
		InputVariable: d.InputVariable, OutputVariable: d.OutputVariable,
		Predicate: predicate, InitialValue: initial, Accumulator: d.Accumulator,
		Element: d.Element, SortKeys: sortKeys, Limit: d.Limit, Offset: d.Offset,
		Then: then, Else: els, Body: body, IterVariable: d.IterVariable, Iterable: iterable,
		Children: children, Path: d.Path, Value: value, VariableName: d.VariableName,
		LeftKey: leftKey, RightKey: rightKey, JoinType: joinType,
	}, nil
}

// Serialize produces a textual (JSON) encoding of p: every step, dependency
// adjacency, the derived roots/leaves, the cacheable-step list, and
// parallel groups.
func Serialize(p *Plan) (string, error) {
	graph, err := depgraph.Build(p.Steps)
	if err != nil {
		return "", fmt.Errorf("plan: cannot serialize an invalid plan: %w", err)
	}
	natural := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		natural[i] = s.ID
	}
	if _, ok := graph.TopoSort(natural); !ok {
		return "", fmt.Errorf("plan: cannot serialize a plan with a dependency cycle")
	}

	steps := make([]stepDTO, len(p.Steps))
	var cacheable []string
	for i, s := range p.Steps {
		steps[i] = marshalStep(s)
		if s.Cacheable && s.CacheKey != "" {
			cacheable = append(cacheable, s.ID)
		}
	}

	groups := graph.ParallelGroups()

	snap := Snapshot{
		ResultID: p.ResultID, Resources: p.Resources, Steps: steps,
		Roots: graph.Roots, Leaves: graph.Leaves,
		CacheableSteps: cacheable, ParallelGroups: groups,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Deserialize parses a document produced by Serialize back into a *Plan and
// re-validates it (unique ids and resolvable dependencies via
// depgraph.Build, no cycles via Graph.TopoSort), matching the round-trip law's "validation succeeds on the
// deserialized plan".
func Deserialize(data string) (*Plan, error) {
	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("plan: invalid snapshot: %w", err)
	}
	steps := make([]*Step, len(snap.Steps))
	for i, d := range snap.Steps {
		s, err := unmarshalStep(d)
		if err != nil {
			return nil, err
		}
		steps[i] = s
	}
	p := &Plan{Steps: steps, ResultID: snap.ResultID, Resources: snap.Resources}
	graph, err := depgraph.Build(p.Steps)
	if err != nil {
		return nil, fmt.Errorf("plan: deserialized plan failed validation: %w", err)
	}
	natural := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		natural[i] = s.ID
	}
	if _, ok := graph.TopoSort(natural); !ok {
		return nil, fmt.Errorf("plan: deserialized plan has a dependency cycle")
	}
	return p, nil
}
