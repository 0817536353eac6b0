package semantic

import (
	"github.com/webql/webql/ast"
	werrors "github.com/webql/webql/errors"
	"github.com/webql/webql/internal/similartext"
	"github.com/webql/webql/symtable"
	"github.com/webql/webql/types"
)

// walker performs phases 1 and 2 (symbol table construction and bottom-up
// type inference) in one recursive descent over the AST. Every scope push
// is popped on every exit path (mostly by a deferred pop right after the
// push; IF branches and FROM subqueries pop explicitly, error path
// included), so a failure deep in the recursion still unwinds the scope
// stack correctly, matching the design note on avoiding exception-based scope
// management.
type walker struct {
	symbols *symtable.Table
	cfg     Config
	types   map[ast.Expression]types.DataType
}

func (w *walker) checkDepth(depth int) error {
	if depth > w.cfg.maxDepth() {
		return depthError(depth, w.cfg.maxDepth())
	}
	return nil
}

func (w *walker) bindFieldSymbol(f ast.Field) {
	w.symbols.Current().Define(f.Name, symtable.FIELD, types.UNKNOWN, true)
}

func (w *walker) walkStatement(s ast.Statement, depth int) error {
	if err := w.checkDepth(depth); err != nil {
		return err
	}
	switch n := s.(type) {
	case *ast.Select:
		return w.walkSelect(n, depth)
	case *ast.Navigate:
		return w.walkNavigate(n, depth)
	case *ast.Set:
		_, err := w.infer(n.Value)
		return err
	case *ast.Show:
		return nil
	case *ast.For:
		return w.walkFor(n, depth)
	case *ast.If:
		return w.walkIf(n, depth)
	case *ast.Insert:
		w.symbols.Push(symtable.QUERY)
		defer w.symbols.Pop()
		for _, v := range n.Values {
			if _, err := w.infer(v); err != nil {
				return err
			}
		}
		return nil
	case *ast.Update:
		w.symbols.Push(symtable.QUERY)
		defer w.symbols.Pop()
		for _, asg := range n.Assignments {
			if _, err := w.infer(asg.Value); err != nil {
				return err
			}
		}
		if n.Where != nil {
			if _, err := w.infer(n.Where); err != nil {
				return err
			}
		}
		return nil
	case *ast.Delete:
		w.symbols.Push(symtable.QUERY)
		defer w.symbols.Pop()
		if n.Where != nil {
			if _, err := w.infer(n.Where); err != nil {
				return err
			}
		}
		return nil
	case *ast.With:
		return w.walkWith(n, depth)
	}
	return nil
}

func (w *walker) walkSelect(n *ast.Select, depth int) error {
	if n.From.Subquery != nil {
		w.symbols.Push(symtable.SUBQUERY)
		err := w.walkStatement(n.From.Subquery, depth+1)
		w.symbols.Pop()
		if err != nil {
			return err
		}
	}

	w.symbols.Push(symtable.QUERY)
	defer w.symbols.Pop()

	for _, f := range n.Fields {
		if f.Name == "*" {
			continue
		}
		if _, err := w.infer(f.Expr); err != nil {
			return err
		}
		w.bindFieldSymbol(f)
	}
	if n.Where != nil {
		t, err := w.infer(n.Where)
		if err != nil {
			return err
		}
		if t != types.BOOLEAN && t != types.UNKNOWN {
			return werrors.TypeCheck.New("WHERE clause must be boolean").
				WithContext("actual", t.String())
		}
	}
	for _, sf := range n.OrderBy {
		if _, err := w.infer(sf.Field); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) walkNavigate(n *ast.Navigate, depth int) error {
	if _, err := w.infer(n.URL); err != nil {
		return err
	}
	if n.Options != nil {
		for _, m := range []map[string]ast.Expression{n.Options.Proxy, n.Options.Browser} {
			for _, v := range m {
				if _, err := w.infer(v); err != nil {
					return err
				}
			}
		}
		for _, e := range []ast.Expression{n.Options.WaitFor, n.Options.WaitUntil, n.Options.Timeout, n.Options.Screenshot} {
			if e == nil {
				continue
			}
			if _, err := w.infer(e); err != nil {
				return err
			}
		}
	}
	w.symbols.Push(symtable.QUERY)
	defer w.symbols.Pop()
	for _, f := range n.Capture {
		w.bindFieldSymbol(f)
	}
	return nil
}

func (w *walker) walkFor(n *ast.For, depth int) error {
	if _, err := w.infer(n.Iterable); err != nil {
		return err
	}
	w.symbols.Push(symtable.FOR_LOOP)
	defer w.symbols.Pop()
	w.symbols.Current().Define(n.Variable, symtable.VARIABLE, types.UNKNOWN, true)
	for _, s := range n.Body {
		if err := w.walkStatement(s, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) walkIf(n *ast.If, depth int) error {
	condType, err := w.infer(n.Condition)
	if err != nil {
		return err
	}
	if condType != types.BOOLEAN && condType != types.UNKNOWN {
		return werrors.TypeCheck.New("IF condition must be boolean").
			WithContext("actual", condType.String())
	}

	w.symbols.Push(symtable.IF_BRANCH)
	for _, s := range n.Then {
		if err := w.walkStatement(s, depth+1); err != nil {
			w.symbols.Pop()
			return err
		}
	}
	w.symbols.Pop()

	if n.Else != nil {
		w.symbols.Push(symtable.IF_BRANCH)
		for _, s := range n.Else {
			if err := w.walkStatement(s, depth+1); err != nil {
				w.symbols.Pop()
				return err
			}
		}
		w.symbols.Pop()
	}
	return nil
}

func (w *walker) walkWith(n *ast.With, depth int) error {
	w.symbols.Push(symtable.CTE_SCOPE)
	defer w.symbols.Pop()
	for _, cte := range n.CTEs {
		w.symbols.Current().Define(cte.Name, symtable.CTE, types.UNKNOWN, true)
		if err := w.walkStatement(cte.Query, depth+1); err != nil {
			return err
		}
	}
	return w.walkStatement(n.Query, depth+1)
}

// infer performs bottom-up type inference over e, recording the result in
// w.types and returning it.
func (w *walker) infer(e ast.Expression) (types.DataType, error) {
	t, err := w.inferNode(e)
	if err != nil {
		return types.UNKNOWN, err
	}
	w.types[e] = t
	return t, nil
}

func (w *walker) inferNode(e ast.Expression) (types.DataType, error) {
	switch n := e.(type) {
	case *ast.Literal:
		return n.DataType, nil
	case *ast.Identifier:
		if sym, ok := w.symbols.Current().Lookup(n.Name); ok {
			return sym.Type, nil
		}
		if w.cfg.AllowUndefinedVariables || n.Name == "*" {
			return types.UNKNOWN, nil
		}
		suggestion := similartext.Find(w.symbols.Current().VisibleNames(), n.Name)
		return types.UNKNOWN, werrors.Semantic.New("undefined variable %q%s", n.Name, suggestion)
	case *ast.Binary:
		return w.inferBinary(n)
	case *ast.Unary:
		return w.inferUnary(n)
	case *ast.Call:
		return w.inferCall(n)
	case *ast.Member:
		return w.inferMember(n)
	case *ast.Array:
		for _, el := range n.Elements {
			if _, err := w.infer(el); err != nil {
				return types.UNKNOWN, err
			}
		}
		return types.ARRAY, nil
	case *ast.Object:
		for _, p := range n.Properties {
			if _, err := w.infer(p.Value); err != nil {
				return types.UNKNOWN, err
			}
		}
		return types.OBJECT, nil
	}
	return types.UNKNOWN, nil
}

func (w *walker) inferBinary(n *ast.Binary) (types.DataType, error) {
	lt, err := w.infer(n.Left)
	if err != nil {
		return types.UNKNOWN, err
	}
	rt, err := w.infer(n.Right)
	if err != nil {
		return types.UNKNOWN, err
	}

	switch n.Op {
	case ast.OpEq, ast.OpNeq, ast.OpGt, ast.OpGte, ast.OpLt, ast.OpLte,
		ast.OpIn, ast.OpNotIn, ast.OpLike, ast.OpNotLike, ast.OpMatches, ast.OpContains:
		if !types.Compatible(lt, rt) {
			return types.UNKNOWN, werrors.TypeCheck.New("incompatible operand types for %s: %s and %s", n.Op, lt, rt).
				WithContext("expected", lt.String()).WithContext("actual", rt.String())
		}
		return types.BOOLEAN, nil
	case ast.OpAnd, ast.OpOr:
		if err := requireBoolean(lt, "left operand of "+n.Op.String()); err != nil {
			return types.UNKNOWN, err
		}
		if err := requireBoolean(rt, "right operand of "+n.Op.String()); err != nil {
			return types.UNKNOWN, err
		}
		return types.BOOLEAN, nil
	case ast.OpAdd:
		if lt == types.STRING || rt == types.STRING {
			return types.STRING, nil
		}
		if err := requireNumber(lt, "left operand of +"); err != nil {
			return types.UNKNOWN, err
		}
		if err := requireNumber(rt, "right operand of +"); err != nil {
			return types.UNKNOWN, err
		}
		return types.NUMBER, nil
	case ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod:
		if err := requireNumber(lt, "left operand of "+n.Op.String()); err != nil {
			return types.UNKNOWN, err
		}
		if err := requireNumber(rt, "right operand of "+n.Op.String()); err != nil {
			return types.UNKNOWN, err
		}
		return types.NUMBER, nil
	case ast.OpConcat:
		return types.STRING, nil
	}
	return types.UNKNOWN, nil
}

func (w *walker) inferUnary(n *ast.Unary) (types.DataType, error) {
	t, err := w.infer(n.Operand)
	if err != nil {
		return types.UNKNOWN, err
	}
	switch n.Op {
	case ast.OpNot:
		if err := requireBoolean(t, "operand of NOT"); err != nil {
			return types.UNKNOWN, err
		}
		return types.BOOLEAN, nil
	case ast.OpNeg, ast.OpPos:
		if err := requireNumber(t, "operand of unary "+n.Op.String()); err != nil {
			return types.UNKNOWN, err
		}
		return types.NUMBER, nil
	}
	return types.UNKNOWN, nil
}

func (w *walker) inferCall(n *ast.Call) (types.DataType, error) {
	for _, a := range n.Args {
		if _, err := w.infer(a); err != nil {
			return types.UNKNOWN, err
		}
	}
	if t, ok := builtinReturnTypes[n.Callee]; ok {
		return t, nil
	}
	if sym, ok := w.symbols.Current().Lookup(n.Callee); ok && sym.Kind == symtable.FUNCTION {
		return sym.Type, nil
	}
	return types.UNKNOWN, nil
}

func (w *walker) inferMember(n *ast.Member) (types.DataType, error) {
	objType, err := w.infer(n.Object)
	if err != nil {
		return types.UNKNOWN, err
	}
	if n.Computed {
		if _, err := w.infer(n.Property); err != nil {
			return types.UNKNOWN, err
		}
	}
	switch objType {
	case types.ARRAY:
		return types.ARRAY, nil
	case types.OBJECT:
		return types.OBJECT, nil
	}
	return types.UNKNOWN, nil
}

func requireBoolean(t types.DataType, what string) error {
	if t != types.BOOLEAN && t != types.UNKNOWN && t != types.NULL {
		return werrors.TypeCheck.New("%s must be boolean, got %s", what, t).
			WithContext("expected", "BOOLEAN").WithContext("actual", t.String())
	}
	return nil
}

func requireNumber(t types.DataType, what string) error {
	if t != types.NUMBER && t != types.UNKNOWN && t != types.NULL {
		return werrors.TypeCheck.New("%s must be a number, got %s", what, t).
			WithContext("expected", "NUMBER").WithContext("actual", t.String())
	}
	return nil
}
