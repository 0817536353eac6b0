package semantic

import (
	"net/url"
	"strings"

	"github.com/webql/webql/ast"
	werrors "github.com/webql/webql/errors"
)

// validator implements phase 3: structural rules that do not require
// re-deriving scopes, only the already-annotated AST (duplicate fields,
// ORDER BY visibility, URL well-formedness, LIMIT/OFFSET bounds, NAVIGATE
// option sanity).
type validator struct {
	annotated *Annotated
	cfg       Config
}

func (v *validator) validateStatement(s ast.Statement) error {
	switch n := s.(type) {
	case *ast.Select:
		return v.validateSelect(n)
	case *ast.Navigate:
		return v.validateNavigate(n)
	case *ast.For:
		for _, b := range n.Body {
			if err := v.validateStatement(b); err != nil {
				return err
			}
		}
		return nil
	case *ast.If:
		for _, b := range n.Then {
			if err := v.validateStatement(b); err != nil {
				return err
			}
		}
		for _, b := range n.Else {
			if err := v.validateStatement(b); err != nil {
				return err
			}
		}
		return nil
	case *ast.With:
		for _, cte := range n.CTEs {
			if err := v.validateStatement(cte.Query); err != nil {
				return err
			}
		}
		return v.validateStatement(n.Query)
	}
	return nil
}

func (v *validator) validateSelect(n *ast.Select) error {
	if n.From.Subquery != nil {
		if err := v.validateStatement(n.From.Subquery); err != nil {
			return err
		}
	}
	if len(n.Fields) == 0 {
		return werrors.Validation.New("SELECT must name at least one field")
	}
	wildcard := len(n.Fields) == 1 && n.Fields[0].Name == "*"

	seen := map[string]bool{}
	for _, f := range n.Fields {
		if seen[f.Name] {
			return werrors.Validation.New("duplicate output field name %q", f.Name).
				WithContext("field", f.Name)
		}
		seen[f.Name] = true
	}

	if !wildcard {
		for _, sf := range n.OrderBy {
			name, _, ok := ast.DottedPath(sf.Field)
			if !ok {
				continue
			}
			if !seen[name] {
				return werrors.Validation.New("ORDER BY field %q is not present in the SELECT list", name).
					WithContext("field", name)
			}
		}
	}

	if n.Limit != nil && *n.Limit <= 0 {
		return werrors.Validation.New("LIMIT must be greater than zero").
			WithContext("actual", *n.Limit)
	}
	if n.Offset != nil && *n.Offset < 0 {
		return werrors.Validation.New("OFFSET must not be negative").
			WithContext("actual", *n.Offset)
	}

	if n.From.URL != nil {
		if err := v.validateURL(n.From.URL); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) validateURL(lit *ast.Literal) error {
	s, ok := lit.Value.(string)
	if !ok {
		return werrors.Validation.New("URL literal must be a string")
	}
	u, err := url.Parse(s)
	if err != nil {
		return werrors.Validation.New("malformed URL literal %q: %s", s, err.Error())
	}
	if u.Scheme == "" {
		return werrors.Validation.New("URL literal %q has no protocol", s)
	}
	allowed := v.cfg.allowedProtocols()
	scheme := u.Scheme + ":"
	for _, p := range allowed {
		if strings.EqualFold(p, scheme) {
			return nil
		}
	}
	return werrors.Validation.New("URL literal %q uses a disallowed protocol %q", s, scheme).
		WithContext("expected", allowed).WithContext("actual", scheme)
}

func (v *validator) validateNavigate(n *ast.Navigate) error {
	if lit, ok := n.URL.(*ast.Literal); ok {
		if err := v.validateURL(lit); err != nil {
			return err
		}
	}
	if n.Options == nil {
		return nil
	}
	if n.Options.Timeout != nil {
		if lit, ok := n.Options.Timeout.(*ast.Literal); ok {
			if num, ok := lit.Value.(float64); ok && num <= 0 {
				return werrors.Validation.New("NAVIGATE timeout must be positive").
					WithContext("actual", num)
			}
		}
	}
	if browser := n.Options.Browser; browser != nil {
		if vp, ok := browser["viewport"]; ok {
			if obj, ok := vp.(*ast.Object); ok {
				if err := validateViewport(obj); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func validateViewport(obj *ast.Object) error {
	for _, p := range obj.Properties {
		if p.Key != "width" && p.Key != "height" {
			continue
		}
		lit, ok := p.Value.(*ast.Literal)
		if !ok {
			continue
		}
		num, ok := lit.Value.(float64)
		if !ok || num <= 0 {
			return werrors.Validation.New("NAVIGATE viewport %s must be a positive number", p.Key).
				WithContext("field", p.Key)
		}
	}
	return nil
}
