package template

import (
	"device-adapter-core/internal/domain/model"
	"device-adapter-core/internal/ports"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Knetic/govaluate"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

var _ ports.TemplateRenderer = (*Renderer)(nil)

// Renderer expands {{ expression }} segments of a URL template. Expressions
// are govaluate formulas evaluated against the configured variables.
type Renderer struct {
	variables map[string]interface{}
	functions map[string]govaluate.ExpressionFunction
}

func NewRenderer(variables map[string]interface{}) *Renderer {
	return newRenderer(variables, time.Now)
}

func newRenderer(variables map[string]interface{}, now func() time.Time) *Renderer {
	vars := make(map[string]interface{}, len(variables))
	for k, v := range variables {
		vars[k] = normalize(v)
	}
	return &Renderer{
		variables: vars,
		functions: map[string]govaluate.ExpressionFunction{
			"now": func(args ...interface{}) (interface{}, error) {
				return float64(now().Unix()), nil
			},
			"lower": func(args ...interface{}) (interface{}, error) {
				if len(args) != 1 {
					return nil, fmt.Errorf("lower expects 1 argument, got %d", len(args))
				}
				return strings.ToLower(fmt.Sprint(args[0])), nil
			},
			"upper": func(args ...interface{}) (interface{}, error) {
				if len(args) != 1 {
					return nil, fmt.Errorf("upper expects 1 argument, got %d", len(args))
				}
				return strings.ToUpper(fmt.Sprint(args[0])), nil
			},
		},
	}
}

// Render returns tmpl with every expression replaced by its value. A string
// without expressions comes back unchanged.
func (r *Renderer) Render(tmpl string) (string, error) {
	if !strings.Contains(tmpl, openDelim) {
		return tmpl, nil
	}

	var b strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:start])
		rest = rest[start+len(openDelim):]

		end := strings.Index(rest, closeDelim)
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated expression in %q", model.ErrTemplate, tmpl)
		}
		value, err := r.evaluate(strings.TrimSpace(rest[:end]))
		if err != nil {
			return "", err
		}
		b.WriteString(value)
		rest = rest[end+len(closeDelim):]
	}
}

func (r *Renderer) evaluate(formula string) (string, error) {
	if formula == "" {
		return "", fmt.Errorf("%w: empty expression", model.ErrTemplate)
	}
	expression, err := govaluate.NewEvaluableExpressionWithFunctions(formula, r.functions)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", model.ErrTemplate, formula, err)
	}
	result, err := expression.Evaluate(r.variables)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", model.ErrTemplate, formula, err)
	}
	return format(result), nil
}

func format(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// normalize turns integer config values into float64, the only numeric type
// govaluate operators accept.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case uint:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
