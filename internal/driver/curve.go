package driver

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
	"github.com/rs/zerolog/log"
)

// Curve reshapes requested brightness before it reaches the translator, for
// fixtures whose ladder is far from perceptually linear. The expression sees
// the brightness as x in [0,1], e.g. "x ** 2.2".
type Curve struct {
	source string
	expr   *govaluate.EvaluableExpression
}

// ParseCurve compiles a curve expression. An empty source yields nil, which
// is the identity.
func ParseCurve(source string) (*Curve, error) {
	if source == "" {
		return nil, nil
	}
	expr, err := govaluate.NewEvaluableExpression(source)
	if err != nil {
		return nil, fmt.Errorf("invalid brightness curve %q: %w", source, err)
	}
	for _, v := range expr.Vars() {
		if v != "x" {
			return nil, fmt.Errorf("invalid brightness curve %q: unknown variable %q", source, v)
		}
	}
	return &Curve{source: source, expr: expr}, nil
}

// Apply evaluates the curve at x. Evaluation failures and non-numeric results
// fall back to x.
func (c *Curve) Apply(x float64) float64 {
	if c == nil {
		return x
	}

	out, err := c.expr.Evaluate(map[string]interface{}{"x": x})
	if err != nil {
		log.Warn().Err(err).Str("curve", c.source).Msg("Brightness curve failed, using input")
		return x
	}

	y, ok := out.(float64)
	if !ok || math.IsNaN(y) || math.IsInf(y, 0) {
		log.Warn().Str("curve", c.source).Interface("result", out).Msg("Brightness curve returned non-number, using input")
		return x
	}
	return y
}

func (c *Curve) String() string {
	if c == nil {
		return "x"
	}
	return c.source
}
