package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"text/scanner"

	"github.com/PaesslerAG/gval"

	"github.com/R3E-Network/feed_layer/internal/feederr"
	"github.com/R3E-Network/feed_layer/internal/fixed"
	"github.com/R3E-Network/feed_layer/pkg/logger"
)

var expressionFuncs = map[string]func([]*big.Int) *big.Int{
	"min":    fixed.Min,
	"max":    fixed.Max,
	"median": fixed.Median,
	"mean":   fixed.Mean,
}

// fixedLanguage builds a gval language whose values are fixed-point *big.Int
// at the given decimals.
func fixedLanguage(decimals int) gval.Language {
	number := func(ctx context.Context, p *gval.Parser) (gval.Evaluable, error) {
		v, err := fixed.FromString(p.TokenText(), decimals)
		if err != nil {
			return nil, err
		}
		return p.Const(v), nil
	}
	binary := func(op func(a, b *big.Int) (*big.Int, error)) func(a, b interface{}) (interface{}, error) {
		return func(a, b interface{}) (interface{}, error) {
			x, ok1 := a.(*big.Int)
			y, ok2 := b.(*big.Int)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("operands must be prices, got %T and %T", a, b)
			}
			return op(x, y)
		}
	}
	variadic := func(name string, fn func([]*big.Int) *big.Int) gval.Language {
		return gval.Function(name, func(args ...interface{}) (interface{}, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("%s needs at least one argument", name)
			}
			values := make([]*big.Int, len(args))
			for i, arg := range args {
				v, ok := arg.(*big.Int)
				if !ok {
					return nil, fmt.Errorf("%s argument %d is %T", name, i, arg)
				}
				values[i] = v
			}
			return fn(values), nil
		})
	}

	langs := []gval.Language{
		gval.Base(),
		gval.PrefixExtension(scanner.Int, number),
		gval.PrefixExtension(scanner.Float, number),
		gval.PrefixOperator("-", func(ctx context.Context, v interface{}) (interface{}, error) {
			x, ok := v.(*big.Int)
			if !ok {
				return nil, fmt.Errorf("cannot negate %T", v)
			}
			return new(big.Int).Neg(x), nil
		}),
		gval.InfixOperator("+", binary(func(a, b *big.Int) (*big.Int, error) { return new(big.Int).Add(a, b), nil })),
		gval.InfixOperator("-", binary(func(a, b *big.Int) (*big.Int, error) { return new(big.Int).Sub(a, b), nil })),
		gval.InfixOperator("*", binary(func(a, b *big.Int) (*big.Int, error) { return fixed.Mul(a, b, decimals), nil })),
		gval.InfixOperator("/", binary(func(a, b *big.Int) (*big.Int, error) { return fixed.Div(a, b, decimals) })),
		gval.Precedence("+", 120),
		gval.Precedence("-", 120),
		gval.Precedence("*", 150),
		gval.Precedence("/", 150),
	}
	for name, fn := range expressionFuncs {
		langs = append(langs, variadic(name, fn))
	}
	return gval.NewLanguage(langs...)
}

// expressionVariables returns the distinct variable names in expr. Calls to
// unknown functions are a parse error.
func expressionVariables(expr string) ([]string, error) {
	var s scanner.Scanner
	s.Init(strings.NewReader(expr))
	s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats
	var scanErr error
	s.Error = func(_ *scanner.Scanner, msg string) { scanErr = errors.New(msg) }

	seen := make(map[string]bool)
	var names []string
	tok := s.Scan()
	for tok != scanner.EOF {
		if tok != scanner.Ident {
			tok = s.Scan()
			continue
		}
		name := s.TokenText()
		next := s.Scan()
		if next == '(' {
			if _, ok := expressionFuncs[name]; !ok {
				return nil, feederr.Parse("unknown function %q", name)
			}
		} else if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		tok = next
	}
	if scanErr != nil {
		return nil, feederr.Parse("scan expression: %v", scanErr)
	}
	sort.Strings(names)
	return names, nil
}

// Expression evaluates an arithmetic formula over named child feeds. Any
// referenced feed without a price fails the whole evaluation.
type Expression struct {
	name     string
	expr     string
	eval     gval.Evaluable
	vars     []string
	feeds    map[string]Feed
	children []Feed
	decimals int
	log      *logger.Logger
}

var _ Feed = (*Expression)(nil)

// NewExpression compiles expr. Syntax errors and references to feeds missing
// from feeds are configuration errors.
func NewExpression(name, expr string, feeds map[string]Feed, decimals int, log *logger.Logger) (*Expression, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, feederr.Config("%s: expression is empty", name)
	}
	if decimals <= 0 {
		decimals = DefaultDecimals
	}
	if log == nil {
		log = logger.NewDefault("pricefeed")
	}
	vars, err := expressionVariables(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", feederr.ErrConfig, name, err)
	}
	children := make([]Feed, 0, len(vars))
	for _, v := range vars {
		f, ok := feeds[v]
		if !ok || f == nil {
			return nil, feederr.Config("%s: expression references unknown feed %q", name, v)
		}
		children = append(children, f)
	}
	eval, err := fixedLanguage(decimals).NewEvaluable(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", feederr.ErrConfig, name, feederr.Parse("%v", err))
	}

	e := &Expression{
		name:     name,
		expr:     expr,
		eval:     eval,
		vars:     vars,
		feeds:    feeds,
		children: children,
		decimals: decimals,
		log:      log,
	}
	if err := e.dryRun(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", feederr.ErrConfig, name, err)
	}
	return e, nil
}

// dryRun evaluates the formula with distinct sample values to catch type
// errors at construction. Division by zero depends on data and is ignored.
func (e *Expression) dryRun() error {
	params := make(map[string]interface{}, len(e.vars))
	for i, v := range e.vars {
		params[v] = fixed.FromInt(int64(i+2), e.decimals)
	}
	_, err := e.eval(context.Background(), params)
	if err == nil || errors.Is(err, fixed.ErrDivisionByZero) ||
		strings.Contains(err.Error(), fixed.ErrDivisionByZero.Error()) {
		return nil
	}
	return feederr.Parse("%v", err)
}

func (e *Expression) evaluate(get priceOf) (*big.Int, error) {
	params := make(map[string]interface{}, len(e.vars))
	for _, v := range e.vars {
		f := e.feeds[v]
		p, err := get(f)
		if err != nil {
			return nil, fmt.Errorf("%s variable %s: %w", e.name, v, err)
		}
		params[v] = fixed.ConvertDecimals(p, f.PriceFeedDecimals(), e.decimals)
	}
	out, err := e.eval(context.Background(), params)
	if err != nil {
		return nil, feederr.NotFound("%s: evaluate %q: %v", e.name, e.expr, err)
	}
	v, ok := out.(*big.Int)
	if !ok {
		return nil, feederr.NotFound("%s: expression produced %T", e.name, out)
	}
	return v, nil
}

func (e *Expression) Update(ctx context.Context) error {
	return updateTolerant(ctx, e.name, e.children, e.log)
}

func (e *Expression) CurrentPrice() *big.Int {
	v, err := e.evaluate(func(f Feed) (*big.Int, error) {
		if p := f.CurrentPrice(); p != nil {
			return p, nil
		}
		return nil, feederr.NotFound("no current price")
	})
	if err != nil {
		return nil
	}
	return v
}

func (e *Expression) HistoricalPrice(t int64, ancillary []byte) (*big.Int, error) {
	return e.evaluate(func(f Feed) (*big.Int, error) {
		return historicalOf(f, t, ancillary)
	})
}

func (e *Expression) LastUpdateTime() (int64, bool) { return maxLastUpdate(e.children) }

func (e *Expression) PriceFeedDecimals() int { return e.decimals }

func (e *Expression) Lookback() int64 { return maxLookback(e.children) }
