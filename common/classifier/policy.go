package classifier

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pulse/vidmod/common/config"
)

// DefaultPolicyExpression flags a video when any frame reaches the threshold
const DefaultPolicyExpression = "frames.exists(f, f.likelihood >= threshold)"

// Policy decides whether a set of analyzed frames is flagged
type Policy interface {
	Flagged(frames []Frame) (bool, error)
}

// ThresholdPolicy flags when any frame is at or above Threshold
type ThresholdPolicy struct {
	Threshold Likelihood
}

// Flagged implements Policy
func (p ThresholdPolicy) Flagged(frames []Frame) (bool, error) {
	for _, f := range frames {
		if f.Likelihood >= p.Threshold {
			return true, nil
		}
	}
	return false, nil
}

// NewPolicy builds the configured policy. A non-empty expression selects CEL.
func NewPolicy(cfg config.ClassifierConfig) (Policy, error) {
	threshold, err := ParseLikelihood(cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("invalid classifier threshold: %w", err)
	}
	if cfg.PolicyExpr == "" {
		return ThresholdPolicy{Threshold: threshold}, nil
	}
	return NewCELPolicy(NewEvaluator(), cfg.PolicyExpr, threshold)
}

// CELPolicy evaluates a CEL expression over the analyzed frames.
// The expression sees frames (list of {likelihood, time_offset_ms}),
// threshold and max_likelihood, all as ordinals.
type CELPolicy struct {
	evaluator *Evaluator
	expr      string
	threshold Likelihood
}

// NewCELPolicy compiles expr eagerly so bad expressions fail at startup
func NewCELPolicy(evaluator *Evaluator, expr string, threshold Likelihood) (*CELPolicy, error) {
	if _, err := evaluator.program(expr); err != nil {
		return nil, err
	}
	return &CELPolicy{evaluator: evaluator, expr: expr, threshold: threshold}, nil
}

// Flagged implements Policy
func (p *CELPolicy) Flagged(frames []Frame) (bool, error) {
	list := make([]interface{}, 0, len(frames))
	for _, f := range frames {
		list = append(list, map[string]interface{}{
			"likelihood":     int64(f.Likelihood),
			"time_offset_ms": f.TimeOffsetMs,
		})
	}

	return p.evaluator.Evaluate(p.expr, map[string]interface{}{
		"frames":         list,
		"threshold":      int64(p.threshold),
		"max_likelihood": int64(maxLikelihood(frames)),
	})
}

// Evaluator compiles and caches CEL programs
type Evaluator struct {
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewEvaluator creates a new evaluator with caching
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]cel.Program),
	}
}

// Evaluate runs expr against vars and returns its boolean result
func (e *Evaluator) Evaluate(expr string, vars map[string]interface{}) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean, got %T", out.Value())
	}
	return result, nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, exists := e.cache[expr]
	e.mu.RUnlock()
	if exists {
		return prg, nil
	}

	prg, err := compileCEL(expr)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// CacheSize returns the number of cached expressions
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

func compileCEL(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("frames", cel.ListType(cel.DynType)),
		cel.Variable("threshold", cel.IntType),
		cel.Variable("max_likelihood", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("CEL expression must return bool, got %s", out)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return prg, nil
}
