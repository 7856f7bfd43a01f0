// Package expr compiles CEL expressions into conditions and relations, so scene authors
// can express predicates without writing Go.
//
// A condition expression sees the trait as `value`; a relation expression sees the two
// member traits as `a` and `b`. Vectors and poses are maps with the keys x, y, z (and
// qw, qx, qy, qz for pose orientation). An expression must produce a bool (true rates 1)
// or a double (clamped to [0,1]).
package expr

import (
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common"

	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

// DefaultMaxEvaluationCost bounds the work a single rating may do.
const DefaultMaxEvaluationCost = 200

// CompilationError is returned when an expression does not compile for the declared trait kinds.
type CompilationError struct {
	Expression string
	Cause      error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile expression '%s': %v", e.Expression, e.Cause)
}

func (e *CompilationError) Unwrap() error {
	return e.Cause
}

func celType(kind traits.Kind) (*cel.Type, error) {
	switch kind {
	case traits.KindBool:
		return cel.BoolType, nil
	case traits.KindInt:
		return cel.IntType, nil
	case traits.KindFloat:
		return cel.DoubleType, nil
	case traits.KindString:
		return cel.StringType, nil
	case traits.KindVector2, traits.KindVector3, traits.KindPose:
		return cel.MapType(cel.StringType, cel.DoubleType), nil
	}
	return nil, fmt.Errorf("trait kind %s has no expression type", kind)
}

// native converts a trait value into the activation value matching celType.
func native(v traits.Value) any {
	switch v.Kind() {
	case traits.KindBool:
		return v.Bool()
	case traits.KindInt:
		return v.Int()
	case traits.KindFloat:
		return v.Float()
	case traits.KindString:
		return v.Text()
	case traits.KindVector2:
		p := v.Vector2()
		return map[string]float64{"x": p.X, "y": p.Y}
	case traits.KindVector3:
		p := v.Vector3()
		return map[string]float64{"x": p.X, "y": p.Y, "z": p.Z}
	case traits.KindPose:
		p := v.Pose()
		return map[string]float64{
			"x": p.Position.X, "y": p.Position.Y, "z": p.Position.Z,
			"qw": p.Rotation.Real, "qx": p.Rotation.Imag, "qy": p.Rotation.Jmag, "qz": p.Rotation.Kmag,
		}
	}
	return nil
}

type program struct {
	prg    cel.Program
	source string
}

func compile(source string, vars map[string]traits.Kind) (*program, error) {
	opts := []cel.EnvOption{cel.CrossTypeNumericComparisons(true)}
	for name, kind := range vars {
		t, err := celType(kind)
		if err != nil {
			return nil, &CompilationError{Expression: source, Cause: err}
		}
		opts = append(opts, cel.Variable(name, t))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, &CompilationError{Expression: source, Cause: err}
	}

	ast, issues := env.CompileSource(common.NewStringSource(source, "expression"))
	if issues != nil {
		if err := issues.Err(); err != nil {
			return nil, &CompilationError{Expression: source, Cause: err}
		}
	}

	out := ast.OutputType()
	if !reflect.DeepEqual(out, cel.BoolType) && !reflect.DeepEqual(out, cel.DoubleType) {
		return nil, &CompilationError{
			Expression: source,
			Cause:      fmt.Errorf("expected a bool or double expression output, but got '%s'", out),
		}
	}

	prg, err := env.Program(ast, cel.CostLimit(DefaultMaxEvaluationCost))
	if err != nil {
		return nil, &CompilationError{Expression: source, Cause: fmt.Errorf("expression program construction: %w", err)}
	}

	return &program{prg: prg, source: source}, nil
}

// rate evaluates the program; evaluation errors (a missing map key, an exceeded cost)
// rate zero.
func (p *program) rate(activation map[string]any) float64 {
	out, _, err := p.prg.Eval(activation)
	if err != nil {
		return 0
	}
	switch v := out.Value().(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	case float64:
		return query.Clamp(v)
	}
	return 0
}

// Condition is a CEL-backed query.Condition.
type Condition struct {
	req traits.Requirement
	p   *program
}

var _ query.Condition = (*Condition)(nil)

// NewCondition compiles source as a condition over the trait req.
func NewCondition(req traits.Requirement, source string) (*Condition, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p, err := compile(source, map[string]traits.Kind{"value": req.Kind})
	if err != nil {
		return nil, err
	}
	return &Condition{req: req, p: p}, nil
}

func (c *Condition) Requirement() traits.Requirement {
	return c.req
}

func (c *Condition) RateDataMatch(v traits.Value) float64 {
	if !c.req.Satisfies(v) {
		return 0
	}
	return c.p.rate(map[string]any{"value": native(v)})
}

func (c *Condition) String() string {
	return c.p.source
}

// Relation is a CEL-backed query.Relation.
type Relation struct {
	childA, childB string
	reqs           []traits.Requirement
	p              *program
}

var _ query.Relation = (*Relation)(nil)

// NewRelation compiles source as a relation between childA's reqA and childB's reqB.
func NewRelation(childA string, reqA traits.Requirement, childB string, reqB traits.Requirement, source string) (*Relation, error) {
	for _, req := range []traits.Requirement{reqA, reqB} {
		if err := req.Validate(); err != nil {
			return nil, err
		}
	}
	p, err := compile(source, map[string]traits.Kind{"a": reqA.Kind, "b": reqB.Kind})
	if err != nil {
		return nil, err
	}
	return &Relation{
		childA: childA,
		childB: childB,
		reqs:   []traits.Requirement{reqA, reqB},
		p:      p,
	}, nil
}

func (r *Relation) Children() (string, string) {
	return r.childA, r.childB
}

func (r *Relation) Requirements() []traits.Requirement {
	return r.reqs
}

func (r *Relation) RateDataMatch(a, b traits.Value) float64 {
	if !r.reqs[0].Satisfies(a) || !r.reqs[1].Satisfies(b) {
		return 0
	}
	return r.p.rate(map[string]any{"a": native(a), "b": native(b)})
}

func (r *Relation) String() string {
	return r.p.source
}
