package scene

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/query/conditions"
	"github.com/proxima-xr/scenematch/pkg/query/expr"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

// Value converts v into a trait value.
func (v TraitValue) Value() (traits.Value, error) {
	var (
		out traits.Value
		n   int
	)

	if v.Bool != nil {
		out, n = traits.Bool(*v.Bool), n+1
	}
	if v.Int != nil {
		out, n = traits.Int(*v.Int), n+1
	}
	if v.Float != nil {
		out, n = traits.Float(*v.Float), n+1
	}
	if v.String != nil {
		out, n = traits.String(*v.String), n+1
	}
	if v.Vector2 != nil {
		if len(v.Vector2) != 2 {
			return traits.Value{}, fmt.Errorf("vector2 needs 2 components, got %d", len(v.Vector2))
		}
		out, n = traits.Vector2(r2.Vec{X: v.Vector2[0], Y: v.Vector2[1]}), n+1
	}
	if v.Vector3 != nil {
		if len(v.Vector3) != 3 {
			return traits.Value{}, fmt.Errorf("vector3 needs 3 components, got %d", len(v.Vector3))
		}
		out, n = traits.Vector3(r3.Vec{X: v.Vector3[0], Y: v.Vector3[1], Z: v.Vector3[2]}), n+1
	}
	if v.Pose != nil {
		pose, err := v.Pose.pose()
		if err != nil {
			return traits.Value{}, err
		}
		out, n = traits.PoseValue(pose), n+1
	}

	if n != 1 {
		return traits.Value{}, fmt.Errorf("a trait value needs exactly one type, got %d", n)
	}
	return out, nil
}

func (p *Pose) pose() (traits.Pose, error) {
	if len(p.Position) != 3 {
		return traits.Pose{}, fmt.Errorf("pose position needs 3 components, got %d", len(p.Position))
	}
	pose := traits.Pose{
		Position: r3.Vec{X: p.Position[0], Y: p.Position[1], Z: p.Position[2]},
		Rotation: traits.IdentityRotation,
	}

	switch {
	case p.Rotation != nil && p.Axis != nil:
		return traits.Pose{}, errors.New("pose takes a rotation or an axis and angle, not both")

	case p.Rotation != nil:
		if len(p.Rotation) != 4 {
			return traits.Pose{}, fmt.Errorf("pose rotation needs 4 components [w, x, y, z], got %d", len(p.Rotation))
		}
		q := quat.Number{Real: p.Rotation[0], Imag: p.Rotation[1], Jmag: p.Rotation[2], Kmag: p.Rotation[3]}
		norm := quat.Abs(q)
		if norm == 0 || math.IsNaN(norm) {
			return traits.Pose{}, errors.New("pose rotation must be a non-zero quaternion")
		}
		pose.Rotation = r3.Rotation(quat.Scale(1/norm, q))

	case p.Axis != nil:
		if len(p.Axis) != 3 {
			return traits.Pose{}, fmt.Errorf("pose axis needs 3 components, got %d", len(p.Axis))
		}
		axis := r3.Vec{X: p.Axis[0], Y: p.Axis[1], Z: p.Axis[2]}
		if r3.Norm(axis) == 0 {
			return traits.Pose{}, errors.New("pose axis must be non-zero")
		}
		pose.Rotation = r3.NewRotation(p.Angle, axis)
	}

	return pose, nil
}

// Build returns the query.Condition c describes. CEL sources are compiled.
func (c Condition) Build() (query.Condition, error) {
	var (
		out query.Condition
		n   int
	)

	if c.Tag != nil {
		out, n = &conditions.Tag{Trait: c.Tag.Trait, Exclude: c.Tag.Exclude}, n+1
	}
	if c.Range != nil {
		out, n = &conditions.Range{Trait: c.Range.Trait, Min: c.Range.Min, Max: c.Range.Max, Falloff: c.Range.Falloff}, n+1
	}
	if c.MinSize != nil {
		out, n = &conditions.MinSize{Trait: c.MinSize.Trait, Min: r2.Vec{X: c.MinSize.X, Y: c.MinSize.Y}}, n+1
	}
	if c.Equals != nil {
		out, n = &conditions.Equals{Trait: c.Equals.Trait, Value: c.Equals.Value}, n+1
	}
	if c.Upright != nil {
		out, n = &conditions.Upright{Trait: c.Upright.Trait, MaxAngle: c.Upright.MaxAngle}, n+1
	}
	if c.Elevation != nil {
		out, n = &conditions.Elevation{Trait: c.Elevation.Trait, Min: c.Elevation.Min, Max: c.Elevation.Max, Falloff: c.Elevation.Falloff}, n+1
	}
	if c.Expression != nil {
		req, err := requirement(c.Expression.Trait, c.Expression.Kind)
		if err != nil {
			return nil, err
		}
		cond, err := expr.NewCondition(req, c.Expression.Source)
		if err != nil {
			return nil, err
		}
		out, n = cond, n+1
	}

	if n != 1 {
		return nil, fmt.Errorf("a condition needs exactly one type, got %d", n)
	}
	if err := out.Requirement().Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Build returns the query.Relation r describes. CEL sources are compiled.
func (r Relation) Build() (query.Relation, error) {
	var (
		out query.Relation
		n   int
	)

	if r.Distance != nil {
		d := r.Distance
		out, n = &conditions.Distance{ChildA: d.A, ChildB: d.B, Trait: d.Trait, Min: d.Min, Max: d.Max, Falloff: d.Falloff}, n+1
	}
	if r.Above != nil {
		a := r.Above
		out, n = &conditions.Above{ChildA: a.A, ChildB: a.B, Trait: a.Trait, MinGap: a.MinGap}, n+1
	}
	if r.Expression != nil {
		e := r.Expression
		req, err := requirement(e.Trait, e.Kind)
		if err != nil {
			return nil, err
		}
		rel, err := expr.NewRelation(e.A, req, e.B, req, e.Source)
		if err != nil {
			return nil, err
		}
		out, n = rel, n+1
	}

	if n != 1 {
		return nil, fmt.Errorf("a relation needs exactly one type, got %d", n)
	}
	return out, nil
}

func requirement(trait, kind string) (traits.Requirement, error) {
	k, err := traits.ParseKind(kind)
	if err != nil {
		return traits.Requirement{}, err
	}
	req := traits.Requirement{Name: trait, Kind: k}
	return req, req.Validate()
}

func buildConditions(in []Condition) ([]query.Condition, error) {
	out := make([]query.Condition, 0, len(in))
	for i, c := range in {
		cond, err := c.Build()
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		out = append(out, cond)
	}
	return out, nil
}

func parseDuration(name, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative", name)
	}
	return d, nil
}

// Args returns the registration arguments of q, without handlers.
func (q Query) Args() (query.Args, error) {
	exclusivity, err := query.ParseExclusivity(q.Exclusivity)
	if err != nil {
		return query.Args{}, err
	}
	conds, err := buildConditions(q.Conditions)
	if err != nil {
		return query.Args{}, err
	}
	timeout, err := parseDuration("timeout", q.Timeout)
	if err != nil {
		return query.Args{}, err
	}
	interval, err := parseDuration("searchInterval", q.SearchInterval)
	if err != nil {
		return query.Args{}, err
	}

	args := query.Args{
		Conditions:      conds,
		Exclusivity:     exclusivity,
		ReacquireOnLoss: q.ReacquireOnLoss,
		Timeout:         timeout,
		SearchInterval:  interval,
	}
	return args, args.Validate()
}

// Args returns the registration arguments of s, without handlers. Members are required
// unless stated otherwise.
func (s Set) Args() (query.SetArgs, error) {
	timeout, err := parseDuration("timeout", s.Timeout)
	if err != nil {
		return query.SetArgs{}, err
	}
	interval, err := parseDuration("searchInterval", s.SearchInterval)
	if err != nil {
		return query.SetArgs{}, err
	}

	args := query.SetArgs{
		ReacquireOnLoss: s.ReacquireOnLoss,
		Timeout:         timeout,
		SearchInterval:  interval,
	}

	for _, m := range s.Members {
		exclusivity, err := query.ParseExclusivity(m.Exclusivity)
		if err != nil {
			return query.SetArgs{}, fmt.Errorf("member '%s': %w", m.Name, err)
		}
		conds, err := buildConditions(m.Conditions)
		if err != nil {
			return query.SetArgs{}, fmt.Errorf("member '%s': %w", m.Name, err)
		}
		args.Members = append(args.Members, query.Member{
			Name:        m.Name,
			Conditions:  conds,
			Exclusivity: exclusivity,
			Required:    m.Required == nil || *m.Required,
		})
	}

	for i, r := range s.Relations {
		rel, err := r.Build()
		if err != nil {
			return query.SetArgs{}, fmt.Errorf("relation %d: %w", i, err)
		}
		a, b := rel.Children()
		for _, child := range []string{a, b} {
			if args.MemberIndex(child) < 0 {
				return query.SetArgs{}, fmt.Errorf("relation %d: %w: '%s'", i, query.ErrUnknownMember, child)
			}
		}
		if a == b {
			return query.SetArgs{}, fmt.Errorf("relation %d: %w: '%s' is related to itself", i, query.ErrInvalidRelation, a)
		}
		args.Relations = append(args.Relations, rel)
	}

	return args, args.Validate()
}
