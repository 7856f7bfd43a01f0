package conditions

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

// Distance relates two members whose pose positions lie between Min and Max apart.
type Distance struct {
	ChildA, ChildB string
	Trait          string
	Min, Max       float64
	Falloff        float64
}

var _ query.Relation = (*Distance)(nil)

func (r *Distance) Children() (string, string) {
	return r.ChildA, r.ChildB
}

func (r *Distance) Requirements() []traits.Requirement {
	req := traits.Requirement{Name: r.Trait, Kind: traits.KindPose}
	return []traits.Requirement{req, req}
}

func (r *Distance) RateDataMatch(a, b traits.Value) float64 {
	if a.Kind() != traits.KindPose || b.Kind() != traits.KindPose {
		return 0
	}
	d := r3.Norm(r3.Sub(a.Pose().Position, b.Pose().Position))
	return falloff(d, r.Min, r.Max, r.Falloff)
}

// Above relates two members where ChildA sits at least MinGap higher than ChildB.
type Above struct {
	ChildA, ChildB string
	Trait          string
	MinGap         float64
}

var _ query.Relation = (*Above)(nil)

func (r *Above) Children() (string, string) {
	return r.ChildA, r.ChildB
}

func (r *Above) Requirements() []traits.Requirement {
	req := traits.Requirement{Name: r.Trait, Kind: traits.KindPose}
	return []traits.Requirement{req, req}
}

func (r *Above) RateDataMatch(a, b traits.Value) float64 {
	if a.Kind() != traits.KindPose || b.Kind() != traits.KindPose {
		return 0
	}
	if a.Pose().Position.Y-b.Pose().Position.Y < r.MinGap {
		return 0
	}
	return 1
}
