// Package conditions provides stock conditions and relations for common scene queries:
// semantic tags, numeric ranges, plane extents, marker ids and pose orientation.
package conditions

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

var worldUp = r3.Vec{Y: 1}

// falloff rates x against [lo, hi]: 1 inside, decaying linearly to 0 over width outside.
// A zero width makes the edge hard.
func falloff(x, lo, hi, width float64) float64 {
	var dist float64
	switch {
	case x < lo:
		dist = lo - x
	case x > hi:
		dist = x - hi
	default:
		return 1
	}
	if width <= 0 {
		return 0
	}
	return query.Clamp(1 - dist/width)
}

// Tag matches entities carrying a boolean semantic tag such as "floor" or "wall".
type Tag struct {
	Trait string

	// Exclude inverts the condition: entities tagged true are rejected.
	Exclude bool
}

var _ query.Condition = (*Tag)(nil)

func (c *Tag) Requirement() traits.Requirement {
	return traits.Requirement{Name: c.Trait, Kind: traits.KindBool}
}

func (c *Tag) RateDataMatch(v traits.Value) float64 {
	if v.Kind() != traits.KindBool || v.Bool() == c.Exclude {
		return 0
	}
	return 1
}

// Range matches a float trait inside [Min, Max], with an optional soft edge of width Falloff.
type Range struct {
	Trait    string
	Min, Max float64
	Falloff  float64
}

var _ query.Condition = (*Range)(nil)

func (c *Range) Requirement() traits.Requirement {
	return traits.Requirement{Name: c.Trait, Kind: traits.KindFloat}
}

func (c *Range) RateDataMatch(v traits.Value) float64 {
	if v.Kind() != traits.KindFloat {
		return 0
	}
	return falloff(v.Float(), c.Min, c.Max, c.Falloff)
}

// MinSize matches planes whose 2D extents are at least Min on both axes. Larger planes
// rate higher, saturating at twice the minimum area.
type MinSize struct {
	Trait string
	Min   r2.Vec
}

var _ query.Condition = (*MinSize)(nil)

func (c *MinSize) Requirement() traits.Requirement {
	return traits.Requirement{Name: c.Trait, Kind: traits.KindVector2}
}

func (c *MinSize) RateDataMatch(v traits.Value) float64 {
	if v.Kind() != traits.KindVector2 {
		return 0
	}
	size := v.Vector2()
	if size.X < c.Min.X || size.Y < c.Min.Y {
		return 0
	}
	minArea := c.Min.X * c.Min.Y
	if minArea <= 0 {
		return 1
	}
	extra := (size.X*size.Y - minArea) / minArea
	return query.Clamp(0.5 + 0.5*math.Min(1, extra))
}

// Equals matches a string trait such as a marker id or a face label.
type Equals struct {
	Trait string
	Value string
}

var _ query.Condition = (*Equals)(nil)

func (c *Equals) Requirement() traits.Requirement {
	return traits.Requirement{Name: c.Trait, Kind: traits.KindString}
}

func (c *Equals) RateDataMatch(v traits.Value) float64 {
	if v.Kind() != traits.KindString || v.Text() != c.Value {
		return 0
	}
	return 1
}

// Upright matches poses whose up axis is within MaxAngle radians of world up. The rating
// decreases linearly with the angle.
type Upright struct {
	Trait    string
	MaxAngle float64
}

var _ query.Condition = (*Upright)(nil)

func (c *Upright) Requirement() traits.Requirement {
	return traits.Requirement{Name: c.Trait, Kind: traits.KindPose}
}

func (c *Upright) RateDataMatch(v traits.Value) float64 {
	if v.Kind() != traits.KindPose || c.MaxAngle <= 0 {
		return 0
	}
	up := v.Pose().Up()
	n := r3.Norm(up)
	if n == 0 {
		return 0
	}
	angle := math.Acos(math.Max(-1, math.Min(1, r3.Dot(up, worldUp)/n)))
	if angle > c.MaxAngle {
		return 0
	}
	return query.Clamp(1 - angle/c.MaxAngle)
}

// Elevation matches poses whose height lies inside [Min, Max], with a soft edge.
type Elevation struct {
	Trait    string
	Min, Max float64
	Falloff  float64
}

var _ query.Condition = (*Elevation)(nil)

func (c *Elevation) Requirement() traits.Requirement {
	return traits.Requirement{Name: c.Trait, Kind: traits.KindPose}
}

func (c *Elevation) RateDataMatch(v traits.Value) float64 {
	if v.Kind() != traits.KindPose {
		return 0
	}
	return falloff(v.Pose().Position.Y, c.Min, c.Max, c.Falloff)
}
