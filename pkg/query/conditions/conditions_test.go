package conditions

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

func pose(x, y, z float64) traits.Value {
	return traits.PoseValue(traits.Pose{Position: r3.Vec{X: x, Y: y, Z: z}, Rotation: traits.IdentityRotation})
}

func TestConditions(t *testing.T) {
	for _, tc := range []struct {
		name     string
		cond     query.Condition
		value    traits.Value
		expected float64
	}{
		{name: "tag_true", cond: &Tag{Trait: "floor"}, value: traits.Bool(true), expected: 1},
		{name: "tag_false", cond: &Tag{Trait: "floor"}, value: traits.Bool(false), expected: 0},
		{name: "tag_excluded", cond: &Tag{Trait: "wall", Exclude: true}, value: traits.Bool(true), expected: 0},
		{name: "tag_exclude_passes_untagged", cond: &Tag{Trait: "wall", Exclude: true}, value: traits.Bool(false), expected: 1},
		{name: "tag_wrong_kind", cond: &Tag{Trait: "floor"}, value: traits.Int(1), expected: 0},

		{name: "range_inside", cond: &Range{Trait: "h", Min: 1, Max: 2}, value: traits.Float(1.5), expected: 1},
		{name: "range_hard_edge", cond: &Range{Trait: "h", Min: 1, Max: 2}, value: traits.Float(2.1), expected: 0},
		{name: "range_soft_edge", cond: &Range{Trait: "h", Min: 1, Max: 2, Falloff: 1}, value: traits.Float(2.5), expected: 0.5},
		{name: "range_beyond_falloff", cond: &Range{Trait: "h", Min: 1, Max: 2, Falloff: 1}, value: traits.Float(0), expected: 0},

		{name: "min_size_too_small", cond: &MinSize{Trait: "extents", Min: r2.Vec{X: 1, Y: 1}}, value: traits.Vector2(r2.Vec{X: 2, Y: 0.5}), expected: 0},
		{name: "min_size_exact", cond: &MinSize{Trait: "extents", Min: r2.Vec{X: 1, Y: 1}}, value: traits.Vector2(r2.Vec{X: 1, Y: 1}), expected: 0.5},
		{name: "min_size_saturates", cond: &MinSize{Trait: "extents", Min: r2.Vec{X: 1, Y: 1}}, value: traits.Vector2(r2.Vec{X: 4, Y: 4}), expected: 1},
		{name: "min_size_zero_min", cond: &MinSize{Trait: "extents"}, value: traits.Vector2(r2.Vec{X: 0.1, Y: 0.1}), expected: 1},

		{name: "equals_match", cond: &Equals{Trait: "marker", Value: "qr-7"}, value: traits.String("qr-7"), expected: 1},
		{name: "equals_mismatch", cond: &Equals{Trait: "marker", Value: "qr-7"}, value: traits.String("qr-8"), expected: 0},

		{name: "upright_identity", cond: &Upright{Trait: "pose", MaxAngle: math.Pi / 4}, value: pose(0, 0, 0), expected: 1},
		{
			name:     "upright_tilted_past_limit",
			cond:     &Upright{Trait: "pose", MaxAngle: math.Pi / 4},
			value:    traits.PoseValue(traits.Pose{Rotation: r3.NewRotation(math.Pi/2, r3.Vec{X: 1})}),
			expected: 0,
		},
		{
			name:     "upright_half_tilted",
			cond:     &Upright{Trait: "pose", MaxAngle: math.Pi / 4},
			value:    traits.PoseValue(traits.Pose{Rotation: r3.NewRotation(math.Pi/8, r3.Vec{Z: 1})}),
			expected: 0.5,
		},

		{name: "elevation_inside", cond: &Elevation{Trait: "pose", Min: 0.5, Max: 1}, value: pose(0, 0.7, 0), expected: 1},
		{name: "elevation_outside", cond: &Elevation{Trait: "pose", Min: 0.5, Max: 1}, value: pose(0, 3, 0), expected: 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.expected, tc.cond.RateDataMatch(tc.value), 1e-6)
		})
	}
}

func TestRelations(t *testing.T) {
	t.Run("distance", func(t *testing.T) {
		r := &Distance{ChildA: "table", ChildB: "chair", Trait: "pose", Min: 0.5, Max: 1.5}
		require.NoError(t, query.ValidateRelation(r))

		require.Equal(t, 1.0, r.RateDataMatch(pose(0, 0, 0), pose(1, 0, 0)))
		require.Zero(t, r.RateDataMatch(pose(0, 0, 0), pose(3, 0, 0)))
		require.Zero(t, r.RateDataMatch(pose(0, 0, 0), traits.Float(1)))
	})

	t.Run("above", func(t *testing.T) {
		r := &Above{ChildA: "shelf", ChildB: "floor", Trait: "pose", MinGap: 0.3}
		require.NoError(t, query.ValidateRelation(r))

		require.Equal(t, 1.0, r.RateDataMatch(pose(0, 1, 0), pose(0, 0, 0)))
		require.Zero(t, r.RateDataMatch(pose(0, 0.1, 0), pose(0, 0, 0)))
	})
}
