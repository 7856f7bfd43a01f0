package expr

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
)

func TestNewCondition(t *testing.T) {
	for _, tc := range []struct {
		name     string
		req      traits.Requirement
		source   string
		value    traits.Value
		expected float64
	}{
		{
			name:     "bool_output_true",
			req:      traits.Requirement{Name: "extents", Kind: traits.KindVector2},
			source:   "value.x >= 1.0 && value.y >= 1.0",
			value:    traits.Vector2(r2.Vec{X: 2, Y: 1.5}),
			expected: 1,
		},
		{
			name:     "bool_output_false",
			req:      traits.Requirement{Name: "extents", Kind: traits.KindVector2},
			source:   "value.x >= 1.0 && value.y >= 1.0",
			value:    traits.Vector2(r2.Vec{X: 0.2, Y: 1.5}),
			expected: 0,
		},
		{
			name:     "double_output_is_clamped",
			req:      traits.Requirement{Name: "area", Kind: traits.KindFloat},
			source:   "value / 4.0",
			value:    traits.Float(10),
			expected: 1,
		},
		{
			name:     "double_output",
			req:      traits.Requirement{Name: "area", Kind: traits.KindFloat},
			source:   "value / 4.0",
			value:    traits.Float(1),
			expected: 0.25,
		},
		{
			name:     "string_trait",
			req:      traits.Requirement{Name: "label", Kind: traits.KindString},
			source:   "value.startsWith('qr-')",
			value:    traits.String("qr-12"),
			expected: 1,
		},
		{
			name:     "pose_height",
			req:      traits.Requirement{Name: "pose", Kind: traits.KindPose},
			source:   "value.y > 0.5",
			value:    traits.PoseValue(traits.Pose{Position: r3.Vec{Y: 0.8}, Rotation: traits.IdentityRotation}),
			expected: 1,
		},
		{
			name:     "mismatched_value_kind",
			req:      traits.Requirement{Name: "area", Kind: traits.KindFloat},
			source:   "value > 1.0",
			value:    traits.Int(5),
			expected: 0,
		},
		{
			name:     "missing_map_key_rates_zero",
			req:      traits.Requirement{Name: "extents", Kind: traits.KindVector2},
			source:   "value.z > 0.0",
			value:    traits.Vector2(r2.Vec{X: 1, Y: 1}),
			expected: 0,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewCondition(tc.req, tc.source)
			require.NoError(t, err)
			require.Equal(t, tc.req, c.Requirement())
			require.InDelta(t, tc.expected, c.RateDataMatch(tc.value), 1e-9)
		})
	}
}

func TestNewConditionErrors(t *testing.T) {
	t.Run("syntax", func(t *testing.T) {
		_, err := NewCondition(traits.Requirement{Name: "area", Kind: traits.KindFloat}, "value >")
		var compileErr *CompilationError
		require.ErrorAs(t, err, &compileErr)
	})

	t.Run("string_output", func(t *testing.T) {
		_, err := NewCondition(traits.Requirement{Name: "label", Kind: traits.KindString}, "value + 'x'")
		require.ErrorContains(t, err, "expected a bool or double expression output")
	})

	t.Run("invalid_requirement", func(t *testing.T) {
		_, err := NewCondition(traits.Requirement{Kind: traits.KindFloat}, "true")
		require.ErrorIs(t, err, traits.ErrInvalidRequirement)
	})
}

func TestNewRelation(t *testing.T) {
	poseReq := traits.Requirement{Name: "pose", Kind: traits.KindPose}
	r, err := NewRelation("table", poseReq, "lamp", poseReq, "b.y - a.y > 0.2")
	require.NoError(t, err)
	require.NoError(t, query.ValidateRelation(r))

	a, b := r.Children()
	require.Equal(t, "table", a)
	require.Equal(t, "lamp", b)

	low := traits.PoseValue(traits.Pose{Position: r3.Vec{Y: 0.7}})
	high := traits.PoseValue(traits.Pose{Position: r3.Vec{Y: 1.1}})
	require.Equal(t, 1.0, r.RateDataMatch(low, high))
	require.Zero(t, r.RateDataMatch(high, low))
	require.Zero(t, r.RateDataMatch(traits.Float(1), high))
}
