package traits

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestValueAs(t *testing.T) {
	t.Run("matching_kind", func(t *testing.T) {
		f, ok := As[float64](Float(0.5))
		require.True(t, ok)
		require.InDelta(t, 0.5, f, 1e-9)

		s, ok := As[string](String("floor"))
		require.True(t, ok)
		require.Equal(t, "floor", s)

		v, ok := As[r2.Vec](Vector2(r2.Vec{X: 1, Y: 2}))
		require.True(t, ok)
		require.Equal(t, r2.Vec{X: 1, Y: 2}, v)

		p, ok := As[Pose](PoseValue(Pose{Position: r3.Vec{Y: 1}, Rotation: IdentityRotation}))
		require.True(t, ok)
		require.Equal(t, r3.Vec{Y: 1}, p.Position)
	})

	t.Run("mismatched_kind", func(t *testing.T) {
		_, ok := As[bool](Float(1))
		require.False(t, ok)

		_, ok = As[int64](Value{})
		require.False(t, ok)
	})
}

func TestOfRoundTripsKind(t *testing.T) {
	require.Equal(t, KindBool, Of(true).Kind())
	require.Equal(t, KindInt, Of(int64(3)).Kind())
	require.Equal(t, KindVector3, Of(r3.Vec{X: 1}).Kind())
	require.Equal(t, KindPose, Of(Pose{}).Kind())
}

func TestValueEqual(t *testing.T) {
	require.True(t, Float(math.NaN()).Equal(Float(math.NaN())))
	require.False(t, Float(1).Equal(Int(1)))
	require.False(t, String("a").Equal(String("b")))
	require.True(t, Vector3(r3.Vec{X: 1}).Equal(Vector3(r3.Vec{X: 1})))
}

func TestPoseUp(t *testing.T) {
	t.Run("zero_rotation_is_identity", func(t *testing.T) {
		require.Equal(t, r3.Vec{Y: 1}, Pose{}.Up())
	})

	t.Run("quarter_turn_about_x", func(t *testing.T) {
		p := Pose{Rotation: r3.NewRotation(math.Pi/2, r3.Vec{X: 1})}
		up := p.Up()
		require.InDelta(t, 0, up.Y, 1e-9)
		require.InDelta(t, 1, math.Abs(up.Z), 1e-9)
	})
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("vector2")
	require.NoError(t, err)
	require.Equal(t, KindVector2, k)

	_, err = ParseKind("invalid")
	require.Error(t, err)

	_, err = ParseKind("matrix")
	require.Error(t, err)
}

func TestRequirementValidate(t *testing.T) {
	require.NoError(t, Requirement{Name: "pose", Kind: KindPose}.Validate())
	require.ErrorIs(t, Requirement{Kind: KindPose}.Validate(), ErrInvalidRequirement)
	require.ErrorIs(t, Requirement{Name: "pose"}.Validate(), ErrInvalidRequirement)
	require.ErrorIs(t, Requirement{Name: "pose", Kind: Kind(99)}.Validate(), ErrInvalidRequirement)
}
