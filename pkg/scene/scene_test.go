package scene

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/proxima-xr/scenematch/pkg/engine"
	"github.com/proxima-xr/scenematch/pkg/query"
	"github.com/proxima-xr/scenematch/pkg/traits"
	"github.com/proxima-xr/scenematch/pkg/traits/memory"
)

const scenesDir = "../../examples/scenes"

func TestExampleScenesAreValid(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join(scenesDir, "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := Load(path)
			require.NoError(t, err)
			require.NoError(t, s.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	_, err := Load(filepath.Join(scenesDir, "missing.yaml"))
	require.ErrorContains(t, err, "failed to read scene file")

	_, err = Parse([]byte("name: x\nunknown: 1\n"))
	require.ErrorIs(t, err, ErrInvalidScene)

	s, err := Parse([]byte(`{"name": "json", "entities": [{"id": 3, "traits": {"seen": {"bool": true}}}]}`))
	require.NoError(t, err)
	require.Equal(t, "json", s.Name)
	require.Equal(t, 1, s.Length())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		err  string
	}{
		{
			name: "duplicate_entity",
			yaml: `
entities:
  - {id: 1}
  - {id: 1}`,
			err: "id 1 is declared twice",
		},
		{
			name: "two_types",
			yaml: `
entities:
  - id: 1
    traits:
      x: {bool: true, int: 3}`,
			err: "exactly one type",
		},
		{
			name: "short_vector",
			yaml: `
entities:
  - id: 1
    traits:
      x: {vector3: [1, 2]}`,
			err: "vector3 needs 3 components",
		},
		{
			name: "disappear_before_appear",
			yaml: `
entities:
  - {id: 1, appear: 4, disappear: 2}`,
			err: "disappear must be after appear",
		},
		{
			name: "keyframe_outside_lifetime",
			yaml: `
entities:
  - id: 1
    disappear: 3
    keyframes:
      - {tick: 5, traits: {x: {int: 1}}}`,
			err: "outside of its lifetime",
		},
		{
			name: "no_conditions",
			yaml: `
queries:
  - {id: 1, conditions: []}`,
			err: query.ErrNoConditions.Error(),
		},
		{
			name: "bad_exclusivity",
			yaml: `
queries:
  - id: 1
    exclusivity: mine
    conditions: [{tag: {trait: floor}}]`,
			err: "invalid exclusivity",
		},
		{
			name: "bad_timeout",
			yaml: `
queries:
  - id: 1
    timeout: soon
    conditions: [{tag: {trait: floor}}]`,
			err: "timeout",
		},
		{
			name: "bad_cel",
			yaml: `
queries:
  - id: 1
    conditions: [{expression: {trait: x, kind: float, source: "value >"}}]`,
			err: "query 1",
		},
		{
			name: "unknown_kind",
			yaml: `
queries:
  - id: 1
    conditions: [{expression: {trait: x, kind: matrix, source: "true"}}]`,
			err: "unknown trait kind",
		},
		{
			name: "duplicate_query_id",
			yaml: `
queries:
  - {id: 1, conditions: [{tag: {trait: a}}]}
sets:
  - id: 1
    members:
      - {name: m, conditions: [{tag: {trait: a}}]}`,
			err: "set 1: id is declared twice",
		},
		{
			name: "unknown_member",
			yaml: `
sets:
  - id: 2
    members:
      - {name: a, conditions: [{tag: {trait: t}}]}
    relations:
      - distance: {a: a, b: ghost, trait: pose, max: 1}`,
			err: query.ErrUnknownMember.Error(),
		},
		{
			name: "no_required_member",
			yaml: `
sets:
  - id: 2
    members:
      - {name: a, required: false, conditions: [{tag: {trait: t}}]}`,
			err: query.ErrNoMembers.Error(),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, err := Parse([]byte(test.yaml))
			require.NoError(t, err)

			err = s.Validate()
			require.ErrorIs(t, err, ErrInvalidScene)
			require.ErrorContains(t, err, test.err)
		})
	}
}

func TestPoseValues(t *testing.T) {
	tests := []struct {
		name string
		pose Pose
		up   [3]float64
		err  string
	}{
		{name: "identity", pose: Pose{Position: []float64{1, 2, 3}}, up: [3]float64{0, 1, 0}},
		{name: "quaternion_is_normalized", pose: Pose{Position: []float64{0, 0, 0}, Rotation: []float64{2, 0, 0, 0}}, up: [3]float64{0, 1, 0}},
		{name: "axis_angle", pose: Pose{Position: []float64{0, 0, 0}, Axis: []float64{0, 0, 1}, Angle: math.Pi / 2}, up: [3]float64{-1, 0, 0}},
		{name: "both", pose: Pose{Position: []float64{0, 0, 0}, Rotation: []float64{1, 0, 0, 0}, Axis: []float64{0, 0, 1}}, err: "not both"},
		{name: "zero_quaternion", pose: Pose{Position: []float64{0, 0, 0}, Rotation: []float64{0, 0, 0, 0}}, err: "non-zero quaternion"},
		{name: "short_position", pose: Pose{Position: []float64{0, 0}}, err: "position needs 3 components"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			v, err := TraitValue{Pose: &test.pose}.Value()
			if test.err != "" {
				require.ErrorContains(t, err, test.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, traits.KindPose, v.Kind())

			up := v.Pose().Up()
			require.InDelta(t, test.up[0], up.X, 1e-9)
			require.InDelta(t, test.up[1], up.Y, 1e-9)
			require.InDelta(t, test.up[2], up.Z, 1e-9)
		})
	}
}

func TestApply(t *testing.T) {
	s, err := Load(filepath.Join(scenesDir, "living_room.yaml"))
	require.NoError(t, err)
	store := memory.New()

	require.Equal(t, 4, s.Apply(store, 0))
	_, ok := store.TryGetTrait(11, "pose")
	require.False(t, ok, "the chair appears at tick 1")

	require.Equal(t, 1, s.Apply(store, 1))
	pose, ok := store.TryGetTrait(11, "pose")
	require.True(t, ok)
	require.InDelta(t, 3.0, pose.Pose().Position.X, 1e-9)

	require.Equal(t, 1, s.Apply(store, 4))
	pose, _ = store.TryGetTrait(11, "pose")
	require.InDelta(t, 0.6, pose.Pose().Position.X, 1e-9)

	require.Zero(t, s.Apply(store, 5))

	require.Equal(t, 1, s.Apply(store, 8))
	_, ok = store.TryGetTrait(20, "marker")
	require.False(t, ok)
}

type recorder struct {
	events map[query.QueryMatchID][]query.EventKind
}

func (r *recorder) observe(e query.Event) {
	r.events[e.QueryMatchID] = append(r.events[e.QueryMatchID], e.Kind)
}

func TestLivingRoom(t *testing.T) {
	s, err := Load(filepath.Join(scenesDir, "living_room.yaml"))
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	store := memory.New()
	now := time.Unix(0, 0)
	rec := &recorder{events: map[query.QueryMatchID][]query.EventKind{}}

	e, err := engine.New(store,
		engine.WithClock(func() time.Time { return now }),
		engine.WithObserver(rec.observe),
	)
	require.NoError(t, err)
	defer e.Close()

	regs, err := s.Register(e)
	require.NoError(t, err)
	require.Len(t, regs, 4)

	ids := make(map[string]query.QueryMatchID, len(regs))
	for _, r := range regs {
		ids[r.Name] = r.ID
	}

	var dining []query.SetResult
	for tick := 0; tick < s.Length(); tick++ {
		s.Apply(store, tick)
		now = now.Add(100 * time.Millisecond)
		require.NoError(t, e.Update(context.Background()))

		if tick == 5 {
			for _, slot := range e.Snapshot().Slots {
				if slot.SetID == ids["dining"] {
					dining = append(dining, query.SetResult{ID: slot.SetID})
					require.NotEqual(t, traits.Unassigned, slot.BestMatch, "member %s is bound", slot.Member)
				}
			}
		}
	}
	require.Len(t, dining, 3)

	state := func(name string) query.State {
		st, ok := e.State(ids[name])
		require.True(t, ok)
		return st
	}

	require.Equal(t, query.Tracking, state("play-area"))
	require.Equal(t, query.Tracking, state("dining"))
	require.Equal(t, []query.EventKind{query.EventAcquire}, rec.events[ids["dining"]][:1])

	require.Equal(t, query.Querying, state("marker"))
	require.Equal(t, []query.EventKind{query.EventAcquire}, rec.events[ids["marker"]][:1])
	require.Contains(t, rec.events[ids["marker"]], query.EventLoss)

	require.Equal(t, query.Unavailable, state("missing"))
	require.Equal(t, []query.EventKind{query.EventTimeout}, rec.events[ids["missing"]])
}
