// Package scene loads scene files: a scripted set of entities with time-varying traits,
// and the queries and set queries to match against them. Scenes drive the scenematch
// binary and are handy fixtures for tests.
package scene

import (
	"errors"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

var ErrInvalidScene = errors.New("invalid scene")

// Scene is the decoded form of a scene file.
type Scene struct {
	Name string `json:"name,omitempty"`

	// Ticks is the length of the scene. When zero, the scene ends one tick after its last
	// scripted change.
	Ticks int `json:"ticks,omitempty"`

	Entities []Entity `json:"entities,omitempty"`
	Queries  []Query  `json:"queries,omitempty"`
	Sets     []Set    `json:"sets,omitempty"`
}

// Entity is a data id whose traits are written to the store between Appear and
// Disappear.
type Entity struct {
	ID int64 `json:"id"`

	// Appear is the first tick the entity is in the store.
	Appear int `json:"appear,omitempty"`

	// Disappear is the tick the entity is removed at. Zero keeps it forever.
	Disappear int `json:"disappear,omitempty"`

	Traits    map[string]TraitValue `json:"traits,omitempty"`
	Keyframes []Keyframe            `json:"keyframes,omitempty"`
}

// Keyframe overwrites some traits of an entity at a given tick.
type Keyframe struct {
	Tick   int                   `json:"tick"`
	Traits map[string]TraitValue `json:"traits,omitempty"`

	// Remove lists traits deleted at Tick.
	Remove []string `json:"remove,omitempty"`
}

// TraitValue holds exactly one of its fields.
type TraitValue struct {
	Bool    *bool     `json:"bool,omitempty"`
	Int     *int64    `json:"int,omitempty"`
	Float   *float64  `json:"float,omitempty"`
	String  *string   `json:"string,omitempty"`
	Vector2 []float64 `json:"vector2,omitempty"`
	Vector3 []float64 `json:"vector3,omitempty"`
	Pose    *Pose     `json:"pose,omitempty"`
}

// Pose is a position and an optional rotation given as a quaternion [w, x, y, z] or as
// an angle in radians around an axis.
type Pose struct {
	Position []float64 `json:"position"`
	Rotation []float64 `json:"rotation,omitempty"`
	Axis     []float64 `json:"axis,omitempty"`
	Angle    float64   `json:"angle,omitempty"`
}

// Query is a standalone query.
type Query struct {
	ID   int32  `json:"id"`
	Name string `json:"name,omitempty"`

	Exclusivity     string `json:"exclusivity,omitempty"`
	ReacquireOnLoss bool   `json:"reacquireOnLoss,omitempty"`
	Timeout         string `json:"timeout,omitempty"`
	SearchInterval  string `json:"searchInterval,omitempty"`

	Conditions []Condition `json:"conditions"`
}

// Set is a set query.
type Set struct {
	ID   int32  `json:"id"`
	Name string `json:"name,omitempty"`

	ReacquireOnLoss bool   `json:"reacquireOnLoss,omitempty"`
	Timeout         string `json:"timeout,omitempty"`
	SearchInterval  string `json:"searchInterval,omitempty"`

	Members   []Member   `json:"members"`
	Relations []Relation `json:"relations,omitempty"`
}

type Member struct {
	Name        string      `json:"name"`
	Required    *bool       `json:"required,omitempty"`
	Exclusivity string      `json:"exclusivity,omitempty"`
	Conditions  []Condition `json:"conditions"`
}

// Condition holds exactly one stock condition or a CEL expression.
type Condition struct {
	Tag        *TagCondition        `json:"tag,omitempty"`
	Range      *RangeCondition      `json:"range,omitempty"`
	MinSize    *MinSizeCondition    `json:"minSize,omitempty"`
	Equals     *EqualsCondition     `json:"equals,omitempty"`
	Upright    *UprightCondition    `json:"upright,omitempty"`
	Elevation  *RangeCondition      `json:"elevation,omitempty"`
	Expression *ExpressionCondition `json:"expression,omitempty"`
}

type TagCondition struct {
	Trait   string `json:"trait"`
	Exclude bool   `json:"exclude,omitempty"`
}

type RangeCondition struct {
	Trait   string  `json:"trait"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Falloff float64 `json:"falloff,omitempty"`
}

type MinSizeCondition struct {
	Trait string  `json:"trait"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

type EqualsCondition struct {
	Trait string `json:"trait"`
	Value string `json:"value"`
}

type UprightCondition struct {
	Trait string `json:"trait"`

	// MaxAngle is in radians.
	MaxAngle float64 `json:"maxAngle"`
}

// ExpressionCondition is a CEL expression over `value`, the trait's value.
type ExpressionCondition struct {
	Trait  string `json:"trait"`
	Kind   string `json:"kind"`
	Source string `json:"source"`
}

// Relation holds exactly one stock relation or a CEL expression.
type Relation struct {
	Distance   *DistanceRelation   `json:"distance,omitempty"`
	Above      *AboveRelation      `json:"above,omitempty"`
	Expression *ExpressionRelation `json:"expression,omitempty"`
}

type DistanceRelation struct {
	A       string  `json:"a"`
	B       string  `json:"b"`
	Trait   string  `json:"trait"`
	Min     float64 `json:"min,omitempty"`
	Max     float64 `json:"max"`
	Falloff float64 `json:"falloff,omitempty"`
}

type AboveRelation struct {
	A      string  `json:"a"`
	B      string  `json:"b"`
	Trait  string  `json:"trait"`
	MinGap float64 `json:"minGap,omitempty"`
}

// ExpressionRelation is a CEL expression over `a` and `b`, the trait values of the two
// members.
type ExpressionRelation struct {
	A      string `json:"a"`
	B      string `json:"b"`
	Trait  string `json:"trait"`
	Kind   string `json:"kind"`
	Source string `json:"source"`
}

// Load reads and decodes the scene file at path. Unknown fields are rejected. The scene
// is not validated.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scene '%s': %w", path, err)
	}
	return s, nil
}

// Parse decodes a YAML or JSON scene.
func Parse(data []byte) (*Scene, error) {
	s := &Scene{}
	if err := yaml.UnmarshalStrict(data, s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScene, err)
	}
	return s, nil
}

// Length returns the number of ticks the scene runs for.
func (s *Scene) Length() int {
	if s.Ticks > 0 {
		return s.Ticks
	}

	last := 0
	for _, e := range s.Entities {
		last = max(last, e.Appear, e.Disappear)
		for _, k := range e.Keyframes {
			last = max(last, k.Tick)
		}
	}
	return last + 1
}
