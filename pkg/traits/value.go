// Package traits defines the typed attribute values that discovered entities expose,
// and the read contract the matching pipeline consumes.
package traits

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// DataID identifies one discovered entity (a plane, a marker, a face...).
type DataID int64

// Unassigned is the sentinel for "no data bound".
const Unassigned DataID = -1

// Kind tags the concrete type held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindVector2
	KindVector3
	KindPose
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindBool:    "bool",
	KindInt:     "int",
	KindFloat:   "float",
	KindString:  "string",
	KindVector2: "vector2",
	KindVector3: "vector3",
	KindPose:    "pose",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k names a supported value type.
func (k Kind) Valid() bool {
	return k > KindInvalid && k <= KindPose
}

// ParseKind maps the textual kind used in scene files to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s && Kind(k).Valid() {
			return Kind(k), nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown trait kind '%s'", s)
}

// Pose is a rigid transform: a position and an orientation.
type Pose struct {
	Position r3.Vec
	Rotation r3.Rotation
}

// IdentityRotation is the rotation that leaves vectors unchanged.
var IdentityRotation = r3.Rotation(quat.Number{Real: 1})

// Up returns the pose's local +Y axis in world space.
func (p Pose) Up() r3.Vec {
	rot := p.Rotation
	if quat.Abs(quat.Number(rot)) == 0 {
		rot = IdentityRotation
	}
	return rot.Rotate(r3.Vec{Y: 1})
}

// Value is a sealed tagged union over the supported trait types. The zero Value is
// invalid.
type Value struct {
	kind Kind

	b   bool
	i   int64
	f   float64
	s   string
	v2  r2.Vec
	v3  r3.Vec
	rot r3.Rotation
}

func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Int(i int64) Value      { return Value{kind: KindInt, i: i} }
func Float(f float64) Value  { return Value{kind: KindFloat, f: f} }
func String(s string) Value  { return Value{kind: KindString, s: s} }
func Vector2(v r2.Vec) Value { return Value{kind: KindVector2, v2: v} }
func Vector3(v r3.Vec) Value { return Value{kind: KindVector3, v3: v} }
func PoseValue(p Pose) Value { return Value{kind: KindPose, v3: p.Position, rot: p.Rotation} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Bool() bool      { return v.b }
func (v Value) Int() int64      { return v.i }
func (v Value) Float() float64  { return v.f }
func (v Value) Text() string    { return v.s }
func (v Value) Vector2() r2.Vec { return v.v2 }
func (v Value) Vector3() r3.Vec { return v.v3 }
func (v Value) Pose() Pose      { return Pose{Position: v.v3, Rotation: v.rot} }

// Equal reports whether two values hold the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString:
		return v.s == o.s
	case KindVector2:
		return v.v2 == o.v2
	case KindVector3:
		return v.v3 == o.v3
	case KindPose:
		return v.v3 == o.v3 && v.rot == o.rot
	}
	return true
}

// String renders the kind and payload for logs and debugging output.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("bool(%t)", v.b)
	case KindInt:
		return fmt.Sprintf("int(%d)", v.i)
	case KindFloat:
		return fmt.Sprintf("float(%g)", v.f)
	case KindString:
		return fmt.Sprintf("string(%q)", v.s)
	case KindVector2:
		return fmt.Sprintf("vector2(%g, %g)", v.v2.X, v.v2.Y)
	case KindVector3:
		return fmt.Sprintf("vector3(%g, %g, %g)", v.v3.X, v.v3.Y, v.v3.Z)
	case KindPose:
		return fmt.Sprintf("pose(%g, %g, %g)", v.v3.X, v.v3.Y, v.v3.Z)
	}
	return "invalid"
}

// Type is the set of Go types a Value can carry.
type Type interface {
	bool | int64 | float64 | string | r2.Vec | r3.Vec | Pose
}

// KindOf returns the Kind matching the Go type T.
func KindOf[T Type]() Kind {
	var zero T
	switch any(zero).(type) {
	case bool:
		return KindBool
	case int64:
		return KindInt
	case float64:
		return KindFloat
	case string:
		return KindString
	case r2.Vec:
		return KindVector2
	case r3.Vec:
		return KindVector3
	case Pose:
		return KindPose
	}
	return KindInvalid
}

// As extracts the payload of v as T. The second return is false when v does not hold a T.
func As[T Type](v Value) (T, bool) {
	var out T
	if v.kind != KindOf[T]() {
		return out, false
	}
	var payload any
	switch v.kind {
	case KindBool:
		payload = v.b
	case KindInt:
		payload = v.i
	case KindFloat:
		payload = v.f
	case KindString:
		payload = v.s
	case KindVector2:
		payload = v.v2
	case KindVector3:
		payload = v.v3
	case KindPose:
		payload = v.Pose()
	}
	out, ok := payload.(T)
	return out, ok
}

// Of wraps a Go value of a supported type into a Value.
func Of[T Type](x T) Value {
	switch t := any(x).(type) {
	case bool:
		return Bool(t)
	case int64:
		return Int(t)
	case float64:
		return Float(t)
	case string:
		return String(t)
	case r2.Vec:
		return Vector2(t)
	case r3.Vec:
		return Vector3(t)
	case Pose:
		return PoseValue(t)
	}
	return Value{}
}
