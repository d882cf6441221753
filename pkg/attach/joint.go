package attach

import (
	"fmt"
	"strings"

	"github.com/crystal-mush/gridadmin/pkg/world"
)

// Mode restricts which joint kinds count as attachment.
type Mode int

const (
	// All follows every joint kind, including connectors and landing gear
	// that can be disengaged at runtime.
	All Mode = iota
	// StaticOnly follows rotors and pistons only.
	StaticOnly
)

func (m Mode) String() string {
	switch m {
	case All:
		return "all"
	case StaticOnly:
		return "static"
	default:
		return "unknown"
	}
}

// ParseMode accepts "all" or "static" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all", "":
		return All, nil
	case "static", "staticonly", "static_only":
		return StaticOnly, nil
	}
	return All, fmt.Errorf("attach: unknown mode %q", s)
}

// JointKind is the mechanical role a block plays in a linkage.
type JointKind int

const (
	JointNone JointKind = iota
	JointStator
	JointRotor
	JointPistonBase
	JointPistonTop
	JointConnector
	JointGearLock
)

func (k JointKind) String() string {
	switch k {
	case JointNone:
		return "none"
	case JointStator:
		return "stator"
	case JointRotor:
		return "rotor"
	case JointPistonBase:
		return "piston-base"
	case JointPistonTop:
		return "piston-top"
	case JointConnector:
		return "connector"
	case JointGearLock:
		return "gear-lock"
	default:
		return "unknown"
	}
}

// Rigid reports whether the joint cannot be disengaged at runtime.
func (k JointKind) Rigid() bool {
	switch k {
	case JointStator, JointRotor, JointPistonBase, JointPistonTop:
		return true
	}
	return false
}

// jointKinds maps block type tags to joint kinds. Types absent from the table
// are not joints.
var jointKinds = map[world.BlockType]JointKind{
	world.BlockStator:             JointStator,
	world.BlockAdvancedStator:     JointStator,
	world.BlockSuspension:         JointStator,
	world.BlockMotorBase:          JointStator,
	world.BlockRotor:              JointRotor,
	world.BlockAdvancedRotor:      JointRotor,
	world.BlockWheel:              JointRotor,
	world.BlockRealWheel:          JointRotor,
	world.BlockPistonBase:         JointPistonBase,
	world.BlockExtendedPistonBase: JointPistonBase,
	world.BlockPistonTop:          JointPistonTop,
	world.BlockConnector:          JointConnector,
	world.BlockLandingGear:        JointGearLock,
}

// Classify returns the joint kind of a block, or JointNone.
func Classify(b *world.Block) JointKind {
	if b == nil {
		return JointNone
	}
	return jointKinds[b.Type]
}

// Eligible reports whether links of kind k are followed under mode m.
// Rigid joints always count; connectors and landing gear only under All.
func Eligible(k JointKind, m Mode) bool {
	switch {
	case k == JointNone:
		return false
	case k.Rigid():
		return true
	default:
		return m == All
	}
}
