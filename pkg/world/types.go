package world

// EntityID is the stable identity of anything registered in the world:
// grids, blocks and free-floating objects share one id space.
type EntityID int64

// NoEntity is the zero reference. Joint fields holding it are unlinked.
const NoEntity EntityID = 0

// PlayerID identifies a player identity (owner, pilot).
type PlayerID int64

// BlockType is the type tag of a block definition.
type BlockType int

const (
	BlockNone BlockType = iota // null type tag, never enumerated
	BlockOther
	BlockStator
	BlockAdvancedStator
	BlockSuspension
	BlockMotorBase
	BlockRotor
	BlockAdvancedRotor
	BlockWheel
	BlockRealWheel
	BlockPistonBase
	BlockExtendedPistonBase
	BlockPistonTop
	BlockConnector
	BlockLandingGear
	BlockCockpit
	BlockRemoteControl
	BlockPassengerSeat
	BlockThruster
)

var blockTypeNames = map[BlockType]string{
	BlockNone:               "none",
	BlockOther:              "other",
	BlockStator:             "stator",
	BlockAdvancedStator:     "advanced_stator",
	BlockSuspension:         "suspension",
	BlockMotorBase:          "motor_base",
	BlockRotor:              "rotor",
	BlockAdvancedRotor:      "advanced_rotor",
	BlockWheel:              "wheel",
	BlockRealWheel:          "real_wheel",
	BlockPistonBase:         "piston_base",
	BlockExtendedPistonBase: "extended_piston_base",
	BlockPistonTop:          "piston_top",
	BlockConnector:          "connector",
	BlockLandingGear:        "landing_gear",
	BlockCockpit:            "cockpit",
	BlockRemoteControl:      "remote_control",
	BlockPassengerSeat:      "passenger_seat",
	BlockThruster:           "thruster",
}

func (t BlockType) String() string {
	if name, ok := blockTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseBlockType maps a type name back to its BlockType.
func ParseBlockType(name string) (BlockType, bool) {
	for t, n := range blockTypeNames {
		if n == name {
			return t, true
		}
	}
	return BlockNone, false
}

// IsController reports whether blocks of this type can be piloted.
func (t BlockType) IsController() bool {
	return t == BlockCockpit || t == BlockRemoteControl || t == BlockPassengerSeat
}

// IsFunctional reports whether blocks of this type carry an on/off state.
func (t BlockType) IsFunctional() bool {
	return t != BlockNone && t != BlockOther && t != BlockRotor && t != BlockAdvancedRotor &&
		t != BlockWheel && t != BlockRealWheel && t != BlockPistonTop
}

// Vector3 is a 3-component vector in world units.
type Vector3 struct {
	X, Y, Z float64
}

// IsZero reports whether all components are zero.
func (v Vector3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Physics is the motion state of a dynamic entity.
type Physics struct {
	Linear  Vector3
	Angular Vector3
}

// ClearSpeed zeroes linear and angular velocity.
func (p *Physics) ClearSpeed() {
	p.Linear = Vector3{}
	p.Angular = Vector3{}
}

// Moving reports whether either velocity is non-zero.
func (p *Physics) Moving() bool {
	return !p.Linear.IsZero() || !p.Angular.IsZero()
}

// Entity is anything with a stable identity in the world.
type Entity interface {
	EntityID() EntityID
}

// Block is a unit belonging to exactly one grid.
//
// Joint linkage is stored asymmetrically, the way the host simulation stores
// it: a stator knows its rotor, a rotor knows nothing; a piston base knows
// its top and the top knows its base; a landing gear knows what it is locked
// onto but the locked-to grid has no record of it.
type Block struct {
	ID   EntityID
	Type BlockType
	Grid EntityID
	Name string

	// Stator family.
	RotorEntityID EntityID
	// Piston base.
	TopBlockID EntityID
	// Piston top.
	PistonBlockID EntityID
	// Connector.
	OtherConnector     EntityID
	ConnectorLocked    bool
	ConnectorConnected bool
	// Landing gear.
	AttachedEntity EntityID
	GearLocked     bool

	Enabled bool
	Working bool
	Owner   PlayerID

	// Controllers (cockpit, remote control, passenger seat).
	ShipControl bool
	Pilot       PlayerID
	Move        Vector3
	Rotate      Vector3
}

func (b *Block) EntityID() EntityID { return b.ID }

// MoveAndRotateStopped clears any pending movement and rotation input.
func (b *Block) MoveAndRotateStopped() {
	b.Move = Vector3{}
	b.Rotate = Vector3{}
}

// Grid is a composite structure of blocks.
type Grid struct {
	ID               EntityID
	Name             string
	IsStatic         bool
	DampenersEnabled bool
	Blocks           []*Block
	SmallOwners      []PlayerID
	Physics          *Physics
}

func (g *Grid) EntityID() EntityID { return g.ID }

// GetBlocks returns the grid's blocks accepted by pred, in storage order.
// A nil pred accepts every block.
func (g *Grid) GetBlocks(pred func(*Block) bool) []*Block {
	var out []*Block
	for _, b := range g.Blocks {
		if b == nil {
			continue
		}
		if pred == nil || pred(b) {
			out = append(out, b)
		}
	}
	return out
}

// Owners returns the grid's small-owner list.
func (g *Grid) Owners() []PlayerID {
	return g.SmallOwners
}

// Object is a free-floating, non-grid entity (ore, debris, a character).
type Object struct {
	ID      EntityID
	Name    string
	Physics *Physics
}

func (o *Object) EntityID() EntityID { return o.ID }
