// Package attach discovers the set of grids mechanically attached to a grid.
//
// Grids are joined by rotors, pistons, connectors and landing gear. Each
// joint kind stores its linkage on one side only, so the traversal resolves
// every kind from whichever side it is standing on:
//
//   - stator -> rotor: the stator stores the rotor's id.
//   - rotor -> stator: the rotor stores nothing; the stator is found by a
//     world-wide lookup for the stator that names this rotor.
//   - piston base <-> piston top: each side stores the other's id.
//   - connector: both sides store their counterpart once connected.
//   - landing gear: only the locking gear knows what it is locked onto; the
//     locked-to grid is found by scanning every other grid for engaged gear
//     that targets it (see FindInboundLocks).
//
// Discover is the entry point. It never mutates the world and never fails:
// dangling or zero references simply do not produce a link.
package attach
