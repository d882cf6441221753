package validate

import (
	"fmt"

	"github.com/crystal-mush/gridadmin/pkg/attach"
	"github.com/crystal-mush/gridadmin/pkg/world"
)

// JointChecker inspects every joint block in the world.
type JointChecker struct{}

func (c *JointChecker) Name() string { return "joints" }

func (c *JointChecker) Check(w *world.World) []Finding {
	var findings []Finding
	seq := 0

	add := func(f Finding) {
		f.ID = fmt.Sprintf("joints-%d", seq)
		seq++
		f.Fixable = f.fixFunc != nil
		findings = append(findings, f)
	}

	// block reports whether ref names a registered block.
	block := func(ref world.EntityID) (*world.Block, bool) {
		b, ok := w.EntityByID(ref).(*world.Block)
		return b, ok && b != nil
	}

	for _, g := range w.GetGrids(nil) {
		for _, b := range g.GetBlocks(nil) {
			gridRef := g.ID

			if b.Grid != g.ID {
				owner := g.ID
				add(Finding{
					Category:    CatForeignGrid,
					Severity:    SevError,
					EntityRef:   b.ID,
					GridRef:     gridRef,
					TargetRef:   b.Grid,
					Description: fmt.Sprintf("block %d is stored on grid %d but records grid %d", b.ID, g.ID, b.Grid),
					fixFunc:     func() { b.Grid = owner },
				})
			}

			kind := attach.Classify(b)
			switch kind {
			case attach.JointStator:
				if b.RotorEntityID != world.NoEntity {
					if _, ok := block(b.RotorEntityID); !ok {
						add(Finding{
							Category:    CatDanglingJoint,
							Severity:    SevError,
							EntityRef:   b.ID,
							GridRef:     gridRef,
							TargetRef:   b.RotorEntityID,
							Description: fmt.Sprintf("%s %d names missing rotor %d", b.Type, b.ID, b.RotorEntityID),
							fixFunc:     func() { b.RotorEntityID = world.NoEntity },
						})
					}
				}

			case attach.JointRotor:
				if attach.FindRotorBase(w, b.ID) == nil {
					add(Finding{
						Category:    CatDetachedRotor,
						Severity:    SevInfo,
						EntityRef:   b.ID,
						GridRef:     gridRef,
						Description: fmt.Sprintf("%s %d is not attached to any stator", b.Type, b.ID),
					})
				}

			case attach.JointPistonBase:
				if b.TopBlockID == world.NoEntity {
					break
				}
				top, ok := block(b.TopBlockID)
				if !ok {
					add(Finding{
						Category:    CatDanglingJoint,
						Severity:    SevError,
						EntityRef:   b.ID,
						GridRef:     gridRef,
						TargetRef:   b.TopBlockID,
						Description: fmt.Sprintf("%s %d names missing top %d", b.Type, b.ID, b.TopBlockID),
						fixFunc:     func() { b.TopBlockID = world.NoEntity },
					})
				} else if top.PistonBlockID != b.ID {
					add(Finding{
						Category:    CatAsymmetricJoint,
						Severity:    SevWarning,
						EntityRef:   b.ID,
						GridRef:     gridRef,
						TargetRef:   top.ID,
						Description: fmt.Sprintf("piston top %d points at base %d, not %d", top.ID, top.PistonBlockID, b.ID),
					})
				}

			case attach.JointPistonTop:
				if b.PistonBlockID != world.NoEntity {
					if _, ok := block(b.PistonBlockID); !ok {
						add(Finding{
							Category:    CatDanglingJoint,
							Severity:    SevError,
							EntityRef:   b.ID,
							GridRef:     gridRef,
							TargetRef:   b.PistonBlockID,
							Description: fmt.Sprintf("piston top %d names missing base %d", b.ID, b.PistonBlockID),
							fixFunc:     func() { b.PistonBlockID = world.NoEntity },
						})
					}
				}

			case attach.JointConnector:
				if b.OtherConnector == world.NoEntity {
					break
				}
				other, ok := block(b.OtherConnector)
				if !ok {
					add(Finding{
						Category:    CatDanglingJoint,
						Severity:    SevError,
						EntityRef:   b.ID,
						GridRef:     gridRef,
						TargetRef:   b.OtherConnector,
						Description: fmt.Sprintf("connector %d names missing counterpart %d", b.ID, b.OtherConnector),
						fixFunc: func() {
							b.OtherConnector = world.NoEntity
							b.ConnectorLocked = false
							b.ConnectorConnected = false
						},
					})
				} else if other.OtherConnector != b.ID {
					add(Finding{
						Category:    CatAsymmetricJoint,
						Severity:    SevWarning,
						EntityRef:   b.ID,
						GridRef:     gridRef,
						TargetRef:   other.ID,
						Description: fmt.Sprintf("connector %d points at %d, which points at %d", b.ID, other.ID, other.OtherConnector),
					})
				}

			case attach.JointGearLock:
				if b.GearLocked && !w.EntityExists(b.AttachedEntity) {
					add(Finding{
						Category:    CatDanglingJoint,
						Severity:    SevError,
						EntityRef:   b.ID,
						GridRef:     gridRef,
						TargetRef:   b.AttachedEntity,
						Description: fmt.Sprintf("landing gear %d is locked onto missing entity %d", b.ID, b.AttachedEntity),
						fixFunc: func() {
							b.GearLocked = false
							b.AttachedEntity = world.NoEntity
						},
					})
				}
			}

			if kind != attach.JointNone {
				if target, ok := attach.ResolveLink(w, b, kind); ok && target == g.ID {
					add(Finding{
						Category:    CatSelfJoint,
						Severity:    SevWarning,
						EntityRef:   b.ID,
						GridRef:     gridRef,
						TargetRef:   target,
						Description: fmt.Sprintf("%s %d links grid %d to itself", b.Type, b.ID, g.ID),
					})
				}
			}
		}
	}
	return findings
}
