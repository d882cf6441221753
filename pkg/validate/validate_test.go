package validate

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/crystal-mush/gridadmin/pkg/attach"
	"github.com/crystal-mush/gridadmin/pkg/world"
	"github.com/crystal-mush/gridadmin/pkg/world/worldtest"
)

func byCategory(findings []Finding, cat Category) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Category == cat {
			out = append(out, f)
		}
	}
	return out
}

func TestDanglingJoints(t *testing.T) {
	b := worldtest.New(t)
	b.Grid(1)
	b.Block(1, &world.Block{ID: 10, Type: world.BlockStator, RotorEntityID: 99})
	b.Block(1, &world.Block{ID: 11, Type: world.BlockPistonBase, TopBlockID: 98})
	b.Block(1, &world.Block{ID: 12, Type: world.BlockPistonTop, PistonBlockID: 97})
	b.Block(1, &world.Block{ID: 13, Type: world.BlockConnector, OtherConnector: 96, ConnectorLocked: true, ConnectorConnected: true})
	b.Gear(1, 14, 95, true)
	b.Gear(1, 15, 94, false)

	findings := (&JointChecker{}).Check(b.W)
	dangling := byCategory(findings, CatDanglingJoint)
	if len(dangling) != 5 {
		t.Fatalf("expected 5 dangling joints, got %d: %+v", len(dangling), dangling)
	}
	for _, f := range dangling {
		if f.Severity != SevError || !f.Fixable {
			t.Errorf("finding %s: severity %v fixable %v", f.ID, f.Severity, f.Fixable)
		}
		if f.GridRef != 1 {
			t.Errorf("finding %s: grid %d, want 1", f.ID, f.GridRef)
		}
	}
}

func TestFixesClearDanglingReferences(t *testing.T) {
	b := worldtest.New(t)
	b.Grid(1)
	stator := b.Block(1, &world.Block{ID: 10, Type: world.BlockStator, RotorEntityID: 99})
	conn := b.Block(1, &world.Block{ID: 13, Type: world.BlockConnector, OtherConnector: 96, ConnectorLocked: true, ConnectorConnected: true})
	gear := b.Gear(1, 14, 95, true)

	v := New(b.W)
	v.Run()
	if got := v.Errors(); got != 3 {
		t.Fatalf("Errors() = %d, want 3", got)
	}
	if n := v.ApplyAll(CatDanglingJoint); n != 3 {
		t.Fatalf("ApplyAll = %d, want 3", n)
	}
	if stator.RotorEntityID != world.NoEntity {
		t.Error("stator reference not cleared")
	}
	if conn.OtherConnector != world.NoEntity || conn.ConnectorLocked || conn.ConnectorConnected {
		t.Errorf("connector not reset: %+v", conn)
	}
	if gear.GearLocked || gear.AttachedEntity != world.NoEntity {
		t.Errorf("gear not unlocked: %+v", gear)
	}
	if got := v.Errors(); got != 0 {
		t.Errorf("Errors() after fixes = %d", got)
	}
	if len(New(b.W).Run()) != 0 {
		t.Error("a fresh run should be clean after fixes")
	}
}

func TestApplyFix(t *testing.T) {
	b := worldtest.New(t)
	b.Grid(1)
	b.Block(1, &world.Block{ID: 10, Type: world.BlockStator, RotorEntityID: 99})
	b.Block(1, &world.Block{ID: 11, Type: world.BlockRotor})

	v := New(b.W)
	findings := v.Run()
	var fixID, infoID string
	for _, f := range findings {
		switch f.Category {
		case CatDanglingJoint:
			fixID = f.ID
		case CatDetachedRotor:
			infoID = f.ID
		}
	}
	if fixID == "" || infoID == "" {
		t.Fatalf("missing findings: %+v", findings)
	}
	if err := v.ApplyFix(fixID); err != nil {
		t.Fatalf("ApplyFix: %v", err)
	}
	if err := v.ApplyFix(fixID); err == nil {
		t.Error("second ApplyFix should fail")
	}
	if err := v.ApplyFix(infoID); err == nil {
		t.Error("detached rotor is not fixable")
	}
	if err := v.ApplyFix("joints-999"); err == nil {
		t.Error("unknown id should fail")
	}
}

func TestDetachedRotorIsInfo(t *testing.T) {
	b := worldtest.New(t)
	b.Grid(1)
	b.Grid(2)
	b.Rotor(1, 10, 2, 11)
	b.Block(2, &world.Block{ID: 12, Type: world.BlockWheel})

	detached := byCategory((&JointChecker{}).Check(b.W), CatDetachedRotor)
	if len(detached) != 1 || detached[0].EntityRef != 12 || detached[0].Severity != SevInfo {
		t.Errorf("unexpected detached rotors: %+v", detached)
	}
}

func TestForeignGrid(t *testing.T) {
	b := worldtest.New(t)
	b.Grid(1)
	b.Grid(2)
	blk := b.Block(1, &world.Block{ID: 10, Type: world.BlockThruster})
	blk.Grid = 2

	v := New(b.W)
	found := byCategory(v.Run(), CatForeignGrid)
	if len(found) != 1 || found[0].TargetRef != 2 {
		t.Fatalf("unexpected findings: %+v", found)
	}
	if n := v.ApplyAll(CatForeignGrid); n != 1 || blk.Grid != 1 {
		t.Errorf("fix not applied: n=%d grid=%d", n, blk.Grid)
	}
}

func TestSelfJointAndAsymmetry(t *testing.T) {
	b := worldtest.New(t)
	b.Grid(1)
	b.Grid(2)
	// Rotor on the same grid as its stator.
	b.Rotor(1, 10, 1, 11)
	// Connector pair where the far side points elsewhere.
	b.Block(1, &world.Block{ID: 20, Type: world.BlockConnector, OtherConnector: 21})
	b.Block(2, &world.Block{ID: 21, Type: world.BlockConnector, OtherConnector: 22})
	b.Block(2, &world.Block{ID: 22, Type: world.BlockConnector, OtherConnector: 21})

	findings := (&JointChecker{}).Check(b.W)
	self := byCategory(findings, CatSelfJoint)
	if len(self) != 2 {
		t.Errorf("expected stator and rotor self-joints, got %+v", self)
	}
	asym := byCategory(findings, CatAsymmetricJoint)
	if len(asym) != 1 || asym[0].EntityRef != 20 {
		t.Errorf("unexpected asymmetric findings: %+v", asym)
	}

	// Self joints never widen the attachment set.
	if got := attach.Discover(b.W, b.W.Grid(1), attach.All).IDs(); len(got) != 1 {
		t.Errorf("grid 1 attachment set = %v", got)
	}
}

func TestSummaryAndReport(t *testing.T) {
	b := worldtest.New(t)
	b.Grid(1)
	b.Block(1, &world.Block{ID: 10, Type: world.BlockStator, RotorEntityID: 99})
	b.Block(1, &world.Block{ID: 11, Type: world.BlockRotor})
	b.Block(1, &world.Block{ID: 12, Type: world.BlockAdvancedRotor})

	v := New(b.W)
	v.Run()
	sum := v.Summary()
	if sum[CatDanglingJoint] != 1 || sum[CatDetachedRotor] != 2 {
		t.Errorf("summary = %v", sum)
	}

	r := GenerateReport(v)
	if r.TotalFindings != 3 {
		t.Errorf("TotalFindings = %d", r.TotalFindings)
	}
	cs := r.Categories["dangling-joint"]
	if cs.Total != 1 || cs.Fixable != 1 || cs.Label == "" {
		t.Errorf("dangling-joint summary = %+v", cs)
	}
	if r.Unresolved != 1 {
		t.Errorf("Unresolved = %d, want 1", r.Unresolved)
	}
	if len(r.Grids) != 1 {
		t.Fatalf("grids = %+v, want one group", r.Grids)
	}
	if g := r.Grids[0]; g.Grid != 1 || g.Errors != 1 || g.Info != 2 || len(g.Findings) != 3 || g.Clean() {
		t.Errorf("grid 1 group = %+v", g)
	}

	var buf bytes.Buffer
	if err := r.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
}

func TestNoFindingsOnCleanWorld(t *testing.T) {
	b := worldtest.New(t)
	b.Grid(1)
	b.Grid(2)
	b.Grid(3)
	b.Rotor(1, 10, 2, 11)
	b.Piston(2, 12, 3, 13)
	b.Connector(1, 14, 3, 15, true, true)
	b.Gear(3, 16, 1, true)

	if findings := New(b.W).Run(); len(findings) != 0 {
		t.Errorf("expected no findings, got %+v", findings)
	}
}

func TestCategoryString(t *testing.T) {
	for cat, want := range map[Category]string{
		CatDanglingJoint:   "dangling-joint",
		CatDetachedRotor:   "detached-rotor",
		CatForeignGrid:     "foreign-grid",
		CatSelfJoint:       "self-joint",
		CatAsymmetricJoint: "asymmetric-joint",
	} {
		if cat.String() != want {
			t.Errorf("%d.String() = %q, want %q", cat, cat.String(), want)
		}
	}
}

func TestReportGroupsByGrid(t *testing.T) {
	b := worldtest.New(t)
	b.Grid(1)
	b.Grid(2)
	b.Grid(3)
	b.Block(1, &world.Block{ID: 10, Type: world.BlockStator, RotorEntityID: 99})
	b.Block(3, &world.Block{ID: 30, Type: world.BlockRotor})
	b.Block(3, &world.Block{ID: 31, Type: world.BlockPistonTop, PistonBlockID: 98})

	v := New(b.W)
	v.Run()
	if n := v.ApplyAll(CatDanglingJoint); n != 2 {
		t.Fatalf("ApplyAll fixed %d, want 2", n)
	}
	r := GenerateReport(v)

	tests := []struct {
		grid                  world.EntityID
		errors, warnings, info int
	}{
		{1, 1, 0, 0},
		{3, 1, 0, 1},
	}
	if len(r.Grids) != len(tests) {
		t.Fatalf("grids = %+v", r.Grids)
	}
	for i, tt := range tests {
		g := r.Grids[i]
		if g.Grid != tt.grid || g.Errors != tt.errors || g.Warnings != tt.warnings || g.Info != tt.info {
			t.Errorf("group %d = %+v, want grid %d errors %d warnings %d info %d", i, g, tt.grid, tt.errors, tt.warnings, tt.info)
		}
	}
	if _, ok := r.Grid(2); ok {
		t.Error("grid 2 has no findings and should not be listed")
	}
	if r.Unresolved != 0 {
		t.Errorf("Unresolved = %d after fixes", r.Unresolved)
	}
	if cs := r.Categories["dangling-joint"]; cs.Fixed != 2 {
		t.Errorf("dangling-joint fixed = %d", cs.Fixed)
	}

	var buf bytes.Buffer
	if err := r.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var decoded struct {
		Grids []struct {
			Grid     int64 `json:"grid"`
			Findings []any `json:"findings"`
		} `json:"grids"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if len(decoded.Grids) != 2 || decoded.Grids[1].Grid != 3 || len(decoded.Grids[1].Findings) != 2 {
		t.Errorf("decoded grids = %+v", decoded.Grids)
	}
}
