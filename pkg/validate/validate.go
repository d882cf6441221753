// Package validate checks a world for joint linkage that the attachment
// traversal will silently ignore: dangling references, detached rotors,
// one-sided connectors and blocks filed under the wrong grid. Some findings
// carry an automatic fix.
package validate

import (
	"fmt"
	"sort"

	"github.com/crystal-mush/gridadmin/pkg/world"
)

// Category classifies the type of finding.
type Category int

const (
	CatDanglingJoint   Category = iota // Joint reference to a missing entity
	CatDetachedRotor                   // Rotor with no stator naming it
	CatForeignGrid                     // Block's grid field disagrees with its owner
	CatSelfJoint                       // Joint resolving back to its own grid
	CatAsymmetricJoint                 // Counterpart does not point back
)

func (c Category) String() string {
	switch c {
	case CatDanglingJoint:
		return "dangling-joint"
	case CatDetachedRotor:
		return "detached-rotor"
	case CatForeignGrid:
		return "foreign-grid"
	case CatSelfJoint:
		return "self-joint"
	case CatAsymmetricJoint:
		return "asymmetric-joint"
	default:
		return "unknown"
	}
}

// Severity indicates how serious a finding is.
type Severity int

const (
	SevError   Severity = iota // Must be fixed for correct behavior
	SevWarning                 // Should be reviewed
	SevInfo                    // Informational only
)

func (s Severity) String() string {
	switch s {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	case SevInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Finding represents a single validation issue detected in the world.
type Finding struct {
	ID          string         `json:"id"`
	Category    Category       `json:"category"`
	Severity    Severity       `json:"severity"`
	EntityRef   world.EntityID `json:"entity_ref"`
	GridRef     world.EntityID `json:"grid_ref"`
	TargetRef   world.EntityID `json:"target_ref,omitempty"`
	Description string         `json:"description"`
	Fixable     bool           `json:"fixable"`
	Fixed       bool           `json:"fixed"`
	fixFunc     func()         // run by ApplyFix
}

// Checker is the interface that each validation check implements.
type Checker interface {
	Name() string
	Check(w *world.World) []Finding
}

// Validator orchestrates running all checkers against a world.
type Validator struct {
	checkers []Checker
	world    *world.World
	findings []Finding
}

// New creates a Validator with all built-in checkers registered.
func New(w *world.World) *Validator {
	return &Validator{
		world: w,
		checkers: []Checker{
			&JointChecker{},
		},
	}
}

// Run executes all checkers and returns findings sorted by grid then entity.
func (v *Validator) Run() []Finding {
	v.findings = nil
	for _, c := range v.checkers {
		v.findings = append(v.findings, c.Check(v.world)...)
	}
	sort.SliceStable(v.findings, func(i, j int) bool {
		if v.findings[i].GridRef != v.findings[j].GridRef {
			return v.findings[i].GridRef < v.findings[j].GridRef
		}
		return v.findings[i].EntityRef < v.findings[j].EntityRef
	})
	return v.findings
}

// Findings returns the current findings (after Run has been called).
func (v *Validator) Findings() []Finding {
	return v.findings
}

// ApplyFix applies a single fix by finding ID. Returns error if not found or not fixable.
func (v *Validator) ApplyFix(id string) error {
	for i := range v.findings {
		if v.findings[i].ID == id {
			if !v.findings[i].Fixable {
				return fmt.Errorf("finding %s is not fixable", id)
			}
			if v.findings[i].Fixed {
				return fmt.Errorf("finding %s is already fixed", id)
			}
			if v.findings[i].fixFunc != nil {
				v.findings[i].fixFunc()
				v.findings[i].Fixed = true
			}
			return nil
		}
	}
	return fmt.Errorf("finding %s not found", id)
}

// ApplyAll applies all fixable findings in the given category. Returns count of fixes applied.
func (v *Validator) ApplyAll(cat Category) int {
	count := 0
	for i := range v.findings {
		f := &v.findings[i]
		if f.Category == cat && f.Fixable && !f.Fixed && f.fixFunc != nil {
			f.fixFunc()
			f.Fixed = true
			count++
		}
	}
	return count
}

// Summary returns counts of findings per category.
func (v *Validator) Summary() map[Category]int {
	m := make(map[Category]int)
	for _, f := range v.findings {
		m[f.Category]++
	}
	return m
}

// Errors returns the number of error-severity findings not yet fixed.
func (v *Validator) Errors() int {
	n := 0
	for _, f := range v.findings {
		if f.Severity == SevError && !f.Fixed {
			n++
		}
	}
	return n
}
