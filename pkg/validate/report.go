package validate

import (
	"encoding/json"
	"io"

	"github.com/crystal-mush/gridadmin/pkg/world"
)

// Report is the validation result grouped by grid, as served by the web API
// and printed by validate -json.
type Report struct {
	TotalFindings int                    `json:"total_findings"`
	Unresolved    int                    `json:"unresolved_errors"`
	Categories    map[string]CategorySum `json:"categories"`
	Grids         []GridFindings         `json:"grids"`
}

// CategorySum counts findings of one category.
type CategorySum struct {
	Label   string `json:"label"`
	Total   int    `json:"total"`
	Fixable int    `json:"fixable"`
	Fixed   int    `json:"fixed"`
}

// GridFindings holds the findings raised against one grid's blocks.
type GridFindings struct {
	Grid     world.EntityID `json:"grid"`
	Errors   int            `json:"errors"`
	Warnings int            `json:"warnings"`
	Info     int            `json:"info"`
	Findings []Finding      `json:"findings"`
}

// Clean reports whether nothing on the grid needs attention.
func (g GridFindings) Clean() bool {
	return g.Errors == 0 && g.Warnings == 0
}

var categoryLabels = map[Category]string{
	CatDanglingJoint:   "Joint names a missing entity",
	CatDetachedRotor:   "Rotor with no stator",
	CatForeignGrid:     "Block records the wrong grid",
	CatSelfJoint:       "Joint loops back to its own grid",
	CatAsymmetricJoint: "Counterpart does not point back",
}

// GenerateReport groups the validator's current findings by grid. Grids
// appear in the order Run sorted them; fixed errors do not count as
// unresolved.
func GenerateReport(v *Validator) *Report {
	r := &Report{
		TotalFindings: len(v.findings),
		Unresolved:    v.Errors(),
		Categories:    make(map[string]CategorySum),
		Grids:         []GridFindings{},
	}

	for _, f := range v.findings {
		cs := r.Categories[f.Category.String()]
		cs.Label = categoryLabels[f.Category]
		cs.Total++
		if f.Fixable {
			cs.Fixable++
		}
		if f.Fixed {
			cs.Fixed++
		}
		r.Categories[f.Category.String()] = cs

		if n := len(r.Grids); n == 0 || r.Grids[n-1].Grid != f.GridRef {
			r.Grids = append(r.Grids, GridFindings{Grid: f.GridRef})
		}
		g := &r.Grids[len(r.Grids)-1]
		switch f.Severity {
		case SevError:
			g.Errors++
		case SevWarning:
			g.Warnings++
		default:
			g.Info++
		}
		g.Findings = append(g.Findings, f)
	}
	return r
}

// Grid returns the findings for id, if any were raised.
func (r *Report) Grid(id world.EntityID) (GridFindings, bool) {
	for _, g := range r.Grids {
		if g.Grid == id {
			return g, true
		}
	}
	return GridFindings{}, false
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
