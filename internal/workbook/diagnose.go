package workbook

import (
	"fmt"
	"sort"
)

// Report describes what the bridge can see of a workbook
type Report struct {
	Workbook   string       `yaml:"workbook"`
	Sheet      string       `yaml:"sheet"`
	Sheets     []string     `yaml:"sheets,omitempty"`
	Shapes     []Shape      `yaml:"shapes,omitempty"`
	Names      []string     `yaml:"names,omitempty"`
	Dropdowns  []CellReport `yaml:"dropdowns"`
	Button     string       `yaml:"refresh_button"`
	ButtonSeen bool         `yaml:"refresh_button_found"`
	Problems   []string     `yaml:"problems,omitempty"`
}

// CellReport is one input cell with its rule and current value
type CellReport struct {
	Field      string `yaml:"field"`
	Cell       string `yaml:"cell"`
	Value      string `yaml:"value"`
	Validation string `yaml:"validation,omitempty"`
}

// Diagnose inspects wb against the layout. Problems are collected rather
// than returned so that a partial report is still printed.
func Diagnose(wb Workbook, layout Layout) Report {
	rep := Report{
		Workbook: wb.Name(),
		Sheet:    layout.Sheet,
		Button:   layout.RefreshButton,
	}

	if err := layout.Validate(); err != nil {
		rep.Problems = append(rep.Problems, err.Error())
	}

	if insp, ok := wb.(Inspector); ok {
		if sheets, err := insp.Sheets(); err == nil {
			sort.Strings(sheets)
			rep.Sheets = sheets
		} else {
			rep.Problems = append(rep.Problems, "sheets: "+err.Error())
		}
		if shapes, err := insp.Shapes(); err == nil {
			sort.Slice(shapes, func(i, j int) bool { return shapes[i].Name < shapes[j].Name })
			rep.Shapes = shapes
			for _, s := range shapes {
				if s.Name == layout.RefreshButton {
					rep.ButtonSeen = true
				}
			}
		} else {
			rep.Problems = append(rep.Problems, "shapes: "+err.Error())
		}
		if names, err := insp.Names(); err == nil {
			sort.Strings(names)
			rep.Names = names
		} else {
			rep.Problems = append(rep.Problems, "names: "+err.Error())
		}
	}

	fields := []struct{ field, ref string }{
		{"symbol", layout.Symbol},
		{"option_expiry", layout.OptionExpiry},
		{"future_expiry", layout.FutureExpiry},
	}
	for _, f := range fields {
		cr := CellReport{Field: f.field, Cell: f.ref}
		if v, err := wb.Value(f.ref); err == nil {
			if v != nil {
				cr.Value = fmt.Sprint(v)
			}
		} else {
			rep.Problems = append(rep.Problems, fmt.Sprintf("%s: %v", f.ref, err))
		}
		if dv, err := wb.Validation(f.ref); err == nil && dv != nil {
			cr.Validation = dv.Formula
		}
		rep.Dropdowns = append(rep.Dropdowns, cr)
	}

	if !rep.ButtonSeen && rep.Shapes != nil {
		rep.Problems = append(rep.Problems, fmt.Sprintf("refresh button %q not found on %s", layout.RefreshButton, layout.Sheet))
	}
	return rep
}
