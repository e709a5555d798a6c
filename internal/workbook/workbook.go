// Package workbook is the spreadsheet surface the bridge reads and drives.
//
// A Workbook is a connected handle on one document. The main sheet is the
// option chain sheet; other sheets are only reached through Range, which is
// how validation lists on helper sheets are followed.
package workbook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ValidateList is the validation type of an in-cell dropdown list
const ValidateList = 3

var (
	ErrWorkbookNotFound   = errors.New("workbook not found")
	ErrSheetNotFound      = errors.New("sheet not found")
	ErrNameNotFound       = errors.New("named range not found")
	ErrTriggerUnsupported = errors.New("workbook backend cannot run macros")
	ErrComUnavailable     = errors.New("live Excel automation is only available on windows")
)

// Validation is the data-validation rule attached to a cell
type Validation struct {
	Type    int
	Formula string
}

// IsList reports whether the rule is an allowed-values dropdown
func (v *Validation) IsList() bool {
	return v != nil && v.Type == ValidateList
}

// Workbook is a connected spreadsheet document
type Workbook interface {
	// Name is the document's display name
	Name() string
	// Value reads one cell of the main sheet. Empty cells are nil.
	Value(ref string) (any, error)
	// SetValue writes one cell of the main sheet
	SetValue(ref string, v any) error
	// Range reads a rectangular block row by row. An empty sheet is the main sheet.
	Range(sheet, ref string) ([][]any, error)
	// Validation returns the rule on a main sheet cell, nil when there is none
	Validation(ref string) (*Validation, error)
	// NamedRange reads the cells a workbook level name refers to
	NamedRange(name string) ([][]any, error)
	// RunButton triggers the macro bound to a shape on the main sheet
	RunButton(name string) error
	Save() error
	Close() error
}

// Opener connects to a workbook
type Opener interface {
	Open(ctx context.Context) (Workbook, error)
}

// Shape is a drawing object on the main sheet
type Shape struct {
	Name     string `yaml:"name"`
	OnAction string `yaml:"on_action,omitempty"`
}

// Inspector is implemented by backends that can describe document structure
type Inspector interface {
	Sheets() ([]string, error)
	Shapes() ([]Shape, error)
	Names() ([]string, error)
}

// Area is a parsed A1 reference, optionally sheet qualified
type Area struct {
	Sheet              string
	FirstCol, FirstRow int
	LastCol, LastRow   int
}

// Rows is the number of rows covered
func (a Area) Rows() int { return a.LastRow - a.FirstRow + 1 }

// Cols is the number of columns covered
func (a Area) Cols() int { return a.LastCol - a.FirstCol + 1 }

// ParseArea parses references such as `A1`, `$B$3:$B$20` and
// `'Expiry List'!$A$1:$A$12`. A leading `=` is ignored.
func ParseArea(ref string) (Area, error) {
	ref = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ref), "="))
	var area Area
	if i := strings.LastIndex(ref, "!"); i >= 0 {
		area.Sheet = strings.Trim(ref[:i], "'")
		ref = ref[i+1:]
	}
	ref = strings.ReplaceAll(ref, "$", "")
	if ref == "" {
		return Area{}, fmt.Errorf("empty cell reference")
	}

	first, last, found := strings.Cut(ref, ":")
	if !found {
		last = first
	}
	c1, r1, err := excelize.CellNameToCoordinates(first)
	if err != nil {
		return Area{}, fmt.Errorf("invalid cell reference %q: %w", first, err)
	}
	c2, r2, err := excelize.CellNameToCoordinates(last)
	if err != nil {
		return Area{}, fmt.Errorf("invalid cell reference %q: %w", last, err)
	}
	if c2 < c1 {
		c1, c2 = c2, c1
	}
	if r2 < r1 {
		r1, r2 = r2, r1
	}
	area.FirstCol, area.FirstRow, area.LastCol, area.LastRow = c1, r1, c2, r2
	return area, nil
}

// IsReference reports whether s parses as an A1 reference rather than a literal list
func IsReference(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.Contains(s, ",") || strings.HasPrefix(s, "\"") {
		return false
	}
	_, err := ParseArea(s)
	return err == nil
}

// CellName formats 1-based coordinates as an A1 name
func CellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return ""
	}
	return name
}
