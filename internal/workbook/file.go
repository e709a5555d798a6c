package workbook

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// FileOpener opens the workbook straight from disk. It can read and write
// cells but cannot run the terminal's macros.
type FileOpener struct {
	Path  string
	Sheet string
}

// Open loads the file
func (o *FileOpener) Open(ctx context.Context) (Workbook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(o.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrWorkbookNotFound, o.Path, err)
	}
	if idx, err := f.GetSheetIndex(o.Sheet); err != nil || idx < 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, o.Sheet)
	}
	return &fileWorkbook{f: f, path: o.Path, sheet: o.Sheet}, nil
}

type fileWorkbook struct {
	f     *excelize.File
	path  string
	sheet string
}

func (w *fileWorkbook) Name() string { return filepath.Base(w.path) }

func (w *fileWorkbook) Value(ref string) (any, error) {
	return w.cell(w.sheet, strings.ReplaceAll(ref, "$", ""))
}

// cell returns nil, bool, float64, time.Time or string depending on the stored type
func (w *fileWorkbook) cell(sheet, ref string) (any, error) {
	raw, err := w.f.GetCellValue(sheet, ref, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	typ, err := w.f.GetCellType(sheet, ref)
	if err != nil {
		return raw, nil
	}
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
		return raw, nil
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t, nil
		}
		return raw, nil
	default:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n, nil
		}
		return raw, nil
	}
}

func (w *fileWorkbook) SetValue(ref string, v any) error {
	return w.f.SetCellValue(w.sheet, strings.ReplaceAll(ref, "$", ""), v)
}

func (w *fileWorkbook) Range(sheet, ref string) ([][]any, error) {
	area, err := ParseArea(ref)
	if err != nil {
		return nil, err
	}
	if sheet == "" {
		sheet = area.Sheet
	}
	if sheet == "" {
		sheet = w.sheet
	}
	out := make([][]any, 0, area.Rows())
	for r := area.FirstRow; r <= area.LastRow; r++ {
		row := make([]any, 0, area.Cols())
		for c := area.FirstCol; c <= area.LastCol; c++ {
			v, err := w.cell(sheet, CellName(c, r))
			if err != nil {
				return nil, err
			}
			row = append(row, v)
		}
		out = append(out, row)
	}
	return out, nil
}

func (w *fileWorkbook) Validation(ref string) (*Validation, error) {
	dvs, err := w.f.GetDataValidations(w.sheet)
	if err != nil {
		return nil, err
	}
	target, err := ParseArea(ref)
	if err != nil {
		return nil, err
	}
	for _, dv := range dvs {
		if !sqrefCovers(dv.Sqref, target.FirstCol, target.FirstRow) {
			continue
		}
		v := &Validation{Formula: dv.Formula1}
		if dv.Type == "list" {
			v.Type = ValidateList
		}
		return v, nil
	}
	return nil, nil
}

func sqrefCovers(sqref string, col, row int) bool {
	for _, part := range strings.Fields(sqref) {
		area, err := ParseArea(part)
		if err != nil {
			continue
		}
		if col >= area.FirstCol && col <= area.LastCol && row >= area.FirstRow && row <= area.LastRow {
			return true
		}
	}
	return false
}

func (w *fileWorkbook) NamedRange(name string) ([][]any, error) {
	for _, dn := range w.f.GetDefinedName() {
		if dn.Name == name {
			return w.Range("", dn.RefersTo)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNameNotFound, name)
}

func (w *fileWorkbook) RunButton(string) error {
	return ErrTriggerUnsupported
}

func (w *fileWorkbook) Save() error {
	return w.f.Save()
}

func (w *fileWorkbook) Close() error {
	return w.f.Close()
}

func (w *fileWorkbook) Sheets() ([]string, error) {
	return w.f.GetSheetList(), nil
}

func (w *fileWorkbook) Shapes() ([]Shape, error) {
	return nil, errors.New("shapes are not readable from the file backend")
}

func (w *fileWorkbook) Names() ([]string, error) {
	var out []string
	for _, dn := range w.f.GetDefinedName() {
		out = append(out, dn.Name)
	}
	return out, nil
}
