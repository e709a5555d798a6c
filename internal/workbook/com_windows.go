//go:build windows

package workbook

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
)

// Open attaches to the running Excel instance and finds the workbook by
// file name. The calling goroutine is pinned to its OS thread until Close.
func (o *ComOpener) Open(ctx context.Context) (Workbook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runtime.LockOSThread()
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		var oleErr *ole.OleError
		// S_FALSE: already initialized on this thread
		if !errors.As(err, &oleErr) || oleErr.Code() != 1 {
			runtime.UnlockOSThread()
			return nil, fmt.Errorf("CoInitialize: %w", err)
		}
	}

	wb, err := o.attach()
	if err != nil {
		ole.CoUninitialize()
		runtime.UnlockOSThread()
		return nil, err
	}
	return wb, nil
}

func (o *ComOpener) attach() (*comWorkbook, error) {
	unknown, err := oleutil.GetActiveObject("Excel.Application")
	if err != nil {
		return nil, fmt.Errorf("%w: Excel is not running: %v", ErrWorkbookNotFound, err)
	}
	excel, err := unknown.QueryInterface(ole.IID_IDispatch)
	unknown.Release()
	if err != nil {
		return nil, fmt.Errorf("query Excel.Application: %w", err)
	}

	books, err := oleutil.GetProperty(excel, "Workbooks")
	if err != nil {
		excel.Release()
		return nil, fmt.Errorf("list workbooks: %w", err)
	}
	booksDisp := books.ToIDispatch()
	defer booksDisp.Release()

	count, err := oleutil.GetProperty(booksDisp, "Count")
	if err != nil {
		excel.Release()
		return nil, fmt.Errorf("count workbooks: %w", err)
	}

	target := strings.ToLower(baseName(o.Path))
	for i := 1; i <= int(count.Val); i++ {
		item, err := oleutil.GetProperty(booksDisp, "Item", i)
		if err != nil {
			continue
		}
		book := item.ToIDispatch()
		name, err := oleutil.GetProperty(book, "Name")
		if err != nil || !strings.Contains(strings.ToLower(name.ToString()), target) {
			book.Release()
			continue
		}

		sheetVar, err := oleutil.GetProperty(book, "Sheets", o.Sheet)
		if err != nil {
			book.Release()
			excel.Release()
			return nil, fmt.Errorf("%w: %s: %v", ErrSheetNotFound, o.Sheet, err)
		}
		zaplogger.Debug("attached to workbook", zaplogger.Fields{"workbook": name.ToString(), "sheet": o.Sheet})
		return &comWorkbook{
			excel: excel,
			book:  book,
			sheet: sheetVar.ToIDispatch(),
			name:  name.ToString(),
			keys:  o.Keys,
		}, nil
	}

	excel.Release()
	return nil, fmt.Errorf("%w: %s is not open in Excel", ErrWorkbookNotFound, baseName(o.Path))
}

type comWorkbook struct {
	excel *ole.IDispatch
	book  *ole.IDispatch
	sheet *ole.IDispatch
	name  string
	keys  KeySender
}

func (w *comWorkbook) Name() string { return w.name }

func (w *comWorkbook) rangeOf(sheet *ole.IDispatch, ref string) (*ole.IDispatch, error) {
	v, err := oleutil.GetProperty(sheet, "Range", ref)
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", ref, err)
	}
	return v.ToIDispatch(), nil
}

func (w *comWorkbook) Value(ref string) (any, error) {
	rng, err := w.rangeOf(w.sheet, ref)
	if err != nil {
		return nil, err
	}
	defer rng.Release()
	return cellValue(rng)
}

func cellValue(rng *ole.IDispatch) (any, error) {
	v, err := oleutil.GetProperty(rng, "Value")
	if err != nil {
		return nil, err
	}
	defer v.Clear()
	switch val := v.Value().(type) {
	case nil:
		return nil, nil
	case string:
		if val == "" {
			return nil, nil
		}
		return val, nil
	case time.Time, bool, float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int8, int16, int32, int64, uint8, uint16, uint32, uint64, int, uint:
		return toFloat(val), nil
	default:
		return fmt.Sprint(val), nil
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case int:
		return float64(n)
	case uint:
		return float64(n)
	}
	return 0
}

func (w *comWorkbook) SetValue(ref string, v any) error {
	rng, err := w.rangeOf(w.sheet, ref)
	if err != nil {
		return err
	}
	defer rng.Release()
	if _, err := oleutil.PutProperty(rng, "Value", v); err != nil {
		return fmt.Errorf("write %s: %w", ref, err)
	}
	return nil
}

func (w *comWorkbook) Range(sheet, ref string) ([][]any, error) {
	area, err := ParseArea(ref)
	if err != nil {
		return nil, err
	}
	if sheet == "" {
		sheet = area.Sheet
	}

	ws := w.sheet
	if sheet != "" {
		v, err := oleutil.GetProperty(w.book, "Sheets", sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSheetNotFound, sheet, err)
		}
		ws = v.ToIDispatch()
		defer ws.Release()
	}
	return readArea(ws, area)
}

// readArea walks the block cell by cell; multi-cell Value arrays come back
// as SAFEARRAYs whose 2D layout is not exposed by go-ole.
func readArea(ws *ole.IDispatch, area Area) ([][]any, error) {
	out := make([][]any, 0, area.Rows())
	for r := area.FirstRow; r <= area.LastRow; r++ {
		row := make([]any, 0, area.Cols())
		for c := area.FirstCol; c <= area.LastCol; c++ {
			cellVar, err := oleutil.GetProperty(ws, "Cells", r, c)
			if err != nil {
				return nil, fmt.Errorf("cell %s: %w", CellName(c, r), err)
			}
			cell := cellVar.ToIDispatch()
			v, err := cellValue(cell)
			cell.Release()
			if err != nil {
				return nil, fmt.Errorf("cell %s: %w", CellName(c, r), err)
			}
			row = append(row, v)
		}
		out = append(out, row)
	}
	return out, nil
}

func (w *comWorkbook) Validation(ref string) (*Validation, error) {
	rng, err := w.rangeOf(w.sheet, ref)
	if err != nil {
		return nil, err
	}
	defer rng.Release()

	dv, err := oleutil.GetProperty(rng, "Validation")
	if err != nil {
		return nil, nil
	}
	disp := dv.ToIDispatch()
	defer disp.Release()

	// Excel raises on Type when the cell carries no rule
	typ, err := oleutil.GetProperty(disp, "Type")
	if err != nil {
		return nil, nil
	}
	formula, err := oleutil.GetProperty(disp, "Formula1")
	if err != nil {
		return &Validation{Type: int(typ.Val)}, nil
	}
	return &Validation{Type: int(typ.Val), Formula: formula.ToString()}, nil
}

func (w *comWorkbook) NamedRange(name string) ([][]any, error) {
	nv, err := oleutil.GetProperty(w.book, "Names", name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNameNotFound, name)
	}
	named := nv.ToIDispatch()
	defer named.Release()

	rv, err := oleutil.GetProperty(named, "RefersToRange")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNameNotFound, name, err)
	}
	rng := rv.ToIDispatch()
	defer rng.Release()

	addr, err := oleutil.GetProperty(rng, "Address")
	if err != nil {
		return nil, err
	}
	area, err := ParseArea(addr.ToString())
	if err != nil {
		return nil, err
	}
	parent, err := oleutil.GetProperty(rng, "Worksheet")
	if err != nil {
		return nil, err
	}
	ws := parent.ToIDispatch()
	defer ws.Release()
	return readArea(ws, area)
}

// RunButton runs the shape's OnAction macro. When that fails the sheet is
// activated and the button is pressed from the keyboard.
func (w *comWorkbook) RunButton(name string) error {
	macroErr := w.runMacro(name)
	if macroErr == nil {
		return nil
	}
	zaplogger.Warn("macro trigger failed, falling back to keyboard", zaplogger.Fields{
		"shape": name,
		"error": macroErr.Error(),
	})
	if w.keys == nil {
		return macroErr
	}
	if _, err := oleutil.CallMethod(w.book, "Activate"); err != nil {
		return fmt.Errorf("activate workbook: %w", err)
	}
	if _, err := oleutil.CallMethod(w.sheet, "Activate"); err != nil {
		return fmt.Errorf("activate sheet: %w", err)
	}
	if err := w.keys.PressButton(); err != nil {
		return errors.Join(macroErr, err)
	}
	return nil
}

func (w *comWorkbook) runMacro(name string) error {
	shapes, err := oleutil.GetProperty(w.sheet, "Shapes", name)
	if err != nil {
		return fmt.Errorf("shape %q: %w", name, err)
	}
	shape := shapes.ToIDispatch()
	defer shape.Release()

	action, err := oleutil.GetProperty(shape, "OnAction")
	if err != nil {
		return fmt.Errorf("shape %q has no OnAction: %w", name, err)
	}
	macro := action.ToString()
	if macro == "" {
		return fmt.Errorf("shape %q has an empty OnAction", name)
	}
	if _, err := oleutil.CallMethod(w.excel, "Run", macro); err != nil {
		return fmt.Errorf("run %s: %w", macro, err)
	}
	return nil
}

func (w *comWorkbook) Save() error {
	if _, err := oleutil.CallMethod(w.book, "Save"); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func (w *comWorkbook) Close() error {
	w.sheet.Release()
	w.book.Release()
	w.excel.Release()
	ole.CoUninitialize()
	runtime.UnlockOSThread()
	return nil
}

func (w *comWorkbook) Sheets() ([]string, error) {
	sv, err := oleutil.GetProperty(w.book, "Sheets")
	if err != nil {
		return nil, err
	}
	sheets := sv.ToIDispatch()
	defer sheets.Release()
	return itemNames(sheets)
}

func (w *comWorkbook) Names() ([]string, error) {
	nv, err := oleutil.GetProperty(w.book, "Names")
	if err != nil {
		return nil, err
	}
	names := nv.ToIDispatch()
	defer names.Release()
	return itemNames(names)
}

func (w *comWorkbook) Shapes() ([]Shape, error) {
	sv, err := oleutil.GetProperty(w.sheet, "Shapes")
	if err != nil {
		return nil, err
	}
	shapes := sv.ToIDispatch()
	defer shapes.Release()

	count, err := oleutil.GetProperty(shapes, "Count")
	if err != nil {
		return nil, err
	}
	out := make([]Shape, 0, int(count.Val))
	for i := 1; i <= int(count.Val); i++ {
		item, err := oleutil.GetProperty(shapes, "Item", i)
		if err != nil {
			continue
		}
		shape := item.ToIDispatch()
		s := Shape{}
		if n, err := oleutil.GetProperty(shape, "Name"); err == nil {
			s.Name = n.ToString()
		}
		if a, err := oleutil.GetProperty(shape, "OnAction"); err == nil {
			s.OnAction = a.ToString()
		}
		shape.Release()
		out = append(out, s)
	}
	return out, nil
}

func itemNames(collection *ole.IDispatch) ([]string, error) {
	count, err := oleutil.GetProperty(collection, "Count")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, int(count.Val))
	for i := 1; i <= int(count.Val); i++ {
		item, err := oleutil.GetProperty(collection, "Item", i)
		if err != nil {
			continue
		}
		disp := item.ToIDispatch()
		if n, err := oleutil.GetProperty(disp, "Name"); err == nil {
			out = append(out, n.ToString())
		}
		disp.Release()
	}
	return out, nil
}
