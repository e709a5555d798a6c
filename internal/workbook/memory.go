package workbook

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryWorkbook is an in-process workbook. Tests use it to model a sheet,
// and the CLI uses it for dry runs.
type MemoryWorkbook struct {
	mu          sync.Mutex
	name        string
	sheet       string
	cells       map[string]map[string]any
	validations map[string]*Validation
	names       map[string]string
	buttons     map[string]func(wb *MemoryWorkbook) error

	Saves  int
	Closed bool
	Writes []string
}

// NewMemoryWorkbook creates an empty workbook whose main sheet is sheet
func NewMemoryWorkbook(name, sheet string) *MemoryWorkbook {
	return &MemoryWorkbook{
		name:        name,
		sheet:       sheet,
		cells:       map[string]map[string]any{sheet: {}},
		validations: make(map[string]*Validation),
		names:       make(map[string]string),
		buttons:     make(map[string]func(wb *MemoryWorkbook) error),
	}
}

func normRef(ref string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(ref), "$", ""))
}

// Put sets a cell on any sheet without recording a write
func (m *MemoryWorkbook) Put(sheet, ref string, v any) *MemoryWorkbook {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sheet == "" {
		sheet = m.sheet
	}
	if m.cells[sheet] == nil {
		m.cells[sheet] = make(map[string]any)
	}
	m.cells[sheet][normRef(ref)] = v
	return m
}

// SetValidation attaches a rule to a main sheet cell
func (m *MemoryWorkbook) SetValidation(ref string, v *Validation) *MemoryWorkbook {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validations[normRef(ref)] = v
	return m
}

// DefineName binds a workbook level name to a reference such as `Lists!A1:A5`
func (m *MemoryWorkbook) DefineName(name, refersTo string) *MemoryWorkbook {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[name] = refersTo
	return m
}

// OnButton registers what pressing a shape does
func (m *MemoryWorkbook) OnButton(name string, fn func(wb *MemoryWorkbook) error) *MemoryWorkbook {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buttons[name] = fn
	return m
}

// Get reads a main sheet cell without locking semantics of the interface
func (m *MemoryWorkbook) Get(ref string) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cells[m.sheet][normRef(ref)]
}

func (m *MemoryWorkbook) Name() string { return m.name }

func (m *MemoryWorkbook) Value(ref string) (any, error) {
	return m.Get(ref), nil
}

func (m *MemoryWorkbook) SetValue(ref string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[m.sheet][normRef(ref)] = v
	m.Writes = append(m.Writes, normRef(ref))
	return nil
}

func (m *MemoryWorkbook) Range(sheet, ref string) ([][]any, error) {
	area, err := ParseArea(ref)
	if err != nil {
		return nil, err
	}
	if sheet == "" {
		sheet = area.Sheet
	}
	if sheet == "" {
		sheet = m.sheet
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cells, ok := m.cells[sheet]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	out := make([][]any, 0, area.Rows())
	for r := area.FirstRow; r <= area.LastRow; r++ {
		row := make([]any, 0, area.Cols())
		for c := area.FirstCol; c <= area.LastCol; c++ {
			row = append(row, cells[CellName(c, r)])
		}
		out = append(out, row)
	}
	return out, nil
}

func (m *MemoryWorkbook) Validation(ref string) (*Validation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validations[normRef(ref)], nil
}

func (m *MemoryWorkbook) NamedRange(name string) ([][]any, error) {
	m.mu.Lock()
	refersTo, ok := m.names[name]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNameNotFound, name)
	}
	return m.Range("", refersTo)
}

func (m *MemoryWorkbook) RunButton(name string) error {
	m.mu.Lock()
	fn, ok := m.buttons[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("shape %q not found", name)
	}
	return fn(m)
}

func (m *MemoryWorkbook) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	return nil
}

func (m *MemoryWorkbook) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

func (m *MemoryWorkbook) Sheets() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.cells))
	for s := range m.cells {
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryWorkbook) Shapes() ([]Shape, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Shape, 0, len(m.buttons))
	for name := range m.buttons {
		out = append(out, Shape{Name: name})
	}
	return out, nil
}

func (m *MemoryWorkbook) Names() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.names))
	for n := range m.names {
		out = append(out, n)
	}
	return out, nil
}

// MemoryOpener hands out the same MemoryWorkbook, or Err when set
type MemoryOpener struct {
	Workbook *MemoryWorkbook
	Err      error
	Opens    int
}

func (o *MemoryOpener) Open(context.Context) (Workbook, error) {
	o.Opens++
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Workbook, nil
}
