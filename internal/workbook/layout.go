package workbook

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SummaryCells locates every scalar read after a refresh
type SummaryCells struct {
	Open         string
	High         string
	Low          string
	Close        string
	LTP          string
	LTPChange    string
	LTPChangePct string

	Spot             string
	SpotLTP          string
	SpotLTPChange    string
	SpotLTPChangePct string

	Future          string
	FuturePrice     string
	FutureChange    string
	FutureChangePct string

	OpenInterest        string
	ChangeInOI          string
	MaxOI               string
	MaxChangeInOI       string
	MaxOIStrike         string
	MaxChangeInOIStrike string

	FutureOI       string
	FutureOIChange string

	TotalCallOI       string
	TotalCallVolume   string
	TotalCallOIChange string
	TotalPutOI        string
	TotalPutVolume    string
	TotalPutOIChange  string

	PCR      string
	MaxPain  string
	IndiaVIX string

	IntradaySignal string
	WeeklySignal   string
}

// SideColumns maps the attributes of one option side to columns
type SideColumns struct {
	Interpretation string
	AvgPrice       string
	IV             string
	OIChange       string
	OI             string
	Volume         string
	LTPChange      string
	LTP            string
}

// ChainColumns describes the strike table
type ChainColumns struct {
	StartRow int
	Strike   string
	Call     SideColumns
	Put      SideColumns
}

// Layout is the complete cell contract of the option chain sheet
type Layout struct {
	Sheet string

	Symbol       string
	OptionExpiry string
	FutureExpiry string
	ChainLength  string
	UserID       string
	Enctoken     string

	RefreshButton string

	SymbolList       string
	OptionExpiryList string
	FutureExpiryList string

	ScanColumns int
	ScanRows    int
	ScanCap     int

	Summary   SummaryCells
	Chain     ChainColumns
	MinStrike float64
}

// DefaultLayout matches SmartOptionChainExcel_Zerodha.xlsm
var DefaultLayout = Layout{
	Sheet: "Option_Chain",

	Symbol:       "B2",
	OptionExpiry: "B3",
	FutureExpiry: "B4",
	ChainLength:  "B6",
	UserID:       "F587",
	Enctoken:     "F615",

	RefreshButton: "Button 2",

	SymbolList:       "SymbolList",
	OptionExpiryList: "OptionExpiryList",
	FutureExpiryList: "FutureExpiryList",

	ScanColumns: 30,
	ScanRows:    199,
	ScanCap:     20,

	Summary: SummaryCells{
		Open: "D3", High: "D4", Low: "D5", Close: "D6", LTP: "D7", LTPChange: "D8", LTPChangePct: "D9",

		Spot: "F3", SpotLTP: "F7", SpotLTPChange: "F8", SpotLTPChangePct: "F9",

		Future: "G3", FuturePrice: "G7", FutureChange: "G8", FutureChangePct: "G9",

		OpenInterest: "I4", ChangeInOI: "I5", MaxOI: "I6", MaxChangeInOI: "I7", MaxOIStrike: "I8", MaxChangeInOIStrike: "I9",

		FutureOI: "J4", FutureOIChange: "J5",

		TotalCallOI: "K4", TotalCallVolume: "K5", TotalCallOIChange: "K6",
		TotalPutOI: "L4", TotalPutVolume: "L5", TotalPutOIChange: "L6",

		PCR: "T2", MaxPain: "T5", IndiaVIX: "T8",

		IntradaySignal: "P3", WeeklySignal: "P7",
	},

	Chain: ChainColumns{
		StartRow: 13,
		Strike:   "I",
		Call: SideColumns{
			Interpretation: "A", AvgPrice: "B", IV: "C", OIChange: "D",
			OI: "E", Volume: "F", LTPChange: "G", LTP: "H",
		},
		Put: SideColumns{
			LTP: "J", LTPChange: "K", Volume: "L", OI: "M",
			OIChange: "N", IV: "O", AvgPrice: "P", Interpretation: "Q",
		},
	},

	MinStrike: 1000,
}

// Inputs returns the writable cells by logical name
func (l Layout) Inputs() map[string]string {
	return map[string]string{
		"symbol":        l.Symbol,
		"option_expiry": l.OptionExpiry,
		"future_expiry": l.FutureExpiry,
		"chain_length":  l.ChainLength,
		"user_id":       l.UserID,
		"enctoken":      l.Enctoken,
	}
}

// Validate checks that every coordinate parses and that inputs and
// table columns do not overlap.
func (l Layout) Validate() error {
	var errs []error
	if l.Sheet == "" {
		errs = append(errs, errors.New("layout: sheet name is empty"))
	}
	if l.RefreshButton == "" {
		errs = append(errs, errors.New("layout: refresh button is empty"))
	}
	if l.ScanColumns < 1 || l.ScanRows < 1 || l.ScanCap < 1 {
		errs = append(errs, errors.New("layout: scan bounds must be positive"))
	}
	if l.Chain.StartRow < 1 {
		errs = append(errs, errors.New("layout: chain start row must be positive"))
	}

	seen := make(map[string]string)
	for name, ref := range l.Inputs() {
		if _, _, err := excelize.CellNameToCoordinates(ref); err != nil {
			errs = append(errs, fmt.Errorf("layout: input %s: %w", name, err))
			continue
		}
		if other, dup := seen[strings.ToUpper(ref)]; dup {
			errs = append(errs, fmt.Errorf("layout: inputs %s and %s share cell %s", name, other, ref))
		}
		seen[strings.ToUpper(ref)] = name
	}

	for name, ref := range l.Summary.cells() {
		if _, _, err := excelize.CellNameToCoordinates(ref); err != nil {
			errs = append(errs, fmt.Errorf("layout: summary %s: %w", name, err))
		}
	}

	columns := make(map[string]string)
	for name, col := range l.Chain.columns() {
		if _, err := excelize.ColumnNameToNumber(col); err != nil {
			errs = append(errs, fmt.Errorf("layout: chain column %s: %w", name, err))
			continue
		}
		if other, dup := columns[strings.ToUpper(col)]; dup {
			errs = append(errs, fmt.Errorf("layout: chain columns %s and %s share column %s", name, other, col))
		}
		columns[strings.ToUpper(col)] = name
	}

	return errors.Join(errs...)
}

// Check inspects a live workbook: the main sheet must be reachable and
// every input cell readable.
func (l Layout) Check(wb Workbook) error {
	for name, ref := range l.Inputs() {
		if _, err := wb.Value(ref); err != nil {
			return fmt.Errorf("layout: cannot read %s at %s: %w", name, ref, err)
		}
	}
	return nil
}

// ChainArea returns the block covering n strike rows and every chain column
func (l Layout) ChainArea(n int) Area {
	first, last := 0, 0
	for _, col := range l.Chain.columns() {
		num, err := excelize.ColumnNameToNumber(col)
		if err != nil {
			continue
		}
		if first == 0 || num < first {
			first = num
		}
		if num > last {
			last = num
		}
	}
	return Area{
		FirstCol: first,
		FirstRow: l.Chain.StartRow,
		LastCol:  last,
		LastRow:  l.Chain.StartRow + n - 1,
	}
}

// String renders an area as an A1 range without a sheet prefix
func (a Area) String() string {
	return CellName(a.FirstCol, a.FirstRow) + ":" + CellName(a.LastCol, a.LastRow)
}

func (s SummaryCells) cells() map[string]string {
	return stringFields(s, "")
}

func (c ChainColumns) columns() map[string]string {
	out := map[string]string{"strike": c.Strike}
	for k, v := range stringFields(c.Call, "call.") {
		out[k] = v
	}
	for k, v := range stringFields(c.Put, "put.") {
		out[k] = v
	}
	return out
}

func stringFields(v any, prefix string) map[string]string {
	out := make(map[string]string)
	rv := reflect.ValueOf(v)
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		if rt.Field(i).Type.Kind() != reflect.String {
			continue
		}
		out[prefix+rt.Field(i).Name] = rv.Field(i).String()
	}
	return out
}
