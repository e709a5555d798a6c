package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nsvirk/ocbridge/internal/models"
	"github.com/nsvirk/ocbridge/internal/workbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCred = models.Credential{UserID: "AB1234", Token: "tok"}

type fakeFetchRecorder struct{ snaps []*models.OptionChainSnapshot }

func (r *fakeFetchRecorder) Record(_ context.Context, snap *models.OptionChainSnapshot, _ time.Duration) error {
	r.snaps = append(r.snaps, snap)
	return nil
}

func newFetchService(opener workbook.Opener, rec FetchRecorder) *FetchService {
	s := NewFetchService(opener, workbook.DefaultLayout, FetchConfig{Settle: 15 * time.Second, Recorder: rec})
	s.sleep = func(time.Duration) {}
	return s
}

// populate fills the sheet the way the terminal does after a refresh
func populate(wb *workbook.MemoryWorkbook) error {
	wb.Put("", "D3", 24800.0).Put("", "D7", "24,850.50").Put("", "D9", "0.45")
	wb.Put("", "F7", 24831.2).Put("", "F8", -12.5)
	wb.Put("", "G7", 24901.0)
	wb.Put("", "T2", 1.12).Put("", "T5", 24800.0).Put("", "T8", "11.9")
	wb.Put("", "I8", 25000.0)
	wb.Put("", "K4", "1 20 000")
	wb.Put("", "P3", "  Bullish  ").Put("", "P7", "Sideways")

	wb.Put("", "I13", 24700.0).Put("", "H13", 180.5).Put("", "J13", 31.0).Put("", "A13", "Long Buildup").Put("", "Q13", "Short Covering")
	wb.Put("", "I14", "Strike")
	wb.Put("", "I15", 500.0)
	wb.Put("", "I16", nil)
	wb.Put("", "I17", "24,800").Put("", "E17", "1,25,000").Put("", "M17", 98000.0).Put("", "C17", "OI")
	return nil
}

func TestFetch(t *testing.T) {
	wb := workbook.NewMemoryWorkbook("chain.xlsm", "Option_Chain")
	wb.OnButton("Button 2", populate)
	rec := &fakeFetchRecorder{}
	s := newFetchService(&workbook.MemoryOpener{Workbook: wb}, rec)

	var slept time.Duration
	s.sleep = func(d time.Duration) { slept = d }

	req := models.FetchRequest{Symbol: "NIFTY", OptionExpiry: "23-10-2025", FutureExpiry: "28-10-2025", ChainLength: 5}
	snap, err := s.Fetch(context.Background(), testCred, req)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, slept)
	assert.Equal(t, []string{"F587", "F615", "B2", "B3", "B4", "B6"}, wb.Writes)
	assert.Equal(t, "tok", wb.Get("F615"))
	assert.Equal(t, 5, wb.Get("B6"))

	assert.NotEmpty(t, snap.FetchID)
	assert.Equal(t, models.DataSourceLive, snap.DataSource)
	assert.Equal(t, "NIFTY", snap.Symbol)
	assert.Equal(t, 24850.5, snap.OHLC.LTP)
	assert.Equal(t, 0.45, snap.OHLC.LTPChangePct)
	assert.Equal(t, 24831.2, snap.MarketData.SpotLTP)
	assert.Equal(t, -12.5, snap.MarketData.SpotLTPChange)
	assert.Equal(t, 24901.0, snap.MarketData.FuturePrice)
	assert.Equal(t, 1.12, snap.MarketData.PCR)
	assert.Equal(t, 11.9, snap.MarketData.IndiaVIX)
	assert.Equal(t, 25000.0, snap.OpenInterest.MaxOIStrike)
	assert.Equal(t, 120000.0, snap.CallsSummary.TotalOI)
	assert.Equal(t, models.Signals{Intraday: "Bullish", Weekly: "Sideways"}, snap.Signals)

	require.Len(t, snap.OptionChain, 2)
	first := snap.OptionChain[0]
	assert.Equal(t, 24700.0, first.Strike)
	assert.Equal(t, 180.5, first.Call.LTP)
	assert.Equal(t, "Long Buildup", first.Call.Interpretation)
	assert.Equal(t, 31.0, first.Put.LTP)
	assert.Equal(t, "Short Covering", first.Put.Interpretation)

	second := snap.OptionChain[1]
	assert.Equal(t, 24800.0, second.Strike)
	assert.Equal(t, 125000.0, second.Call.OI)
	assert.Equal(t, 98000.0, second.Put.OI)
	assert.Zero(t, second.Call.IV)

	require.Len(t, rec.snaps, 1)
	assert.True(t, wb.Closed)
}

func TestFetchChainLengthBoundsTheScan(t *testing.T) {
	wb := workbook.NewMemoryWorkbook("chain.xlsm", "Option_Chain")
	wb.OnButton("Button 2", func(wb *workbook.MemoryWorkbook) error {
		wb.Put("", "F7", 24831.2)
		for r := 13; r < 40; r++ {
			wb.Put("", workbook.CellName(9, r), float64(24000+50*r))
		}
		return nil
	})
	s := newFetchService(&workbook.MemoryOpener{Workbook: wb}, nil)

	snap, err := s.Fetch(context.Background(), testCred, models.FetchRequest{Symbol: "NIFTY", ChainLength: 5})
	require.NoError(t, err)
	assert.Len(t, snap.OptionChain, 5)
}

func TestFetchStaleSheet(t *testing.T) {
	wb := workbook.NewMemoryWorkbook("chain.xlsm", "Option_Chain")
	wb.OnButton("Button 2", func(wb *workbook.MemoryWorkbook) error {
		wb.Put("", "F7", 24831.2)
		for r := 13; r < 33; r++ {
			wb.Put("", workbook.CellName(9, r), 0.0)
		}
		return nil
	})
	s := newFetchService(&workbook.MemoryOpener{Workbook: wb}, nil)

	snap, err := s.Fetch(context.Background(), testCred, models.FetchRequest{Symbol: "NIFTY", ChainLength: 20})
	require.NoError(t, err)
	assert.Empty(t, snap.OptionChain)
	assert.Equal(t, models.DataSourceStale, snap.DataSource)
	assert.True(t, snap.Degraded())
}

func TestFetchWithoutTrigger(t *testing.T) {
	wb := &noTriggerWorkbook{MemoryWorkbook: workbook.NewMemoryWorkbook("chain.xlsm", "Option_Chain")}
	wb.Put("", "F7", 24831.2).Put("", "I13", 24700.0)
	s := newFetchService(openerFunc(func(context.Context) (workbook.Workbook, error) { return wb, nil }), nil)

	snap, err := s.Fetch(context.Background(), testCred, models.FetchRequest{Symbol: "NIFTY", ChainLength: 5})
	require.NoError(t, err)
	assert.Equal(t, models.DataSourceLive, snap.DataSource)
	assert.Len(t, snap.OptionChain, 1)
	assert.Equal(t, "closed", s.BreakerState())
	assert.Equal(t, 1, wb.Saves, "inputs are saved when the button cannot be pressed")
	assert.Equal(t, "NIFTY", wb.Get("B2"))
}

func TestFetchWithoutTriggerSaveFailure(t *testing.T) {
	wb := &noTriggerWorkbook{MemoryWorkbook: workbook.NewMemoryWorkbook("chain.xlsm", "Option_Chain"), saveErr: errors.New("file locked")}
	s := newFetchService(openerFunc(func(context.Context) (workbook.Workbook, error) { return wb, nil }), nil)

	_, err := s.Fetch(context.Background(), testCred, models.FetchRequest{Symbol: "NIFTY", ChainLength: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file locked")
}

func TestFetchBreakerOpens(t *testing.T) {
	opener := &workbook.MemoryOpener{Err: errors.New("excel not running")}
	s := newFetchService(opener, nil)
	req := models.FetchRequest{Symbol: "NIFTY", ChainLength: 20}

	for i := 0; i < 3; i++ {
		_, err := s.Fetch(context.Background(), testCred, req)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBreakerOpen)
	}
	_, err := s.Fetch(context.Background(), testCred, req)
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 3, opener.Opens)
	assert.Equal(t, "open", s.BreakerState())
}

func TestFetchHonoursContextWhileQueued(t *testing.T) {
	s := newFetchService(&workbook.MemoryOpener{}, nil)
	require.NoError(t, s.sem.Acquire(context.Background(), 1))
	defer s.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Fetch(ctx, testCred, models.FetchRequest{Symbol: "NIFTY", ChainLength: 5})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
	}{
		{nil, 0},
		{"", 0},
		{12.5, 12.5},
		{7, 7},
		{"1,25,000", 125000},
		{" -3.25 ", -3.25},
		{"1 000", 1000},
		{"LTP", 0},
		{"Calls OI", 0},
		{"Bullish", 0},
		{"n/a", 0},
		{true, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseNumber(tt.in), "%v", tt.in)
	}
}

type noTriggerWorkbook struct {
	*workbook.MemoryWorkbook
	saveErr error
}

func (w *noTriggerWorkbook) RunButton(string) error { return workbook.ErrTriggerUnsupported }

func (w *noTriggerWorkbook) Save() error {
	if w.saveErr != nil {
		return w.saveErr
	}
	return w.MemoryWorkbook.Save()
}

type openerFunc func(ctx context.Context) (workbook.Workbook, error)

func (f openerFunc) Open(ctx context.Context) (workbook.Workbook, error) { return f(ctx) }
