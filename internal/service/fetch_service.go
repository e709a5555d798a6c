package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nsvirk/ocbridge/internal/models"
	"github.com/nsvirk/ocbridge/internal/workbook"
	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"
)

// ErrBreakerOpen is returned while the workbook is failing fast
var ErrBreakerOpen = gobreaker.ErrOpenState

// headerWords mark label cells that sit where numbers are expected
var headerWords = []string{
	"open", "high", "low", "close", "ltp", "change", "interpretation", "avg",
	"price", "volume", "strike", "calls", "puts", "oi", "iv", "pcr", "pain",
	"vix", "bearish", "bullish",
}

// FetchRecorder stores a summary of each completed fetch
type FetchRecorder interface {
	Record(ctx context.Context, snap *models.OptionChainSnapshot, took time.Duration) error
}

// FetchService drives one refresh of the option chain sheet at a time
type FetchService struct {
	opener   workbook.Opener
	layout   workbook.Layout
	settle   time.Duration
	recorder FetchRecorder

	sem     *semaphore.Weighted
	breaker *gobreaker.CircuitBreaker
	sleep   func(time.Duration)
	now     func() time.Time
}

// FetchConfig tunes the fetch service
type FetchConfig struct {
	Settle          time.Duration
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
	Recorder        FetchRecorder
}

// NewFetchService creates the service; a nil recorder disables fetch logs
func NewFetchService(opener workbook.Opener, layout workbook.Layout, fc FetchConfig) *FetchService {
	if fc.BreakerFailures == 0 {
		fc.BreakerFailures = 3
	}
	if fc.BreakerOpenFor == 0 {
		fc.BreakerOpenFor = 60 * time.Second
	}
	failures := fc.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "workbook",
		Timeout: fc.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zaplogger.Warn("circuit breaker state changed", zaplogger.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
	return &FetchService{
		opener:   opener,
		layout:   layout,
		settle:   fc.Settle,
		recorder: fc.Recorder,
		sem:      semaphore.NewWeighted(1),
		breaker:  breaker,
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

// BreakerState reports the circuit breaker state
func (s *FetchService) BreakerState() string {
	return s.breaker.State().String()
}

// Fetch writes the request into the sheet, presses refresh, waits for the
// terminal to repopulate the sheet and reads the result back
func (s *FetchService) Fetch(ctx context.Context, cred models.Credential, req models.FetchRequest) (*models.OptionChainSnapshot, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	start := s.now()
	fetchID := uuid.New().String()
	zaplogger.Info("fetch started", zaplogger.Fields{
		"fetch_id":      fetchID,
		"symbol":        req.Symbol,
		"option_expiry": req.OptionExpiry,
		"future_expiry": req.FutureExpiry,
		"chain_length":  req.ChainLength,
	})

	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.openAndTrigger(ctx, cred, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrBreakerOpen
		}
		return nil, err
	}
	wb := out.(workbook.Workbook)
	defer wb.Close()

	s.sleep(s.settle)

	snap := s.read(wb, req)
	snap.FetchID = fetchID
	snap.Timestamp = s.now()
	took := snap.Timestamp.Sub(start)
	snap.FetchTimeSeconds = took.Seconds()

	if snap.MarketData.SpotLTP <= 0 || len(snap.OptionChain) == 0 {
		snap.DataSource = models.DataSourceStale
		zaplogger.Warn("sheet looks stale", zaplogger.Fields{
			"fetch_id": fetchID,
			"spot_ltp": snap.MarketData.SpotLTP,
			"rows":     len(snap.OptionChain),
		})
	} else {
		snap.DataSource = models.DataSourceLive
	}

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, snap, took); err != nil {
			zaplogger.Warn("fetch log write failed", zaplogger.Fields{"error": err.Error()})
		}
	}

	zaplogger.Info("fetch completed", zaplogger.Fields{
		"fetch_id":    fetchID,
		"data_source": snap.DataSource,
		"rows":        len(snap.OptionChain),
		"took":        took.String(),
	})
	return snap, nil
}

// openAndTrigger counts against the breaker: a workbook that cannot be
// opened, written or refreshed
func (s *FetchService) openAndTrigger(ctx context.Context, cred models.Credential, req models.FetchRequest) (workbook.Workbook, error) {
	wb, err := s.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	if err := s.writeInputs(wb, cred, req); err != nil {
		wb.Close()
		return nil, err
	}

	if err := wb.RunButton(s.layout.RefreshButton); err != nil {
		if !errors.Is(err, workbook.ErrTriggerUnsupported) {
			wb.Close()
			return nil, fmt.Errorf("refresh button %q: %w", s.layout.RefreshButton, err)
		}
		zaplogger.Warn("refresh not triggered, reading current values", zaplogger.Fields{"error": err.Error()})
		if err := wb.Save(); err != nil {
			wb.Close()
			return nil, fmt.Errorf("save inputs: %w", err)
		}
	}
	return wb, nil
}

func (s *FetchService) writeInputs(wb workbook.Workbook, cred models.Credential, req models.FetchRequest) error {
	if err := WriteCredential(wb, s.layout, cred); err != nil {
		return err
	}
	inputs := []struct {
		ref   string
		value any
	}{
		{s.layout.Symbol, req.Symbol},
		{s.layout.OptionExpiry, req.OptionExpiry},
		{s.layout.FutureExpiry, req.FutureExpiry},
		{s.layout.ChainLength, req.ChainLength},
	}
	for _, in := range inputs {
		if err := wb.SetValue(in.ref, in.value); err != nil {
			return fmt.Errorf("write %s: %w", in.ref, err)
		}
	}
	return nil
}

func (s *FetchService) read(wb workbook.Workbook, req models.FetchRequest) *models.OptionChainSnapshot {
	c := s.layout.Summary
	num := func(ref string) float64 { return numberAt(wb, ref) }

	snap := &models.OptionChainSnapshot{
		Symbol:       req.Symbol,
		OptionExpiry: req.OptionExpiry,
		FutureExpiry: req.FutureExpiry,
		ChainLength:  req.ChainLength,
		OHLC: models.OHLC{
			Open: num(c.Open), High: num(c.High), Low: num(c.Low), Close: num(c.Close),
			LTP: num(c.LTP), LTPChange: num(c.LTPChange), LTPChangePct: num(c.LTPChangePct),
		},
		Spot: models.Spot{
			Spot: num(c.Spot), SpotLTP: num(c.SpotLTP),
			SpotLTPChange: num(c.SpotLTPChange), SpotLTPChangePct: num(c.SpotLTPChangePct),
		},
		Future: models.Future{
			Future: num(c.Future), FuturePrice: num(c.FuturePrice),
			FutureChange: num(c.FutureChange), FutureChangePct: num(c.FutureChangePct),
		},
		OpenInterest: models.OpenInterestSummary{
			OpenInterest: num(c.OpenInterest), ChangeInOI: num(c.ChangeInOI),
			MaxOI: num(c.MaxOI), MaxChangeInOI: num(c.MaxChangeInOI),
			MaxOIStrike: num(c.MaxOIStrike), MaxChangeInOIStrike: num(c.MaxChangeInOIStrike),
		},
		FutureOI: models.FutureOpenInterest{
			FutureOI: num(c.FutureOI), FutureOIChange: num(c.FutureOIChange),
		},
		CallsSummary: models.SideSummary{
			TotalOI: num(c.TotalCallOI), TotalVolume: num(c.TotalCallVolume), TotalOIChange: num(c.TotalCallOIChange),
		},
		PutsSummary: models.SideSummary{
			TotalOI: num(c.TotalPutOI), TotalVolume: num(c.TotalPutVolume), TotalOIChange: num(c.TotalPutOIChange),
		},
		Signals: models.Signals{
			Intraday: textAt(wb, c.IntradaySignal),
			Weekly:   textAt(wb, c.WeeklySignal),
		},
	}
	snap.MarketData = models.MarketData{
		SpotLTP:          snap.Spot.SpotLTP,
		SpotLTPChange:    snap.Spot.SpotLTPChange,
		SpotLTPChangePct: snap.Spot.SpotLTPChangePct,
		FuturePrice:      snap.Future.FuturePrice,
		PCR:              num(c.PCR),
		MaxPain:          num(c.MaxPain),
		IndiaVIX:         num(c.IndiaVIX),
	}
	snap.OptionChain = s.readChain(wb, req.ChainLength)
	return snap
}

// readChain reads chainLength rows from the strike table. Rows whose strike
// is missing or below the minimum are skipped.
func (s *FetchService) readChain(wb workbook.Workbook, chainLength int) []models.OptionChainRow {
	rows := make([]models.OptionChainRow, 0, chainLength)
	if chainLength <= 0 {
		return rows
	}
	area := s.layout.ChainArea(chainLength)
	grid, err := wb.Range("", area.String())
	if err != nil {
		zaplogger.Error("chain read failed", zaplogger.Fields{"range": area.String(), "error": err.Error()})
		return rows
	}

	cols := s.layout.Chain
	for _, line := range grid {
		at := func(col string) any {
			i := columnIndex(col) - area.FirstCol
			if i < 0 || i >= len(line) {
				return nil
			}
			return line[i]
		}
		strike := ParseNumber(at(cols.Strike))
		if strike < s.layout.MinStrike {
			continue
		}
		rows = append(rows, models.OptionChainRow{
			Strike: strike,
			Call:   readSide(at, cols.Call),
			Put:    readSide(at, cols.Put),
		})
	}
	return rows
}

func readSide(at func(string) any, c workbook.SideColumns) models.OptionSide {
	return models.OptionSide{
		Interpretation: toText(at(c.Interpretation)),
		AvgPrice:       ParseNumber(at(c.AvgPrice)),
		IV:             ParseNumber(at(c.IV)),
		OIChange:       ParseNumber(at(c.OIChange)),
		OI:             ParseNumber(at(c.OI)),
		Volume:         ParseNumber(at(c.Volume)),
		LTPChange:      ParseNumber(at(c.LTPChange)),
		LTP:            ParseNumber(at(c.LTP)),
	}
}

func numberAt(wb workbook.Workbook, ref string) float64 {
	v, err := wb.Value(ref)
	if err != nil {
		zaplogger.Debug("cell read failed", zaplogger.Fields{"cell": ref, "error": err.Error()})
		return 0
	}
	return ParseNumber(v)
}

func textAt(wb workbook.Workbook, ref string) string {
	v, err := wb.Value(ref)
	if err != nil {
		return ""
	}
	return toText(v)
}

func toText(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// ParseNumber reads a cell as a number. Blanks, header labels and
// anything unparseable read as 0.
func ParseNumber(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case bool:
		return 0
	}

	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return 0
	}
	lower := strings.ToLower(s)
	for _, w := range headerWords {
		if strings.Contains(lower, w) {
			return 0
		}
	}
	s = strings.NewReplacer(",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

func columnIndex(col string) int {
	area, err := workbook.ParseArea(col + "1")
	if err != nil {
		return 0
	}
	return area.FirstCol
}
