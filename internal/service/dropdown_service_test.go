package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nsvirk/ocbridge/internal/models"
	"github.com/nsvirk/ocbridge/internal/repository"
	"github.com/nsvirk/ocbridge/internal/workbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// thursday is 2025-10-16, a Thursday
var thursday = time.Date(2025, 10, 16, 10, 0, 0, 0, time.UTC)

func newDropdownService(t *testing.T, wb *workbook.MemoryWorkbook) (*DropdownService, *workbook.MemoryOpener, repository.CacheStore) {
	t.Helper()
	store, err := repository.NewFileStore(t.TempDir())
	require.NoError(t, err)
	opener := &workbook.MemoryOpener{Workbook: wb}
	s := NewDropdownService(opener, workbook.DefaultLayout, store)
	s.now = func() time.Time { return thursday }
	return s, opener, store
}

func TestDropdownsFromValidation(t *testing.T) {
	wb := workbook.NewMemoryWorkbook("chain.xlsm", "Option_Chain")
	wb.SetValidation("B2", &workbook.Validation{Type: workbook.ValidateList, Formula: `"NIFTY,BANKNIFTY,NIFTY,None, FINNIFTY"`})
	wb.SetValidation("B3", &workbook.Validation{Type: workbook.ValidateList, Formula: "=Lists!$A$1:$A$4"})
	wb.SetValidation("B4", &workbook.Validation{Type: workbook.ValidateList, Formula: "=Lists!$C$1:$D$1"})
	wb.Put("Lists", "A1", time.Date(2025, 10, 23, 0, 0, 0, 0, time.UTC))
	wb.Put("Lists", "A2", "30/10/2025")
	wb.Put("Lists", "A3", 45967.0)
	wb.Put("Lists", "A4", "")
	wb.Put("Lists", "C1", "2025-10-28 00:00:00")
	wb.Put("Lists", "D1", "25-11-2025")

	s, _, store := newDropdownService(t, wb)
	res := s.Resolve(context.Background())

	assert.Equal(t, []string{"NIFTY", "BANKNIFTY", "FINNIFTY"}, res.Symbols)
	assert.Equal(t, []string{"23-10-2025", "30-10-2025", "06-11-2025"}, res.OptionExpiry)
	assert.Equal(t, []string{"28-10-2025", "25-11-2025"}, res.FutureExpiry)
	assert.Equal(t, models.SourceValidation, res.Sources[models.FieldSymbols])
	assert.Equal(t, models.SourceValidation, res.Sources[models.FieldOptionExpiry])
	assert.Equal(t, models.SourceValidation, res.Sources[models.FieldFutureExpiry])

	var cached models.CachedDropdowns
	require.NoError(t, store.Load(context.Background(), repository.DropdownCacheKey, &cached))
	assert.Equal(t, res.Symbols, cached.Symbols)
	assert.True(t, wb.Closed)
}

func TestDropdownsFromNamedRanges(t *testing.T) {
	wb := workbook.NewMemoryWorkbook("chain.xlsm", "Option_Chain")
	wb.SetValidation("B2", &workbook.Validation{Type: 1, Formula: "1000"})
	wb.SetValidation("B3", &workbook.Validation{Type: workbook.ValidateList, Formula: "=OptionExpiryList"})
	wb.DefineName("SymbolList", "Lists!$A$1:$B$1")
	wb.DefineName("OptionExpiryList", "Lists!$A$3:$A$4")
	wb.DefineName("FutureExpiryList", "Lists!$A$5:$A$5")
	wb.Put("Lists", "A1", "NIFTY").Put("Lists", "B1", "SENSEX")
	wb.Put("Lists", "A3", "23-10-2025").Put("Lists", "A4", "23-10-2025")
	wb.Put("Lists", "A5", "28-10-2025")

	s, _, _ := newDropdownService(t, wb)
	res := s.Resolve(context.Background())

	assert.Equal(t, []string{"NIFTY", "SENSEX"}, res.Symbols)
	assert.Equal(t, models.SourceNamedRange, res.Sources[models.FieldSymbols])
	assert.Equal(t, []string{"23-10-2025"}, res.OptionExpiry)
	assert.Equal(t, models.SourceValidation, res.Sources[models.FieldOptionExpiry])
	assert.Equal(t, []string{"28-10-2025"}, res.FutureExpiry)
	assert.Equal(t, models.SourceNamedRange, res.Sources[models.FieldFutureExpiry])
}

func TestDropdownsFromScanAndCurrentValue(t *testing.T) {
	wb := workbook.NewMemoryWorkbook("chain.xlsm", "Option_Chain")
	wb.Put("", "B2", "NIFTY")
	wb.Put("", "B4", "2025-10-28")
	wb.Put("", "Z50", "13/11/2025")
	wb.Put("", "C7", "30-10-2025")
	wb.Put("", "D8", time.Date(2025, 10, 23, 0, 0, 0, 0, time.UTC))
	wb.Put("", "E9", 45000.0)
	wb.Put("", "F10", "NIFTY 25000 CE")
	wb.Put("", "AE1", "06-11-2025")

	s, _, _ := newDropdownService(t, wb)
	res := s.Resolve(context.Background())

	assert.Equal(t, []string{"23-10-2025", "28-10-2025", "30-10-2025", "13-11-2025"}, res.OptionExpiry)
	assert.Equal(t, models.SourceScan, res.Sources[models.FieldOptionExpiry])
	assert.Equal(t, []string{"28-10-2025"}, res.FutureExpiry)
	assert.Equal(t, models.SourceCurrentValue, res.Sources[models.FieldFutureExpiry])
	assert.Equal(t, DefaultSymbols, res.Symbols)
	assert.Equal(t, models.SourceDefault, res.Sources[models.FieldSymbols])
}

func TestDropdownScanCap(t *testing.T) {
	wb := workbook.NewMemoryWorkbook("chain.xlsm", "Option_Chain")
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		wb.Put("", workbook.CellName(1, i+1), day.AddDate(0, 0, i))
	}
	s, _, _ := newDropdownService(t, wb)
	res := s.Extract(context.Background(), wb)
	assert.Len(t, res.OptionExpiry, workbook.DefaultLayout.ScanCap)
	assert.Equal(t, "01-01-2025", res.OptionExpiry[0])
}

func TestDropdownDefaults(t *testing.T) {
	wb := workbook.NewMemoryWorkbook("chain.xlsm", "Option_Chain")
	s, _, _ := newDropdownService(t, wb)
	res := s.Resolve(context.Background())

	assert.Equal(t, DefaultSymbols, res.Symbols)
	require.Len(t, res.OptionExpiry, 12)
	assert.Equal(t, "23-10-2025", res.OptionExpiry[0])
	assert.Equal(t, "30-10-2025", res.OptionExpiry[1])
	assert.Equal(t, res.OptionExpiry, res.FutureExpiry)
	assert.Equal(t, models.SourceDefault, res.Sources[models.FieldOptionExpiry])
	assert.Equal(t, models.SourceCopied, res.Sources[models.FieldFutureExpiry])
	assert.True(t, res.Complete())
}

func TestDropdownsWorkbookUnavailable(t *testing.T) {
	ctx := context.Background()
	s, opener, store := newDropdownService(t, nil)
	opener.Err = errors.New("excel not running")

	require.NoError(t, store.Save(ctx, repository.DropdownCacheKey, models.CachedDropdowns{
		Symbols:      []string{"BANKNIFTY"},
		OptionExpiry: []string{"28-10-2025"},
		ExtractedAt:  thursday.Add(-23 * time.Hour),
	}))
	res := s.Resolve(ctx)
	assert.Equal(t, []string{"BANKNIFTY"}, res.Symbols)
	assert.Equal(t, []string{"28-10-2025"}, res.FutureExpiry)
	assert.Equal(t, models.SourceCache, res.Sources[models.FieldSymbols])
	assert.Equal(t, models.SourceCopied, res.Sources[models.FieldFutureExpiry])

	require.NoError(t, store.Save(ctx, repository.DropdownCacheKey, models.CachedDropdowns{
		Symbols:     []string{"BANKNIFTY"},
		ExtractedAt: thursday.Add(-25 * time.Hour),
	}))
	res = s.Resolve(ctx)
	assert.Equal(t, DefaultSymbols, res.Symbols)
	assert.Equal(t, "23-10-2025", res.OptionExpiry[0])

	require.NoError(t, s.InvalidateCache(ctx))
	res = s.Resolve(ctx)
	assert.Equal(t, DefaultSymbols, res.Symbols)
}

func TestDefaultThursdaysFollowConfiguredZone(t *testing.T) {
	// 20:00 UTC on Wednesday 15th is already Thursday 16th, 01:30 in India
	lateWednesday := time.Date(2025, 10, 15, 20, 0, 0, 0, time.UTC)
	wb := workbook.NewMemoryWorkbook("chain.xlsm", "Option_Chain")

	s, _, _ := newDropdownService(t, wb)
	s.now = func() time.Time { return lateWednesday }
	assert.Equal(t, "16-10-2025", s.Resolve(context.Background()).OptionExpiry[0])

	s, _, _ = newDropdownService(t, wb)
	WithDropdownLocation(ist)(s)
	s.now = func() time.Time { return lateWednesday }
	res := s.Resolve(context.Background())
	assert.Equal(t, "23-10-2025", res.OptionExpiry[0])
	assert.Equal(t, models.SourceDefault, res.Sources[models.FieldOptionExpiry])
}
