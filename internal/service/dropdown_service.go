package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/nsvirk/ocbridge/internal/dates"
	"github.com/nsvirk/ocbridge/internal/fallback"
	"github.com/nsvirk/ocbridge/internal/models"
	"github.com/nsvirk/ocbridge/internal/repository"
	"github.com/nsvirk/ocbridge/internal/workbook"
	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
)

// DefaultSymbols is used when the workbook offers no symbol list
var DefaultSymbols = []string{"NIFTY", "BANKNIFTY", "FINNIFTY", "MIDCPNIFTY", "SENSEX"}

const (
	defaultExpiryCount = 12
	dropdownCacheAge   = 24 * time.Hour
)

var formulaTag = regexp.MustCompile(`</?formula1>`)

// DropdownService resolves the selectable symbols and expiries of the sheet
type DropdownService struct {
	opener workbook.Opener
	layout workbook.Layout
	cache  repository.CacheStore
	now    func() time.Time
	loc    *time.Location
}

// DropdownOption configures a DropdownService
type DropdownOption func(*DropdownService)

// WithDropdownLocation sets the zone whose calendar picks the default Thursdays
func WithDropdownLocation(loc *time.Location) DropdownOption {
	return func(s *DropdownService) { s.loc = loc }
}

// NewDropdownService creates a resolver; cache may be nil
func NewDropdownService(opener workbook.Opener, layout workbook.Layout, cache repository.CacheStore, opts ...DropdownOption) *DropdownService {
	s := &DropdownService{
		opener: opener,
		layout: layout,
		cache:  cache,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// today is now in the configured zone
func (s *DropdownService) today() time.Time {
	now := s.now()
	if s.loc != nil {
		now = now.In(s.loc)
	}
	return now
}

// Resolve reads the dropdowns from the workbook. When the workbook cannot
// be opened a recent cache entry is used, then static defaults. It never fails.
func (s *DropdownService) Resolve(ctx context.Context) models.DropdownResult {
	wb, err := s.opener.Open(ctx)
	if err != nil {
		zaplogger.Warn("workbook unavailable for dropdowns", zaplogger.Fields{"error": err.Error()})
		return s.cachedOrDefaults(ctx)
	}
	defer wb.Close()

	res := s.Extract(ctx, wb)
	if s.cache != nil {
		record := models.CachedDropdowns{
			Symbols:      res.Symbols,
			OptionExpiry: res.OptionExpiry,
			FutureExpiry: res.FutureExpiry,
			ExtractedAt:  res.ExtractedAt,
			Sources:      res.Sources,
		}
		if err := s.cache.Save(ctx, repository.DropdownCacheKey, record); err != nil {
			zaplogger.Warn("dropdown cache save failed", zaplogger.Fields{"error": err.Error()})
		}
	}
	return res
}

// Extract runs the per field strategy chains on an open workbook and
// fills in defaults for anything still empty
func (s *DropdownService) Extract(ctx context.Context, wb workbook.Workbook) models.DropdownResult {
	l := s.layout
	res := models.DropdownResult{
		Sources:     make(map[string]string, 3),
		ExtractedAt: s.now(),
	}

	symbols, src := fallback.FirstFound(ctx,
		s.fromValidation(wb, l.Symbol, false),
		s.fromNamedRange(wb, l.SymbolList, false),
	)
	res.Symbols, res.Sources[models.FieldSymbols] = symbols.Value, src

	optionExpiry, src := fallback.FirstFound(ctx,
		s.fromValidation(wb, l.OptionExpiry, true),
		s.fromNamedRange(wb, l.OptionExpiryList, true),
		s.fromScan(wb),
		s.fromCurrentValue(wb, l.OptionExpiry),
	)
	res.OptionExpiry, res.Sources[models.FieldOptionExpiry] = optionExpiry.Value, src

	futureExpiry, src := fallback.FirstFound(ctx,
		s.fromValidation(wb, l.FutureExpiry, true),
		s.fromNamedRange(wb, l.FutureExpiryList, true),
		s.fromCurrentValue(wb, l.FutureExpiry),
	)
	res.FutureExpiry, res.Sources[models.FieldFutureExpiry] = futureExpiry.Value, src

	s.applyDefaults(&res)

	zaplogger.Info("dropdowns resolved", zaplogger.Fields{
		"symbols":       len(res.Symbols),
		"option_expiry": len(res.OptionExpiry),
		"future_expiry": len(res.FutureExpiry),
		"sources":       res.Sources,
	})
	return res
}

func (s *DropdownService) applyDefaults(res *models.DropdownResult) {
	if len(res.Symbols) == 0 {
		res.Symbols = append([]string(nil), DefaultSymbols...)
		res.Sources[models.FieldSymbols] = models.SourceDefault
	}
	if len(res.OptionExpiry) == 0 {
		res.OptionExpiry = dates.UpcomingThursdays(s.today(), defaultExpiryCount)
		res.Sources[models.FieldOptionExpiry] = models.SourceDefault
	}
	if len(res.FutureExpiry) == 0 {
		res.FutureExpiry = append([]string(nil), res.OptionExpiry...)
		res.Sources[models.FieldFutureExpiry] = models.SourceCopied
	}
}

func (s *DropdownService) cachedOrDefaults(ctx context.Context) models.DropdownResult {
	if s.cache != nil {
		var cached models.CachedDropdowns
		err := s.cache.Load(ctx, repository.DropdownCacheKey, &cached)
		switch {
		case err == nil && s.now().Sub(cached.ExtractedAt) < dropdownCacheAge:
			res := models.DropdownResult{
				DropdownOptions: models.DropdownOptions{
					Symbols:      cached.Symbols,
					OptionExpiry: cached.OptionExpiry,
					FutureExpiry: cached.FutureExpiry,
				},
				Sources: map[string]string{
					models.FieldSymbols:      models.SourceCache,
					models.FieldOptionExpiry: models.SourceCache,
					models.FieldFutureExpiry: models.SourceCache,
				},
				ExtractedAt: cached.ExtractedAt,
			}
			s.applyDefaults(&res)
			zaplogger.Info("dropdowns loaded from cache", zaplogger.Fields{"extracted_at": cached.ExtractedAt})
			return res
		case err == nil:
			zaplogger.Info("dropdown cache expired", zaplogger.Fields{"extracted_at": cached.ExtractedAt})
		case !errors.Is(err, repository.ErrCacheMiss):
			zaplogger.Warn("dropdown cache unreadable", zaplogger.Fields{"error": err.Error()})
		}
	}

	res := models.DropdownResult{Sources: make(map[string]string, 3), ExtractedAt: s.now()}
	s.applyDefaults(&res)
	return res
}

// InvalidateCache removes the stored dropdowns
func (s *DropdownService) InvalidateCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, repository.DropdownCacheKey)
}

type listStrategy = fallback.Strategy[[]string]

func found(values []any, isDate bool) fallback.Result[[]string] {
	list := cleanList(values, isDate)
	if len(list) == 0 {
		return fallback.NotFound[[]string]()
	}
	return fallback.Found(list)
}

func (s *DropdownService) fromValidation(wb workbook.Workbook, ref string, isDate bool) listStrategy {
	return listStrategy{Name: models.SourceValidation, Run: func(ctx context.Context) (fallback.Result[[]string], error) {
		rule, err := wb.Validation(ref)
		if err != nil {
			return fallback.NotFound[[]string](), err
		}
		if !rule.IsList() {
			return fallback.NotFound[[]string](), nil
		}
		values, err := validationValues(wb, rule.Formula)
		if err != nil {
			return fallback.NotFound[[]string](), fmt.Errorf("validation %s: %w", ref, err)
		}
		return found(values, isDate), nil
	}}
}

// validationValues expands a list rule formula into its candidate values
func validationValues(wb workbook.Workbook, formula string) ([]any, error) {
	formula = strings.TrimSpace(formulaTag.ReplaceAllString(formula, ""))
	if strings.HasPrefix(formula, "=") || workbook.IsReference(formula) {
		ref := strings.TrimSpace(strings.TrimPrefix(formula, "="))
		if !workbook.IsReference(ref) {
			grid, err := wb.NamedRange(ref)
			if err != nil {
				return nil, err
			}
			return rowMajor(grid), nil
		}
		grid, err := wb.Range("", ref)
		if err != nil {
			return nil, err
		}
		if len(grid) == 1 {
			return grid[0], nil
		}
		out := make([]any, 0, len(grid))
		for _, row := range grid {
			if len(row) > 0 {
				out = append(out, row[0])
			}
		}
		return out, nil
	}

	formula = strings.Trim(formula, `"`)
	parts := strings.Split(formula, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.Trim(strings.TrimSpace(p), `"`))
	}
	return out, nil
}

func (s *DropdownService) fromNamedRange(wb workbook.Workbook, name string, isDate bool) listStrategy {
	return listStrategy{Name: models.SourceNamedRange, Run: func(ctx context.Context) (fallback.Result[[]string], error) {
		grid, err := wb.NamedRange(name)
		if err != nil {
			return fallback.NotFound[[]string](), err
		}
		return found(rowMajor(grid), isDate), nil
	}}
}

// fromScan walks the top left block of the main sheet collecting anything
// that looks like a date
func (s *DropdownService) fromScan(wb workbook.Workbook) listStrategy {
	return listStrategy{Name: models.SourceScan, Run: func(ctx context.Context) (fallback.Result[[]string], error) {
		l := s.layout
		grid, err := wb.Range("", "A1:"+workbook.CellName(l.ScanColumns, l.ScanRows))
		if err != nil {
			return fallback.NotFound[[]string](), err
		}

		seen := make(map[string]bool)
		var out []string
	scan:
		for _, row := range grid {
			for _, v := range row {
				d, ok := scannedDate(v)
				if !ok || seen[d] {
					continue
				}
				seen[d] = true
				out = append(out, d)
				if len(out) >= l.ScanCap {
					break scan
				}
			}
		}
		if len(out) == 0 {
			return fallback.NotFound[[]string](), nil
		}
		sort.SliceStable(out, func(i, j int) bool {
			return dates.SortKey(out[i]).Before(dates.SortKey(out[j]))
		})
		return fallback.Found(out), nil
	}}
}

// scannedDate accepts native times and text that normalizes to a date.
// Numbers are ignored since any quantity on the sheet would pass as a serial.
func scannedDate(v any) (string, bool) {
	switch x := v.(type) {
	case time.Time:
		return dates.Normalize(x), true
	case string:
		if strings.TrimSpace(x) == "" {
			return "", false
		}
		d := dates.Normalize(x)
		return d, dates.LooksLikeDate(d)
	}
	return "", false
}

func (s *DropdownService) fromCurrentValue(wb workbook.Workbook, ref string) listStrategy {
	return listStrategy{Name: models.SourceCurrentValue, Run: func(ctx context.Context) (fallback.Result[[]string], error) {
		v, err := wb.Value(ref)
		if err != nil {
			return fallback.NotFound[[]string](), err
		}
		if v == nil {
			return fallback.NotFound[[]string](), nil
		}
		d := dates.Normalize(v)
		if !dates.LooksLikeDate(d) {
			return fallback.NotFound[[]string](), nil
		}
		return fallback.Found([]string{d}), nil
	}}
}

func rowMajor(grid [][]any) []any {
	var out []any
	for _, row := range grid {
		out = append(out, row...)
	}
	return out
}

// cleanList stringifies values, normalizing dates when asked, and drops
// blanks, "None" and repeats while keeping order
func cleanList(values []any, isDate bool) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		var s string
		if isDate {
			s = dates.Normalize(v)
		} else {
			s = fmt.Sprint(v)
		}
		s = strings.TrimSpace(s)
		if s == "" || s == "None" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
