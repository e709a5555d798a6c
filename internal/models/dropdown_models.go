package models

import "time"

// Dropdown fields read from the workbook
const (
	FieldSymbols      = "symbols"
	FieldOptionExpiry = "option_expiry"
	FieldFutureExpiry = "future_expiry"
)

// Where a dropdown list came from
const (
	SourceValidation   = "validation"
	SourceNamedRange   = "named_range"
	SourceScan         = "scan"
	SourceCurrentValue = "current_value"
	SourceDefault      = "default"
	SourceCopied       = "copied"
	SourceCache        = "cache"
)

// DropdownOptions are the selectable inputs of the option chain sheet
type DropdownOptions struct {
	Symbols      []string `json:"symbols"`
	OptionExpiry []string `json:"option_expiry"`
	FutureExpiry []string `json:"future_expiry"`
}

// Complete reports whether every list has at least one entry
func (d DropdownOptions) Complete() bool {
	return len(d.Symbols) > 0 && len(d.OptionExpiry) > 0 && len(d.FutureExpiry) > 0
}

// DropdownResult is a resolved set of options plus provenance
type DropdownResult struct {
	DropdownOptions
	Sources     map[string]string `json:"sources"`
	ExtractedAt time.Time         `json:"extracted_at"`
}

// CachedDropdowns is the record persisted to the dropdown cache
type CachedDropdowns struct {
	Symbols      []string          `json:"symbols"`
	OptionExpiry []string          `json:"option_expiry"`
	FutureExpiry []string          `json:"future_expiry"`
	ExtractedAt  time.Time         `json:"extracted_at"`
	Sources      map[string]string `json:"source,omitempty"`
}
