package models

import "time"

// Data sources reported on a snapshot
const (
	DataSourceLive  = "excel_live"
	DataSourceStale = "excel_stale"
)

// FetchRequest selects what the workbook should load
type FetchRequest struct {
	Symbol       string `json:"symbol"`
	OptionExpiry string `json:"option_expiry"`
	FutureExpiry string `json:"future_expiry"`
	ChainLength  int    `json:"chain_length"`
}

// OptionSide is one side (call or put) of a strike row
type OptionSide struct {
	Interpretation string  `json:"interpretation"`
	AvgPrice       float64 `json:"avg_price"`
	IV             float64 `json:"iv"`
	OIChange       float64 `json:"oi_change"`
	OI             float64 `json:"oi"`
	Volume         float64 `json:"volume"`
	LTPChange      float64 `json:"ltp_change"`
	LTP            float64 `json:"ltp"`
}

// OptionChainRow is a single strike of the chain table
type OptionChainRow struct {
	Strike float64    `json:"strike"`
	Call   OptionSide `json:"call"`
	Put    OptionSide `json:"put"`
}

type OHLC struct {
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	LTP          float64 `json:"ltp"`
	LTPChange    float64 `json:"ltp_change"`
	LTPChangePct float64 `json:"ltp_change_pct"`
}

type Spot struct {
	Spot             float64 `json:"spot"`
	SpotLTP          float64 `json:"spot_ltp"`
	SpotLTPChange    float64 `json:"spot_ltp_change"`
	SpotLTPChangePct float64 `json:"spot_ltp_change_pct"`
}

type Future struct {
	Future          float64 `json:"future"`
	FuturePrice     float64 `json:"future_price"`
	FutureChange    float64 `json:"future_change"`
	FutureChangePct float64 `json:"future_change_pct"`
}

type OpenInterestSummary struct {
	OpenInterest        float64 `json:"open_interest"`
	ChangeInOI          float64 `json:"change_in_oi"`
	MaxOI               float64 `json:"max_oi"`
	MaxChangeInOI       float64 `json:"max_change_in_oi"`
	MaxOIStrike         float64 `json:"max_oi_strike"`
	MaxChangeInOIStrike float64 `json:"max_change_in_oi_strike"`
}

type FutureOpenInterest struct {
	FutureOI       float64 `json:"future_oi"`
	FutureOIChange float64 `json:"future_oi_change"`
}

// SideSummary totals one side of the chain
type SideSummary struct {
	TotalOI       float64 `json:"total_oi"`
	TotalVolume   float64 `json:"total_volume"`
	TotalOIChange float64 `json:"total_oi_change"`
}

// MarketData is the headline block returned to API clients
type MarketData struct {
	SpotLTP          float64 `json:"spot_ltp"`
	SpotLTPChange    float64 `json:"spot_ltp_change"`
	SpotLTPChangePct float64 `json:"spot_ltp_change_pct"`
	FuturePrice      float64 `json:"future_price"`
	PCR              float64 `json:"pcr"`
	MaxPain          float64 `json:"max_pain"`
	IndiaVIX         float64 `json:"india_vix"`
}

type Signals struct {
	Intraday string `json:"intraday"`
	Weekly   string `json:"weekly"`
}

// OptionChainSnapshot is everything read from the sheet after one refresh
type OptionChainSnapshot struct {
	FetchID          string              `json:"fetch_id"`
	Symbol           string              `json:"symbol"`
	OptionExpiry     string              `json:"option_expiry"`
	FutureExpiry     string              `json:"future_expiry"`
	ChainLength      int                 `json:"chain_length"`
	DataSource       string              `json:"data_source"`
	Timestamp        time.Time           `json:"timestamp"`
	FetchTimeSeconds float64             `json:"fetch_time_seconds"`
	OHLC             OHLC                `json:"ohlc"`
	Spot             Spot                `json:"spot"`
	Future           Future              `json:"future"`
	OpenInterest     OpenInterestSummary `json:"open_interest_summary"`
	FutureOI         FutureOpenInterest  `json:"future_open_interest"`
	CallsSummary     SideSummary         `json:"calls_summary"`
	PutsSummary      SideSummary         `json:"puts_summary"`
	MarketData       MarketData          `json:"market_data"`
	Signals          Signals             `json:"signals"`
	OptionChain      []OptionChainRow    `json:"option_chain"`
}

// Degraded reports whether the sheet looked stale when it was read
func (s *OptionChainSnapshot) Degraded() bool {
	return s.DataSource != DataSourceLive
}
