package domain

// MarketRecord is one accepted line of an exchange market-summary record file.
// Date holds the already normalised dd-MMM-yy rendering of the source token.
type MarketRecord struct {
	Date   string  `json:"date" validate:"required"`
	Ticker string  `json:"ticker" validate:"required"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume" validate:"min=0"`

	// Trailing is the tenth source field, written under the blank header column.
	// HasTrailing is false when the source line stopped at nine fields.
	Trailing    float64 `json:"trailing,omitempty"`
	HasTrailing bool    `json:"has_trailing,omitempty"`
}
