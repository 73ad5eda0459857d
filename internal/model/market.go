package model

import (
	"github.com/shopspring/decimal"
)

// Market holds metadata for one binary prediction market. Rows are owned by
// the metadata sync path; the analytics side only reads them.
type Market struct {
	Slug              string          `json:"slug"`
	Question          string          `json:"question"`
	ConditionID       string          `json:"condition_id"`
	YesTokenID        string          `json:"yes_token_id"`
	NoTokenID         string          `json:"no_token_id"`
	Category          string          `json:"category,omitempty"`
	EndDate           string          `json:"end_date,omitempty"`
	Active            bool            `json:"active"`
	Closed            bool            `json:"closed"`
	Resolved          bool            `json:"resolved"`
	ResolutionOutcome string          `json:"resolution_outcome,omitempty"`
	VolumeCached      decimal.Decimal `json:"volume_cached"`
	Liquidity         decimal.Decimal `json:"liquidity"`
}

// TokenFor returns the token id for an outcome side, empty if unknown.
func (m Market) TokenFor(outcome string) string {
	switch outcome {
	case OutcomeYes:
		return m.YesTokenID
	case OutcomeNo:
		return m.NoTokenID
	}
	return ""
}

// OutcomeOf reports which side of the market a token id represents.
func (m Market) OutcomeOf(tokenID string) (string, bool) {
	switch {
	case tokenID == "":
		return "", false
	case tokenID == m.YesTokenID:
		return OutcomeYes, true
	case tokenID == m.NoTokenID:
		return OutcomeNo, true
	}
	return "", false
}
