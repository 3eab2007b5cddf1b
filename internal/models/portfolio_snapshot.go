package models

import (
	"time"

	"github.com/portfolio-tracker/internal/types"
)

// PortfolioSnapshot is the portfolio-level reduction of one cycle's records
type PortfolioSnapshot struct {
	TotalValue     float64 `json:"totalValue"`
	TotalInvested  float64 `json:"totalInvested"`
	TotalChange    float64 `json:"totalChange"`
	TotalChangePct float64 `json:"totalChangePct"`
	Gainers        int     `json:"gainers"`
	Losers         int     `json:"losers"`
	Unchanged      int     `json:"unchanged"`
	AvgChangePct   float64 `json:"avgChangePct"`
	RecordCount    int     `json:"recordCount"`
	FetchSuccess   int     `json:"fetchSuccess"`
	FetchTotal     int     `json:"fetchTotal"`
	StaleCount     int     `json:"staleCount"`
	SyntheticCount int     `json:"syntheticCount"`
}

// CycleResult is everything one refresh cycle hands to the renderer
type CycleResult struct {
	CycleID    string             `json:"cycleId"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
	Status     types.CycleStatus  `json:"status"`
	Summary    string             `json:"summary"`
	Records    []NormalizedRecord `json:"records"`
	Snapshot   PortfolioSnapshot  `json:"snapshot"`
	Warnings   []string           `json:"warnings,omitempty"`
	Guidance   []string           `json:"guidance,omitempty"`
}

// Record returns the record for a configured symbol, if present
func (c *CycleResult) Record(symbol string) (NormalizedRecord, bool) {
	if c == nil {
		return NormalizedRecord{}, false
	}
	for _, r := range c.Records {
		if r.Symbol == symbol {
			return r, true
		}
	}
	return NormalizedRecord{}, false
}
