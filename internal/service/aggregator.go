package service

import (
	"fmt"

	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/format"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// troubleshooting is shown when a cycle produces no usable records
var troubleshooting = []string{
	"Check your internet connection",
	"Try refreshing",
	"NSE data might be unavailable during market holidays",
}

// Aggregate reduces a cycle's records to portfolio totals. fetchTotal is the
// number of configured positions. Only records refreshed from live data
// count toward FetchSuccess.
func Aggregate(records []models.NormalizedRecord, fetchTotal int) models.PortfolioSnapshot {
	snap := models.PortfolioSnapshot{
		RecordCount: len(records),
		FetchTotal:  fetchTotal,
	}

	var pctSum float64
	for _, r := range records {
		snap.TotalValue += r.Value
		snap.TotalInvested += r.Invested()
		pctSum += r.ChangePct

		switch {
		case r.Change > 0:
			snap.Gainers++
		case r.Change < 0:
			snap.Losers++
		default:
			snap.Unchanged++
		}

		switch {
		case r.IsStale:
			snap.StaleCount++
		case r.IsSynthetic:
			snap.SyntheticCount++
		default:
			snap.FetchSuccess++
		}
	}

	snap.TotalChange = snap.TotalValue - snap.TotalInvested
	if snap.TotalInvested > 0 {
		snap.TotalChangePct = snap.TotalChange / snap.TotalInvested * 100
	}
	if len(records) > 0 {
		snap.AvgChangePct = pctSum / float64(len(records))
	}
	return snap
}

// StatusFor grades a snapshot: failed with no records, ok when every
// configured position was refreshed live, partial otherwise
func StatusFor(snap models.PortfolioSnapshot) types.CycleStatus {
	switch {
	case snap.RecordCount == 0:
		return types.CycleStatusFailed
	case snap.FetchSuccess == snap.FetchTotal:
		return types.CycleStatusOK
	default:
		return types.CycleStatusPartial
	}
}

// Summarize fills in the status, summary line and guidance of a cycle result
func Summarize(result *models.CycleResult) {
	snap := result.Snapshot
	result.Status = StatusFor(snap)

	switch result.Status {
	case types.CycleStatusFailed:
		result.Summary = errors.NewTotalFetchFailureError(snap.FetchTotal).Message
		result.Guidance = append([]string(nil), troubleshooting...)
	default:
		result.Summary = fmt.Sprintf("%d of %d positions refreshed; value %s (%s, %s)",
			snap.FetchSuccess, snap.FetchTotal,
			format.Rupees(snap.TotalValue), format.Change(snap.TotalChange), format.Percent(snap.TotalChangePct))
		if snap.StaleCount > 0 || snap.SyntheticCount > 0 {
			result.Summary += fmt.Sprintf("; %d stale, %d synthetic", snap.StaleCount, snap.SyntheticCount)
		}
	}
}
