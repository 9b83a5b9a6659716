// Package calc computes per-impact and per-report monetary rollups.
// Every function is a pure function of its inputs.
package calc

import (
	"github.com/expertise-auto/chiffrage/internal/domain"
)

// SupplyTotal derives a supply line's total price. The identity
// totalPrice = quantity * unitPrice is maintained at write time by the
// owning workflow, because the value is persisted.
func SupplyTotal(quantity int, unitPrice float64) float64 {
	return float64(quantity) * unitPrice
}

// LaborCost prices the repair labor of an impact. Labor is priced for
// display on the estimate but is not folded into the persisted report
// total (see ReportSubtotal).
func LaborCost(hours, hourlyRate float64) float64 {
	return hours * hourlyRate
}

// ReportSubtotal sums, over all impacts, the impact's supply totals plus
// its paint amount. This is the figure written back as the report total;
// labor cost is intentionally excluded, matching the production billing
// behavior.
func ReportSubtotal(impacts []*domain.ImpactLine) float64 {
	var total float64
	for _, impact := range impacts {
		total += impact.SupplyTotal() + impact.PaintAmount
	}
	return total
}

// Breakdown decomposes a depreciation-adjusted total. All three figures
// are consumed downstream (invoicing, printing), so the decomposition is
// preserved rather than collapsed into the net.
type Breakdown struct {
	Subtotal           float64 `json:"subtotal"`
	DepreciationAmount float64 `json:"depreciationAmount"`
	NetTotal           float64 `json:"netTotal"`
}

// ApplyDepreciation computes the depreciation amount for a subtotal and
// the resulting net total.
func ApplyDepreciation(subtotal, depreciationPct float64) Breakdown {
	depreciation := subtotal * depreciationPct / 100
	return Breakdown{
		Subtotal:           subtotal,
		DepreciationAmount: depreciation,
		NetTotal:           subtotal - depreciation,
	}
}

// EstimateBreakdown prices a full estimate: labor, supplies and paint
// summed into a subtotal, then depreciated.
func EstimateBreakdown(laborCost, supplyTotal, paintAmount, depreciationPct float64) Breakdown {
	return ApplyDepreciation(laborCost+supplyTotal+paintAmount, depreciationPct)
}
