// Package fees derives a report's fee figures from the tariff table.
package fees

import (
	"context"

	"github.com/expertise-auto/chiffrage/internal/tariff"
)

// Calculator produces the derived fee fields of a fee record. It is a
// pure function of its inputs plus the current tariff table state.
type Calculator struct {
	resolver *tariff.Resolver
}

// NewCalculator creates a fee calculator backed by the tariff resolver.
func NewCalculator(resolver *tariff.Resolver) *Calculator {
	return &Calculator{resolver: resolver}
}

// Result holds the resolved fee figures. The professional fee is folded
// into the total; only the travel fee and the total are persisted on the
// fee record.
type Result struct {
	TravelFee       float64 `json:"travelFee"`
	ProfessionalFee float64 `json:"professionalFee"`
	TotalFee        float64 `json:"totalFee"`
}

// Compute resolves the travel fee for the distance traveled and the
// professional fee for the claim base amount, and combines them.
// Resolution never fails, so neither does Compute.
func (c *Calculator) Compute(ctx context.Context, distanceKm int, baseAmount float64) Result {
	travel := c.resolver.TravelFee(ctx, distanceKm)
	professional := c.resolver.ProfessionalFee(ctx, baseAmount)

	return Result{
		TravelFee:       travel,
		ProfessionalFee: professional,
		TotalFee:        professional + travel,
	}
}
