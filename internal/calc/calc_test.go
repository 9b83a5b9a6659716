package calc

import (
	"testing"

	"github.com/expertise-auto/chiffrage/internal/domain"
)

func TestSupplyTotal(t *testing.T) {
	tests := []struct {
		name      string
		quantity  int
		unitPrice float64
		want      float64
	}{
		{"single unit", 1, 12000, 12000},
		{"multiple units", 3, 4500, 13500},
		{"free part", 2, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SupplyTotal(tt.quantity, tt.unitPrice); got != tt.want {
				t.Errorf("SupplyTotal(%d, %.2f) = %.2f, want %.2f", tt.quantity, tt.unitPrice, got, tt.want)
			}
		})
	}
}

func TestLaborCost(t *testing.T) {
	if got := LaborCost(4, 15000); got != 60000 {
		t.Errorf("expected 60000, got %.2f", got)
	}
	if got := LaborCost(0, 15000); got != 0 {
		t.Errorf("expected 0 for zero hours, got %.2f", got)
	}
}

func impactsFixture() []*domain.ImpactLine {
	return []*domain.ImpactLine{
		{
			Name:        "1er degré",
			PaintAmount: 3000,
			Supplies: []*domain.SupplyItem{
				{Quantity: 1, UnitPrice: 12000, TotalPrice: 12000},
			},
		},
		{
			Name:        "TOL",
			PaintAmount: 0,
			Supplies: []*domain.SupplyItem{
				{Quantity: 2, UnitPrice: 4000, TotalPrice: 8000},
			},
		},
	}
}

func TestReportSubtotal(t *testing.T) {
	impacts := impactsFixture()

	// Supplies 12000 + paint 3000 + supplies 8000 + paint 0.
	if got := ReportSubtotal(impacts); got != 23000 {
		t.Errorf("expected 23000, got %.2f", got)
	}

	// Labor hours on the impacts do not move the subtotal.
	impacts[0].RepairHours = 12
	if got := ReportSubtotal(impacts); got != 23000 {
		t.Errorf("labor must not affect subtotal, got %.2f", got)
	}
}

func TestReportSubtotalAdditivity(t *testing.T) {
	impacts := impactsFixture()

	whole := ReportSubtotal(impacts)
	parts := ReportSubtotal(impacts[:1]) + ReportSubtotal(impacts[1:])
	if whole != parts {
		t.Errorf("subtotal not additive: whole %.2f, parts %.2f", whole, parts)
	}

	if got := ReportSubtotal(nil); got != 0 {
		t.Errorf("expected 0 for no impacts, got %.2f", got)
	}
}

func TestApplyDepreciation(t *testing.T) {
	b := ApplyDepreciation(100000, 20)
	if b.Subtotal != 100000 {
		t.Errorf("expected subtotal 100000, got %.2f", b.Subtotal)
	}
	if b.DepreciationAmount != 20000 {
		t.Errorf("expected depreciation 20000, got %.2f", b.DepreciationAmount)
	}
	if b.NetTotal != 80000 {
		t.Errorf("expected net 80000, got %.2f", b.NetTotal)
	}

	zero := ApplyDepreciation(50000, 0)
	if zero.NetTotal != 50000 || zero.DepreciationAmount != 0 {
		t.Errorf("zero depreciation must be identity: %+v", zero)
	}
}

func TestEstimateBreakdown(t *testing.T) {
	b := EstimateBreakdown(60000, 20000, 20000, 10)
	if b.Subtotal != 100000 {
		t.Errorf("expected subtotal 100000, got %.2f", b.Subtotal)
	}
	if b.NetTotal != 90000 {
		t.Errorf("expected net 90000, got %.2f", b.NetTotal)
	}
}
