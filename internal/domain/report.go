package domain

import (
	"time"
)

// ReportStatus tracks the workflow state of an expertise report.
// Transitions are linear; calculation logic is status-agnostic.
type ReportStatus string

const (
	StatusDraft      ReportStatus = "draft"
	StatusInProgress ReportStatus = "in_progress"
	StatusCompleted  ReportStatus = "completed"
	StatusArchived   ReportStatus = "archived"
)

// Valid reports whether s is a known workflow state.
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// CanTransitionTo reports whether s may move to next.
// The workflow is draft -> in_progress -> completed -> archived,
// one step at a time, never backwards.
func (s ReportStatus) CanTransitionTo(next ReportStatus) bool {
	order := map[ReportStatus]int{
		StatusDraft:      0,
		StatusInProgress: 1,
		StatusCompleted:  2,
		StatusArchived:   3,
	}
	from, ok1 := order[s]
	to, ok2 := order[next]
	return ok1 && ok2 && to == from+1
}

// Report is a vehicle-damage expertise report. Total is derived, never
// entered: it is the sum over all impacts of supply totals plus paint.
type Report struct {
	ID            string       `json:"id"`
	ReportType    string       `json:"reportType"`
	ServiceOrder  string       `json:"serviceOrder"`
	OfficeID      string       `json:"officeId"`
	ClaimNumber   string       `json:"claimNumber"`
	ClaimDate     time.Time    `json:"claimDate"`
	VisitDate     time.Time    `json:"visitDate"`
	Status        ReportStatus `json:"status"`
	Total         float64      `json:"total"`
	Vehicle       *Vehicle     `json:"vehicle,omitempty"`
	Impacts       []*ImpactLine `json:"impacts,omitempty"`
	Fee           *FeeRecord   `json:"fee,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// Vehicle carries the inspected vehicle's identity plus the two rates
// resolved from the tariff table when the report is created.
type Vehicle struct {
	ID                string    `json:"id"`
	ReportID          string    `json:"reportId"`
	Make              string    `json:"make"`
	Model             string    `json:"model"`
	Registration      string    `json:"registration"`
	Category          string    `json:"category"` // VP, VU, camion, moto, autre
	FirstRegistration time.Time `json:"firstRegistration"`
	Mileage           int       `json:"mileage"`
	FiscalPower       int       `json:"fiscalPower"`

	// Resolved at creation time from the tariff table.
	HourlyRate      float64 `json:"hourlyRate"`
	DepreciationPct float64 `json:"depreciationPct"`
}

// AgeYears returns the vehicle age at now in fractional years (days / 365).
func (v *Vehicle) AgeYears(now time.Time) float64 {
	return now.Sub(v.FirstRegistration).Hours() / 24 / 365
}

// ImpactLine is one damage zone ("choc") on the vehicle.
type ImpactLine struct {
	ID          string  `json:"id"`
	ReportID    string  `json:"reportId"`
	Name        string  `json:"name"` // 1er degré, 2ème degré, TOL, MEC, BDG, DIAG...
	Description string  `json:"description,omitempty"`
	RepairHours float64 `json:"repairHours"`
	PaintAmount float64 `json:"paintAmount"`
	Position    int     `json:"position"`

	Supplies []*SupplyItem `json:"supplies,omitempty"`
}

// SupplyTotal sums the derived totals of the impact's supply lines.
func (i *ImpactLine) SupplyTotal() float64 {
	var total float64
	for _, s := range i.Supplies {
		total += s.TotalPrice
	}
	return total
}

// SupplyItem is one replacement part or material line under an impact.
// TotalPrice is derived and must always equal Quantity * UnitPrice; it is
// recomputed on every create and update, not just once.
type SupplyItem struct {
	ID          string  `json:"id"`
	ImpactID    string  `json:"impactId"`
	Designation string  `json:"designation"`
	Reference   string  `json:"reference,omitempty"`
	Family      string  `json:"family"` // carrosserie, mecanique, electrique, pneumatique, vitrage, autre
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	TotalPrice  float64 `json:"totalPrice"`
}

// FeeRecord holds the expert's fees for a report, one per report.
// TravelFee and TotalFee are derived from the tariff table.
type FeeRecord struct {
	ID         string  `json:"id"`
	ReportID   string  `json:"reportId"`
	BaseAmount float64 `json:"baseAmount"`
	DistanceKm int     `json:"distanceKm"`
	TravelFee  float64 `json:"travelFee"`
	TotalFee   float64 `json:"totalFee"`
}

// Standard topic names for the report pipeline.
const (
	TopicReportCreated    = "chiffrage.report.created"
	TopicReportChanged    = "chiffrage.report.changed"
	TopicReportRecomputed = "chiffrage.report.recomputed"
	TopicTariffUpdated    = "chiffrage.tariff.updated"
)
