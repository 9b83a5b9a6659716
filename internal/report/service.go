// Package report orchestrates tariff resolution and total computation
// around the report lifecycle.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/expertise-auto/chiffrage/internal/calc"
	"github.com/expertise-auto/chiffrage/internal/domain"
	"github.com/expertise-auto/chiffrage/internal/fees"
	"github.com/expertise-auto/chiffrage/internal/tariff"
)

var tracer = otel.Tracer("chiffrage-report")

// ErrInvalidTransition is returned when a status change does not follow
// the linear draft -> in_progress -> completed -> archived workflow.
var ErrInvalidTransition = errors.New("invalid status transition")

// Service coordinates the calculation engine around report writes.
// It holds no mutable state: every call is a pure function of the
// current tariff table and the report's line items.
type Service struct {
	repo     domain.Repository
	resolver *tariff.Resolver
	fees     *fees.Calculator
	bus      domain.EventBus
}

// NewService creates a report service.
func NewService(repo domain.Repository, resolver *tariff.Resolver, feeCalc *fees.Calculator, bus domain.EventBus) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		fees:     feeCalc,
		bus:      bus,
	}
}

// CreateInput is the typed nested payload for report creation. The shape
// is fixed; the service never accepts open-ended key/value payloads.
type CreateInput struct {
	ReportType   string    `json:"reportType"`
	ServiceOrder string    `json:"serviceOrder"`
	OfficeID     string    `json:"officeId"`
	ClaimNumber  string    `json:"claimNumber"`
	ClaimDate    time.Time `json:"claimDate"`
	VisitDate    time.Time `json:"visitDate"`

	Vehicle *VehicleInput `json:"vehicle,omitempty"`
	Impacts []ImpactInput `json:"impacts,omitempty"`
	Fee     *FeeInput     `json:"fee,omitempty"`
}

// VehicleInput describes the inspected vehicle.
type VehicleInput struct {
	Make              string    `json:"make"`
	Model             string    `json:"model"`
	Registration      string    `json:"registration"`
	Category          string    `json:"category"`
	FirstRegistration time.Time `json:"firstRegistration"`
	Mileage           int       `json:"mileage"`
	FiscalPower       int       `json:"fiscalPower"`
}

// ImpactInput describes one damage zone with its supply lines.
type ImpactInput struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	RepairHours float64       `json:"repairHours"`
	PaintAmount float64       `json:"paintAmount"`
	Supplies    []SupplyInput `json:"supplies,omitempty"`
}

// SupplyInput describes one replacement part line. The total price is
// derived, never accepted from the caller.
type SupplyInput struct {
	Designation string  `json:"designation"`
	Reference   string  `json:"reference,omitempty"`
	Family      string  `json:"family,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

// FeeInput carries the raw fee basis; travel and total fees are derived.
type FeeInput struct {
	BaseAmount float64 `json:"baseAmount"`
	DistanceKm int     `json:"distanceKm"`
}

// Create builds a report from the nested payload, resolving the
// vehicle's rates and all derived amounts at creation time, and stores
// everything in one transaction.
func (s *Service) Create(ctx context.Context, input *CreateInput) (*domain.Report, error) {
	ctx, span := tracer.Start(ctx, "report.Create")
	defer span.End()

	now := time.Now().UTC()

	rpt := &domain.Report{
		ID:           uuid.New().String(),
		ReportType:   input.ReportType,
		ServiceOrder: input.ServiceOrder,
		OfficeID:     input.OfficeID,
		ClaimNumber:  input.ClaimNumber,
		ClaimDate:    input.ClaimDate,
		VisitDate:    input.VisitDate,
		Status:       domain.StatusDraft,
	}
	if rpt.VisitDate.IsZero() {
		rpt.VisitDate = now
	}

	if input.Vehicle != nil {
		v := &domain.Vehicle{
			ID:                uuid.New().String(),
			ReportID:          rpt.ID,
			Make:              input.Vehicle.Make,
			Model:             input.Vehicle.Model,
			Registration:      input.Vehicle.Registration,
			Category:          input.Vehicle.Category,
			FirstRegistration: input.Vehicle.FirstRegistration,
			Mileage:           input.Vehicle.Mileage,
			FiscalPower:       input.Vehicle.FiscalPower,
		}
		v.HourlyRate = s.resolver.HourlyRate(ctx, v.Category)
		v.DepreciationPct = s.resolver.Depreciation(ctx, v.AgeYears(now))
		rpt.Vehicle = v
	}

	for i, in := range input.Impacts {
		impact := &domain.ImpactLine{
			ID:          uuid.New().String(),
			ReportID:    rpt.ID,
			Name:        in.Name,
			Description: in.Description,
			RepairHours: in.RepairHours,
			PaintAmount: in.PaintAmount,
			Position:    i + 1,
		}
		for _, si := range in.Supplies {
			impact.Supplies = append(impact.Supplies, &domain.SupplyItem{
				ID:          uuid.New().String(),
				ImpactID:    impact.ID,
				Designation: si.Designation,
				Reference:   si.Reference,
				Family:      si.Family,
				Quantity:    si.Quantity,
				UnitPrice:   si.UnitPrice,
				TotalPrice:  calc.SupplyTotal(si.Quantity, si.UnitPrice),
			})
		}
		rpt.Impacts = append(rpt.Impacts, impact)
	}

	rpt.Total = calc.ReportSubtotal(rpt.Impacts)

	if input.Fee != nil {
		result := s.fees.Compute(ctx, input.Fee.DistanceKm, input.Fee.BaseAmount)
		rpt.Fee = &domain.FeeRecord{
			ID:         uuid.New().String(),
			ReportID:   rpt.ID,
			BaseAmount: input.Fee.BaseAmount,
			DistanceKm: input.Fee.DistanceKm,
			TravelFee:  result.TravelFee,
			TotalFee:   result.TotalFee,
		}
	}

	if err := s.repo.CreateReport(ctx, rpt); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	s.publish(ctx, domain.TopicReportCreated, rpt.ID, rpt.Total)

	slog.Info("report created",
		"report_id", rpt.ID,
		"claim_number", rpt.ClaimNumber,
		"impacts", len(rpt.Impacts),
		"total", rpt.Total,
	)

	return rpt, nil
}

// Recompute refreshes a report's stored total from its current impacts
// and supplies. It is idempotent: with unchanged inputs the same total
// is written every time. A missing report is surfaced to the caller and
// nothing is written.
func (s *Service) Recompute(ctx context.Context, reportID string) (float64, error) {
	ctx, span := tracer.Start(ctx, "report.Recompute",
		trace.WithAttributes(attribute.String("report.id", reportID)))
	defer span.End()

	// Existence check first: recompute of an unknown report must fail
	// before any write.
	if _, err := s.repo.GetReport(ctx, reportID); err != nil {
		return 0, err
	}

	impacts, err := s.repo.GetImpactsWithSupplies(ctx, reportID)
	if err != nil {
		return 0, fmt.Errorf("failed to load impacts: %w", err)
	}

	total := calc.ReportSubtotal(impacts)

	if err := s.repo.UpdateReportTotal(ctx, reportID, total); err != nil {
		return 0, fmt.Errorf("failed to write report total: %w", err)
	}

	s.publish(ctx, domain.TopicReportRecomputed, reportID, total)

	slog.Info("report total recomputed",
		"report_id", reportID,
		"total", total,
	)

	return total, nil
}

// UpdateSupply changes a supply line's fields, re-deriving the total
// price, then signals that the owning report needs a recompute.
func (s *Service) UpdateSupply(ctx context.Context, reportID string, item *domain.SupplyItem) (*domain.SupplyItem, error) {
	current, err := s.repo.GetSupply(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	current.Designation = item.Designation
	current.Reference = item.Reference
	current.Family = item.Family
	current.Quantity = item.Quantity
	current.UnitPrice = item.UnitPrice
	current.TotalPrice = calc.SupplyTotal(item.Quantity, item.UnitPrice)

	if err := s.repo.UpdateSupply(ctx, current); err != nil {
		return nil, err
	}

	s.publish(ctx, domain.TopicReportChanged, reportID, 0)

	return current, nil
}

// ChangeStatus moves a report one step along the workflow.
func (s *Service) ChangeStatus(ctx context.Context, reportID string, next domain.ReportStatus) error {
	rpt, err := s.repo.GetReport(ctx, reportID)
	if err != nil {
		return err
	}

	if !rpt.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rpt.Status, next)
	}

	return s.repo.UpdateReportStatus(ctx, reportID, next)
}

// Breakdown prices the full estimate of a report: labor at the vehicle's
// resolved hourly rate, supplies, paint, and the vehicle's depreciation.
// Downstream printing consumes all three figures, not just the net.
func (s *Service) Breakdown(ctx context.Context, reportID string) (calc.Breakdown, error) {
	rpt, err := s.repo.GetReport(ctx, reportID)
	if err != nil {
		return calc.Breakdown{}, err
	}

	var hourlyRate, depreciationPct float64
	if rpt.Vehicle != nil {
		hourlyRate = rpt.Vehicle.HourlyRate
		depreciationPct = rpt.Vehicle.DepreciationPct
	}

	var labor, supplies, paint float64
	for _, impact := range rpt.Impacts {
		labor += calc.LaborCost(impact.RepairHours, hourlyRate)
		supplies += impact.SupplyTotal()
		paint += impact.PaintAmount
	}

	return calc.EstimateBreakdown(labor, supplies, paint, depreciationPct), nil
}

// ReportEvent is the payload published on report topics.
type ReportEvent struct {
	ReportID string  `json:"reportId"`
	Total    float64 `json:"total,omitempty"`
}

func (s *Service) publish(ctx context.Context, topic, reportID string, total float64) {
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(ReportEvent{ReportID: reportID, Total: total})
	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		slog.Warn("failed to publish report event",
			"topic", topic,
			"report_id", reportID,
			"error", err,
		)
	}
}
