// Package tariff resolves figures from the tariff table with deterministic
// fallbacks. Resolution never fails: when no rule matches or the table
// cannot be read, a value from the injected default schedule is returned
// and the miss is logged. The report workflow must never be blocked by a
// missing or malformed tariff row.
package tariff

import (
	"context"
	"log/slog"

	"github.com/expertise-auto/chiffrage/internal/domain"
)

// Resolver turns raw inputs into a single numeric value per tariff kind.
// It is stateless between calls: every resolution re-reads the current
// active rules, so a tariff edit takes effect on the next call.
type Resolver struct {
	repo     domain.Repository
	defaults domain.DefaultSchedule
	guards   *guardCache
}

// NewResolver creates a resolver backed by the given repository and
// fallback schedule.
func NewResolver(repo domain.Repository, defaults domain.DefaultSchedule) (*Resolver, error) {
	guards, err := newGuardCache()
	if err != nil {
		return nil, err
	}
	return &Resolver{
		repo:     repo,
		defaults: defaults,
		guards:   guards,
	}, nil
}

// Input carries the discriminating values a guard expression may inspect.
type Input struct {
	Category   string
	VehicleAge float64
	DistanceKm float64
	BaseAmount float64
}

// HourlyRate resolves the labor rate for a vehicle category.
// Lookup failure is non-fatal: the default rate is returned and logged.
func (r *Resolver) HourlyRate(ctx context.Context, category string) float64 {
	rule, err := r.repo.FindRate(ctx, domain.KindHourlyRate, category)
	if err != nil {
		slog.Warn("no hourly rate rule for category, using default",
			"category", category,
			"default", r.defaults.HourlyRate,
			"error", err,
		)
		return r.defaults.HourlyRate
	}

	if !r.guards.matches(rule, Input{Category: category}) {
		slog.Warn("hourly rate rule excluded by guard, using default",
			"rule_id", rule.ID,
			"category", category,
		)
		return r.defaults.HourlyRate
	}

	return rule.Value
}

// Depreciation resolves the depreciation percentage for a vehicle age in
// fractional years. Ranges are half-open [min, max); an age beyond the
// last range yields the last rule's value, never an error.
func (r *Resolver) Depreciation(ctx context.Context, ageYears float64) float64 {
	rules, err := r.repo.FindRangeRules(ctx, domain.KindDepreciation)
	if err != nil {
		slog.Warn("depreciation lookup failed, using default",
			"default", r.defaults.DepreciationOnError,
			"error", err,
		)
		return r.defaults.DepreciationOnError
	}

	input := Input{VehicleAge: ageYears}
	for _, rule := range rules {
		min, max := bounds(rule.AgeMin, rule.AgeMax, domain.MaxVehicleAgeYears)
		if ageYears >= min && ageYears < max && r.guards.matches(rule, input) {
			return rule.Value
		}
	}

	// Beyond every defined range: the last (highest) bracket applies.
	if len(rules) > 0 {
		return rules[len(rules)-1].Value
	}

	slog.Warn("depreciation table is empty, using default",
		"default", r.defaults.DepreciationEmpty,
	)
	return r.defaults.DepreciationEmpty
}

// TravelFee resolves the travel fee for a distance in kilometers.
// A flat rule returns its value as-is; a per-kilometer rule returns
// value * distance. With no matching rule the default per-kilometer
// rate applies.
func (r *Resolver) TravelFee(ctx context.Context, distanceKm int) float64 {
	km := float64(distanceKm)
	fallback := r.defaults.TravelRatePerKm * km

	rules, err := r.repo.FindRangeRules(ctx, domain.KindTravelFee)
	if err != nil {
		slog.Warn("travel fee lookup failed, using default rate",
			"distance_km", distanceKm,
			"error", err,
		)
		return fallback
	}

	input := Input{DistanceKm: km}
	for _, rule := range rules {
		min, max := bounds(rule.KmMin, rule.KmMax, domain.MaxDistanceKm)
		if km < min || km >= max || !r.guards.matches(rule, input) {
			continue
		}

		switch rule.Unit {
		case domain.UnitFlat:
			return rule.Value
		case domain.UnitPerKm:
			return rule.Value * km
		}
		// Other units never apply to travel fees; keep scanning.
	}

	slog.Warn("no travel fee rule for distance, using default rate",
		"distance_km", distanceKm,
		"rate", r.defaults.TravelRatePerKm,
	)
	return fallback
}

// ProfessionalFee resolves the expert's professional fee for a claim base
// amount.
func (r *Resolver) ProfessionalFee(ctx context.Context, baseAmount float64) float64 {
	rules, err := r.repo.FindRangeRules(ctx, domain.KindProfessionalFee)
	if err != nil {
		slog.Warn("professional fee lookup failed, using default",
			"base_amount", baseAmount,
			"default", r.defaults.ProfessionalFee,
			"error", err,
		)
		return r.defaults.ProfessionalFee
	}

	input := Input{BaseAmount: baseAmount}
	for _, rule := range rules {
		min, max := bounds(rule.AmountMin, rule.AmountMax, domain.MaxFeeBasis)
		if baseAmount >= min && baseAmount < max && r.guards.matches(rule, input) {
			return rule.Value
		}
	}

	slog.Warn("no professional fee rule for amount, using default",
		"base_amount", baseAmount,
		"default", r.defaults.ProfessionalFee,
	)
	return r.defaults.ProfessionalFee
}

// ValidateGuard checks a guard expression without caching it. Used when
// tariff rules are saved so malformed guards are rejected at write time.
func (r *Resolver) ValidateGuard(expr string) error {
	return r.guards.validate(expr)
}

// bounds normalizes a rule's optional range bounds: a missing lower bound
// means 0, a missing upper bound means the kind's effectively-unbounded
// constant.
func bounds(min, max *float64, unbounded float64) (float64, float64) {
	lo, hi := 0.0, unbounded
	if min != nil {
		lo = *min
	}
	if max != nil {
		hi = *max
	}
	return lo, hi
}
