// Package domain defines the core interfaces and types for Chiffrage.
package domain

// TariffKind identifies which figure a tariff rule produces.
type TariffKind string

const (
	// KindHourlyRate is the labor rate per hour, discriminated by vehicle category.
	KindHourlyRate TariffKind = "hourly_rate"

	// KindDepreciation is the depreciation percentage, discriminated by vehicle age.
	KindDepreciation TariffKind = "depreciation"

	// KindTravelFee is the expert travel fee, discriminated by distance traveled.
	KindTravelFee TariffKind = "travel_fee"

	// KindProfessionalFee is the expert professional fee, discriminated by claim base amount.
	KindProfessionalFee TariffKind = "professional_fee"
)

// TariffKinds lists all kinds in display order. The set is closed.
var TariffKinds = []TariffKind{KindHourlyRate, KindDepreciation, KindTravelFee, KindProfessionalFee}

// Valid reports whether k is a known tariff kind.
func (k TariffKind) Valid() bool {
	switch k {
	case KindHourlyRate, KindDepreciation, KindTravelFee, KindProfessionalFee:
		return true
	}
	return false
}

// TariffUnit tells how a rule's value is interpreted.
type TariffUnit string

const (
	// UnitFlat is a flat currency amount (FCFA).
	UnitFlat TariffUnit = "FCFA"

	// UnitPercent is a percentage of a base amount.
	UnitPercent TariffUnit = "%"

	// UnitPerKm is a currency rate per kilometer.
	UnitPerKm TariffUnit = "FCFA/km"

	// UnitPerHour is a currency rate per labor hour.
	UnitPerHour TariffUnit = "FCFA/h"
)

// Effectively-unbounded upper defaults for range rules with a missing max.
// Range matching is half-open: min <= input < max.
const (
	MaxVehicleAgeYears = 999
	MaxDistanceKm      = 999999
	MaxFeeBasis        = 999999999
)

// TariffRule is one row of the tariff table.
//
// Only the discriminator matching the rule's kind is set: VehicleCategory
// for hourly rates, AgeMin/AgeMax for depreciation, KmMin/KmMax for travel
// fees, AmountMin/AmountMax for professional fees. A nil range bound means
// "open on that side" (0 below, the kind's unbounded constant above).
type TariffRule struct {
	ID   string     `json:"id"`
	Kind TariffKind `json:"kind"`

	VehicleCategory string `json:"vehicleCategory,omitempty"`

	AgeMin    *float64 `json:"ageMin,omitempty"`
	AgeMax    *float64 `json:"ageMax,omitempty"`
	KmMin     *float64 `json:"kmMin,omitempty"`
	KmMax     *float64 `json:"kmMax,omitempty"`
	AmountMin *float64 `json:"amountMin,omitempty"`
	AmountMax *float64 `json:"amountMax,omitempty"`

	Value float64    `json:"value"`
	Unit  TariffUnit `json:"unit"`

	// Guard is an optional CEL expression over the resolution input
	// (category, vehicle_age, distance_km, base_amount). A rule with a
	// guard matches only when the guard evaluates to true.
	Guard string `json:"guard,omitempty"`

	Active bool `json:"active"`
}

// LowerBound returns the rule's relevant lower range bound, defaulting to 0.
// Used to order range rules ascending for first-match resolution.
func (r *TariffRule) LowerBound() float64 {
	var min *float64
	switch r.Kind {
	case KindDepreciation:
		min = r.AgeMin
	case KindTravelFee:
		min = r.KmMin
	case KindProfessionalFee:
		min = r.AmountMin
	}
	if min == nil {
		return 0
	}
	return *min
}

// DefaultSchedule holds the fallback values used when no tariff rule
// matches or the tariff table cannot be read. Resolution never fails:
// a human corrects the tariff table later and triggers a recompute.
type DefaultSchedule struct {
	// HourlyRate is returned when no hourly-rate rule matches the category.
	HourlyRate float64

	// DepreciationEmpty is returned when the depreciation rule set is empty.
	DepreciationEmpty float64

	// DepreciationOnError is returned when the depreciation lookup itself fails.
	DepreciationOnError float64

	// TravelRatePerKm is multiplied by the distance when no travel rule matches.
	TravelRatePerKm float64

	// ProfessionalFee is returned when no professional-fee rule matches.
	ProfessionalFee float64
}

// StandardDefaults returns the fallback schedule used in production.
func StandardDefaults() DefaultSchedule {
	return DefaultSchedule{
		HourlyRate:          15000,
		DepreciationEmpty:   50,
		DepreciationOnError: 30,
		TravelRatePerKm:     500,
		ProfessionalFee:     25000,
	}
}
