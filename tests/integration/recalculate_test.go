//go:build integration
// +build integration

// Package integration provides end-to-end tests for the chiffrage
// calculation engine.
//
// These tests exercise the COMPLETE report lifecycle against a running
// server:
//
//	Tariff table → Report creation → Supply edits → Recalculation
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. TARIFF RULE: one row of the pricing table. Four kinds exist:
//   - hourly_rate: labor price per hour, keyed by vehicle category
//   - depreciation: percentage, matched on vehicle age ranges
//   - travel_fee: flat amount or per-km rate, matched on distance ranges
//   - professional_fee: flat amount, matched on fee basis ranges
//
// 2. REPORT: an expertise report for one damaged vehicle. Its total is
//    derived, never entered: the sum over all impacts of supply totals
//    plus paint.
//
// 3. RECALCULATION: POST /v1/reports/{id}/recalculate refreshes the
//    stored total from the report's current line items. It is the
//    explicit step after a tariff correction or a supply edit.
//
// Every lookup that finds no matching rule falls back to a standard
// default, so report creation never fails on a sparse tariff table.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("CHIFFRAGE_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// ============================================================================
// API Request/Response Types (matching the chiffrage API contract)
// ============================================================================

type TariffRequest struct {
	ID              string   `json:"id,omitempty"`
	Kind            string   `json:"kind"`
	VehicleCategory string   `json:"vehicleCategory,omitempty"`
	AgeMin          *float64 `json:"ageMin,omitempty"`
	AgeMax          *float64 `json:"ageMax,omitempty"`
	KmMin           *float64 `json:"kmMin,omitempty"`
	KmMax           *float64 `json:"kmMax,omitempty"`
	AmountMin       *float64 `json:"amountMin,omitempty"`
	AmountMax       *float64 `json:"amountMax,omitempty"`
	Value           float64  `json:"value"`
	Unit            string   `json:"unit"`
}

type CreateReportRequest struct {
	ReportType  string         `json:"reportType"`
	ClaimNumber string         `json:"claimNumber"`
	Vehicle     *VehicleInput  `json:"vehicle,omitempty"`
	Impacts     []ImpactInput  `json:"impacts,omitempty"`
	Fee         *FeeInput      `json:"fee,omitempty"`
}

type VehicleInput struct {
	Make              string    `json:"make"`
	Model             string    `json:"model"`
	Category          string    `json:"category"`
	FirstRegistration time.Time `json:"firstRegistration"`
}

type ImpactInput struct {
	Name        string        `json:"name"`
	RepairHours float64       `json:"repairHours"`
	PaintAmount float64       `json:"paintAmount"`
	Supplies    []SupplyInput `json:"supplies,omitempty"`
}

type SupplyInput struct {
	Designation string  `json:"designation"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

type FeeInput struct {
	BaseAmount float64 `json:"baseAmount"`
	DistanceKm int     `json:"distanceKm"`
}

type ReportResponse struct {
	ID      string  `json:"id"`
	Status  string  `json:"status"`
	Total   float64 `json:"total"`
	Vehicle *struct {
		HourlyRate      float64 `json:"hourlyRate"`
		DepreciationPct float64 `json:"depreciationPct"`
	} `json:"vehicle"`
	Impacts []struct {
		ID       string `json:"id"`
		Supplies []struct {
			ID         string  `json:"id"`
			TotalPrice float64 `json:"totalPrice"`
		} `json:"supplies"`
	} `json:"impacts"`
	Fee *struct {
		TravelFee float64 `json:"travelFee"`
		TotalFee  float64 `json:"totalFee"`
	} `json:"fee"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func doRequest(t *testing.T, config TestConfig, method, path string, payload any, out any) int {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
		}
	}

	return resp.StatusCode
}

func seedTariffTable(t *testing.T, config TestConfig) {
	t.Helper()

	bound := func(v float64) *float64 { return &v }

	rules := []TariffRequest{
		{ID: "it-hr-vp", Kind: "hourly_rate", VehicleCategory: "VP", Value: 18000, Unit: "FCFA/h"},
		{ID: "it-dep-young", Kind: "depreciation", AgeMin: bound(0), AgeMax: bound(5), Value: 10, Unit: "%"},
		{ID: "it-dep-old", Kind: "depreciation", AgeMin: bound(5), AgeMax: bound(999), Value: 30, Unit: "%"},
		{ID: "it-trav-near", Kind: "travel_fee", KmMin: bound(0), KmMax: bound(10), Value: 5000, Unit: "FCFA"},
		{ID: "it-trav-far", Kind: "travel_fee", KmMin: bound(10), KmMax: bound(999999), Value: 500, Unit: "FCFA/km"},
		{ID: "it-prof", Kind: "professional_fee", AmountMin: bound(0), AmountMax: bound(999999999), Value: 20000, Unit: "FCFA"},
	}

	for _, rule := range rules {
		if status := doRequest(t, config, "POST", "/v1/tariffs", rule, nil); status != http.StatusCreated {
			t.Fatalf("Failed to seed tariff rule %s: status %d", rule.ID, status)
		}
	}
}

// ============================================================================
// SCENARIO 1: Full Report Lifecycle
// ============================================================================

func TestReportLifecycle(t *testing.T) {
	/*
	   SCENARIO: An expert creates a report for a 2-year-old VP class
	   vehicle with one damaged zone and a fee basis, then corrects a
	   supply line and recalculates.

	   EXPECTED BEHAVIOR:
	   - hourly rate resolves to 18000, depreciation to 10% (age in [0,5))
	   - supply total derived as quantity x unit price
	   - report total = supplies + paint, labor excluded
	   - travel fee 5000 flat (7 km inside [0,10))
	   - professional fee 20000, total fee 25000
	   - after doubling a supply quantity and recalculating, the stored
	     total reflects the new line items
	*/
	config := getTestConfig()
	seedTariffTable(t, config)

	req := CreateReportRequest{
		ReportType:  "expertise",
		ClaimNumber: fmt.Sprintf("IT-%d", time.Now().UnixNano()),
		Vehicle: &VehicleInput{
			Make:              "Toyota",
			Model:             "Corolla",
			Category:          "VP",
			FirstRegistration: time.Now().UTC().Add(-2 * 365 * 24 * time.Hour),
		},
		Impacts: []ImpactInput{
			{
				Name:        "1er degré",
				RepairHours: 4,
				PaintAmount: 3000,
				Supplies: []SupplyInput{
					{Designation: "Pare-chocs avant", Quantity: 1, UnitPrice: 12000},
				},
			},
		},
		Fee: &FeeInput{BaseAmount: 15000, DistanceKm: 7},
	}

	var created ReportResponse
	if status := doRequest(t, config, "POST", "/v1/reports", req, &created); status != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", status)
	}

	if created.Vehicle.HourlyRate != 18000 {
		t.Errorf("Expected hourly rate 18000, got %v", created.Vehicle.HourlyRate)
	}
	if created.Vehicle.DepreciationPct != 10 {
		t.Errorf("Expected depreciation 10, got %v", created.Vehicle.DepreciationPct)
	}
	if created.Total != 15000 {
		t.Errorf("Expected total 15000, got %v", created.Total)
	}
	if created.Fee.TravelFee != 5000 {
		t.Errorf("Expected travel fee 5000, got %v", created.Fee.TravelFee)
	}
	if created.Fee.TotalFee != 25000 {
		t.Errorf("Expected total fee 25000, got %v", created.Fee.TotalFee)
	}

	// Correct the supply line and recalculate.
	supplyID := created.Impacts[0].Supplies[0].ID
	update := SupplyInput{Designation: "Pare-chocs avant", Quantity: 2, UnitPrice: 12000}
	path := fmt.Sprintf("/v1/reports/%s/supplies/%s", created.ID, supplyID)
	if status := doRequest(t, config, "PUT", path, update, nil); status != http.StatusOK {
		t.Fatalf("Supply update failed: status %d", status)
	}

	var recalc struct {
		Total float64 `json:"total"`
	}
	if status := doRequest(t, config, "POST", "/v1/reports/"+created.ID+"/recalculate", nil, &recalc); status != http.StatusOK {
		t.Fatalf("Recalculation failed: status %d", status)
	}
	if recalc.Total != 27000 {
		t.Errorf("Expected recalculated total 27000, got %v", recalc.Total)
	}
}

// ============================================================================
// SCENARIO 2: Sparse Tariff Table Falls Back To Defaults
// ============================================================================

func TestSparseTariffTableDefaults(t *testing.T) {
	/*
	   SCENARIO: A report for a vehicle category with no hourly_rate row.

	   EXPECTED BEHAVIOR: creation succeeds; the hourly rate falls back
	   to the standard default (15000) instead of failing.
	*/
	config := getTestConfig()

	req := CreateReportRequest{
		ReportType:  "expertise",
		ClaimNumber: fmt.Sprintf("IT-SPARSE-%d", time.Now().UnixNano()),
		Vehicle: &VehicleInput{
			Make:              "Iveco",
			Model:             "Daily",
			Category:          "PL-UNPRICED",
			FirstRegistration: time.Now().UTC().Add(-1 * 365 * 24 * time.Hour),
		},
	}

	var created ReportResponse
	if status := doRequest(t, config, "POST", "/v1/reports", req, &created); status != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", status)
	}

	if created.Vehicle.HourlyRate != 15000 {
		t.Errorf("Expected default hourly rate 15000, got %v", created.Vehicle.HourlyRate)
	}
}

// ============================================================================
// SCENARIO 3: Recalculating A Missing Report
// ============================================================================

func TestRecalculateMissingReport(t *testing.T) {
	config := getTestConfig()

	status := doRequest(t, config, "POST", "/v1/reports/does-not-exist/recalculate", nil, nil)
	if status != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", status)
	}
}
