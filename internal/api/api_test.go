package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/expertise-auto/chiffrage/internal/bus"
	"github.com/expertise-auto/chiffrage/internal/cache"
	"github.com/expertise-auto/chiffrage/internal/domain"
	"github.com/expertise-auto/chiffrage/internal/fees"
	"github.com/expertise-auto/chiffrage/internal/report"
	"github.com/expertise-auto/chiffrage/internal/repository"
	"github.com/expertise-auto/chiffrage/internal/stats"
	"github.com/expertise-auto/chiffrage/internal/tariff"
)

// createTestServer wires a server against a temp sqlite store.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	dbPath := filepath.Join(t.TempDir(), "api_test.db")
	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: dbPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	lru := cache.NewLRUCache(100)

	resolver, err := tariff.NewResolver(repo, domain.StandardDefaults())
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}

	reports := report.NewService(repo, resolver, fees.NewCalculator(resolver), eventBus)
	statsSvc := stats.NewService(repo, lru, 30*24*time.Hour)

	return NewServer(cfg, repo, lru, eventBus, resolver, reports, statsSvc, "test-v1")
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	server := createTestServer(t)

	rr := doJSON(t, server, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}

	var health map[string]string
	json.Unmarshal(rr.Body.Bytes(), &health)
	if health["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", health["status"])
	}
	if health["version"] != "test-v1" {
		t.Errorf("expected version test-v1, got %s", health["version"])
	}

	rr = doJSON(t, server, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestTariffEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("CreateAndGet", func(t *testing.T) {
		min, max := 0.0, 5.0
		rr := doJSON(t, server, http.MethodPost, "/v1/tariffs", CreateTariffRequest{
			ID:     "dep-young",
			Kind:   "depreciation",
			AgeMin: &min,
			AgeMax: &max,
			Value:  10,
			Unit:   "%",
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodGet, "/v1/tariffs/dep-young", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var rule domain.TariffRule
		json.Unmarshal(rr.Body.Bytes(), &rule)
		if rule.Value != 10 || !rule.Active {
			t.Errorf("unexpected rule: %+v", rule)
		}
	})

	t.Run("ListFilteredByKind", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/v1/tariffs", CreateTariffRequest{
			ID:              "hr-vp",
			Kind:            "hourly_rate",
			VehicleCategory: "VP",
			Value:           18000,
			Unit:            "FCFA/h",
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodGet, "/v1/tariffs?kind=hourly_rate", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 hourly_rate rule, got %d", resp.Count)
		}
	})

	t.Run("RejectsUnknownKind", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/v1/tariffs", CreateTariffRequest{
			Kind:  "parking_fee",
			Value: 100,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("RejectsHourlyRateWithoutCategory", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/v1/tariffs", CreateTariffRequest{
			Kind:  "hourly_rate",
			Value: 15000,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("RejectsInvalidGuard", func(t *testing.T) {
		min, max := 0.0, 10.0
		rr := doJSON(t, server, http.MethodPost, "/v1/tariffs", CreateTariffRequest{
			Kind:  "travel_fee",
			KmMin: &min,
			KmMax: &max,
			Value: 5000,
			Unit:  "FCFA",
			Guard: "distance_km >",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for broken guard, got %d", rr.Code)
		}
	})

	t.Run("DeleteDeactivates", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodDelete, "/v1/tariffs/dep-young", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodGet, "/v1/tariffs/dep-young", nil)
		var rule domain.TariffRule
		json.Unmarshal(rr.Body.Bytes(), &rule)
		if rule.Active {
			t.Error("expected rule to be inactive after delete")
		}
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodDelete, "/v1/tariffs/no-such-rule", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})
}

func TestReportEndpoints(t *testing.T) {
	server := createTestServer(t)

	input := report.CreateInput{
		ReportType:  "expertise",
		ClaimNumber: "SIN-2024-007",
		Vehicle: &report.VehicleInput{
			Make:              "Peugeot",
			Model:             "308",
			Category:          "VP",
			FirstRegistration: time.Now().UTC().Add(-3 * 365 * 24 * time.Hour),
		},
		Impacts: []report.ImpactInput{
			{
				Name:        "1er degré",
				RepairHours: 3,
				PaintAmount: 4000,
				Supplies: []report.SupplyInput{
					{Designation: "Phare droit", Quantity: 1, UnitPrice: 22000},
				},
			},
		},
		Fee: &report.FeeInput{BaseAmount: 26000, DistanceKm: 12},
	}

	rr := doJSON(t, server, http.MethodPost, "/v1/reports", input)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var created domain.Report
	json.Unmarshal(rr.Body.Bytes(), &created)
	if created.Total != 26000 {
		t.Errorf("expected total 26000, got %v", created.Total)
	}

	t.Run("Get", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/v1/reports/"+created.ID, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/v1/reports/no-such-report", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("RejectsMissingClaimNumber", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/v1/reports", report.CreateInput{ReportType: "expertise"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("UpdateSupplyAndRecalculate", func(t *testing.T) {
		supplyID := created.Impacts[0].Supplies[0].ID

		rr := doJSON(t, server, http.MethodPut, "/v1/reports/"+created.ID+"/supplies/"+supplyID, UpdateSupplyRequest{
			Designation: "Phare droit",
			Quantity:    2,
			UnitPrice:   22000,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var updated domain.SupplyItem
		json.Unmarshal(rr.Body.Bytes(), &updated)
		if updated.TotalPrice != 44000 {
			t.Errorf("expected derived total 44000, got %v", updated.TotalPrice)
		}

		rr = doJSON(t, server, http.MethodPost, "/v1/reports/"+created.ID+"/recalculate", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var recalc struct {
			Total float64 `json:"total"`
		}
		json.Unmarshal(rr.Body.Bytes(), &recalc)
		if recalc.Total != 48000 {
			t.Errorf("expected total 48000, got %v", recalc.Total)
		}
	})

	t.Run("RecalculateMissing", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/v1/reports/no-such-report/recalculate", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("Breakdown", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/v1/reports/"+created.ID+"/breakdown", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("StatusTransitions", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPut, "/v1/reports/"+created.ID+"/status", UpdateStatusRequest{Status: "in_progress"})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodPut, "/v1/reports/"+created.ID+"/status", UpdateStatusRequest{Status: "archived"})
		if rr.Code != http.StatusConflict {
			t.Errorf("expected 409 for skipped step, got %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodPut, "/v1/reports/"+created.ID+"/status", UpdateStatusRequest{Status: "parked"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown status, got %d", rr.Code)
		}
	})
}

func TestStatsEndpoint(t *testing.T) {
	server := createTestServer(t)

	rr := doJSON(t, server, http.MethodPost, "/v1/reports", report.CreateInput{
		ReportType:  "expertise",
		ClaimNumber: "SIN-2024-200",
		Impacts: []report.ImpactInput{
			{Name: "TOL", PaintAmount: 5000},
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, "/v1/stats", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var overview stats.Overview
	json.Unmarshal(rr.Body.Bytes(), &overview)
	if overview.ReportCount != 1 {
		t.Errorf("expected 1 report, got %d", overview.ReportCount)
	}
	if overview.ReportTotalSum != 5000 {
		t.Errorf("expected total sum 5000, got %v", overview.ReportTotalSum)
	}
}
