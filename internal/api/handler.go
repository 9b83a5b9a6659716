package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/expertise-auto/chiffrage/internal/domain"
	"github.com/expertise-auto/chiffrage/internal/report"
	"github.com/expertise-auto/chiffrage/internal/repository"
	"github.com/expertise-auto/chiffrage/internal/stats"
	"github.com/expertise-auto/chiffrage/internal/tariff"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	resolver *tariff.Resolver
	reports  *report.Service
	stats    *stats.Service
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, resolver *tariff.Resolver, reports *report.Service, statsSvc *stats.Service, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		resolver: resolver,
		reports:  reports,
		stats:    statsSvc,
		version:  version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// CreateReport handles POST /v1/reports.
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req report.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ReportType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "reportType is required",
		})
		return
	}
	if req.ClaimNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "claimNumber is required",
		})
		return
	}
	for _, impact := range req.Impacts {
		for _, s := range impact.Supplies {
			if s.Quantity < 0 || s.UnitPrice < 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error": "supply quantity and unitPrice must not be negative",
				})
				return
			}
		}
	}

	rpt, err := h.reports.Create(ctx, &req)
	if err != nil {
		slog.Error("failed to create report", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to create report",
		})
		return
	}

	slog.Info("report created via api",
		"report_id", rpt.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusCreated, rpt)
}

// GetReport handles GET /v1/reports/{id}.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "id")

	rpt, err := h.repo.GetReport(r.Context(), reportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "report not found",
			})
			return
		}
		slog.Error("failed to get report", "id", reportID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get report",
		})
		return
	}

	writeJSON(w, http.StatusOK, rpt)
}

// RecalculateReport handles POST /v1/reports/{id}/recalculate.
// This is the entry point invoked after a tariff correction: totals are
// refreshed against the live tariff table.
func (h *Handler) RecalculateReport(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "id")

	total, err := h.reports.Recompute(r.Context(), reportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "report not found",
			})
			return
		}
		slog.Error("recalculation failed", "id", reportID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "recalculation failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reportId": reportID,
		"total":    total,
	})
}

// GetBreakdown handles GET /v1/reports/{id}/breakdown.
func (h *Handler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "id")

	bd, err := h.reports.Breakdown(r.Context(), reportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "report not found",
			})
			return
		}
		slog.Error("breakdown failed", "id", reportID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "breakdown failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, bd)
}

// UpdateStatusRequest is the request body for PUT /v1/reports/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateReportStatus handles PUT /v1/reports/{id}/status.
func (h *Handler) UpdateReportStatus(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "id")

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	next := domain.ReportStatus(req.Status)
	if !next.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown status: " + req.Status,
		})
		return
	}

	err := h.reports.ChangeStatus(r.Context(), reportID, next)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{
			"reportId": reportID,
			"status":   req.Status,
		})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "report not found",
		})
	case errors.Is(err, report.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	default:
		slog.Error("status update failed", "id", reportID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "status update failed",
		})
	}
}

// UpdateSupplyRequest is the request body for updating a supply line.
type UpdateSupplyRequest struct {
	Designation string  `json:"designation"`
	Reference   string  `json:"reference,omitempty"`
	Family      string  `json:"family,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

// UpdateSupply handles PUT /v1/reports/{id}/supplies/{supplyID}.
// The supply's total price is derived server side; the stored report
// total is refreshed asynchronously.
func (h *Handler) UpdateSupply(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "id")
	supplyID := chi.URLParam(r, "supplyID")

	var req UpdateSupplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Quantity < 0 || req.UnitPrice < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "quantity and unitPrice must not be negative",
		})
		return
	}

	item := &domain.SupplyItem{
		ID:          supplyID,
		Designation: req.Designation,
		Reference:   req.Reference,
		Family:      req.Family,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
	}

	updated, err := h.reports.UpdateSupply(r.Context(), reportID, item)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "supply not found",
			})
			return
		}
		slog.Error("supply update failed", "id", supplyID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "supply update failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// CreateTariffRequest is the request body for creating a tariff rule.
type CreateTariffRequest struct {
	ID              string   `json:"id"`
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
	Guard           string   `json:"guard,omitempty"`
	Active          *bool    `json:"active,omitempty"`
}

// ListTariffs handles GET /v1/tariffs. An optional ?kind= query filters
// by tariff kind.
func (h *Handler) ListTariffs(w http.ResponseWriter, r *http.Request) {
	kind := domain.TariffKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown tariff kind: " + string(kind),
		})
		return
	}

	rules, err := h.repo.ListTariffRules(r.Context(), kind)
	if err != nil {
		slog.Error("failed to list tariff rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list tariff rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tariffs": rules,
		"count":   len(rules),
	})
}

// GetTariff handles GET /v1/tariffs/{id}.
func (h *Handler) GetTariff(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetTariffRule(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "tariff rule not found",
			})
			return
		}
		slog.Error("failed to get tariff rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get tariff rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateTariff handles POST /v1/tariffs.
func (h *Handler) CreateTariff(w http.ResponseWriter, r *http.Request) {
	h.saveTariff(w, r, "")
}

// UpdateTariff handles PUT /v1/tariffs/{id}.
func (h *Handler) UpdateTariff(w http.ResponseWriter, r *http.Request) {
	h.saveTariff(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) saveTariff(w http.ResponseWriter, r *http.Request, ruleID string) {
	ctx := r.Context()

	var req CreateTariffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if ruleID == "" {
		ruleID = req.ID
	}
	if ruleID == "" {
		ruleID = uuid.New().String()
	}

	kind := domain.TariffKind(req.Kind)
	if !kind.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown tariff kind: " + req.Kind,
		})
		return
	}
	if req.Value < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "value must not be negative",
		})
		return
	}
	if kind == domain.KindHourlyRate && req.VehicleCategory == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "vehicleCategory is required for hourly_rate rules",
		})
		return
	}

	// Reject broken guard expressions at save time rather than warn on
	// every resolution.
	if req.Guard != "" {
		if err := h.resolver.ValidateGuard(req.Guard); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid guard expression: " + err.Error(),
			})
			return
		}
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	rule := &domain.TariffRule{
		ID:              ruleID,
		Kind:            kind,
		VehicleCategory: req.VehicleCategory,
		AgeMin:          req.AgeMin,
		AgeMax:          req.AgeMax,
		KmMin:           req.KmMin,
		KmMax:           req.KmMax,
		AmountMin:       req.AmountMin,
		AmountMax:       req.AmountMax,
		Value:           req.Value,
		Unit:            domain.TariffUnit(req.Unit),
		Guard:           req.Guard,
		Active:          active,
	}

	if err := h.repo.SaveTariffRule(ctx, rule); err != nil {
		if errors.Is(err, repository.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to save tariff rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save tariff rule",
		})
		return
	}

	h.publishTariffUpdated(r, rule)

	slog.Info("tariff rule saved", "id", rule.ID, "kind", rule.Kind)
	writeJSON(w, http.StatusCreated, rule)
}

// DeleteTariff handles DELETE /v1/tariffs/{id}. Rules are deactivated,
// never removed, so past resolutions stay explainable.
func (h *Handler) DeleteTariff(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeactivateTariffRule(r.Context(), ruleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "tariff rule not found",
			})
			return
		}
		slog.Error("failed to deactivate tariff rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to deactivate tariff rule",
		})
		return
	}

	h.publishTariffUpdated(r, &domain.TariffRule{ID: ruleID})

	slog.Info("tariff rule deactivated", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "tariff rule deactivated",
	})
}

func (h *Handler) publishTariffUpdated(r *http.Request, rule *domain.TariffRule) {
	if h.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"ruleId": rule.ID,
		"kind":   string(rule.Kind),
	})
	if err := h.bus.Publish(r.Context(), domain.TopicTariffUpdated, payload); err != nil {
		slog.Warn("failed to publish tariff update", "id", rule.ID, "error", err)
	}
}

// GetStats handles GET /v1/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "statistics not available",
		})
		return
	}

	overview, err := h.stats.Overview(r.Context())
	if err != nil {
		slog.Error("failed to build statistics overview", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to build statistics overview",
		})
		return
	}

	writeJSON(w, http.StatusOK, overview)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
