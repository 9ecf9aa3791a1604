/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	fleet data for testing and demos. Each scenario creates vehicles,
	contracts, ledger entries, fines, and mileage readings that demonstrate
	specific features.

AVAILABLE SCENARIOS:

	frota-basica:     Small fleet with one active rental
	custos-operacao:  Damage, parts and purchase intake on a rented vehicle
	faturamento:      Authorized costs ready for billing generation
	quilometragem:    Readings from both sources feeding the aggregate

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Register vehicles
 3. Create contracts through the booking service
 4. Record intake events / fines through the ledger service
 5. Optionally advance entry statuses

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "faturamento"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - fleet/: Domain services the loaders drive
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/frotaops/fleet-engine/fleet"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "frota-basica",
		Name:        "Frota Básica",
		Description: "Three vehicles, one active rental contract",
		Category:    "booking",
	},
	{
		ID:          "custos-operacao",
		Name:        "Custos de Operação",
		Description: "Damage, parts and purchase entries attached to an active contract",
		Category:    "ledger",
	},
	{
		ID:          "faturamento",
		Name:        "Faturamento",
		Description: "Authorized costs and a fine, ready for billing generation",
		Category:    "billing",
	},
	{
		ID:          "quilometragem",
		Name:        "Quilometragem",
		Description: "Inspection and service-note readings feeding the mileage aggregate",
		Category:    "mileage",
	},
}

// resetter is implemented by stores that can wipe all data. The production
// sqlite store and the in-memory store both do.
type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario wipes the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rs, ok := h.Store.(resetter)
	if !ok {
		writeError(w, http.StatusConflict, "Store does not support scenario loading", nil)
		return
	}

	ctx := r.Context()
	if err := rs.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.Cache.Invalidate(vehicleListCacheKey)

	var err error
	switch req.ScenarioID {
	case "frota-basica":
		err = loadBasicFleetScenario(ctx, h)
	case "custos-operacao":
		err = loadOperatingCostsScenario(ctx, h)
	case "faturamento":
		err = loadBillingScenario(ctx, h)
	case "quilometragem":
		err = loadMileageScenario(ctx, h)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// LOADERS
// =============================================================================

func seedScenarioVehicle(ctx context.Context, h *Handler, plate, model string, mileage int) (fleet.VehicleID, error) {
	now := time.Now().UTC()
	v := fleet.Vehicle{
		ID:             fleet.VehicleID(uuid.NewString()),
		Plate:          plate,
		Model:          model,
		Status:         fleet.VehicleAvailable,
		InitialMileage: mileage,
		StoredMileage:  mileage,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return v.ID, h.Store.SaveVehicle(ctx, v)
}

func scenarioContract(ctx context.Context, h *Handler, vehicleID fleet.VehicleID, rate string, start, end fleet.Date) (*fleet.Contract, error) {
	dailyRate, err := fleet.ParseMoney(rate)
	if err != nil {
		return nil, err
	}
	return h.Booking.CreateContract(ctx, fleet.ContractInput{
		CustomerID: fleet.CustomerID(uuid.NewString()),
		Vehicles:   []fleet.VehicleAssignment{{VehicleID: vehicleID, DailyRate: dailyRate}},
		Period:     fleet.NewDateRange(start, end),
	})
}

func loadBasicFleetScenario(ctx context.Context, h *Handler) error {
	onix, err := seedScenarioVehicle(ctx, h, "BRA-2E19", "Onix 1.0", 24500)
	if err != nil {
		return err
	}
	if _, err := seedScenarioVehicle(ctx, h, "BRA-7K44", "HB20 Sense", 41200); err != nil {
		return err
	}
	if _, err := seedScenarioVehicle(ctx, h, "BRA-9Q03", "Fiorino Furgão", 88300); err != nil {
		return err
	}

	today := fleet.Today()
	_, err = scenarioContract(ctx, h, onix, "129.90", today, today.AddDays(13))
	return err
}

func loadOperatingCostsScenario(ctx context.Context, h *Handler) error {
	vid, err := seedScenarioVehicle(ctx, h, "BRA-2E19", "Onix 1.0", 24500)
	if err != nil {
		return err
	}

	today := fleet.Today()
	if _, err := scenarioContract(ctx, h, vid, "129.90", today.AddDays(-10), today.AddDays(10)); err != nil {
		return err
	}

	// Intake events land inside the contract period, so association links
	// them to the contract's customer.
	if _, _, err := h.Ledger.RecordDamage(ctx, vid, today.AddDays(-2), "leve"); err != nil {
		return err
	}
	partsCost, _ := fleet.ParseMoney("320.00")
	if _, _, err := h.Ledger.RecordPartsConsumption(ctx, vid, today.AddDays(-1), "pastilha de freio", partsCost); err != nil {
		return err
	}
	purchaseCost, _ := fleet.ParseMoney("1890.00")
	_, _, err = h.Ledger.RecordPurchase(ctx, vid, today, "jogo de pneus", purchaseCost)
	return err
}

func loadBillingScenario(ctx context.Context, h *Handler) error {
	vid, err := seedScenarioVehicle(ctx, h, "BRA-7K44", "HB20 Sense", 41200)
	if err != nil {
		return err
	}

	today := fleet.Today()
	if _, err := scenarioContract(ctx, h, vid, "149.90", today.AddDays(-20), today.AddDays(5)); err != nil {
		return err
	}

	partsCost, _ := fleet.ParseMoney("320.00")
	parts, _, err := h.Ledger.RecordPartsConsumption(ctx, vid, today.AddDays(-3), "correia dentada", partsCost)
	if err != nil {
		return err
	}
	if _, err := h.Ledger.Transition(ctx, parts.ID, fleet.StatusAutorizado, fleet.RoleManager); err != nil {
		return err
	}

	damage, _, err := h.Ledger.RecordDamage(ctx, vid, today.AddDays(-2), "grave")
	if err != nil {
		return err
	}
	repairCost, _ := fleet.ParseMoney("1240.00")
	if _, err := h.Ledger.ResolveAmount(ctx, damage.ID, repairCost, fleet.RoleManager); err != nil {
		return err
	}
	if _, err := h.Ledger.Transition(ctx, damage.ID, fleet.StatusAutorizado, fleet.RoleManager); err != nil {
		return err
	}

	fineAmount, _ := fleet.ParseMoney("195.23")
	_, _, err = h.Ledger.RecordFine(ctx, vid, today.AddDays(-5), fineAmount, "excesso de velocidade")
	return err
}

func loadMileageScenario(ctx context.Context, h *Handler) error {
	vid, err := seedScenarioVehicle(ctx, h, "BRA-9Q03", "Fiorino Furgão", 88300)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	readings := []fleet.MileageReading{
		{VehicleID: vid, Value: 88950, Source: fleet.SourceInspection, RecordedAt: now.Add(-48 * time.Hour)},
		{VehicleID: vid, Value: 89400, Source: fleet.SourceServiceNote, RecordedAt: now.Add(-24 * time.Hour)},
		{VehicleID: vid, Value: 89120, Source: fleet.SourceInspection, RecordedAt: now},
	}
	for _, r := range readings {
		if _, err := h.Mileage.RecordReading(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
