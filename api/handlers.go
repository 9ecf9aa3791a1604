/*
handlers.go - HTTP API handlers for the fleet engine

PURPOSE:
  Exposes the fleet engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Vehicles:
    GET    /api/vehicles                    List vehicles (cached)
    POST   /api/vehicles                    Register vehicle
    GET    /api/vehicles/{id}               Vehicle details
    GET    /api/vehicles/available          Availability for a date range
    GET    /api/vehicles/{id}/mileage       Aggregate mileage
    POST   /api/vehicles/{id}/readings      Record a mileage reading
    POST   /api/vehicles/{id}/recompute     Recompute + publish mileage

  Contracts:
    POST   /api/contracts                   Create booking (atomic check+insert)
    GET    /api/contracts/{id}              Contract details
    PUT    /api/contracts/{id}              Replace booking (self-excluding check)
    POST   /api/contracts/{id}/cancel       Cancel
    POST   /api/contracts/check-conflicts   Probe availability, no writes

  Ledger:
    POST   /api/entries                     Create manual entry
    GET    /api/entries                     List (filterable)
    GET    /api/entries/{id}                Entry details
    POST   /api/entries/{id}/status         Status transition (role-gated)
    POST   /api/entries/{id}/resolve-amount Set a to-define amount
    DELETE /api/entries/{id}                Delete (Manual+admin only)

  Fines:
    POST   /api/fines                       Register fine
    GET    /api/fines                       List fines
    POST   /api/fines/{id}/status           Status transition (role-gated)

  Intake events (originating records):
    POST   /api/events/damage               Inspection damage -> to-define entry
    POST   /api/events/parts                Service parts -> entry
    POST   /api/events/purchases            Purchase -> entry

  Billing:
    POST   /api/billing/generate            Materialize billing entries
    GET    /api/billing/collection          Collection screen view

  Association:
    POST   /api/associations/reprocess      Re-run association on unattached

  Scenarios (dev only):
    GET    /api/scenarios                   List demo scenarios
    POST   /api/scenarios/load              Reset store + load a scenario

ROLE HEADER:
  Mutations on the ledger state machine read X-Actor-Role
  (admin|manager|operator|system). Missing header defaults to operator,
  the least-privileged human role.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: validation errors, invalid input
  - 403: role lacks rights
  - 404: resource not found
  - 409: booking conflict
  - 500: internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - fleet/: Domain logic
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/frotaops/fleet-engine/fleet"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

const vehicleListCacheKey = "vehicles:list"

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   fleet.TxStore
	Booking *fleet.BookingService
	Ledger  *fleet.LedgerService
	Billing *fleet.BillingService
	Mileage *fleet.Aggregator
	Assoc   *fleet.Associator
	Events  *fleet.Events
	Cache   fleet.Cache
	Log     *zap.Logger

	currentScenario string
}

// NewHandler wires the full service graph over the given store.
func NewHandler(store fleet.TxStore, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	events := fleet.NewEvents()
	assoc := fleet.NewAssociator(store, store, store, log)
	cache := fleet.NewTTLCache()

	h := &Handler{
		Store:   store,
		Booking: fleet.NewBookingService(store, log),
		Ledger:  fleet.NewLedgerService(store, assoc, events, log),
		Billing: fleet.NewBillingService(store, log),
		Mileage: fleet.NewAggregator(store, store, events, log),
		Assoc:   assoc,
		Events:  events,
		Cache:   cache,
		Log:     log,
	}

	// Published mileage shows up in the vehicle list; drop the cached copy
	// whenever a recompute lands.
	events.OnMileageUpdated(func(fleet.MileageUpdated) {
		cache.Invalidate(vehicleListCacheKey)
	})
	return h
}

func actorRole(r *http.Request) (fleet.Role, error) {
	raw := r.Header.Get("X-Actor-Role")
	if raw == "" {
		return fleet.RoleOperator, nil
	}
	return fleet.ParseRole(raw)
}

// =============================================================================
// VEHICLE HANDLERS
// =============================================================================

// ListVehicles returns all vehicles. The list is cached briefly; any write
// that changes it invalidates the key.
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.Cache.Get(vehicleListCacheKey); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	vehicles, err := h.Store.ListVehicles(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]VehicleDTO, len(vehicles))
	for i, v := range vehicles {
		dtos[i] = toVehicleDTO(v)
	}
	h.Cache.Set(vehicleListCacheKey, dtos, 30*time.Second)
	writeJSON(w, http.StatusOK, dtos)
}

// GetVehicle returns a single vehicle.
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id := fleet.VehicleID(chi.URLParam(r, "id"))

	v, err := h.Store.GetVehicle(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "Vehicle not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toVehicleDTO(*v))
}

// CreateVehicle registers a vehicle.
func (h *Handler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req CreateVehicleRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	status := fleet.VehicleAvailable
	if req.Status != "" {
		var err error
		status, err = fleet.ParseVehicleStatus(req.Status)
		if err != nil {
			writeDomainError(w, err)
			return
		}
	}

	now := time.Now().UTC()
	v := fleet.Vehicle{
		ID:             fleet.VehicleID(uuid.NewString()),
		Plate:          req.Plate,
		Model:          req.Model,
		Status:         status,
		InitialMileage: req.InitialMileage,
		StoredMileage:  req.InitialMileage,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.Store.SaveVehicle(r.Context(), v); err != nil {
		writeDomainError(w, err)
		return
	}
	h.Cache.Invalidate(vehicleListCacheKey)
	writeJSON(w, http.StatusCreated, toVehicleDTO(v))
}

// AvailableVehicles returns vehicles bookable for ?start=...&end=...
func (h *Handler) AvailableVehicles(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resolver := &fleet.Resolver{Contracts: h.Store, Vehicles: h.Store}
	vehicles, err := resolver.AvailableVehicles(r.Context(), rng, nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]VehicleDTO, len(vehicles))
	for i, v := range vehicles {
		dtos[i] = toVehicleDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMileage returns the aggregate mileage for a vehicle.
func (h *Handler) GetMileage(w http.ResponseWriter, r *http.Request) {
	id := fleet.VehicleID(chi.URLParam(r, "id"))

	total, err := h.Mileage.TotalMileage(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MileageDTO{VehicleID: string(id), Total: total})
}

// RecordReading stores a reading and returns the recomputed aggregate.
func (h *Handler) RecordReading(w http.ResponseWriter, r *http.Request) {
	id := fleet.VehicleID(chi.URLParam(r, "id"))

	var req ReadingRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	total, err := h.Mileage.RecordReading(r.Context(), fleet.MileageReading{
		VehicleID: id,
		Value:     req.Value,
		Source:    fleet.ReadingSource(req.Source),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, MileageDTO{VehicleID: string(id), Total: total})
}

// RecomputeMileage re-runs the aggregate and publishes it.
func (h *Handler) RecomputeMileage(w http.ResponseWriter, r *http.Request) {
	id := fleet.VehicleID(chi.URLParam(r, "id"))

	total, err := h.Mileage.Recompute(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MileageDTO{VehicleID: string(id), Total: total})
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// CreateContract books vehicles for a period. The conflict check and the
// insert run in one transaction; an overlap fails with 409.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req ContractRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	in, err := toContractInput(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	c, err := h.Booking.CreateContract(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractDTO(*c))
}

// GetContract returns a single contract.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	id := fleet.ContractID(chi.URLParam(r, "id"))

	c, err := h.Store.GetContract(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Contract not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(*c))
}

// UpdateContract replaces a booking. The conflict check excludes the
// contract itself, so keeping the same vehicles and dates never conflicts.
func (h *Handler) UpdateContract(w http.ResponseWriter, r *http.Request) {
	id := fleet.ContractID(chi.URLParam(r, "id"))

	var req ContractRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	in, err := toContractInput(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	c, err := h.Booking.UpdateContract(r.Context(), id, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(*c))
}

// CancelContract moves a contract to Cancelado.
func (h *Handler) CancelContract(w http.ResponseWriter, r *http.Request) {
	id := fleet.ContractID(chi.URLParam(r, "id"))

	if err := h.Booking.CancelContract(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckConflicts probes availability without writing anything.
func (h *Handler) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	var req ConflictCheckRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	rng, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	ids := make([]fleet.VehicleID, len(req.VehicleIDs))
	for i, id := range req.VehicleIDs {
		ids[i] = fleet.VehicleID(id)
	}
	var exclude *fleet.ContractID
	if req.ExcludeContractID != nil {
		cid := fleet.ContractID(*req.ExcludeContractID)
		exclude = &cid
	}

	resolver := &fleet.Resolver{Contracts: h.Store, Vehicles: h.Store}
	check, err := resolver.CheckConflicts(r.Context(), ids, rng, exclude)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ConflictCheckDTO{
		HasConflict: check.HasConflict,
		Conflicts:   toContractDTOs(check.Conflicts),
	})
}

func toContractInput(req ContractRequest) (fleet.ContractInput, error) {
	rng, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return fleet.ContractInput{}, err
	}

	assignments := make([]fleet.VehicleAssignment, len(req.Vehicles))
	for i, a := range req.Vehicles {
		rate, err := fleet.ParseMoney(a.DailyRate)
		if err != nil {
			return fleet.ContractInput{}, err
		}
		assignments[i] = fleet.VehicleAssignment{
			VehicleID: fleet.VehicleID(a.VehicleID),
			DailyRate: rate,
		}
	}
	return fleet.ContractInput{
		CustomerID: fleet.CustomerID(req.CustomerID),
		Vehicles:   assignments,
		Period:     rng,
	}, nil
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// CreateEntry creates a manual ledger entry.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	category, err := fleet.ParseCategory(req.Category)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	date, err := fleet.ParseDate(req.Date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	amount, err := fleet.ParseMoney(req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entry, warning, err := h.Ledger.Create(r.Context(), fleet.EntryInput{
		Category:    category,
		VehicleID:   fleet.VehicleID(req.VehicleID),
		Description: req.Description,
		Amount:      amount,
		Date:        date,
		Origin:      fleet.OriginManual,
		Department:  req.Department,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, EntryResponse{Entry: toEntryDTO(*entry), Warning: toWarningDTO(warning)})
}

// GetEntry returns a single ledger entry.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id := fleet.EntryID(chi.URLParam(r, "id"))

	e, err := h.Store.GetEntry(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if e == nil {
		writeError(w, http.StatusNotFound, "Entry not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*e))
}

// ListEntries returns entries filtered by query parameters
// (?vehicle_id=, ?contract_id=, ?status=, ?origin=, ?department=).
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	var filter fleet.EntryFilter
	q := r.URL.Query()

	if v := q.Get("vehicle_id"); v != "" {
		id := fleet.VehicleID(v)
		filter.VehicleID = &id
	}
	if v := q.Get("contract_id"); v != "" {
		id := fleet.ContractID(v)
		filter.ContractID = &id
	}
	if v := q.Get("status"); v != "" {
		st, err := fleet.ParseEntryStatus(v)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		filter.Statuses = []fleet.EntryStatus{st}
	}
	if v := q.Get("origin"); v != "" {
		o, err := fleet.ParseOrigin(v)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		filter.Origins = []fleet.Origin{o}
	}
	filter.Department = q.Get("department")

	entries, err := h.Store.ListEntries(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// TransitionEntry moves an entry through the Pendente/Autorizado/Pago
// lifecycle. The acting role comes from the X-Actor-Role header.
func (h *Handler) TransitionEntry(w http.ResponseWriter, r *http.Request) {
	id := fleet.EntryID(chi.URLParam(r, "id"))

	role, err := actorRole(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req TransitionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	status, err := fleet.ParseEntryStatus(req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entry, err := h.Ledger.Transition(r.Context(), id, status, role)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*entry))
}

// ResolveAmount sets the amount of a to-define entry.
func (h *Handler) ResolveAmount(w http.ResponseWriter, r *http.Request) {
	id := fleet.EntryID(chi.URLParam(r, "id"))

	role, err := actorRole(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req ResolveAmountRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	amount, err := fleet.ParseMoney(req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entry, err := h.Ledger.ResolveAmount(r.Context(), id, amount, role)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(*entry))
}

// DeleteEntry removes a Manual entry (admin only). If the store reports the
// entry as referenced, the delete degrades to deactivation.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := fleet.EntryID(chi.URLParam(r, "id"))

	role, err := actorRole(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	deactivated, err := h.Ledger.Delete(r.Context(), id, role)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteEntryDTO{Deleted: !deactivated, Deactivated: deactivated})
}

// =============================================================================
// FINE HANDLERS
// =============================================================================

// CreateFine registers a fine and associates it with the contract active on
// the infraction date.
func (h *Handler) CreateFine(w http.ResponseWriter, r *http.Request) {
	var req CreateFineRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	date, err := fleet.ParseDate(req.InfractionDate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	amount, err := fleet.ParseMoney(req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	fine, warning, err := h.Ledger.RecordFine(r.Context(), fleet.VehicleID(req.VehicleID), date, amount, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, FineResponse{Fine: toFineDTO(*fine), Warning: toWarningDTO(warning)})
}

// ListFines returns all fines.
func (h *Handler) ListFines(w http.ResponseWriter, r *http.Request) {
	fines, err := h.Store.ListFines(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]FineDTO, len(fines))
	for i, f := range fines {
		dtos[i] = toFineDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TransitionFine moves a fine through the same lifecycle as entries.
func (h *Handler) TransitionFine(w http.ResponseWriter, r *http.Request) {
	id := fleet.FineID(chi.URLParam(r, "id"))

	role, err := actorRole(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req TransitionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	status, err := fleet.ParseEntryStatus(req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	fine, err := h.Ledger.TransitionFine(r.Context(), id, status, role)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFineDTO(*fine))
}

// =============================================================================
// INTAKE EVENT HANDLERS - Originating records
// =============================================================================

// RecordDamage creates a to-define Avaria entry from an inspection.
func (h *Handler) RecordDamage(w http.ResponseWriter, r *http.Request) {
	var req DamageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	date, err := fleet.ParseDate(req.Date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entry, warning, err := h.Ledger.RecordDamage(r.Context(), fleet.VehicleID(req.VehicleID), date, req.Severity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, EntryResponse{Entry: toEntryDTO(*entry), Warning: toWarningDTO(warning)})
}

// RecordParts creates a Peças entry from a service order.
func (h *Handler) RecordParts(w http.ResponseWriter, r *http.Request) {
	var req PartsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	date, err := fleet.ParseDate(req.Date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	cost, err := fleet.ParseMoney(req.Cost)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entry, warning, err := h.Ledger.RecordPartsConsumption(r.Context(), fleet.VehicleID(req.VehicleID), date, req.Description, cost)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, EntryResponse{Entry: toEntryDTO(*entry), Warning: toWarningDTO(warning)})
}

// RecordPurchase creates a Compra entry from a purchase record.
func (h *Handler) RecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	date, err := fleet.ParseDate(req.Date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	cost, err := fleet.ParseMoney(req.Cost)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entry, warning, err := h.Ledger.RecordPurchase(r.Context(), fleet.VehicleID(req.VehicleID), date, req.Description, cost)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, EntryResponse{Entry: toEntryDTO(*entry), Warning: toWarningDTO(warning)})
}

// =============================================================================
// BILLING HANDLERS
// =============================================================================

// GenerateBilling materializes Cobrança entries from authorized/paid
// automatic-origin entries. Safe to re-run.
func (h *Handler) GenerateBilling(w http.ResponseWriter, r *http.Request) {
	var req GenerateBillingRequest
	// Empty body means "all contracts".
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	var contractID *fleet.ContractID
	if req.ContractID != nil {
		cid := fleet.ContractID(*req.ContractID)
		contractID = &cid
	}

	run, err := h.Billing.GenerateBilling(r.Context(), contractID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BillingRunDTO{Entries: toEntryDTOs(run.Entries), Sources: run.Sources})
}

// CollectionView returns the entries the collection screen shows.
func (h *Handler) CollectionView(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Billing.CollectionView(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// =============================================================================
// ASSOCIATION HANDLERS
// =============================================================================

// Reprocess re-runs association over unattached entries and fines.
func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	result, err := h.Assoc.Reprocess(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	warnings := make([]WarningDTO, len(result.Warnings))
	for i := range result.Warnings {
		warnings[i] = *toWarningDTO(&result.Warnings[i])
	}
	writeJSON(w, http.StatusOK, ReprocessDTO{Attached: result.Attached, Warnings: warnings})
}

// =============================================================================
// HELPERS
// =============================================================================

func parseRange(start, end string) (fleet.DateRange, error) {
	s, err := fleet.ParseDate(start)
	if err != nil {
		return fleet.DateRange{}, err
	}
	e, err := fleet.ParseDate(end)
	if err != nil {
		return fleet.DateRange{}, err
	}
	return fleet.NewDateRange(s, e), nil
}

// decodeAndValidate decodes the body into dst and runs struct validation.
// On failure it writes the 400 response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeDomainError maps the fleet error taxonomy to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fleet.ErrConflict):
		writeError(w, http.StatusConflict, "Booking conflict", err)
	case errors.Is(err, fleet.ErrPermission):
		writeError(w, http.StatusForbidden, "Permission denied", err)
	case errors.Is(err, fleet.ErrImmutable):
		writeError(w, http.StatusForbidden, "Immutable field", err)
	case fleet.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case fleet.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
