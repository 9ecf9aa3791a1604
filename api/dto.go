/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

WIRE CONVENTIONS:
  - Dates travel as "YYYY-MM-DD" strings
  - Money travels as decimal strings ("150.00"), never floats
  - Enum values travel verbatim (statuses and categories are pt-BR domain
    terms: "Pendente", "Cobrança", ...)

VALIDATION:
  Struct tags are checked with go-playground/validator before any parsing.
  Domain rules (overlap, transitions, roles) stay in the fleet package.

SEE ALSO:
  - handlers.go: Uses these types
  - fleet/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/frotaops/fleet-engine/fleet"
)

var validate = validator.New()

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// VehicleDTO represents a vehicle in API responses.
type VehicleDTO struct {
	ID             string `json:"id"`
	Plate          string `json:"plate"`
	Model          string `json:"model,omitempty"`
	Status         string `json:"status"`
	InitialMileage int    `json:"initial_mileage"`
	Mileage        int    `json:"mileage"`
	CreatedAt      string `json:"created_at,omitempty"`
}

// CreateVehicleRequest is the request to register a vehicle.
type CreateVehicleRequest struct {
	Plate          string `json:"plate" validate:"required"`
	Model          string `json:"model"`
	Status         string `json:"status"`
	InitialMileage int    `json:"initial_mileage" validate:"gte=0"`
}

// AssignmentDTO binds one vehicle to a contract at a daily rate.
type AssignmentDTO struct {
	VehicleID string `json:"vehicle_id" validate:"required"`
	DailyRate string `json:"daily_rate" validate:"required"`
}

// ContractDTO represents a contract booking in API responses.
type ContractDTO struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Vehicles   []AssignmentDTO `json:"vehicles"`
	StartDate  string          `json:"start_date"`
	EndDate    string          `json:"end_date"`
	Status     string          `json:"status"`
	CreatedAt  string          `json:"created_at,omitempty"`
}

// ContractRequest is the request to create or replace a contract booking.
type ContractRequest struct {
	CustomerID string          `json:"customer_id" validate:"required"`
	Vehicles   []AssignmentDTO `json:"vehicles" validate:"required,min=1,dive"`
	StartDate  string          `json:"start_date" validate:"required"`
	EndDate    string          `json:"end_date" validate:"required"`
}

// ConflictCheckRequest probes availability without writing anything.
type ConflictCheckRequest struct {
	VehicleIDs []string `json:"vehicle_ids" validate:"required,min=1"`
	StartDate  string   `json:"start_date" validate:"required"`
	EndDate    string   `json:"end_date" validate:"required"`
	// ExcludeContractID removes the contract being edited from the check.
	ExcludeContractID *string `json:"exclude_contract_id,omitempty"`
}

// ConflictCheckDTO is the result of a conflict probe.
type ConflictCheckDTO struct {
	HasConflict bool          `json:"has_conflict"`
	Conflicts   []ContractDTO `json:"conflicts"`
}

// EntryDTO represents a ledger entry in API responses.
type EntryDTO struct {
	ID          string  `json:"id"`
	Category    string  `json:"category"`
	VehicleID   string  `json:"vehicle_id"`
	Description string  `json:"description"`
	Amount      string  `json:"amount"`
	ToDefine    bool    `json:"to_define"`
	Date        string  `json:"date"`
	Status      string  `json:"status"`
	Origin      string  `json:"origin"`
	ContractID  *string `json:"contract_id,omitempty"`
	CustomerID  *string `json:"customer_id,omitempty"`
	Department  string  `json:"department,omitempty"`
	BillingRef  string  `json:"billing_ref,omitempty"`
	Active      bool    `json:"active"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

// CreateEntryRequest is the request to create a manual ledger entry.
type CreateEntryRequest struct {
	Category    string `json:"category" validate:"required"`
	VehicleID   string `json:"vehicle_id" validate:"required"`
	Description string `json:"description" validate:"required"`
	// Amount "0" or "0.00" creates a to-define entry.
	Amount     string `json:"amount" validate:"required"`
	Date       string `json:"date" validate:"required"`
	Department string `json:"department"`
}

// TransitionRequest moves an entry or fine to a new status.
type TransitionRequest struct {
	Status string `json:"status" validate:"required"`
}

// ResolveAmountRequest sets the amount of a to-define entry.
type ResolveAmountRequest struct {
	Amount string `json:"amount" validate:"required"`
}

// DeleteEntryDTO reports whether the delete degraded to deactivation.
type DeleteEntryDTO struct {
	Deleted     bool `json:"deleted"`
	Deactivated bool `json:"deactivated"`
}

// FineDTO represents a fine in API responses.
type FineDTO struct {
	ID             string  `json:"id"`
	VehicleID      string  `json:"vehicle_id"`
	InfractionDate string  `json:"infraction_date"`
	Amount         string  `json:"amount"`
	Status         string  `json:"status"`
	Description    string  `json:"description,omitempty"`
	ContractID     *string `json:"contract_id,omitempty"`
	CustomerID     *string `json:"customer_id,omitempty"`
	CreatedAt      string  `json:"created_at,omitempty"`
}

// CreateFineRequest is the request to register a fine.
type CreateFineRequest struct {
	VehicleID      string `json:"vehicle_id" validate:"required"`
	InfractionDate string `json:"infraction_date" validate:"required"`
	Amount         string `json:"amount" validate:"required"`
	Description    string `json:"description"`
}

// DamageRequest records an inspection damage event (to-define amount).
type DamageRequest struct {
	VehicleID string `json:"vehicle_id" validate:"required"`
	Date      string `json:"date" validate:"required"`
	Severity  string `json:"severity"`
}

// PartsRequest records parts consumed by a service order.
type PartsRequest struct {
	VehicleID   string `json:"vehicle_id" validate:"required"`
	Date        string `json:"date" validate:"required"`
	Description string `json:"description" validate:"required"`
	Cost        string `json:"cost" validate:"required"`
}

// PurchaseRequest records a purchase charged to a vehicle.
type PurchaseRequest struct {
	VehicleID   string `json:"vehicle_id" validate:"required"`
	Date        string `json:"date" validate:"required"`
	Description string `json:"description" validate:"required"`
	Cost        string `json:"cost" validate:"required"`
}

// ReadingRequest records a mileage reading carried by an inspection or a
// service note.
type ReadingRequest struct {
	Value  int    `json:"value" validate:"required,gt=0"`
	Source string `json:"source" validate:"required"`
}

// MileageDTO is the aggregate mileage response.
type MileageDTO struct {
	VehicleID string `json:"vehicle_id"`
	Total     int    `json:"total"`
}

// GenerateBillingRequest narrows a billing run to one contract when set.
type GenerateBillingRequest struct {
	ContractID *string `json:"contract_id,omitempty"`
}

// BillingRunDTO reports what a billing run produced.
type BillingRunDTO struct {
	Entries []EntryDTO `json:"entries"`
	Sources int        `json:"sources"`
}

// WarningDTO surfaces a consistency warning alongside a successful result.
type WarningDTO struct {
	VehicleID string   `json:"vehicle_id"`
	Date      string   `json:"date"`
	Contracts []string `json:"contracts"`
	Message   string   `json:"message"`
}

// ReprocessDTO summarizes a batch re-association run.
type ReprocessDTO struct {
	Attached int          `json:"attached"`
	Warnings []WarningDTO `json:"warnings"`
}

// EntryResponse wraps an entry with its optional warning.
type EntryResponse struct {
	Entry   EntryDTO    `json:"entry"`
	Warning *WarningDTO `json:"warning,omitempty"`
}

// FineResponse wraps a fine with its optional warning.
type FineResponse struct {
	Fine    FineDTO     `json:"fine"`
	Warning *WarningDTO `json:"warning,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toVehicleDTO(v fleet.Vehicle) VehicleDTO {
	return VehicleDTO{
		ID:             string(v.ID),
		Plate:          v.Plate,
		Model:          v.Model,
		Status:         string(v.Status),
		InitialMileage: v.InitialMileage,
		Mileage:        v.StoredMileage,
		CreatedAt:      v.CreatedAt.Format(time.RFC3339),
	}
}

func toContractDTO(c fleet.Contract) ContractDTO {
	assignments := make([]AssignmentDTO, len(c.Vehicles))
	for i, a := range c.Vehicles {
		assignments[i] = AssignmentDTO{
			VehicleID: string(a.VehicleID),
			DailyRate: a.DailyRate.String(),
		}
	}
	return ContractDTO{
		ID:         string(c.ID),
		CustomerID: string(c.CustomerID),
		Vehicles:   assignments,
		StartDate:  c.Period.Start.String(),
		EndDate:    c.Period.End.String(),
		Status:     string(c.Status),
		CreatedAt:  c.CreatedAt.Format(time.RFC3339),
	}
}

func toContractDTOs(cs []fleet.Contract) []ContractDTO {
	dtos := make([]ContractDTO, len(cs))
	for i, c := range cs {
		dtos[i] = toContractDTO(c)
	}
	return dtos
}

func toEntryDTO(e fleet.LedgerEntry) EntryDTO {
	dto := EntryDTO{
		ID:          string(e.ID),
		Category:    string(e.Category),
		VehicleID:   string(e.VehicleID),
		Description: e.Description,
		Amount:      e.Amount.String(),
		ToDefine:    e.ToDefine(),
		Date:        e.Date.String(),
		Status:      string(e.Status),
		Origin:      string(e.Origin),
		Department:  e.Department,
		BillingRef:  e.BillingRef,
		Active:      e.Active,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
	if e.ContractID != nil {
		s := string(*e.ContractID)
		dto.ContractID = &s
	}
	if e.CustomerID != nil {
		s := string(*e.CustomerID)
		dto.CustomerID = &s
	}
	return dto
}

func toEntryDTOs(es []fleet.LedgerEntry) []EntryDTO {
	dtos := make([]EntryDTO, len(es))
	for i, e := range es {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toFineDTO(f fleet.Fine) FineDTO {
	dto := FineDTO{
		ID:             string(f.ID),
		VehicleID:      string(f.VehicleID),
		InfractionDate: f.InfractionDate.String(),
		Amount:         f.Amount.String(),
		Status:         string(f.Status),
		Description:    f.Description,
		CreatedAt:      f.CreatedAt.Format(time.RFC3339),
	}
	if f.ContractID != nil {
		s := string(*f.ContractID)
		dto.ContractID = &s
	}
	if f.CustomerID != nil {
		s := string(*f.CustomerID)
		dto.CustomerID = &s
	}
	return dto
}

func toWarningDTO(w *fleet.ConsistencyWarning) *WarningDTO {
	if w == nil {
		return nil
	}
	contracts := make([]string, len(w.Contracts))
	for i, id := range w.Contracts {
		contracts[i] = string(id)
	}
	return &WarningDTO{
		VehicleID: string(w.VehicleID),
		Date:      w.Date.String(),
		Contracts: contracts,
		Message:   w.Error(),
	}
}
