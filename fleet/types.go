/*
Package fleet provides the booking/billing consistency engine for a rental
fleet back office.

PURPOSE:
  This package contains the four tightly-coupled behaviors that have real
  invariants and failure modes:
  - Interval Overlap Resolver: booking conflicts and availability
  - Mileage Aggregator: authoritative mileage from multiple sources
  - Ledger State Machine: cost/charge entries with enforced transitions
  - Temporal Association Engine: ledger entry -> contract/customer linking

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal-backed amount (never float)
  - Vehicle/Contract/LedgerEntry/Fine: the core entities
  - Typed enum strings with Parse functions that reject unknown values

DESIGN PRINCIPLES:
  1. Immutability: a ledger entry's fields never change after creation,
     except status, attachment fields, and a to-define amount resolution
  2. Precision: uses decimal.Decimal for all monetary amounts
  3. Type safety: strong typing for IDs and enum values; unknown enum
     strings are rejected at the deserialization boundary

SEE ALSO:
  - booking.go: conflict detection and atomic contract creation
  - ledger.go: entry creation and status transitions
  - associate.go: temporal contract/customer association
  - mileage.go: mileage aggregation
*/
package fleet

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal-backed monetary amount
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money          { return Money{Value: decimal.NewFromFloat(value)} }
func NewMoneyFromInt(value int64) Money     { return Money{Value: decimal.NewFromInt(value)} }
func MoneyFromDecimal(d decimal.Decimal) Money { return Money{Value: d} }

// ParseMoney parses a decimal string (e.g. "150.00").
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, &ValidationError{Field: "amount", Message: "invalid amount: " + s}
	}
	return Money{Value: d}, nil
}

func (m Money) Add(o Money) Money       { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) IsZero() bool            { return m.Value.IsZero() }
func (m Money) IsNegative() bool        { return m.Value.IsNegative() }
func (m Money) Equal(o Money) bool      { return m.Value.Equal(o.Value) }
func (m Money) String() string          { return m.Value.StringFixed(2) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type VehicleID string
type ContractID string
type CustomerID string
type EntryID string
type FineID string

// =============================================================================
// ENUMS - Typed status/origin/category strings
// =============================================================================
// All Parse functions reject unknown values with ValidationError. Loosely
// typed records from the store must pass through these at the boundary.

type VehicleStatus string

const (
	VehicleAvailable   VehicleStatus = "Disponível"
	VehicleInUse       VehicleStatus = "Em Uso"
	VehicleMaintenance VehicleStatus = "Manutenção"
	VehicleInactive    VehicleStatus = "Inativo"
)

func ParseVehicleStatus(s string) (VehicleStatus, error) {
	switch VehicleStatus(s) {
	case VehicleAvailable, VehicleInUse, VehicleMaintenance, VehicleInactive:
		return VehicleStatus(s), nil
	}
	return "", &ValidationError{Field: "vehicle_status", Message: "unknown vehicle status: " + s}
}

type ContractStatus string

const (
	ContractActive    ContractStatus = "Ativo"
	ContractFinalized ContractStatus = "Finalizado"
	ContractCanceled  ContractStatus = "Cancelado"
)

func ParseContractStatus(s string) (ContractStatus, error) {
	switch ContractStatus(s) {
	case ContractActive, ContractFinalized, ContractCanceled:
		return ContractStatus(s), nil
	}
	return "", &ValidationError{Field: "contract_status", Message: "unknown contract status: " + s}
}

type EntryStatus string

const (
	StatusPendente   EntryStatus = "Pendente"
	StatusAutorizado EntryStatus = "Autorizado"
	StatusPago       EntryStatus = "Pago"
)

func ParseEntryStatus(s string) (EntryStatus, error) {
	switch EntryStatus(s) {
	case StatusPendente, StatusAutorizado, StatusPago:
		return EntryStatus(s), nil
	}
	return "", &ValidationError{Field: "status", Message: "unknown entry status: " + s}
}

type Origin string

const (
	OriginManual     Origin = "Manual"
	OriginPatio      Origin = "Patio"
	OriginManutencao Origin = "Manutencao"
	OriginSistema    Origin = "Sistema"
	OriginCompras    Origin = "Compras"
)

func ParseOrigin(s string) (Origin, error) {
	switch Origin(s) {
	case OriginManual, OriginPatio, OriginManutencao, OriginSistema, OriginCompras:
		return Origin(s), nil
	}
	return "", &ValidationError{Field: "origin", Message: "unknown origin: " + s}
}

// Automatic reports whether the origin is a subsystem (not a human typing
// the entry in). Automatic entries are immutable and cannot be hard-deleted.
func (o Origin) Automatic() bool { return o != OriginManual }

type Category string

const (
	CategoryAvaria   Category = "Avaria"
	CategoryMulta    Category = "Multa"
	CategoryPecas    Category = "Peças"
	CategoryCompra   Category = "Compra"
	CategoryCobranca Category = "Cobrança"
	CategoryDiversos Category = "Diversos"
)

func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryAvaria, CategoryMulta, CategoryPecas, CategoryCompra, CategoryCobranca, CategoryDiversos:
		return Category(s), nil
	}
	return "", &ValidationError{Field: "category", Message: "unknown category: " + s}
}

// DeptCobranca marks entries consumed by the billing/collection view.
const DeptCobranca = "Cobrança"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleOperator Role = "operator"
	RoleSystem   Role = "system"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleManager, RoleOperator, RoleSystem:
		return Role(s), nil
	}
	return "", &ValidationError{Field: "role", Message: "unknown role: " + s}
}

type ReadingSource string

const (
	SourceInspection  ReadingSource = "inspection"
	SourceServiceNote ReadingSource = "service_note"
)

// ReadingSources lists every source the aggregator consults, in scan order.
var ReadingSources = []ReadingSource{SourceInspection, SourceServiceNote}

func ParseReadingSource(s string) (ReadingSource, error) {
	switch ReadingSource(s) {
	case SourceInspection, SourceServiceNote:
		return ReadingSource(s), nil
	}
	return "", &ValidationError{Field: "source", Message: "unknown reading source: " + s}
}

// =============================================================================
// ENTITIES
// =============================================================================

type Vehicle struct {
	ID             VehicleID
	Plate          string
	Model          string
	Status         VehicleStatus
	InitialMileage int
	// StoredMileage is the last published aggregate. It only moves forward;
	// it is the degraded-mode fallback when reading sources are unreachable.
	StoredMileage int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// VehicleAssignment binds one vehicle to a contract at a daily rate.
type VehicleAssignment struct {
	VehicleID VehicleID
	DailyRate Money
}

type Contract struct {
	ID         ContractID
	CustomerID CustomerID
	Vehicles   []VehicleAssignment
	Period     DateRange
	Status     ContractStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Covers reports whether the contract is Ativo and its period contains d.
func (c *Contract) Covers(d Date) bool {
	return c.Status == ContractActive && c.Period.Contains(d)
}

// AssignedTo reports whether the contract includes the given vehicle.
func (c *Contract) AssignedTo(id VehicleID) bool {
	for _, a := range c.Vehicles {
		if a.VehicleID == id {
			return true
		}
	}
	return false
}

// LedgerEntry is a cost/charge record. Once created, only Status, the
// attachment fields (ContractID/CustomerID, set by the association engine),
// a to-define Amount resolution, and the billing reference may change.
type LedgerEntry struct {
	ID          EntryID
	Category    Category
	VehicleID   VehicleID
	Description string
	Amount      Money
	Date        Date
	Status      EntryStatus
	Origin      Origin
	ContractID  *ContractID
	CustomerID  *CustomerID
	Department  string
	// BillingRef is set by GenerateBilling when this entry is rolled into a
	// billing entry; a non-empty value excludes it from future runs.
	BillingRef string
	// Active is false after a delete degraded to deactivation because other
	// records still reference the entry.
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToDefine reports the "amount pending a later quote" flag for display:
// created with amount 0 and still Pendente.
func (e *LedgerEntry) ToDefine() bool {
	return e.Amount.IsZero() && e.Status == StatusPendente
}

// Fine mirrors the ledger entry lifecycle but is always user-entered.
type Fine struct {
	ID             FineID
	VehicleID      VehicleID
	InfractionDate Date
	Amount         Money
	Status         EntryStatus
	Description    string
	ContractID     *ContractID
	CustomerID     *CustomerID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MileageReading is a fact carried by an originating record (inspection or
// service note); readings are not independently owned.
type MileageReading struct {
	VehicleID  VehicleID
	Value      int
	Source     ReadingSource
	RecordedAt time.Time
}
