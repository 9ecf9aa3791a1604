/*
store.go - Persistence interfaces for the fleet engine

PURPOSE:
  Defines the boundary between the engine and the database. Implementations:
  - store/sqlite: production SQLite
  - fleet/store (memory): in-memory for tests

TRANSACTIONAL BOUNDARY:
  TxStore.WithTx exists for the one critical correctness requirement of this
  system: conflict-check and contract write MUST happen inside a single
  transaction. A check-then-write outside WithTx is a race - two concurrent
  bookings for the same vehicle can both pass the check.

LEDGER MUTATION CONTRACT:
  The ledger tables expose no general update. The only mutations are:
  - UpdateEntryStatus (driven by the state machine, ledger.go)
  - AttachEntry / AttachFine (set by the association engine)
  - ResolveEntryAmount (to-define amount, once, while Pendente)
  - MarkBilled (billing reference, set by GenerateBilling)
  - DeleteEntry / DeactivateEntry (Manual-origin removal and its fallback)
  Everything else is immutable after insert.
*/
package fleet

import "context"

// =============================================================================
// DIRECTORY STORES - Read/write access per entity
// =============================================================================

type VehicleStore interface {
	GetVehicle(ctx context.Context, id VehicleID) (*Vehicle, error)
	ListVehicles(ctx context.Context) ([]Vehicle, error)
	SaveVehicle(ctx context.Context, v Vehicle) error

	// PublishMileage records a newly computed aggregate. Implementations
	// must guarantee the stored value never decreases, even under
	// concurrent recomputes racing a fresh reading write.
	PublishMileage(ctx context.Context, id VehicleID, value int) error
}

type ContractStore interface {
	GetContract(ctx context.Context, id ContractID) (*Contract, error)
	// ActiveContractsForVehicle returns every Ativo contract with the
	// vehicle among its assignments. Interval logic stays in the engine.
	ActiveContractsForVehicle(ctx context.Context, id VehicleID) ([]Contract, error)
	SaveContract(ctx context.Context, c Contract) error
	UpdateContractStatus(ctx context.Context, id ContractID, status ContractStatus) error
	ListContractsByStatus(ctx context.Context, status ContractStatus) ([]Contract, error)
}

// =============================================================================
// LEDGER STORE
// =============================================================================

// EntryFilter narrows ListEntries. Nil/zero fields mean "any".
type EntryFilter struct {
	VehicleID  *VehicleID
	ContractID *ContractID
	Statuses   []EntryStatus
	Origins    []Origin
	Department string
	Category   *Category
	Unbilled   bool // only entries with no billing reference
	Unattached bool // only entries with no contract attached
	HasCustomer bool
}

type LedgerStore interface {
	InsertEntry(ctx context.Context, e LedgerEntry) error
	GetEntry(ctx context.Context, id EntryID) (*LedgerEntry, error)
	ListEntries(ctx context.Context, f EntryFilter) ([]LedgerEntry, error)

	UpdateEntryStatus(ctx context.Context, id EntryID, status EntryStatus) error
	AttachEntry(ctx context.Context, id EntryID, contractID ContractID, customerID CustomerID) error
	ResolveEntryAmount(ctx context.Context, id EntryID, amount Money) error
	MarkBilled(ctx context.Context, ids []EntryID, billingRef string) error

	// DeleteEntry hard-deletes. Returns ErrEntryReferenced if other records
	// still point at the entry; the caller degrades to DeactivateEntry.
	DeleteEntry(ctx context.Context, id EntryID) error
	DeactivateEntry(ctx context.Context, id EntryID) error
}

type FineStore interface {
	InsertFine(ctx context.Context, f Fine) error
	GetFine(ctx context.Context, id FineID) (*Fine, error)
	ListFines(ctx context.Context) ([]Fine, error)
	UpdateFineStatus(ctx context.Context, id FineID, status EntryStatus) error
	AttachFine(ctx context.Context, id FineID, contractID ContractID, customerID CustomerID) error
}

// =============================================================================
// MILEAGE READINGS
// =============================================================================

type ReadingStore interface {
	InsertReading(ctx context.Context, r MileageReading) error

	// MaxReading returns the highest value recorded for the vehicle by the
	// given source, and whether any reading exists. An error here puts the
	// aggregator in degraded mode; it must not fail the caller.
	MaxReading(ctx context.Context, id VehicleID, source ReadingSource) (int, bool, error)
}

// =============================================================================
// COMPOSITE + TRANSACTIONAL STORE
// =============================================================================

// Store is everything the engine needs from persistence.
type Store interface {
	VehicleStore
	ContractStore
	LedgerStore
	FineStore
	ReadingStore
}

// TxStore adds the transactional boundary.
type TxStore interface {
	Store

	// WithTx executes fn atomically. If fn returns an error the transaction
	// is rolled back. Implementations serialize writers, so a conflict check
	// inside fn cannot race a concurrent contract insert.
	WithTx(ctx context.Context, fn func(Store) error) error
}
