/*
booking.go - Interval overlap resolution and atomic contract booking

PURPOSE:
  Prevents double-booking a vehicle across overlapping date ranges.

  Resolver is pure read: given vehicles and a range it decides conflicts
  and computes availability. BookingService wraps the resolver and the
  contract write in one store transaction so that the check and the insert
  cannot be separated by a concurrent writer.

OVERLAP SEMANTICS:
  Boundaries are inclusive on both ends: existing.start <= end AND
  existing.end >= start. A contract ending the day another begins is a
  conflict. See DateRange.Overlaps.

RACE CLOSURE:
  Two concurrent bookings for the same vehicle/overlapping window must not
  both succeed. CreateContract runs check+insert inside TxStore.WithTx;
  the second writer re-runs the check against the committed state and
  fails deterministically with ConflictError.

SEE ALSO:
  - date.go: DateRange.Overlaps
  - store.go: TxStore.WithTx contract
*/
package fleet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// RESOLVER - Pure conflict/availability reads
// =============================================================================

// ConflictCheck is the result of CheckConflicts: the union of Ativo
// contracts whose periods overlap the proposed range on any of the vehicles.
type ConflictCheck struct {
	HasConflict bool
	Conflicts   []Contract
}

type Resolver struct {
	Contracts ContractStore
	Vehicles  VehicleStore
}

// CheckConflicts scans Ativo contracts assigned to each vehicle, excluding
// excludeContractID (the contract being edited), and applies the inclusive
// overlap test. The returned conflicts are deduplicated across the vehicle
// set. Pure read; no side effects.
func (r *Resolver) CheckConflicts(ctx context.Context, vehicleIDs []VehicleID, rng DateRange, excludeContractID *ContractID) (*ConflictCheck, error) {
	if !rng.Valid() {
		return nil, &ValidationError{Field: "period", Message: "start date must not be after end date"}
	}
	if len(vehicleIDs) == 0 {
		return nil, &ValidationError{Field: "vehicles", Message: "at least one vehicle is required"}
	}

	seen := make(map[ContractID]bool)
	result := &ConflictCheck{}

	for _, vid := range vehicleIDs {
		actives, err := r.Contracts.ActiveContractsForVehicle(ctx, vid)
		if err != nil {
			return nil, err
		}
		for _, c := range actives {
			if excludeContractID != nil && c.ID == *excludeContractID {
				continue
			}
			if seen[c.ID] {
				continue
			}
			if c.Period.Overlaps(rng) {
				seen[c.ID] = true
				result.Conflicts = append(result.Conflicts, c)
			}
		}
	}

	result.HasConflict = len(result.Conflicts) > 0
	return result, nil
}

// AvailableVehicles returns vehicles whose status is not Inativo and which
// have no conflicting Ativo contract over the range.
func (r *Resolver) AvailableVehicles(ctx context.Context, rng DateRange, excludeContractID *ContractID) ([]Vehicle, error) {
	if !rng.Valid() {
		return nil, &ValidationError{Field: "period", Message: "start date must not be after end date"}
	}

	all, err := r.Vehicles.ListVehicles(ctx)
	if err != nil {
		return nil, err
	}

	var available []Vehicle
	for _, v := range all {
		if v.Status == VehicleInactive {
			continue
		}
		check, err := r.CheckConflicts(ctx, []VehicleID{v.ID}, rng, excludeContractID)
		if err != nil {
			return nil, err
		}
		if !check.HasConflict {
			available = append(available, v)
		}
	}
	return available, nil
}

// =============================================================================
// BOOKING SERVICE - Atomic contract create/update
// =============================================================================

// ContractInput is the validated payload for creating or replacing a
// contract booking.
type ContractInput struct {
	CustomerID CustomerID
	Vehicles   []VehicleAssignment
	Period     DateRange
}

func (in *ContractInput) validate() error {
	if in.CustomerID == "" {
		return &ValidationError{Field: "customer_id", Message: "required"}
	}
	if len(in.Vehicles) == 0 {
		return &ValidationError{Field: "vehicles", Message: "at least one vehicle assignment is required"}
	}
	for _, a := range in.Vehicles {
		if a.VehicleID == "" {
			return &ValidationError{Field: "vehicles", Message: "vehicle id is required"}
		}
		if a.DailyRate.IsNegative() {
			return &ValidationError{Field: "daily_rate", Message: "must not be negative"}
		}
	}
	if !in.Period.Valid() {
		return &ValidationError{Field: "period", Message: "start date must not be after end date"}
	}
	return nil
}

type BookingService struct {
	Store TxStore
	Log   *zap.Logger
}

func NewBookingService(store TxStore, log *zap.Logger) *BookingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingService{Store: store, Log: log}
}

func (b *BookingService) vehicleIDs(in ContractInput) []VehicleID {
	ids := make([]VehicleID, 0, len(in.Vehicles))
	for _, a := range in.Vehicles {
		ids = append(ids, a.VehicleID)
	}
	return ids
}

// CreateContract validates the booking, then runs the conflict check and the
// insert in one transaction. On overlap it fails with ConflictError; it is
// never retried (retrying would mask the deterministic failure).
func (b *BookingService) CreateContract(ctx context.Context, in ContractInput) (*Contract, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	contract := Contract{
		ID:         ContractID(uuid.NewString()),
		CustomerID: in.CustomerID,
		Vehicles:   in.Vehicles,
		Period:     in.Period,
		Status:     ContractActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := b.Store.WithTx(ctx, func(s Store) error {
		resolver := &Resolver{Contracts: s, Vehicles: s}
		check, err := resolver.CheckConflicts(ctx, b.vehicleIDs(in), in.Period, nil)
		if err != nil {
			return err
		}
		if check.HasConflict {
			return &ConflictError{Range: in.Period, Conflicts: check.Conflicts}
		}
		return s.SaveContract(ctx, contract)
	})
	if err != nil {
		return nil, err
	}

	b.Log.Info("contract created",
		zap.String("contract_id", string(contract.ID)),
		zap.String("customer_id", string(contract.CustomerID)),
		zap.String("period", contract.Period.String()))
	return &contract, nil
}

// UpdateContract replaces the booking of an existing Ativo contract. The
// contract under edit is excluded from its own conflict check.
func (b *BookingService) UpdateContract(ctx context.Context, id ContractID, in ContractInput) (*Contract, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var updated Contract
	err := b.Store.WithTx(ctx, func(s Store) error {
		existing, err := s.GetContract(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return &NotFoundError{Kind: "contract", ID: string(id)}
		}
		if existing.Status != ContractActive {
			return &ValidationError{Field: "status", Message: "only Ativo contracts can be edited"}
		}

		resolver := &Resolver{Contracts: s, Vehicles: s}
		check, err := resolver.CheckConflicts(ctx, b.vehicleIDs(in), in.Period, &id)
		if err != nil {
			return err
		}
		if check.HasConflict {
			return &ConflictError{Range: in.Period, Conflicts: check.Conflicts}
		}

		updated = *existing
		updated.CustomerID = in.CustomerID
		updated.Vehicles = in.Vehicles
		updated.Period = in.Period
		updated.UpdatedAt = time.Now().UTC()
		return s.SaveContract(ctx, updated)
	})
	if err != nil {
		return nil, err
	}

	b.Log.Info("contract updated", zap.String("contract_id", string(id)))
	return &updated, nil
}

// CancelContract is the manual Ativo -> Cancelado transition.
func (b *BookingService) CancelContract(ctx context.Context, id ContractID) error {
	existing, err := b.Store.GetContract(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return &NotFoundError{Kind: "contract", ID: string(id)}
	}
	if existing.Status != ContractActive {
		return &ValidationError{Field: "status", Message: "only Ativo contracts can be canceled"}
	}
	if err := b.Store.UpdateContractStatus(ctx, id, ContractCanceled); err != nil {
		return err
	}
	b.Log.Info("contract canceled", zap.String("contract_id", string(id)))
	return nil
}

// FinalizeExpired flips Ativo contracts whose end date has passed to
// Finalizado. Driven by the scheduler; idempotent.
func (b *BookingService) FinalizeExpired(ctx context.Context, today Date) (int, error) {
	actives, err := b.Store.ListContractsByStatus(ctx, ContractActive)
	if err != nil {
		return 0, err
	}

	finalized := 0
	for _, c := range actives {
		if c.Period.End.Before(today) {
			if err := b.Store.UpdateContractStatus(ctx, c.ID, ContractFinalized); err != nil {
				return finalized, err
			}
			finalized++
		}
	}
	if finalized > 0 {
		b.Log.Info("expired contracts finalized", zap.Int("count", finalized))
	}
	return finalized, nil
}
