/*
associate.go - Temporal association of ledger entries and fines

PURPOSE:
  Links a ledger entry (or a fine) to the contract/customer active at its
  reference date: the Ativo contract for the entry's vehicle whose period
  contains the date.

MULTI-MATCH:
  More than one match means the booking non-overlap invariant was violated
  elsewhere. The engine must not silently pick one: it attaches the first
  match (ordered by contract start) AND returns a ConsistencyWarning so the
  condition is visible to operators and tests. Warnings never abort.

INVOCATION:
  - at entry-creation time for automatic entries (ledger.go)
  - for every recorded fine
  - on demand via Reprocess after contracts are backfilled
*/
package fleet

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Match is the contract/customer pair resolved for a vehicle/date.
type Match struct {
	ContractID ContractID
	CustomerID CustomerID
}

type Associator struct {
	Contracts ContractStore
	Ledger    LedgerStore
	Fines     FineStore
	Log       *zap.Logger
}

func NewAssociator(contracts ContractStore, ledger LedgerStore, fines FineStore, log *zap.Logger) *Associator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Associator{Contracts: contracts, Ledger: ledger, Fines: fines, Log: log}
}

// Resolve finds the Ativo contract covering the vehicle at the given date.
// Returns (nil, nil, nil) when nothing covers the date.
func (a *Associator) Resolve(ctx context.Context, vehicleID VehicleID, date Date) (*Match, *ConsistencyWarning, error) {
	actives, err := a.Contracts.ActiveContractsForVehicle(ctx, vehicleID)
	if err != nil {
		return nil, nil, err
	}

	var covering []Contract
	for _, c := range actives {
		if c.Covers(date) {
			covering = append(covering, c)
		}
	}
	if len(covering) == 0 {
		return nil, nil, nil
	}

	sort.Slice(covering, func(i, j int) bool {
		return covering[i].Period.Start.Before(covering[j].Period.Start)
	})

	match := &Match{ContractID: covering[0].ID, CustomerID: covering[0].CustomerID}

	if len(covering) > 1 {
		warning := &ConsistencyWarning{VehicleID: vehicleID, Date: date}
		for _, c := range covering {
			warning.Contracts = append(warning.Contracts, c.ID)
		}
		a.Log.Warn("association found multiple active contracts",
			zap.String("vehicle_id", string(vehicleID)),
			zap.String("date", date.String()),
			zap.Int("contracts", len(covering)))
		return match, warning, nil
	}
	return match, nil, nil
}

// AssociateEntry attaches contract/customer to the entry in place and
// persists the attachment. No covering contract is not an error; the entry
// simply stays unattached.
func (a *Associator) AssociateEntry(ctx context.Context, e *LedgerEntry) (*ConsistencyWarning, error) {
	match, warning, err := a.Resolve(ctx, e.VehicleID, e.Date)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, nil
	}

	if err := a.Ledger.AttachEntry(ctx, e.ID, match.ContractID, match.CustomerID); err != nil {
		return nil, err
	}
	e.ContractID = &match.ContractID
	e.CustomerID = &match.CustomerID
	e.UpdatedAt = time.Now().UTC()
	return warning, nil
}

// AssociateFine attaches contract/customer to a fine using its infraction
// date as the reference date.
func (a *Associator) AssociateFine(ctx context.Context, f *Fine) (*ConsistencyWarning, error) {
	match, warning, err := a.Resolve(ctx, f.VehicleID, f.InfractionDate)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, nil
	}

	if err := a.Fines.AttachFine(ctx, f.ID, match.ContractID, match.CustomerID); err != nil {
		return nil, err
	}
	f.ContractID = &match.ContractID
	f.CustomerID = &match.CustomerID
	f.UpdatedAt = time.Now().UTC()
	return warning, nil
}

// ReprocessResult summarizes a batch re-association run.
type ReprocessResult struct {
	Attached int
	Warnings []ConsistencyWarning
}

// Reprocess re-runs association over every unattached ledger entry and
// fine. Used after contracts are backfilled. Idempotent: already-attached
// records are skipped.
func (a *Associator) Reprocess(ctx context.Context) (*ReprocessResult, error) {
	result := &ReprocessResult{}

	entries, err := a.Ledger.ListEntries(ctx, EntryFilter{Unattached: true})
	if err != nil {
		return nil, err
	}
	for i := range entries {
		e := entries[i]
		warning, err := a.AssociateEntry(ctx, &e)
		if err != nil {
			return result, err
		}
		if e.ContractID != nil {
			result.Attached++
		}
		if warning != nil {
			result.Warnings = append(result.Warnings, *warning)
		}
	}

	fines, err := a.Fines.ListFines(ctx)
	if err != nil {
		return result, err
	}
	for i := range fines {
		f := fines[i]
		if f.ContractID != nil {
			continue
		}
		warning, err := a.AssociateFine(ctx, &f)
		if err != nil {
			return result, err
		}
		if f.ContractID != nil {
			result.Attached++
		}
		if warning != nil {
			result.Warnings = append(result.Warnings, *warning)
		}
	}

	return result, nil
}
