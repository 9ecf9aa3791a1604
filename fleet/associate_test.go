package fleet_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frotaops/fleet-engine/fleet"
	store "github.com/frotaops/fleet-engine/fleet/store"
)

func newAssociator(t *testing.T) (*fleet.Associator, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return fleet.NewAssociator(mem, mem, mem, nil), mem
}

func addContract(t *testing.T, mem *store.Memory, id fleet.ContractID, customerID fleet.CustomerID, vehicleID fleet.VehicleID, start, end fleet.Date, status fleet.ContractStatus) {
	t.Helper()
	err := mem.SaveContract(context.Background(), fleet.Contract{
		ID:         id,
		CustomerID: customerID,
		Vehicles:   []fleet.VehicleAssignment{{VehicleID: vehicleID, DailyRate: money("120.00")}},
		Period:     rng(start, end),
		Status:     status,
	})
	require.NoError(t, err)
}

// =============================================================================
// RESOLUTION
// =============================================================================

func TestResolve_DateInsideContractPeriod(t *testing.T) {
	// GIVEN: an Ativo contract covering 2025-03-01 .. 2025-03-31
	// WHEN: resolving a fine dated 2025-03-15 for that vehicle
	// THEN: the contract and its customer are matched

	assoc, mem := newAssociator(t)
	ctx := context.Background()
	addContract(t, mem, "c-1", "cust-1", "v-1", d(2025, time.March, 1), d(2025, time.March, 31), fleet.ContractActive)

	match, warning, err := assoc.Resolve(ctx, "v-1", d(2025, time.March, 15))
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Nil(t, warning)
	assert.Equal(t, fleet.ContractID("c-1"), match.ContractID)
	assert.Equal(t, fleet.CustomerID("cust-1"), match.CustomerID)
}

func TestResolve_DateOutsideAnyContract(t *testing.T) {
	assoc, mem := newAssociator(t)
	ctx := context.Background()
	addContract(t, mem, "c-1", "cust-1", "v-1", d(2025, time.March, 1), d(2025, time.March, 31), fleet.ContractActive)

	match, warning, err := assoc.Resolve(ctx, "v-1", d(2025, time.April, 10))
	require.NoError(t, err)
	assert.Nil(t, match)
	assert.Nil(t, warning)
}

func TestResolve_CanceledContractDoesNotMatch(t *testing.T) {
	assoc, mem := newAssociator(t)
	addContract(t, mem, "c-1", "cust-1", "v-1", d(2025, time.March, 1), d(2025, time.March, 31), fleet.ContractCanceled)

	match, _, err := assoc.Resolve(context.Background(), "v-1", d(2025, time.March, 15))
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestResolve_MultipleMatchesWarnsAndPicksEarliestStart(t *testing.T) {
	// Two Ativo contracts covering the same day should never exist; when
	// they do, resolution picks the one starting first and reports both.

	assoc, mem := newAssociator(t)
	addContract(t, mem, "c-late", "cust-2", "v-1", d(2025, time.March, 10), d(2025, time.March, 31), fleet.ContractActive)
	addContract(t, mem, "c-early", "cust-1", "v-1", d(2025, time.March, 1), d(2025, time.March, 20), fleet.ContractActive)

	match, warning, err := assoc.Resolve(context.Background(), "v-1", d(2025, time.March, 15))
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, fleet.ContractID("c-early"), match.ContractID)

	require.NotNil(t, warning)
	assert.Equal(t, fleet.VehicleID("v-1"), warning.VehicleID)
	assert.ElementsMatch(t, []fleet.ContractID{"c-early", "c-late"}, warning.Contracts)
}

// =============================================================================
// ATTACHMENT
// =============================================================================

func TestAssociateFine_AttachesAndPersists(t *testing.T) {
	assoc, mem := newAssociator(t)
	ctx := context.Background()
	addContract(t, mem, "c-1", "cust-1", "v-1", d(2025, time.March, 1), d(2025, time.March, 31), fleet.ContractActive)

	fine := fleet.Fine{
		ID: "f-1", VehicleID: "v-1",
		InfractionDate: d(2025, time.March, 12),
		Amount:         money("130.16"),
		Status:         fleet.StatusPendente,
	}
	require.NoError(t, mem.InsertFine(ctx, fine))

	warning, err := assoc.AssociateFine(ctx, &fine)
	require.NoError(t, err)
	assert.Nil(t, warning)
	require.NotNil(t, fine.ContractID)
	assert.Equal(t, fleet.ContractID("c-1"), *fine.ContractID)

	stored, err := mem.GetFine(ctx, "f-1")
	require.NoError(t, err)
	require.NotNil(t, stored.CustomerID)
	assert.Equal(t, fleet.CustomerID("cust-1"), *stored.CustomerID)
}

func TestReprocess_AttachesBackfilledRecords(t *testing.T) {
	// GIVEN: an entry and a fine created before their contract existed
	// WHEN: the contract is backfilled and Reprocess runs
	// THEN: both get attached; a second run attaches nothing

	assoc, mem := newAssociator(t)
	ctx := context.Background()

	require.NoError(t, mem.InsertEntry(ctx, fleet.LedgerEntry{
		ID: "e-1", VehicleID: "v-1",
		Category: fleet.CategoryAvaria, Origin: fleet.OriginPatio,
		Status: fleet.StatusPendente, Date: d(2025, time.March, 5),
		Active: true,
	}))
	require.NoError(t, mem.InsertFine(ctx, fleet.Fine{
		ID: "f-1", VehicleID: "v-1",
		InfractionDate: d(2025, time.March, 8),
		Amount:         money("88.38"),
		Status:         fleet.StatusPendente,
	}))

	addContract(t, mem, "c-1", "cust-1", "v-1", d(2025, time.March, 1), d(2025, time.March, 31), fleet.ContractActive)

	result, err := assoc.Reprocess(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attached)
	assert.Empty(t, result.Warnings)

	entry, err := mem.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	require.NotNil(t, entry.ContractID)
	assert.Equal(t, fleet.ContractID("c-1"), *entry.ContractID)

	again, err := assoc.Reprocess(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Attached)
}
