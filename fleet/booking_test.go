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

// =============================================================================
// TEST HELPERS
// =============================================================================

func newBookingService(t *testing.T) (*fleet.BookingService, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return fleet.NewBookingService(mem, nil), mem
}

func d(year int, month time.Month, day int) fleet.Date {
	return fleet.NewDate(year, month, day)
}

func rng(start, end fleet.Date) fleet.DateRange {
	return fleet.NewDateRange(start, end)
}

func money(s string) fleet.Money {
	m, err := fleet.ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func addVehicle(t *testing.T, mem *store.Memory, id fleet.VehicleID, status fleet.VehicleStatus) {
	t.Helper()
	err := mem.SaveVehicle(context.Background(), fleet.Vehicle{
		ID: id, Plate: "ABC-" + string(id), Status: status,
	})
	require.NoError(t, err)
}

func bookingInput(customerID fleet.CustomerID, vehicleID fleet.VehicleID, start, end fleet.Date) fleet.ContractInput {
	return fleet.ContractInput{
		CustomerID: customerID,
		Vehicles:   []fleet.VehicleAssignment{{VehicleID: vehicleID, DailyRate: money("150.00")}},
		Period:     rng(start, end),
	}
}

// =============================================================================
// OVERLAP RESOLUTION
// =============================================================================

func TestCreateContract_OverlapRejected(t *testing.T) {
	// GIVEN: vehicle booked 2025-01-01 .. 2025-01-10
	// WHEN: booking the same vehicle 2025-01-05 .. 2025-01-15
	// THEN: rejected with ConflictError naming the existing contract

	svc, mem := newBookingService(t)
	ctx := context.Background()
	addVehicle(t, mem, "v-1", fleet.VehicleAvailable)

	first, err := svc.CreateContract(ctx, bookingInput("cust-1", "v-1", d(2025, time.January, 1), d(2025, time.January, 10)))
	require.NoError(t, err)

	_, err = svc.CreateContract(ctx, bookingInput("cust-2", "v-1", d(2025, time.January, 5), d(2025, time.January, 15)))
	require.Error(t, err)

	var conflict *fleet.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, first.ID, conflict.Conflicts[0].ID)
	assert.ErrorIs(t, err, fleet.ErrConflict)
}

func TestCreateContract_AdjacentRangesDoNotConflict(t *testing.T) {
	// GIVEN: vehicle booked 2025-01-01 .. 2025-01-10
	// WHEN: booking 2025-01-11 .. 2025-01-20 (starts the day after)
	// THEN: accepted

	svc, mem := newBookingService(t)
	ctx := context.Background()
	addVehicle(t, mem, "v-1", fleet.VehicleAvailable)

	_, err := svc.CreateContract(ctx, bookingInput("cust-1", "v-1", d(2025, time.January, 1), d(2025, time.January, 10)))
	require.NoError(t, err)

	_, err = svc.CreateContract(ctx, bookingInput("cust-2", "v-1", d(2025, time.January, 11), d(2025, time.January, 20)))
	assert.NoError(t, err)
}

func TestCreateContract_SharedBoundaryDayConflicts(t *testing.T) {
	// GIVEN: vehicle booked 2025-01-01 .. 2025-01-10
	// WHEN: booking 2025-01-10 .. 2025-01-20 (starts the day the first ends)
	// THEN: rejected; boundaries are inclusive on both ends

	svc, mem := newBookingService(t)
	ctx := context.Background()
	addVehicle(t, mem, "v-1", fleet.VehicleAvailable)

	_, err := svc.CreateContract(ctx, bookingInput("cust-1", "v-1", d(2025, time.January, 1), d(2025, time.January, 10)))
	require.NoError(t, err)

	_, err = svc.CreateContract(ctx, bookingInput("cust-2", "v-1", d(2025, time.January, 10), d(2025, time.January, 20)))
	var conflict *fleet.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestCreateContract_InvertedRangeRejected(t *testing.T) {
	svc, mem := newBookingService(t)
	addVehicle(t, mem, "v-1", fleet.VehicleAvailable)

	_, err := svc.CreateContract(context.Background(),
		bookingInput("cust-1", "v-1", d(2025, time.March, 10), d(2025, time.March, 1)))

	var verr *fleet.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "period", verr.Field)
}

func TestCreateContract_ConflictLeavesNoPartialWrite(t *testing.T) {
	// GIVEN: a conflicting booking attempt over two vehicles where only the
	// second vehicle is taken
	// WHEN: the create fails
	// THEN: nothing was written for either vehicle (transaction rollback)

	svc, mem := newBookingService(t)
	ctx := context.Background()
	addVehicle(t, mem, "v-1", fleet.VehicleAvailable)
	addVehicle(t, mem, "v-2", fleet.VehicleAvailable)

	_, err := svc.CreateContract(ctx, bookingInput("cust-1", "v-2", d(2025, time.May, 1), d(2025, time.May, 31)))
	require.NoError(t, err)

	_, err = svc.CreateContract(ctx, fleet.ContractInput{
		CustomerID: "cust-2",
		Vehicles: []fleet.VehicleAssignment{
			{VehicleID: "v-1", DailyRate: money("100.00")},
			{VehicleID: "v-2", DailyRate: money("100.00")},
		},
		Period: rng(d(2025, time.May, 10), d(2025, time.May, 20)),
	})
	require.Error(t, err)

	actives, err := mem.ActiveContractsForVehicle(ctx, "v-1")
	require.NoError(t, err)
	assert.Empty(t, actives, "v-1 must not be booked by the failed create")
}

func TestCanceledContractFreesTheVehicle(t *testing.T) {
	svc, mem := newBookingService(t)
	ctx := context.Background()
	addVehicle(t, mem, "v-1", fleet.VehicleAvailable)

	c, err := svc.CreateContract(ctx, bookingInput("cust-1", "v-1", d(2025, time.June, 1), d(2025, time.June, 30)))
	require.NoError(t, err)
	require.NoError(t, svc.CancelContract(ctx, c.ID))

	_, err = svc.CreateContract(ctx, bookingInput("cust-2", "v-1", d(2025, time.June, 10), d(2025, time.June, 20)))
	assert.NoError(t, err, "canceled contracts do not occupy the vehicle")
}

// =============================================================================
// UPDATE / SELF-EXCLUSION
// =============================================================================

func TestUpdateContract_ExcludesItselfFromConflictCheck(t *testing.T) {
	// GIVEN: an active contract
	// WHEN: editing it while keeping the same vehicle and dates
	// THEN: no conflict against itself

	svc, mem := newBookingService(t)
	ctx := context.Background()
	addVehicle(t, mem, "v-1", fleet.VehicleAvailable)

	c, err := svc.CreateContract(ctx, bookingInput("cust-1", "v-1", d(2025, time.July, 1), d(2025, time.July, 15)))
	require.NoError(t, err)

	updated, err := svc.UpdateContract(ctx, c.ID, bookingInput("cust-1", "v-1", d(2025, time.July, 1), d(2025, time.July, 20)))
	require.NoError(t, err)
	assert.Equal(t, d(2025, time.July, 20), updated.Period.End)
}

func TestUpdateContract_ConflictWithOtherContract(t *testing.T) {
	svc, mem := newBookingService(t)
	ctx := context.Background()
	addVehicle(t, mem, "v-1", fleet.VehicleAvailable)

	_, err := svc.CreateContract(ctx, bookingInput("cust-1", "v-1", d(2025, time.July, 1), d(2025, time.July, 10)))
	require.NoError(t, err)
	second, err := svc.CreateContract(ctx, bookingInput("cust-2", "v-1", d(2025, time.July, 11), d(2025, time.July, 20)))
	require.NoError(t, err)

	_, err = svc.UpdateContract(ctx, second.ID, bookingInput("cust-2", "v-1", d(2025, time.July, 5), d(2025, time.July, 20)))
	var conflict *fleet.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestUpdateContract_NonActiveRejected(t *testing.T) {
	svc, mem := newBookingService(t)
	ctx := context.Background()
	addVehicle(t, mem, "v-1", fleet.VehicleAvailable)

	c, err := svc.CreateContract(ctx, bookingInput("cust-1", "v-1", d(2025, time.July, 1), d(2025, time.July, 10)))
	require.NoError(t, err)
	require.NoError(t, svc.CancelContract(ctx, c.ID))

	_, err = svc.UpdateContract(ctx, c.ID, bookingInput("cust-1", "v-1", d(2025, time.August, 1), d(2025, time.August, 10)))
	var verr *fleet.ValidationError
	require.ErrorAs(t, err, &verr)
}

// =============================================================================
// AVAILABILITY
// =============================================================================

func TestAvailableVehicles_ExcludesBookedAndInactive(t *testing.T) {
	// GIVEN: v-1 booked over the range, v-2 free, v-3 Inativo
	// WHEN: listing availability for the range
	// THEN: only v-2 is returned

	svc, mem := newBookingService(t)
	ctx := context.Background()
	addVehicle(t, mem, "v-1", fleet.VehicleAvailable)
	addVehicle(t, mem, "v-2", fleet.VehicleAvailable)
	addVehicle(t, mem, "v-3", fleet.VehicleInactive)

	_, err := svc.CreateContract(ctx, bookingInput("cust-1", "v-1", d(2025, time.March, 1), d(2025, time.March, 31)))
	require.NoError(t, err)

	resolver := &fleet.Resolver{Contracts: mem, Vehicles: mem}
	available, err := resolver.AvailableVehicles(ctx, rng(d(2025, time.March, 10), d(2025, time.March, 20)), nil)
	require.NoError(t, err)

	require.Len(t, available, 1)
	assert.Equal(t, fleet.VehicleID("v-2"), available[0].ID)
}

func TestCheckConflicts_DeduplicatesAcrossVehicles(t *testing.T) {
	// One contract holding two vehicles must appear once when both vehicles
	// are probed.
	svc, mem := newBookingService(t)
	ctx := context.Background()
	addVehicle(t, mem, "v-1", fleet.VehicleAvailable)
	addVehicle(t, mem, "v-2", fleet.VehicleAvailable)

	_, err := svc.CreateContract(ctx, fleet.ContractInput{
		CustomerID: "cust-1",
		Vehicles: []fleet.VehicleAssignment{
			{VehicleID: "v-1", DailyRate: money("100.00")},
			{VehicleID: "v-2", DailyRate: money("100.00")},
		},
		Period: rng(d(2025, time.April, 1), d(2025, time.April, 30)),
	})
	require.NoError(t, err)

	resolver := &fleet.Resolver{Contracts: mem, Vehicles: mem}
	check, err := resolver.CheckConflicts(ctx,
		[]fleet.VehicleID{"v-1", "v-2"},
		rng(d(2025, time.April, 10), d(2025, time.April, 12)), nil)
	require.NoError(t, err)

	assert.True(t, check.HasConflict)
	assert.Len(t, check.Conflicts, 1)
}

// =============================================================================
// FINALIZATION
// =============================================================================

func TestFinalizeExpired(t *testing.T) {
	svc, mem := newBookingService(t)
	ctx := context.Background()
	addVehicle(t, mem, "v-1", fleet.VehicleAvailable)
	addVehicle(t, mem, "v-2", fleet.VehicleAvailable)

	expired, err := svc.CreateContract(ctx, bookingInput("cust-1", "v-1", d(2025, time.January, 1), d(2025, time.January, 31)))
	require.NoError(t, err)
	current, err := svc.CreateContract(ctx, bookingInput("cust-2", "v-2", d(2025, time.February, 1), d(2025, time.December, 31)))
	require.NoError(t, err)

	count, err := svc.FinalizeExpired(ctx, d(2025, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := mem.GetContract(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.ContractFinalized, got.Status)

	got, err = mem.GetContract(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.ContractActive, got.Status)

	// Idempotent: a second run finds nothing to do.
	count, err = svc.FinalizeExpired(ctx, d(2025, time.March, 1))
	require.NoError(t, err)
	assert.Zero(t, count)
}
