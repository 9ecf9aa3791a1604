package fleet_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frotaops/fleet-engine/fleet"
	store "github.com/frotaops/fleet-engine/fleet/store"
)

func newAggregator(t *testing.T) (*fleet.Aggregator, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return fleet.NewAggregator(mem, mem, fleet.NewEvents(), nil), mem
}

func addVehicleWithMileage(t *testing.T, mem *store.Memory, id fleet.VehicleID, initial int) {
	t.Helper()
	err := mem.SaveVehicle(context.Background(), fleet.Vehicle{
		ID: id, Plate: "KM-" + string(id), Status: fleet.VehicleAvailable,
		InitialMileage: initial, StoredMileage: initial,
	})
	require.NoError(t, err)
}

func reading(id fleet.VehicleID, value int, source fleet.ReadingSource) fleet.MileageReading {
	return fleet.MileageReading{
		VehicleID: id, Value: value, Source: source,
		RecordedAt: time.Date(2025, time.February, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTotalMileage_MaxAcrossSources(t *testing.T) {
	// GIVEN: initial 1000 km, inspection reading 1200, service note 1150
	// WHEN: computing the total
	// THEN: 1200, the maximum over the initial value and every source

	agg, mem := newAggregator(t)
	ctx := context.Background()
	addVehicleWithMileage(t, mem, "v-1", 1000)

	_, err := agg.RecordReading(ctx, reading("v-1", 1200, fleet.SourceInspection))
	require.NoError(t, err)
	_, err = agg.RecordReading(ctx, reading("v-1", 1150, fleet.SourceServiceNote))
	require.NoError(t, err)

	total, err := agg.TotalMileage(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, 1200, total)
}

func TestTotalMileage_NoReadingsFallsBackToInitial(t *testing.T) {
	agg, mem := newAggregator(t)
	addVehicleWithMileage(t, mem, "v-1", 5400)

	total, err := agg.TotalMileage(context.Background(), "v-1")
	require.NoError(t, err)
	assert.Equal(t, 5400, total)
}

func TestRecordReading_PublishesMonotonically(t *testing.T) {
	// GIVEN: a stored mileage of 1200 from an earlier reading
	// WHEN: a lower, late-arriving reading comes in
	// THEN: the stored value never decreases

	agg, mem := newAggregator(t)
	ctx := context.Background()
	addVehicleWithMileage(t, mem, "v-1", 1000)

	_, err := agg.RecordReading(ctx, reading("v-1", 1200, fleet.SourceInspection))
	require.NoError(t, err)

	total, err := agg.RecordReading(ctx, reading("v-1", 900, fleet.SourceServiceNote))
	require.NoError(t, err)
	assert.Equal(t, 1200, total)

	v, err := mem.GetVehicle(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, 1200, v.StoredMileage)
}

func TestTotalMileage_DegradedSourceUsesStoredValue(t *testing.T) {
	// GIVEN: the inspection source failing, stored mileage at 1300
	// WHEN: computing the total
	// THEN: the failing source is skipped and the stored value keeps the
	// total from regressing; no error is surfaced

	agg, mem := newAggregator(t)
	ctx := context.Background()
	addVehicleWithMileage(t, mem, "v-1", 1000)

	_, err := agg.RecordReading(ctx, reading("v-1", 1300, fleet.SourceInspection))
	require.NoError(t, err)

	mem.FailSource(fleet.SourceInspection, errors.New("index offline"))

	total, err := agg.TotalMileage(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, 1300, total)
}

func TestRecordReading_Validation(t *testing.T) {
	agg, mem := newAggregator(t)
	ctx := context.Background()
	addVehicleWithMileage(t, mem, "v-1", 0)

	var verr *fleet.ValidationError

	_, err := agg.RecordReading(ctx, reading("v-1", -5, fleet.SourceInspection))
	require.ErrorAs(t, err, &verr)

	_, err = agg.RecordReading(ctx, reading("v-1", 100, "odômetro"))
	require.ErrorAs(t, err, &verr)

	_, err = agg.RecordReading(ctx, reading("ghost", 100, fleet.SourceInspection))
	assert.True(t, fleet.IsNotFound(err))
}

func TestRecompute_FiresMileageEvent(t *testing.T) {
	agg, mem := newAggregator(t)
	ctx := context.Background()
	addVehicleWithMileage(t, mem, "v-1", 700)

	events := fleet.NewEvents()
	agg.Events = events

	var got []fleet.MileageUpdated
	events.OnMileageUpdated(func(e fleet.MileageUpdated) {
		got = append(got, e)
	})

	_, err := agg.RecordReading(ctx, reading("v-1", 950, fleet.SourceInspection))
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, fleet.VehicleID("v-1"), got[0].VehicleID)
	assert.Equal(t, 950, got[0].Total)
}
