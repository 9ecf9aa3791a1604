/*
mileage.go - Mileage aggregation from multiple reading sources

PURPOSE:
  Computes a vehicle's authoritative total mileage:

    max(initial_mileage, max(reading.value over inspections + service notes))

  and maintains the monotonic-publish guarantee: the value reported for a
  vehicle never decreases across successive calls, even when a recompute
  reads a stale maximum concurrently with a fresh reading write.

DEGRADED MODE:
  If a reading source is unreachable the aggregator logs it and falls back
  to the vehicle's last published mileage. A degraded read never fails the
  caller; the next successful recompute reconciles.

MONOTONICITY:
  Two layers enforce it:
  1. TotalMileage clamps to the last published value.
  2. VehicleStore.PublishMileage refuses to lower the stored value
     (compare-and-set in the store).
*/
package fleet

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Aggregator struct {
	Vehicles VehicleStore
	Readings ReadingStore
	Events   *Events
	Log      *zap.Logger
}

func NewAggregator(vehicles VehicleStore, readings ReadingStore, events *Events, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{Vehicles: vehicles, Readings: readings, Events: events, Log: log}
}

// TotalMileage computes the authoritative mileage for a vehicle.
// Degraded-mode read: unreachable reading sources are skipped with a log
// line, never surfaced to the caller.
func (a *Aggregator) TotalMileage(ctx context.Context, id VehicleID) (int, error) {
	v, err := a.Vehicles.GetVehicle(ctx, id)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, &NotFoundError{Kind: "vehicle", ID: string(id)}
	}

	best := v.InitialMileage
	for _, source := range ReadingSources {
		max, ok, err := a.Readings.MaxReading(ctx, id, source)
		if err != nil {
			a.Log.Warn("reading source unreachable, using last published mileage",
				zap.String("vehicle_id", string(id)),
				zap.String("source", string(source)),
				zap.Error(err))
			continue
		}
		if ok && max > best {
			best = max
		}
	}

	// Never report below the last published value.
	if v.StoredMileage > best {
		best = v.StoredMileage
	}
	return best, nil
}

// Recompute recalculates and publishes the vehicle's mileage. Idempotent:
// absent new readings, re-running publishes the same value. Invoked after
// every inspection or service-note mileage write.
func (a *Aggregator) Recompute(ctx context.Context, id VehicleID) (int, error) {
	total, err := a.TotalMileage(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := a.Vehicles.PublishMileage(ctx, id, total); err != nil {
		return 0, err
	}
	a.Events.PublishMileageUpdated(MileageUpdated{VehicleID: id, Total: total, At: time.Now().UTC()})
	return total, nil
}

// RecordReading stores a reading from an originating record and triggers a
// recompute. The recompute is retried on transient store failures (it is
// idempotent); the insert is not.
func (a *Aggregator) RecordReading(ctx context.Context, r MileageReading) (int, error) {
	if r.VehicleID == "" {
		return 0, &ValidationError{Field: "vehicle_id", Message: "required"}
	}
	if _, err := ParseReadingSource(string(r.Source)); err != nil {
		return 0, err
	}
	if r.Value <= 0 {
		return 0, &ValidationError{Field: "value", Message: "must be positive"}
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}

	if err := a.Readings.InsertReading(ctx, r); err != nil {
		return 0, err
	}

	var total int
	err := Retry(ctx, 3, 50*time.Millisecond, func() error {
		var err error
		total, err = a.Recompute(ctx, r.VehicleID)
		return err
	})
	return total, err
}
