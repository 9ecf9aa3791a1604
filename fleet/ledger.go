/*
ledger.go - Cost/charge ledger with an enforced state machine

PURPOSE:
  Validates creation and status transitions of ledger entries fed by
  multiple independent originators (manual entry, inspection, maintenance,
  purchasing, system).

STATE MACHINE:
  Pendente   -> Autorizado, Pago
  Autorizado -> Pago
  Pago       -> (terminal)

  One explicit transition table, consulted by a single Transition function.
  No caller assigns status directly. Re-requesting the current status is a
  no-op returning the current entry, so repeated "mark paid" calls have no
  double side effects.

IMMUTABILITY:
  Once created, only status, association attachments, a to-define amount
  resolution, and the billing reference may change. Hard delete exists only
  for Manual-origin entries removed by an Admin; a reference-integrity
  conflict degrades to deactivation rather than failing silently.

SEE ALSO:
  - associate.go: attachment at creation time for automatic entries
  - billing.go: consumes Autorizado/Pago automatic entries
*/
package fleet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

// allowedTransitions is the single source of truth for status flow.
var allowedTransitions = map[EntryStatus][]EntryStatus{
	StatusPendente:   {StatusAutorizado, StatusPago},
	StatusAutorizado: {StatusPago},
	StatusPago:       {},
}

// CanTransition reports whether from -> to is allowed. Same-status is
// always allowed (idempotent no-op).
func CanTransition(from, to EntryStatus) bool {
	if from == to {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// transitionRoles lists the roles allowed to set each target status.
// A status absent from the map is open to any role.
var transitionRoles = map[EntryStatus][]Role{
	StatusAutorizado: {RoleAdmin, RoleManager},
	StatusPago:       {RoleAdmin, RoleManager},
}

func roleMaySet(role Role, target EntryStatus) bool {
	allowed, restricted := transitionRoles[target]
	if !restricted {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// =============================================================================
// LEDGER SERVICE
// =============================================================================

// EntryInput is the payload for creating a ledger entry.
type EntryInput struct {
	Category    Category
	VehicleID   VehicleID
	Description string
	Amount      Money
	Date        Date
	Origin      Origin // defaults to Manual
	Department  string
}

type LedgerService struct {
	Store  TxStore
	Assoc  *Associator
	Events *Events
	Log    *zap.Logger
}

func NewLedgerService(store TxStore, assoc *Associator, events *Events, log *zap.Logger) *LedgerService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LedgerService{Store: store, Assoc: assoc, Events: events, Log: log}
}

// Create validates and persists a ledger entry with one insert (the source's
// insert/delete/insert probing is not reproduced). Automatic entries are
// passed to the association engine; a ConsistencyWarning from association is
// returned alongside the entry, never instead of it.
func (l *LedgerService) Create(ctx context.Context, in EntryInput) (*LedgerEntry, *ConsistencyWarning, error) {
	if in.Origin == "" {
		in.Origin = OriginManual
	}
	if _, err := ParseOrigin(string(in.Origin)); err != nil {
		return nil, nil, err
	}
	if _, err := ParseCategory(string(in.Category)); err != nil {
		return nil, nil, err
	}
	if in.VehicleID == "" {
		return nil, nil, &ValidationError{Field: "vehicle_id", Message: "required"}
	}
	if in.Description == "" {
		return nil, nil, &ValidationError{Field: "description", Message: "required"}
	}
	if in.Amount.IsNegative() {
		return nil, nil, &ValidationError{Field: "amount", Message: "must not be negative"}
	}
	if in.Date.IsZero() {
		return nil, nil, &ValidationError{Field: "date", Message: "required"}
	}

	v, err := l.Store.GetVehicle(ctx, in.VehicleID)
	if err != nil {
		return nil, nil, err
	}
	if v == nil {
		return nil, nil, &NotFoundError{Kind: "vehicle", ID: string(in.VehicleID)}
	}

	now := time.Now().UTC()
	entry := LedgerEntry{
		ID:          EntryID(uuid.NewString()),
		Category:    in.Category,
		VehicleID:   in.VehicleID,
		Description: in.Description,
		Amount:      in.Amount,
		Date:        in.Date,
		Status:      StatusPendente,
		Origin:      in.Origin,
		Department:  in.Department,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := l.Store.InsertEntry(ctx, entry); err != nil {
		return nil, nil, err
	}

	var warning *ConsistencyWarning
	if entry.Origin.Automatic() && l.Assoc != nil {
		warning, err = l.Assoc.AssociateEntry(ctx, &entry)
		if err != nil {
			// The entry exists; a failed attachment is recoverable via
			// Reprocess. Log and keep going.
			l.Log.Warn("association failed at entry creation",
				zap.String("entry_id", string(entry.ID)), zap.Error(err))
		}
	}

	l.Events.PublishEntryCreated(EntryCreated{Entry: entry})
	l.Log.Info("ledger entry created",
		zap.String("entry_id", string(entry.ID)),
		zap.String("origin", string(entry.Origin)),
		zap.String("category", string(entry.Category)),
		zap.Bool("to_define", entry.ToDefine()))
	return &entry, warning, nil
}

// Transition moves an entry to newStatus on behalf of actorRole. Order of
// checks: existence, idempotent no-op, permission, reachability. The store
// write is retried on transient failures (idempotent by construction).
func (l *LedgerService) Transition(ctx context.Context, id EntryID, newStatus EntryStatus, actorRole Role) (*LedgerEntry, error) {
	if _, err := ParseEntryStatus(string(newStatus)); err != nil {
		return nil, err
	}

	entry, err := l.Store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, &NotFoundError{Kind: "entry", ID: string(id)}
	}

	if entry.Status == newStatus {
		return entry, nil
	}
	if !roleMaySet(actorRole, newStatus) {
		return nil, &PermissionError{Role: actorRole, Action: "set status " + string(newStatus)}
	}
	if !CanTransition(entry.Status, newStatus) {
		return nil, &TransitionError{From: entry.Status, To: newStatus}
	}

	err = Retry(ctx, 3, 50*time.Millisecond, func() error {
		return l.Store.UpdateEntryStatus(ctx, id, newStatus)
	})
	if err != nil {
		return nil, err
	}

	entry.Status = newStatus
	entry.UpdatedAt = time.Now().UTC()
	l.Log.Info("ledger entry transitioned",
		zap.String("entry_id", string(id)),
		zap.String("status", string(newStatus)),
		zap.String("actor_role", string(actorRole)))
	return entry, nil
}

// Delete removes a Manual-origin entry. Automatic-origin entries are
// protected (ImmutableFieldError); only Admin may delete. When the store
// reports a reference-integrity conflict the operation degrades to a
// deactivation; the returned flag tells the caller which path was taken.
func (l *LedgerService) Delete(ctx context.Context, id EntryID, actorRole Role) (deactivated bool, err error) {
	entry, err := l.Store.GetEntry(ctx, id)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, &NotFoundError{Kind: "entry", ID: string(id)}
	}
	if entry.Origin.Automatic() {
		return false, &ImmutableFieldError{EntryID: id, Field: "entry", Reason: "automatic-origin entries cannot be deleted"}
	}
	if actorRole != RoleAdmin {
		return false, &PermissionError{Role: actorRole, Action: "delete ledger entry"}
	}

	err = l.Store.DeleteEntry(ctx, id)
	if err == nil {
		l.Log.Info("ledger entry deleted", zap.String("entry_id", string(id)))
		return false, nil
	}
	if err != ErrEntryReferenced {
		return false, err
	}

	// Documented fallback: other records reference this entry, so it is
	// deactivated instead of hard-deleted.
	if err := l.Store.DeactivateEntry(ctx, id); err != nil {
		return false, err
	}
	l.Log.Warn("ledger entry referenced, degraded to deactivation",
		zap.String("entry_id", string(id)))
	return true, nil
}

// ResolveAmount sets the amount of a to-define entry. Valid only while
// status=Pendente and amount=0; afterwards the amount is immutable like
// every other field.
func (l *LedgerService) ResolveAmount(ctx context.Context, id EntryID, amount Money, actorRole Role) (*LedgerEntry, error) {
	if !amount.Value.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "resolved amount must be positive"}
	}

	entry, err := l.Store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, &NotFoundError{Kind: "entry", ID: string(id)}
	}
	if !entry.ToDefine() {
		return nil, &ImmutableFieldError{EntryID: id, Field: "amount", Reason: "amount can only be resolved while Pendente with amount 0"}
	}

	if err := l.Store.ResolveEntryAmount(ctx, id, amount); err != nil {
		return nil, err
	}
	entry.Amount = amount
	entry.UpdatedAt = time.Now().UTC()
	l.Log.Info("to-define amount resolved",
		zap.String("entry_id", string(id)),
		zap.String("amount", amount.String()),
		zap.String("actor_role", string(actorRole)))
	return entry, nil
}

// =============================================================================
// ORIGINATOR INTAKE - Events from external subsystems (spec boundary)
// =============================================================================

// RecordDamage handles an inspection damage-detection event: a Patio entry
// with a to-define amount (0), associated if the vehicle is under an active
// contract at the damage date.
func (l *LedgerService) RecordDamage(ctx context.Context, vehicleID VehicleID, date Date, severity string) (*LedgerEntry, *ConsistencyWarning, error) {
	desc := "Avaria detectada em inspeção"
	if severity != "" {
		desc += " (" + severity + ")"
	}
	return l.Create(ctx, EntryInput{
		Category:    CategoryAvaria,
		VehicleID:   vehicleID,
		Description: desc,
		Amount:      NewMoney(0),
		Date:        date,
		Origin:      OriginPatio,
		Department:  DeptCobranca,
	})
}

// RecordPartsConsumption handles a maintenance parts-consumption event.
func (l *LedgerService) RecordPartsConsumption(ctx context.Context, vehicleID VehicleID, date Date, description string, cost Money) (*LedgerEntry, *ConsistencyWarning, error) {
	if description == "" {
		description = "Consumo de peças em manutenção"
	}
	return l.Create(ctx, EntryInput{
		Category:    CategoryPecas,
		VehicleID:   vehicleID,
		Description: description,
		Amount:      cost,
		Date:        date,
		Origin:      OriginManutencao,
	})
}

// RecordPurchase handles a purchasing flow submission: a Compras entry
// pending authorization.
func (l *LedgerService) RecordPurchase(ctx context.Context, vehicleID VehicleID, date Date, description string, cost Money) (*LedgerEntry, *ConsistencyWarning, error) {
	if description == "" {
		description = "Solicitação de compra"
	}
	return l.Create(ctx, EntryInput{
		Category:    CategoryCompra,
		VehicleID:   vehicleID,
		Description: description,
		Amount:      cost,
		Date:        date,
		Origin:      OriginCompras,
	})
}

// =============================================================================
// FINES
// =============================================================================

// RecordFine persists a user-entered fine and runs association against the
// infraction date.
func (l *LedgerService) RecordFine(ctx context.Context, vehicleID VehicleID, infractionDate Date, amount Money, description string) (*Fine, *ConsistencyWarning, error) {
	if vehicleID == "" {
		return nil, nil, &ValidationError{Field: "vehicle_id", Message: "required"}
	}
	if infractionDate.IsZero() {
		return nil, nil, &ValidationError{Field: "infraction_date", Message: "required"}
	}
	if amount.IsNegative() {
		return nil, nil, &ValidationError{Field: "amount", Message: "must not be negative"}
	}

	v, err := l.Store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, nil, err
	}
	if v == nil {
		return nil, nil, &NotFoundError{Kind: "vehicle", ID: string(vehicleID)}
	}

	now := time.Now().UTC()
	fine := Fine{
		ID:             FineID(uuid.NewString()),
		VehicleID:      vehicleID,
		InfractionDate: infractionDate,
		Amount:         amount,
		Status:         StatusPendente,
		Description:    description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := l.Store.InsertFine(ctx, fine); err != nil {
		return nil, nil, err
	}

	var warning *ConsistencyWarning
	if l.Assoc != nil {
		warning, err = l.Assoc.AssociateFine(ctx, &fine)
		if err != nil {
			l.Log.Warn("association failed at fine creation",
				zap.String("fine_id", string(fine.ID)), zap.Error(err))
		}
	}

	l.Log.Info("fine recorded",
		zap.String("fine_id", string(fine.ID)),
		zap.String("vehicle_id", string(vehicleID)),
		zap.String("infraction_date", infractionDate.String()))
	return &fine, warning, nil
}

// TransitionFine mirrors the entry state machine for fines.
func (l *LedgerService) TransitionFine(ctx context.Context, id FineID, newStatus EntryStatus, actorRole Role) (*Fine, error) {
	if _, err := ParseEntryStatus(string(newStatus)); err != nil {
		return nil, err
	}

	fine, err := l.Store.GetFine(ctx, id)
	if err != nil {
		return nil, err
	}
	if fine == nil {
		return nil, &NotFoundError{Kind: "fine", ID: string(id)}
	}

	if fine.Status == newStatus {
		return fine, nil
	}
	if !roleMaySet(actorRole, newStatus) {
		return nil, &PermissionError{Role: actorRole, Action: "set status " + string(newStatus)}
	}
	if !CanTransition(fine.Status, newStatus) {
		return nil, &TransitionError{From: fine.Status, To: newStatus}
	}

	err = Retry(ctx, 3, 50*time.Millisecond, func() error {
		return l.Store.UpdateFineStatus(ctx, id, newStatus)
	})
	if err != nil {
		return nil, err
	}

	fine.Status = newStatus
	fine.UpdatedAt = time.Now().UTC()
	return fine, nil
}
