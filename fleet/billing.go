/*
billing.go - Batch materialization of billing entries

PURPOSE:
  The billing/collection view reads entries with department=Cobrança or
  category=Multa and a resolved customer. GenerateBilling batch-materializes
  billing entries from authorized/paid automatic costs not yet billed:
  one Cobrança entry per contract, summing its source entries, all inside a
  single store transaction so a crash cannot leave sources half-marked.
*/
package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BillingService struct {
	Store TxStore
	Log   *zap.Logger
}

func NewBillingService(store TxStore, log *zap.Logger) *BillingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BillingService{Store: store, Log: log}
}

// BillingRun reports what a GenerateBilling invocation produced.
type BillingRun struct {
	Entries []LedgerEntry // the materialized Cobrança entries
	Sources int           // how many source entries were rolled up
}

// GenerateBilling selects Autorizado/Pago automatic-origin entries with a
// resolved customer and no billing reference, groups them by contract, and
// materializes one Cobrança entry per group. A non-nil contractID narrows
// the batch to that contract. Re-running is safe: billed sources carry a
// billing reference and are excluded.
func (b *BillingService) GenerateBilling(ctx context.Context, contractID *ContractID) (*BillingRun, error) {
	run := &BillingRun{}

	err := b.Store.WithTx(ctx, func(s Store) error {
		sources, err := s.ListEntries(ctx, EntryFilter{
			ContractID:  contractID,
			Statuses:    []EntryStatus{StatusAutorizado, StatusPago},
			Origins:     []Origin{OriginPatio, OriginManutencao, OriginSistema, OriginCompras},
			Unbilled:    true,
			HasCustomer: true,
		})
		if err != nil {
			return err
		}

		// Group by contract; entries with a customer but no contract are
		// skipped - billing is contract-scoped.
		groups := make(map[ContractID][]LedgerEntry)
		var order []ContractID
		for _, e := range sources {
			if e.ContractID == nil || !e.Active {
				continue
			}
			if _, seen := groups[*e.ContractID]; !seen {
				order = append(order, *e.ContractID)
			}
			groups[*e.ContractID] = append(groups[*e.ContractID], e)
		}

		now := time.Now().UTC()
		today := DateOf(now)
		for _, cid := range order {
			group := groups[cid]
			total := NewMoney(0)
			ids := make([]EntryID, 0, len(group))
			for _, e := range group {
				total = total.Add(e.Amount)
				ids = append(ids, e.ID)
			}

			customerID := *group[0].CustomerID
			billing := LedgerEntry{
				ID:          EntryID(uuid.NewString()),
				Category:    CategoryCobranca,
				VehicleID:   group[0].VehicleID,
				Description: fmt.Sprintf("Fatura de %d lançamento(s) do contrato %s", len(group), cid),
				Amount:      total,
				Date:        today,
				Status:      StatusPendente,
				Origin:      OriginSistema,
				ContractID:  &cid,
				CustomerID:  &customerID,
				Department:  DeptCobranca,
				Active:      true,
				CreatedAt:   now,
				UpdatedAt:   now,
			}

			if err := s.InsertEntry(ctx, billing); err != nil {
				return err
			}
			if err := s.MarkBilled(ctx, ids, string(billing.ID)); err != nil {
				return err
			}

			run.Entries = append(run.Entries, billing)
			run.Sources += len(group)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.Log.Info("billing generated",
		zap.Int("billing_entries", len(run.Entries)),
		zap.Int("source_entries", run.Sources))
	return run, nil
}

// CollectionView returns the entries the billing/collection screen shows:
// department=Cobrança or category=Multa, with a resolved customer.
func (b *BillingService) CollectionView(ctx context.Context) ([]LedgerEntry, error) {
	byDept, err := b.Store.ListEntries(ctx, EntryFilter{Department: DeptCobranca, HasCustomer: true})
	if err != nil {
		return nil, err
	}
	multa := CategoryMulta
	byCat, err := b.Store.ListEntries(ctx, EntryFilter{Category: &multa, HasCustomer: true})
	if err != nil {
		return nil, err
	}

	seen := make(map[EntryID]bool, len(byDept))
	out := make([]LedgerEntry, 0, len(byDept)+len(byCat))
	for _, e := range byDept {
		seen[e.ID] = true
		out = append(out, e)
	}
	for _, e := range byCat {
		if !seen[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}
