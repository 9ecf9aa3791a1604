// Package store provides an in-memory implementation of the fleet storage
// interfaces, used by tests and local development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/frotaops/fleet-engine/fleet"
)

// =============================================================================
// MEMORY STORE - In-memory fleet.TxStore (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.Mutex
	vehicles  map[fleet.VehicleID]fleet.Vehicle
	contracts map[fleet.ContractID]fleet.Contract
	entries   map[fleet.EntryID]fleet.LedgerEntry
	fines     map[fleet.FineID]fleet.Fine
	readings  []fleet.MileageReading

	// referenced simulates reference-integrity: entries listed here refuse
	// hard deletion. Tests arm it via Reference().
	referenced map[fleet.EntryID]bool

	// sourceErr simulates an unreachable reading source. Tests arm it via
	// FailSource().
	sourceErr map[fleet.ReadingSource]error
}

func NewMemory() *Memory {
	return &Memory{
		vehicles:   make(map[fleet.VehicleID]fleet.Vehicle),
		contracts:  make(map[fleet.ContractID]fleet.Contract),
		entries:    make(map[fleet.EntryID]fleet.LedgerEntry),
		fines:      make(map[fleet.FineID]fleet.Fine),
		referenced: make(map[fleet.EntryID]bool),
		sourceErr:  make(map[fleet.ReadingSource]error),
	}
}

// Reset clears all stored data. Used by demo scenario loading.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles = make(map[fleet.VehicleID]fleet.Vehicle)
	m.contracts = make(map[fleet.ContractID]fleet.Contract)
	m.entries = make(map[fleet.EntryID]fleet.LedgerEntry)
	m.fines = make(map[fleet.FineID]fleet.Fine)
	m.readings = nil
	m.referenced = make(map[fleet.EntryID]bool)
	m.sourceErr = make(map[fleet.ReadingSource]error)
	return nil
}

// Reference marks an entry as referenced by another record, so DeleteEntry
// returns ErrEntryReferenced.
func (m *Memory) Reference(id fleet.EntryID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.referenced[id] = true
}

// FailSource makes MaxReading fail for the given source until err is nil.
func (m *Memory) FailSource(source fleet.ReadingSource, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.sourceErr, source)
		return
	}
	m.sourceErr[source] = err
}

// =============================================================================
// VEHICLES
// =============================================================================

func (m *Memory) GetVehicle(_ context.Context, id fleet.VehicleID) (*fleet.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getVehicleLocked(id)
}

func (m *Memory) getVehicleLocked(id fleet.VehicleID) (*fleet.Vehicle, error) {
	v, ok := m.vehicles[id]
	if !ok {
		return nil, nil
	}
	cp := v
	return &cp, nil
}

func (m *Memory) ListVehicles(_ context.Context) ([]fleet.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listVehiclesLocked()
}

func (m *Memory) listVehiclesLocked() ([]fleet.Vehicle, error) {
	out := make([]fleet.Vehicle, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveVehicle(_ context.Context, v fleet.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles[v.ID] = v
	return nil
}

func (m *Memory) PublishMileage(_ context.Context, id fleet.VehicleID, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publishMileageLocked(id, value)
}

func (m *Memory) publishMileageLocked(id fleet.VehicleID, value int) error {
	v, ok := m.vehicles[id]
	if !ok {
		return &fleet.NotFoundError{Kind: "vehicle", ID: string(id)}
	}
	// Monotonic guard: never lower the published value.
	if value > v.StoredMileage {
		v.StoredMileage = value
		m.vehicles[id] = v
	}
	return nil
}

// =============================================================================
// CONTRACTS
// =============================================================================

func (m *Memory) GetContract(_ context.Context, id fleet.ContractID) (*fleet.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getContractLocked(id)
}

func (m *Memory) getContractLocked(id fleet.ContractID) (*fleet.Contract, error) {
	c, ok := m.contracts[id]
	if !ok {
		return nil, nil
	}
	cp := c
	return &cp, nil
}

func (m *Memory) ActiveContractsForVehicle(_ context.Context, id fleet.VehicleID) ([]fleet.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeContractsForVehicleLocked(id)
}

func (m *Memory) activeContractsForVehicleLocked(id fleet.VehicleID) ([]fleet.Contract, error) {
	var out []fleet.Contract
	for _, c := range m.contracts {
		if c.Status == fleet.ContractActive && c.AssignedTo(id) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveContract(_ context.Context, c fleet.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveContractLocked(c)
}

func (m *Memory) saveContractLocked(c fleet.Contract) error {
	m.contracts[c.ID] = c
	return nil
}

func (m *Memory) UpdateContractStatus(_ context.Context, id fleet.ContractID, status fleet.ContractStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[id]
	if !ok {
		return &fleet.NotFoundError{Kind: "contract", ID: string(id)}
	}
	c.Status = status
	m.contracts[id] = c
	return nil
}

func (m *Memory) ListContractsByStatus(_ context.Context, status fleet.ContractStatus) ([]fleet.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []fleet.Contract
	for _, c := range m.contracts {
		if c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func (m *Memory) InsertEntry(_ context.Context, e fleet.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertEntryLocked(e)
}

func (m *Memory) insertEntryLocked(e fleet.LedgerEntry) error {
	m.entries[e.ID] = e
	return nil
}

func (m *Memory) GetEntry(_ context.Context, id fleet.EntryID) (*fleet.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	cp := e
	return &cp, nil
}

func (m *Memory) ListEntries(_ context.Context, f fleet.EntryFilter) ([]fleet.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listEntriesLocked(f)
}

func (m *Memory) listEntriesLocked(f fleet.EntryFilter) ([]fleet.LedgerEntry, error) {
	var out []fleet.LedgerEntry
	for _, e := range m.entries {
		if matchesFilter(e, f) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matchesFilter(e fleet.LedgerEntry, f fleet.EntryFilter) bool {
	if f.VehicleID != nil && e.VehicleID != *f.VehicleID {
		return false
	}
	if f.ContractID != nil && (e.ContractID == nil || *e.ContractID != *f.ContractID) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, e.Status) {
		return false
	}
	if len(f.Origins) > 0 && !containsOrigin(f.Origins, e.Origin) {
		return false
	}
	if f.Department != "" && e.Department != f.Department {
		return false
	}
	if f.Category != nil && e.Category != *f.Category {
		return false
	}
	if f.Unbilled && e.BillingRef != "" {
		return false
	}
	if f.Unattached && e.ContractID != nil {
		return false
	}
	if f.HasCustomer && e.CustomerID == nil {
		return false
	}
	return true
}

func containsStatus(ss []fleet.EntryStatus, s fleet.EntryStatus) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func containsOrigin(oo []fleet.Origin, o fleet.Origin) bool {
	for _, v := range oo {
		if v == o {
			return true
		}
	}
	return false
}

func (m *Memory) UpdateEntryStatus(_ context.Context, id fleet.EntryID, status fleet.EntryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
	}
	e.Status = status
	m.entries[id] = e
	return nil
}

func (m *Memory) AttachEntry(_ context.Context, id fleet.EntryID, contractID fleet.ContractID, customerID fleet.CustomerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
	}
	e.ContractID = &contractID
	e.CustomerID = &customerID
	m.entries[id] = e
	return nil
}

func (m *Memory) ResolveEntryAmount(_ context.Context, id fleet.EntryID, amount fleet.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
	}
	e.Amount = amount
	m.entries[id] = e
	return nil
}

func (m *Memory) MarkBilled(_ context.Context, ids []fleet.EntryID, billingRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markBilledLocked(ids, billingRef)
}

func (m *Memory) markBilledLocked(ids []fleet.EntryID, billingRef string) error {
	for _, id := range ids {
		e, ok := m.entries[id]
		if !ok {
			return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
		}
		e.BillingRef = billingRef
		m.entries[id] = e
	}
	return nil
}

func (m *Memory) DeleteEntry(_ context.Context, id fleet.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
	}
	if m.referenced[id] {
		return fleet.ErrEntryReferenced
	}
	delete(m.entries, id)
	return nil
}

func (m *Memory) DeactivateEntry(_ context.Context, id fleet.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
	}
	e.Active = false
	m.entries[id] = e
	return nil
}

// =============================================================================
// FINES
// =============================================================================

func (m *Memory) InsertFine(_ context.Context, f fleet.Fine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fines[f.ID] = f
	return nil
}

func (m *Memory) GetFine(_ context.Context, id fleet.FineID) (*fleet.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fines[id]
	if !ok {
		return nil, nil
	}
	cp := f
	return &cp, nil
}

func (m *Memory) ListFines(_ context.Context) ([]fleet.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]fleet.Fine, 0, len(m.fines))
	for _, f := range m.fines {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateFineStatus(_ context.Context, id fleet.FineID, status fleet.EntryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fines[id]
	if !ok {
		return &fleet.NotFoundError{Kind: "fine", ID: string(id)}
	}
	f.Status = status
	m.fines[id] = f
	return nil
}

func (m *Memory) AttachFine(_ context.Context, id fleet.FineID, contractID fleet.ContractID, customerID fleet.CustomerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fines[id]
	if !ok {
		return &fleet.NotFoundError{Kind: "fine", ID: string(id)}
	}
	f.ContractID = &contractID
	f.CustomerID = &customerID
	m.fines[id] = f
	return nil
}

// =============================================================================
// MILEAGE READINGS
// =============================================================================

func (m *Memory) InsertReading(_ context.Context, r fleet.MileageReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, r)
	return nil
}

func (m *Memory) MaxReading(_ context.Context, id fleet.VehicleID, source fleet.ReadingSource) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.sourceErr[source]; err != nil {
		return 0, false, err
	}
	max, found := 0, false
	for _, r := range m.readings {
		if r.VehicleID == id && r.Source == source {
			found = true
			if r.Value > max {
				max = r.Value
			}
		}
	}
	return max, found, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback on error
// =============================================================================

// WithTx serializes writers (the mutex is held for the whole callback) and
// rolls back to a snapshot if fn fails, so a failed conflict check cannot
// leave a partial write behind.
func (m *Memory) WithTx(_ context.Context, fn func(fleet.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	view := &txView{parent: m}
	if err := fn(view); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	vehicles  map[fleet.VehicleID]fleet.Vehicle
	contracts map[fleet.ContractID]fleet.Contract
	entries   map[fleet.EntryID]fleet.LedgerEntry
	fines     map[fleet.FineID]fleet.Fine
	readings  []fleet.MileageReading
}

func (m *Memory) snapshot() memSnapshot {
	s := memSnapshot{
		vehicles:  make(map[fleet.VehicleID]fleet.Vehicle, len(m.vehicles)),
		contracts: make(map[fleet.ContractID]fleet.Contract, len(m.contracts)),
		entries:   make(map[fleet.EntryID]fleet.LedgerEntry, len(m.entries)),
		fines:     make(map[fleet.FineID]fleet.Fine, len(m.fines)),
		readings:  append([]fleet.MileageReading{}, m.readings...),
	}
	for k, v := range m.vehicles {
		s.vehicles[k] = v
	}
	for k, v := range m.contracts {
		s.contracts[k] = v
	}
	for k, v := range m.entries {
		s.entries[k] = v
	}
	for k, v := range m.fines {
		s.fines[k] = v
	}
	return s
}

func (m *Memory) restore(s memSnapshot) {
	m.vehicles = s.vehicles
	m.contracts = s.contracts
	m.entries = s.entries
	m.fines = s.fines
	m.readings = s.readings
}

// txView forwards to the parent's lock-free internals; the parent holds the
// mutex for the duration of WithTx.
type txView struct {
	parent *Memory
}

func (t *txView) GetVehicle(_ context.Context, id fleet.VehicleID) (*fleet.Vehicle, error) {
	return t.parent.getVehicleLocked(id)
}

func (t *txView) ListVehicles(_ context.Context) ([]fleet.Vehicle, error) {
	return t.parent.listVehiclesLocked()
}

func (t *txView) SaveVehicle(_ context.Context, v fleet.Vehicle) error {
	t.parent.vehicles[v.ID] = v
	return nil
}

func (t *txView) PublishMileage(_ context.Context, id fleet.VehicleID, value int) error {
	return t.parent.publishMileageLocked(id, value)
}

func (t *txView) GetContract(_ context.Context, id fleet.ContractID) (*fleet.Contract, error) {
	return t.parent.getContractLocked(id)
}

func (t *txView) ActiveContractsForVehicle(_ context.Context, id fleet.VehicleID) ([]fleet.Contract, error) {
	return t.parent.activeContractsForVehicleLocked(id)
}

func (t *txView) SaveContract(_ context.Context, c fleet.Contract) error {
	return t.parent.saveContractLocked(c)
}

func (t *txView) UpdateContractStatus(_ context.Context, id fleet.ContractID, status fleet.ContractStatus) error {
	c, ok := t.parent.contracts[id]
	if !ok {
		return &fleet.NotFoundError{Kind: "contract", ID: string(id)}
	}
	c.Status = status
	t.parent.contracts[id] = c
	return nil
}

func (t *txView) ListContractsByStatus(_ context.Context, status fleet.ContractStatus) ([]fleet.Contract, error) {
	var out []fleet.Contract
	for _, c := range t.parent.contracts {
		if c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *txView) InsertEntry(_ context.Context, e fleet.LedgerEntry) error {
	return t.parent.insertEntryLocked(e)
}

func (t *txView) GetEntry(_ context.Context, id fleet.EntryID) (*fleet.LedgerEntry, error) {
	e, ok := t.parent.entries[id]
	if !ok {
		return nil, nil
	}
	cp := e
	return &cp, nil
}

func (t *txView) ListEntries(_ context.Context, f fleet.EntryFilter) ([]fleet.LedgerEntry, error) {
	return t.parent.listEntriesLocked(f)
}

func (t *txView) UpdateEntryStatus(_ context.Context, id fleet.EntryID, status fleet.EntryStatus) error {
	e, ok := t.parent.entries[id]
	if !ok {
		return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
	}
	e.Status = status
	t.parent.entries[id] = e
	return nil
}

func (t *txView) AttachEntry(_ context.Context, id fleet.EntryID, contractID fleet.ContractID, customerID fleet.CustomerID) error {
	e, ok := t.parent.entries[id]
	if !ok {
		return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
	}
	e.ContractID = &contractID
	e.CustomerID = &customerID
	t.parent.entries[id] = e
	return nil
}

func (t *txView) ResolveEntryAmount(_ context.Context, id fleet.EntryID, amount fleet.Money) error {
	e, ok := t.parent.entries[id]
	if !ok {
		return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
	}
	e.Amount = amount
	t.parent.entries[id] = e
	return nil
}

func (t *txView) MarkBilled(_ context.Context, ids []fleet.EntryID, billingRef string) error {
	return t.parent.markBilledLocked(ids, billingRef)
}

func (t *txView) DeleteEntry(_ context.Context, id fleet.EntryID) error {
	if _, ok := t.parent.entries[id]; !ok {
		return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
	}
	if t.parent.referenced[id] {
		return fleet.ErrEntryReferenced
	}
	delete(t.parent.entries, id)
	return nil
}

func (t *txView) DeactivateEntry(_ context.Context, id fleet.EntryID) error {
	e, ok := t.parent.entries[id]
	if !ok {
		return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
	}
	e.Active = false
	t.parent.entries[id] = e
	return nil
}

func (t *txView) InsertFine(_ context.Context, f fleet.Fine) error {
	t.parent.fines[f.ID] = f
	return nil
}

func (t *txView) GetFine(_ context.Context, id fleet.FineID) (*fleet.Fine, error) {
	f, ok := t.parent.fines[id]
	if !ok {
		return nil, nil
	}
	cp := f
	return &cp, nil
}

func (t *txView) ListFines(_ context.Context) ([]fleet.Fine, error) {
	out := make([]fleet.Fine, 0, len(t.parent.fines))
	for _, f := range t.parent.fines {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *txView) UpdateFineStatus(_ context.Context, id fleet.FineID, status fleet.EntryStatus) error {
	f, ok := t.parent.fines[id]
	if !ok {
		return &fleet.NotFoundError{Kind: "fine", ID: string(id)}
	}
	f.Status = status
	t.parent.fines[id] = f
	return nil
}

func (t *txView) AttachFine(_ context.Context, id fleet.FineID, contractID fleet.ContractID, customerID fleet.CustomerID) error {
	f, ok := t.parent.fines[id]
	if !ok {
		return &fleet.NotFoundError{Kind: "fine", ID: string(id)}
	}
	f.ContractID = &contractID
	f.CustomerID = &customerID
	t.parent.fines[id] = f
	return nil
}

func (t *txView) InsertReading(_ context.Context, r fleet.MileageReading) error {
	t.parent.readings = append(t.parent.readings, r)
	return nil
}

func (t *txView) MaxReading(_ context.Context, id fleet.VehicleID, source fleet.ReadingSource) (int, bool, error) {
	if err := t.parent.sourceErr[source]; err != nil {
		return 0, false, err
	}
	max, found := 0, false
	for _, r := range t.parent.readings {
		if r.VehicleID == id && r.Source == source {
			found = true
			if r.Value > max {
				max = r.Value
			}
		}
	}
	return max, found, nil
}
