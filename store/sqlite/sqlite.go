/*
Package sqlite provides the SQLite-backed implementation of the fleet
storage interfaces.

PURPOSE:
  Implements fleet.TxStore using database/sql + mattn/go-sqlite3. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  vehicles           fleet directory + published mileage
  contracts          bookings (status, inclusive date range)
  contract_vehicles  (vehicle, daily_rate) assignments per contract
  ledger_entries     cost/charge ledger
  fines              user-entered fines
  mileage_readings   readings carried by inspections and service notes

TRANSACTIONAL BOUNDARY:
  WithTx holds the store mutex and a database transaction for the whole
  callback. Conflict check + contract insert run inside it, so two
  concurrent overlapping bookings cannot both pass the check: the second
  writer re-reads committed state and fails with ConflictError.

MONOTONIC MILEAGE:
  PublishMileage uses a guarded UPDATE (WHERE stored_mileage < ?) so a
  recompute that read a stale maximum can never lower the published value.

ENUM BOUNDARY:
  Status/origin/category strings read from the database pass through the
  fleet Parse functions; unknown values surface as ValidationError instead
  of leaking arbitrary strings into the engine.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency
  and crash recovery. Busy/locked errors map to fleet.ErrTransientStore
  so idempotent callers can retry.

USAGE:
  store, err := sqlite.New("./data/fleet.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - fleet/store.go: interface definitions
  - fleet/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/frotaops/fleet-engine/fleet"
)

// Store implements fleet.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset deletes all rows from every table. Used by demo scenario loading;
// never called from production paths.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, table := range []string{
		"mileage_readings", "fines", "ledger_entries",
		"contract_vehicles", "contracts", "vehicles",
	} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		plate TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		initial_mileage INTEGER NOT NULL DEFAULT 0,
		stored_mileage INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_status
		ON contracts(status);

	CREATE TABLE IF NOT EXISTS contract_vehicles (
		contract_id TEXT NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
		vehicle_id TEXT NOT NULL,
		daily_rate TEXT NOT NULL,
		PRIMARY KEY (contract_id, vehicle_id)
	);

	-- Hot path: conflict checks scan active contracts per vehicle.
	CREATE INDEX IF NOT EXISTS idx_contract_vehicles_vehicle
		ON contract_vehicles(vehicle_id);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		vehicle_id TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		status TEXT NOT NULL,
		origin TEXT NOT NULL,
		contract_id TEXT,
		customer_id TEXT,
		department TEXT NOT NULL DEFAULT '',
		billing_ref TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_vehicle
		ON ledger_entries(vehicle_id);
	CREATE INDEX IF NOT EXISTS idx_entries_status
		ON ledger_entries(status);
	CREATE INDEX IF NOT EXISTS idx_entries_billing_ref
		ON ledger_entries(billing_ref) WHERE billing_ref != '';
	CREATE INDEX IF NOT EXISTS idx_entries_contract
		ON ledger_entries(contract_id) WHERE contract_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS fines (
		id TEXT PRIMARY KEY,
		vehicle_id TEXT NOT NULL,
		infraction_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		contract_id TEXT,
		customer_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fines_vehicle
		ON fines(vehicle_id);

	CREATE TABLE IF NOT EXISTS mileage_readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vehicle_id TEXT NOT NULL,
		value INTEGER NOT NULL,
		source TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_readings_vehicle_source
		ON mileage_readings(vehicle_id, source);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// mapErr converts driver-level failures into the engine error taxonomy.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %v", fleet.ErrTransientStore, err)
		}
	}
	return err
}

const dateFmt = "2006-01-02"

func fmtDate(d fleet.Date) string { return d.Time.Format(dateFmt) }

func scanDate(s string) (fleet.Date, error) {
	t, err := time.Parse(dateFmt, s)
	if err != nil {
		return fleet.Date{}, fmt.Errorf("bad date %q in store: %w", s, err)
	}
	return fleet.DateOf(t), nil
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func scanTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// =============================================================================
// VEHICLES
// =============================================================================

func (s *Store) GetVehicle(ctx context.Context, id fleet.VehicleID) (*fleet.Vehicle, error) {
	return getVehicle(ctx, s.db, id)
}

func getVehicle(ctx context.Context, q dbtx, id fleet.VehicleID) (*fleet.Vehicle, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, plate, model, status, initial_mileage, stored_mileage, created_at, updated_at
		FROM vehicles WHERE id = ?`, id)
	v, err := scanVehicle(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return v, nil
}

func scanVehicle(scan func(...any) error) (*fleet.Vehicle, error) {
	var v fleet.Vehicle
	var status, createdAt, updatedAt string
	if err := scan(&v.ID, &v.Plate, &v.Model, &status, &v.InitialMileage, &v.StoredMileage, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	st, err := fleet.ParseVehicleStatus(status)
	if err != nil {
		return nil, err
	}
	v.Status = st
	v.CreatedAt = scanTime(createdAt)
	v.UpdatedAt = scanTime(updatedAt)
	return &v, nil
}

func (s *Store) ListVehicles(ctx context.Context) ([]fleet.Vehicle, error) {
	return listVehicles(ctx, s.db)
}

func listVehicles(ctx context.Context, q dbtx) ([]fleet.Vehicle, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, plate, model, status, initial_mileage, stored_mileage, created_at, updated_at
		FROM vehicles ORDER BY plate`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []fleet.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *Store) SaveVehicle(ctx context.Context, v fleet.Vehicle) error {
	return saveVehicle(ctx, s.db, v)
}

func saveVehicle(ctx context.Context, q dbtx, v fleet.Vehicle) error {
	now := fmtTime(time.Now())
	_, err := q.ExecContext(ctx, `
		INSERT INTO vehicles (id, plate, model, status, initial_mileage, stored_mileage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			plate = excluded.plate,
			model = excluded.model,
			status = excluded.status,
			initial_mileage = excluded.initial_mileage,
			updated_at = excluded.updated_at`,
		v.ID, v.Plate, v.Model, string(v.Status), v.InitialMileage, v.StoredMileage, now, now)
	return mapErr(err)
}

func (s *Store) PublishMileage(ctx context.Context, id fleet.VehicleID, value int) error {
	return publishMileage(ctx, s.db, id, value)
}

func publishMileage(ctx context.Context, q dbtx, id fleet.VehicleID, value int) error {
	// Guarded update: the published value only moves forward. A stale
	// recompute racing a fresh one simply matches zero rows.
	res, err := q.ExecContext(ctx, `
		UPDATE vehicles SET stored_mileage = ?, updated_at = ?
		WHERE id = ? AND stored_mileage < ?`,
		value, fmtTime(time.Now()), id, value)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Zero rows means either the vehicle is missing or the stored
		// value is already >= value. Only the former is an error.
		v, err := getVehicle(ctx, q, id)
		if err != nil {
			return err
		}
		if v == nil {
			return &fleet.NotFoundError{Kind: "vehicle", ID: string(id)}
		}
	}
	return nil
}

// =============================================================================
// CONTRACTS
// =============================================================================

func (s *Store) GetContract(ctx context.Context, id fleet.ContractID) (*fleet.Contract, error) {
	return getContract(ctx, s.db, id)
}

func getContract(ctx context.Context, q dbtx, id fleet.ContractID) (*fleet.Contract, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, customer_id, start_date, end_date, status, created_at, updated_at
		FROM contracts WHERE id = ?`, id)
	c, err := scanContract(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	if err := loadAssignments(ctx, q, c); err != nil {
		return nil, err
	}
	return c, nil
}

func scanContract(scan func(...any) error) (*fleet.Contract, error) {
	var c fleet.Contract
	var start, end, status, createdAt, updatedAt string
	if err := scan(&c.ID, &c.CustomerID, &start, &end, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	st, err := fleet.ParseContractStatus(status)
	if err != nil {
		return nil, err
	}
	c.Status = st
	sd, err := scanDate(start)
	if err != nil {
		return nil, err
	}
	ed, err := scanDate(end)
	if err != nil {
		return nil, err
	}
	c.Period = fleet.NewDateRange(sd, ed)
	c.CreatedAt = scanTime(createdAt)
	c.UpdatedAt = scanTime(updatedAt)
	return &c, nil
}

func loadAssignments(ctx context.Context, q dbtx, c *fleet.Contract) error {
	rows, err := q.QueryContext(ctx, `
		SELECT vehicle_id, daily_rate FROM contract_vehicles
		WHERE contract_id = ? ORDER BY vehicle_id`, c.ID)
	if err != nil {
		return mapErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		var a fleet.VehicleAssignment
		var rate string
		if err := rows.Scan(&a.VehicleID, &rate); err != nil {
			return err
		}
		m, err := fleet.ParseMoney(rate)
		if err != nil {
			return err
		}
		a.DailyRate = m
		c.Vehicles = append(c.Vehicles, a)
	}
	return rows.Err()
}

func (s *Store) ActiveContractsForVehicle(ctx context.Context, id fleet.VehicleID) ([]fleet.Contract, error) {
	return activeContractsForVehicle(ctx, s.db, id)
}

func activeContractsForVehicle(ctx context.Context, q dbtx, id fleet.VehicleID) ([]fleet.Contract, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.id, c.customer_id, c.start_date, c.end_date, c.status, c.created_at, c.updated_at
		FROM contracts c
		JOIN contract_vehicles cv ON cv.contract_id = c.id
		WHERE cv.vehicle_id = ? AND c.status = ?
		ORDER BY c.start_date, c.id`, id, string(fleet.ContractActive))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []fleet.Contract
	for rows.Next() {
		c, err := scanContract(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := loadAssignments(ctx, q, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) SaveContract(ctx context.Context, c fleet.Contract) error {
	// The contract row and its assignment rows must land together even
	// when the caller is outside WithTx.
	return s.WithTx(ctx, func(st fleet.Store) error {
		return st.SaveContract(ctx, c)
	})
}

func saveContract(ctx context.Context, q dbtx, c fleet.Contract) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO contracts (id, customer_id, start_date, end_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer_id = excluded.customer_id,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		c.ID, c.CustomerID, fmtDate(c.Period.Start), fmtDate(c.Period.End),
		string(c.Status), fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt))
	if err != nil {
		return mapErr(err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM contract_vehicles WHERE contract_id = ?`, c.ID); err != nil {
		return mapErr(err)
	}
	for _, a := range c.Vehicles {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO contract_vehicles (contract_id, vehicle_id, daily_rate)
			VALUES (?, ?, ?)`,
			c.ID, a.VehicleID, a.DailyRate.String()); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (s *Store) UpdateContractStatus(ctx context.Context, id fleet.ContractID, status fleet.ContractStatus) error {
	return updateContractStatus(ctx, s.db, id, status)
}

func updateContractStatus(ctx context.Context, q dbtx, id fleet.ContractID, status fleet.ContractStatus) error {
	res, err := q.ExecContext(ctx, `
		UPDATE contracts SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), fmtTime(time.Now()), id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &fleet.NotFoundError{Kind: "contract", ID: string(id)}
	}
	return nil
}

func (s *Store) ListContractsByStatus(ctx context.Context, status fleet.ContractStatus) ([]fleet.Contract, error) {
	return listContractsByStatus(ctx, s.db, status)
}

func listContractsByStatus(ctx context.Context, q dbtx, status fleet.ContractStatus) ([]fleet.Contract, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, customer_id, start_date, end_date, status, created_at, updated_at
		FROM contracts WHERE status = ? ORDER BY start_date, id`, string(status))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []fleet.Contract
	for rows.Next() {
		c, err := scanContract(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := loadAssignments(ctx, q, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

const entryCols = `id, category, vehicle_id, description, amount, entry_date, status, origin,
	contract_id, customer_id, department, billing_ref, active, created_at, updated_at`

func (s *Store) InsertEntry(ctx context.Context, e fleet.LedgerEntry) error {
	return insertEntry(ctx, s.db, e)
}

func insertEntry(ctx context.Context, q dbtx, e fleet.LedgerEntry) error {
	var contractID, customerID sql.NullString
	if e.ContractID != nil {
		contractID = sql.NullString{String: string(*e.ContractID), Valid: true}
	}
	if e.CustomerID != nil {
		customerID = sql.NullString{String: string(*e.CustomerID), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+entryCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Category), e.VehicleID, e.Description, e.Amount.String(),
		fmtDate(e.Date), string(e.Status), string(e.Origin),
		contractID, customerID, e.Department, e.BillingRef,
		boolToInt(e.Active), fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt))
	return mapErr(err)
}

func scanEntry(scan func(...any) error) (*fleet.LedgerEntry, error) {
	var e fleet.LedgerEntry
	var category, amount, entryDate, status, origin, createdAt, updatedAt string
	var contractID, customerID sql.NullString
	var active int

	if err := scan(&e.ID, &category, &e.VehicleID, &e.Description, &amount, &entryDate,
		&status, &origin, &contractID, &customerID, &e.Department, &e.BillingRef,
		&active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	cat, err := fleet.ParseCategory(category)
	if err != nil {
		return nil, err
	}
	st, err := fleet.ParseEntryStatus(status)
	if err != nil {
		return nil, err
	}
	org, err := fleet.ParseOrigin(origin)
	if err != nil {
		return nil, err
	}
	amt, err := fleet.ParseMoney(amount)
	if err != nil {
		return nil, err
	}
	d, err := scanDate(entryDate)
	if err != nil {
		return nil, err
	}

	e.Category = cat
	e.Status = st
	e.Origin = org
	e.Amount = amt
	e.Date = d
	e.Active = active == 1
	if contractID.Valid {
		cid := fleet.ContractID(contractID.String)
		e.ContractID = &cid
	}
	if customerID.Valid {
		cuid := fleet.CustomerID(customerID.String)
		e.CustomerID = &cuid
	}
	e.CreatedAt = scanTime(createdAt)
	e.UpdatedAt = scanTime(updatedAt)
	return &e, nil
}

func (s *Store) GetEntry(ctx context.Context, id fleet.EntryID) (*fleet.LedgerEntry, error) {
	return getEntry(ctx, s.db, id)
}

func getEntry(ctx context.Context, q dbtx, id fleet.EntryID) (*fleet.LedgerEntry, error) {
	row := q.QueryRowContext(ctx, `SELECT `+entryCols+` FROM ledger_entries WHERE id = ?`, id)
	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return e, nil
}

func (s *Store) ListEntries(ctx context.Context, f fleet.EntryFilter) ([]fleet.LedgerEntry, error) {
	return listEntries(ctx, s.db, f)
}

func listEntries(ctx context.Context, q dbtx, f fleet.EntryFilter) ([]fleet.LedgerEntry, error) {
	var where []string
	var args []any

	if f.VehicleID != nil {
		where = append(where, "vehicle_id = ?")
		args = append(args, *f.VehicleID)
	}
	if f.ContractID != nil {
		where = append(where, "contract_id = ?")
		args = append(args, *f.ContractID)
	}
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			ph[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(ph, ",")+")")
	}
	if len(f.Origins) > 0 {
		ph := make([]string, len(f.Origins))
		for i, o := range f.Origins {
			ph[i] = "?"
			args = append(args, string(o))
		}
		where = append(where, "origin IN ("+strings.Join(ph, ",")+")")
	}
	if f.Department != "" {
		where = append(where, "department = ?")
		args = append(args, f.Department)
	}
	if f.Category != nil {
		where = append(where, "category = ?")
		args = append(args, string(*f.Category))
	}
	if f.Unbilled {
		where = append(where, "billing_ref = ''")
	}
	if f.Unattached {
		where = append(where, "contract_id IS NULL")
	}
	if f.HasCustomer {
		where = append(where, "customer_id IS NOT NULL")
	}

	query := `SELECT ` + entryCols + ` FROM ledger_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY entry_date, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []fleet.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) UpdateEntryStatus(ctx context.Context, id fleet.EntryID, status fleet.EntryStatus) error {
	return updateEntryStatus(ctx, s.db, id, status)
}

func updateEntryStatus(ctx context.Context, q dbtx, id fleet.EntryID, status fleet.EntryStatus) error {
	res, err := q.ExecContext(ctx, `
		UPDATE ledger_entries SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), fmtTime(time.Now()), id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
	}
	return nil
}

func (s *Store) AttachEntry(ctx context.Context, id fleet.EntryID, contractID fleet.ContractID, customerID fleet.CustomerID) error {
	return attachEntry(ctx, s.db, id, contractID, customerID)
}

func attachEntry(ctx context.Context, q dbtx, id fleet.EntryID, contractID fleet.ContractID, customerID fleet.CustomerID) error {
	res, err := q.ExecContext(ctx, `
		UPDATE ledger_entries SET contract_id = ?, customer_id = ?, updated_at = ? WHERE id = ?`,
		string(contractID), string(customerID), fmtTime(time.Now()), id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
	}
	return nil
}

func (s *Store) ResolveEntryAmount(ctx context.Context, id fleet.EntryID, amount fleet.Money) error {
	return resolveEntryAmount(ctx, s.db, id, amount)
}

func resolveEntryAmount(ctx context.Context, q dbtx, id fleet.EntryID, amount fleet.Money) error {
	// Store-side guard mirroring the service rule: only a Pendente entry
	// with amount zero can be resolved.
	res, err := q.ExecContext(ctx, `
		UPDATE ledger_entries SET amount = ?, updated_at = ?
		WHERE id = ? AND status = ? AND CAST(amount AS REAL) = 0`,
		amount.String(), fmtTime(time.Now()), id, string(fleet.StatusPendente))
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		e, err := getEntry(ctx, q, id)
		if err != nil {
			return err
		}
		if e == nil {
			return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
		}
		return &fleet.ImmutableFieldError{EntryID: id, Field: "amount",
			Reason: "amount can only be set while Pendente with value to define"}
	}
	return nil
}

func (s *Store) MarkBilled(ctx context.Context, ids []fleet.EntryID, billingRef string) error {
	return markBilled(ctx, s.db, ids, billingRef)
}

func markBilled(ctx context.Context, q dbtx, ids []fleet.EntryID, billingRef string) error {
	for _, id := range ids {
		res, err := q.ExecContext(ctx, `
			UPDATE ledger_entries SET billing_ref = ?, updated_at = ? WHERE id = ?`,
			billingRef, fmtTime(time.Now()), id)
		if err != nil {
			return mapErr(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
		}
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, id fleet.EntryID) error {
	return deleteEntry(ctx, s.db, id)
}

func deleteEntry(ctx context.Context, q dbtx, id fleet.EntryID) error {
	// Entries rolled into a billing entry are referenced via billing_ref;
	// deleting them would orphan the invoice line.
	var refs int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE billing_ref = ?`, string(id)).Scan(&refs); err != nil {
		return mapErr(err)
	}
	if refs > 0 {
		return fleet.ErrEntryReferenced
	}

	res, err := q.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = ?`, id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
	}
	return nil
}

func (s *Store) DeactivateEntry(ctx context.Context, id fleet.EntryID) error {
	return deactivateEntry(ctx, s.db, id)
}

func deactivateEntry(ctx context.Context, q dbtx, id fleet.EntryID) error {
	res, err := q.ExecContext(ctx, `
		UPDATE ledger_entries SET active = 0, updated_at = ? WHERE id = ?`,
		fmtTime(time.Now()), id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &fleet.NotFoundError{Kind: "entry", ID: string(id)}
	}
	return nil
}

// =============================================================================
// FINES
// =============================================================================

const fineCols = `id, vehicle_id, infraction_date, amount, status, description, contract_id, customer_id, created_at, updated_at`

func (s *Store) InsertFine(ctx context.Context, f fleet.Fine) error {
	return insertFine(ctx, s.db, f)
}

func insertFine(ctx context.Context, q dbtx, f fleet.Fine) error {
	var contractID, customerID sql.NullString
	if f.ContractID != nil {
		contractID = sql.NullString{String: string(*f.ContractID), Valid: true}
	}
	if f.CustomerID != nil {
		customerID = sql.NullString{String: string(*f.CustomerID), Valid: true}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO fines (`+fineCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.VehicleID, fmtDate(f.InfractionDate), f.Amount.String(), string(f.Status),
		f.Description, contractID, customerID,
		fmtTime(f.CreatedAt), fmtTime(f.UpdatedAt))
	return mapErr(err)
}

func scanFine(scan func(...any) error) (*fleet.Fine, error) {
	var f fleet.Fine
	var infraction, amount, status, createdAt, updatedAt string
	var contractID, customerID sql.NullString

	if err := scan(&f.ID, &f.VehicleID, &infraction, &amount, &status, &f.Description,
		&contractID, &customerID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	st, err := fleet.ParseEntryStatus(status)
	if err != nil {
		return nil, err
	}
	amt, err := fleet.ParseMoney(amount)
	if err != nil {
		return nil, err
	}
	d, err := scanDate(infraction)
	if err != nil {
		return nil, err
	}

	f.Status = st
	f.Amount = amt
	f.InfractionDate = d
	if contractID.Valid {
		cid := fleet.ContractID(contractID.String)
		f.ContractID = &cid
	}
	if customerID.Valid {
		cuid := fleet.CustomerID(customerID.String)
		f.CustomerID = &cuid
	}
	f.CreatedAt = scanTime(createdAt)
	f.UpdatedAt = scanTime(updatedAt)
	return &f, nil
}

func (s *Store) GetFine(ctx context.Context, id fleet.FineID) (*fleet.Fine, error) {
	return getFine(ctx, s.db, id)
}

func getFine(ctx context.Context, q dbtx, id fleet.FineID) (*fleet.Fine, error) {
	row := q.QueryRowContext(ctx, `SELECT `+fineCols+` FROM fines WHERE id = ?`, id)
	f, err := scanFine(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return f, nil
}

func (s *Store) ListFines(ctx context.Context) ([]fleet.Fine, error) {
	return listFines(ctx, s.db)
}

func listFines(ctx context.Context, q dbtx) ([]fleet.Fine, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+fineCols+` FROM fines ORDER BY infraction_date, id`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []fleet.Fine
	for rows.Next() {
		f, err := scanFine(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (s *Store) UpdateFineStatus(ctx context.Context, id fleet.FineID, status fleet.EntryStatus) error {
	return updateFineStatus(ctx, s.db, id, status)
}

func updateFineStatus(ctx context.Context, q dbtx, id fleet.FineID, status fleet.EntryStatus) error {
	res, err := q.ExecContext(ctx, `
		UPDATE fines SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), fmtTime(time.Now()), id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &fleet.NotFoundError{Kind: "fine", ID: string(id)}
	}
	return nil
}

func (s *Store) AttachFine(ctx context.Context, id fleet.FineID, contractID fleet.ContractID, customerID fleet.CustomerID) error {
	return attachFine(ctx, s.db, id, contractID, customerID)
}

func attachFine(ctx context.Context, q dbtx, id fleet.FineID, contractID fleet.ContractID, customerID fleet.CustomerID) error {
	res, err := q.ExecContext(ctx, `
		UPDATE fines SET contract_id = ?, customer_id = ?, updated_at = ? WHERE id = ?`,
		string(contractID), string(customerID), fmtTime(time.Now()), id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &fleet.NotFoundError{Kind: "fine", ID: string(id)}
	}
	return nil
}

// =============================================================================
// MILEAGE READINGS
// =============================================================================

func (s *Store) InsertReading(ctx context.Context, r fleet.MileageReading) error {
	return insertReading(ctx, s.db, r)
}

func insertReading(ctx context.Context, q dbtx, r fleet.MileageReading) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO mileage_readings (vehicle_id, value, source, recorded_at)
		VALUES (?, ?, ?, ?)`,
		r.VehicleID, r.Value, string(r.Source), fmtTime(r.RecordedAt))
	return mapErr(err)
}

func (s *Store) MaxReading(ctx context.Context, id fleet.VehicleID, source fleet.ReadingSource) (int, bool, error) {
	return maxReading(ctx, s.db, id, source)
}

func maxReading(ctx context.Context, q dbtx, id fleet.VehicleID, source fleet.ReadingSource) (int, bool, error) {
	var max sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT MAX(value) FROM mileage_readings WHERE vehicle_id = ? AND source = ?`,
		id, string(source)).Scan(&max)
	if err != nil {
		return 0, false, mapErr(err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return int(max.Int64), true, nil
}

// =============================================================================
// TRANSACTIONS (fleet.TxStore)
// =============================================================================

// WithTx executes fn inside a database transaction. The store mutex
// serializes writers for the whole callback, so a conflict check inside fn
// cannot race a concurrent contract insert.
func (s *Store) WithTx(ctx context.Context, fn func(fleet.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return mapErr(sqlTx.Commit())
}

// txStore routes every store call through the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) GetVehicle(ctx context.Context, id fleet.VehicleID) (*fleet.Vehicle, error) {
	return getVehicle(ctx, t.tx, id)
}
func (t *txStore) ListVehicles(ctx context.Context) ([]fleet.Vehicle, error) {
	return listVehicles(ctx, t.tx)
}
func (t *txStore) SaveVehicle(ctx context.Context, v fleet.Vehicle) error {
	return saveVehicle(ctx, t.tx, v)
}
func (t *txStore) PublishMileage(ctx context.Context, id fleet.VehicleID, value int) error {
	return publishMileage(ctx, t.tx, id, value)
}
func (t *txStore) GetContract(ctx context.Context, id fleet.ContractID) (*fleet.Contract, error) {
	return getContract(ctx, t.tx, id)
}
func (t *txStore) ActiveContractsForVehicle(ctx context.Context, id fleet.VehicleID) ([]fleet.Contract, error) {
	return activeContractsForVehicle(ctx, t.tx, id)
}
func (t *txStore) SaveContract(ctx context.Context, c fleet.Contract) error {
	return saveContract(ctx, t.tx, c)
}
func (t *txStore) UpdateContractStatus(ctx context.Context, id fleet.ContractID, status fleet.ContractStatus) error {
	return updateContractStatus(ctx, t.tx, id, status)
}
func (t *txStore) ListContractsByStatus(ctx context.Context, status fleet.ContractStatus) ([]fleet.Contract, error) {
	return listContractsByStatus(ctx, t.tx, status)
}
func (t *txStore) InsertEntry(ctx context.Context, e fleet.LedgerEntry) error {
	return insertEntry(ctx, t.tx, e)
}
func (t *txStore) GetEntry(ctx context.Context, id fleet.EntryID) (*fleet.LedgerEntry, error) {
	return getEntry(ctx, t.tx, id)
}
func (t *txStore) ListEntries(ctx context.Context, f fleet.EntryFilter) ([]fleet.LedgerEntry, error) {
	return listEntries(ctx, t.tx, f)
}
func (t *txStore) UpdateEntryStatus(ctx context.Context, id fleet.EntryID, status fleet.EntryStatus) error {
	return updateEntryStatus(ctx, t.tx, id, status)
}
func (t *txStore) AttachEntry(ctx context.Context, id fleet.EntryID, contractID fleet.ContractID, customerID fleet.CustomerID) error {
	return attachEntry(ctx, t.tx, id, contractID, customerID)
}
func (t *txStore) ResolveEntryAmount(ctx context.Context, id fleet.EntryID, amount fleet.Money) error {
	return resolveEntryAmount(ctx, t.tx, id, amount)
}
func (t *txStore) MarkBilled(ctx context.Context, ids []fleet.EntryID, billingRef string) error {
	return markBilled(ctx, t.tx, ids, billingRef)
}
func (t *txStore) DeleteEntry(ctx context.Context, id fleet.EntryID) error {
	return deleteEntry(ctx, t.tx, id)
}
func (t *txStore) DeactivateEntry(ctx context.Context, id fleet.EntryID) error {
	return deactivateEntry(ctx, t.tx, id)
}
func (t *txStore) InsertFine(ctx context.Context, f fleet.Fine) error {
	return insertFine(ctx, t.tx, f)
}
func (t *txStore) GetFine(ctx context.Context, id fleet.FineID) (*fleet.Fine, error) {
	return getFine(ctx, t.tx, id)
}
func (t *txStore) ListFines(ctx context.Context) ([]fleet.Fine, error) {
	return listFines(ctx, t.tx)
}
func (t *txStore) UpdateFineStatus(ctx context.Context, id fleet.FineID, status fleet.EntryStatus) error {
	return updateFineStatus(ctx, t.tx, id, status)
}
func (t *txStore) AttachFine(ctx context.Context, id fleet.FineID, contractID fleet.ContractID, customerID fleet.CustomerID) error {
	return attachFine(ctx, t.tx, id, contractID, customerID)
}
func (t *txStore) InsertReading(ctx context.Context, r fleet.MileageReading) error {
	return insertReading(ctx, t.tx, r)
}
func (t *txStore) MaxReading(ctx context.Context, id fleet.VehicleID, source fleet.ReadingSource) (int, bool, error) {
	return maxReading(ctx, t.tx, id, source)
}
