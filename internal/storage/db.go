package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"conciliar/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS clients (
  taxId TEXT PRIMARY KEY,
  displayName TEXT NOT NULL,
  city TEXT,
  salesperson TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  updatedAt TEXT,
  raw_json TEXT NOT NULL,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS purchase_lines (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  clientTaxId TEXT NOT NULL,
  documentNumber TEXT NOT NULL,
  sourceKind TEXT NOT NULL,
  lineDate TEXT NOT NULL,
  itemCode TEXT NOT NULL,
  detail TEXT,
  quantity REAL NOT NULL DEFAULT 0,
  unitValue TEXT NOT NULL DEFAULT '0',
  lineTotal TEXT NOT NULL DEFAULT '0',
  invoiceRef INTEGER,
  synchronized INTEGER NOT NULL DEFAULT 0,
  syncTimestamp TEXT,
  loadedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(clientTaxId, documentNumber, itemCode, sourceKind)
);
CREATE INDEX IF NOT EXISTS idx_purchase_lines_doc ON purchase_lines(clientTaxId, documentNumber);
CREATE INDEX IF NOT EXISTS idx_purchase_lines_sync ON purchase_lines(synchronized);

CREATE TABLE IF NOT EXISTS invoices (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  clientDisplayName TEXT NOT NULL,
  documentCode TEXT NOT NULL,
  orderCode TEXT,
  invoiceDate TEXT NOT NULL,
  totalValue TEXT NOT NULL DEFAULT '0',
  reconciled INTEGER NOT NULL DEFAULT 0,
  linkedPurchaseLineId INTEGER,
  loadedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(documentCode, clientDisplayName)
);
CREATE INDEX IF NOT EXISTS idx_invoices_date ON invoices(invoiceDate);

CREATE TABLE IF NOT EXISTS mail (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  messageId TEXT NOT NULL UNIQUE,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sync_runs (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  status TEXT NOT NULL,
  startedAt TEXT NOT NULL,
  finishedAt TEXT,
  countsJson TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// --- clients ---

func (d *DB) UpsertClients(clients []internal.ClientRecord) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO clients (taxId, displayName, city, salesperson, active, updatedAt, raw_json, lastSeenAt)
VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(taxId) DO UPDATE SET
  displayName=excluded.displayName,
  city=excluded.city,
  salesperson=excluded.salesperson,
  active=excluded.active,
  updatedAt=excluded.updatedAt,
  raw_json=excluded.raw_json,
  lastSeenAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range clients {
		if _, err := stmt.Exec(c.TaxID, c.DisplayName, c.City, c.Salesperson, boolToInt(c.Active), c.UpdatedAt, c.RawJSON); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) GetClientDisplayName(taxID string) (*string, error) {
	var name string
	err := d.conn.QueryRow(`SELECT displayName FROM clients WHERE taxId = ? AND active = 1`, taxID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &name, nil
}

// ResolveDisplayName satisfies the reconciler's registry lookup. An unknown
// tax id resolves to absent, never an error.
func (d *DB) ResolveDisplayName(taxID string) (string, bool, error) {
	name, err := d.GetClientDisplayName(taxID)
	if err != nil {
		return "", false, err
	}
	if name == nil {
		return "", false, nil
	}
	return *name, true, nil
}

// --- purchase lines ---

func (d *DB) UpsertPurchaseLine(line internal.PurchaseLine) (created bool, err error) {
	var existingID int
	err = d.conn.QueryRow(`
SELECT id FROM purchase_lines
WHERE clientTaxId = ? AND documentNumber = ? AND itemCode = ? AND sourceKind = ?
`, line.ClientTaxID, line.DocumentNumber, line.ItemCode, string(line.SourceKind)).Scan(&existingID)

	if errors.Is(err, sql.ErrNoRows) {
		_, err = d.conn.Exec(`
INSERT INTO purchase_lines (clientTaxId, documentNumber, sourceKind, lineDate, itemCode, detail, quantity, unitValue, lineTotal)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, line.ClientTaxID, line.DocumentNumber, string(line.SourceKind), formatDate(line.LineDate), line.ItemCode, line.Detail,
			line.Quantity, line.UnitValue.String(), line.LineTotal.String())
		return true, err
	}
	if err != nil {
		return false, err
	}

	_, err = d.conn.Exec(`
UPDATE purchase_lines SET lineDate = ?, detail = ?, quantity = ?, unitValue = ?, lineTotal = ?
WHERE id = ?
`, formatDate(line.LineDate), line.Detail, line.Quantity, line.UnitValue.String(), line.LineTotal.String(), existingID)
	return false, err
}

func (d *DB) FindPurchaseLines(filter internal.PurchaseLineFilter) ([]internal.PurchaseLine, error) {
	query := `
SELECT id, clientTaxId, documentNumber, sourceKind, lineDate, itemCode, detail, quantity, unitValue, lineTotal, invoiceRef, synchronized, syncTimestamp
FROM purchase_lines`
	clauses := []string{}
	args := []any{}

	if filter.Synchronized != nil {
		clauses = append(clauses, "synchronized = ?")
		args = append(args, boolToInt(*filter.Synchronized))
	}
	if filter.SourceKind != nil {
		clauses = append(clauses, "sourceKind = ?")
		args = append(args, string(*filter.SourceKind))
	}
	if filter.ClientTaxID != "" {
		clauses = append(clauses, "clientTaxId = ?")
		args = append(args, filter.ClientTaxID)
	}
	if filter.DocumentNumber != "" {
		clauses = append(clauses, "documentNumber = ?")
		args = append(args, filter.DocumentNumber)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.PurchaseLine
	for rows.Next() {
		line, err := scanPurchaseLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

// MarkPurchaseLineLinked is the single mutation the reconciler applies to a
// purchase line: point it at an invoice and stamp the sync.
func (d *DB) MarkPurchaseLineLinked(id, invoiceID int, at time.Time) error {
	result, err := d.conn.Exec(`
UPDATE purchase_lines SET invoiceRef = ?, synchronized = 1, syncTimestamp = ?
WHERE id = ?
`, invoiceID, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("purchase line not found: id=%d", id)
	}
	return nil
}

func scanPurchaseLine(rows *sql.Rows) (internal.PurchaseLine, error) {
	var line internal.PurchaseLine
	var kind, lineDate, unitValue, lineTotal string
	var detail, syncTS *string
	var synchronized int

	if err := rows.Scan(&line.ID, &line.ClientTaxID, &line.DocumentNumber, &kind, &lineDate, &line.ItemCode,
		&detail, &line.Quantity, &unitValue, &lineTotal, &line.InvoiceRef, &synchronized, &syncTS); err != nil {
		return internal.PurchaseLine{}, err
	}

	line.SourceKind = internal.SourceKind(kind)
	line.Synchronized = synchronized != 0
	if detail != nil {
		line.Detail = *detail
	}

	parsed, err := parseDate(lineDate)
	if err != nil {
		return internal.PurchaseLine{}, fmt.Errorf("purchase line %d: %w", line.ID, err)
	}
	line.LineDate = parsed

	if line.UnitValue, err = decimal.NewFromString(unitValue); err != nil {
		return internal.PurchaseLine{}, fmt.Errorf("purchase line %d: %w", line.ID, err)
	}
	if line.LineTotal, err = decimal.NewFromString(lineTotal); err != nil {
		return internal.PurchaseLine{}, fmt.Errorf("purchase line %d: %w", line.ID, err)
	}
	if syncTS != nil {
		if ts, err := time.Parse(time.RFC3339, *syncTS); err == nil {
			line.SyncTimestamp = &ts
		}
	}

	return line, nil
}

// --- invoices ---

func (d *DB) UpsertInvoice(inv internal.InvoiceRecord) (created bool, err error) {
	var existingID int
	err = d.conn.QueryRow(`SELECT id FROM invoices WHERE documentCode = ? AND clientDisplayName = ?`,
		inv.DocumentCode, inv.ClientDisplayName).Scan(&existingID)

	if errors.Is(err, sql.ErrNoRows) {
		_, err = d.conn.Exec(`
INSERT INTO invoices (clientDisplayName, documentCode, orderCode, invoiceDate, totalValue)
VALUES (?, ?, ?, ?, ?)
`, inv.ClientDisplayName, inv.DocumentCode, inv.OrderCode, formatDate(inv.InvoiceDate), inv.TotalValue.String())
		return true, err
	}
	if err != nil {
		return false, err
	}

	_, err = d.conn.Exec(`
UPDATE invoices SET orderCode = ?, invoiceDate = ?, totalValue = ? WHERE id = ?
`, inv.OrderCode, formatDate(inv.InvoiceDate), inv.TotalValue.String(), existingID)
	return false, err
}

func (d *DB) ListInvoices() ([]internal.InvoiceRecord, error) {
	rows, err := d.conn.Query(`
SELECT id, clientDisplayName, documentCode, orderCode, invoiceDate, totalValue, reconciled, linkedPurchaseLineId
FROM invoices ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.InvoiceRecord
	for rows.Next() {
		var inv internal.InvoiceRecord
		var orderCode *string
		var invoiceDate, totalValue string
		var reconciled int
		if err := rows.Scan(&inv.ID, &inv.ClientDisplayName, &inv.DocumentCode, &orderCode, &invoiceDate,
			&totalValue, &reconciled, &inv.LinkedPurchaseLineID); err != nil {
			return nil, err
		}
		if orderCode != nil {
			inv.OrderCode = *orderCode
		}
		inv.Reconciled = reconciled != 0

		parsed, err := parseDate(invoiceDate)
		if err != nil {
			return nil, fmt.Errorf("invoice %d: %w", inv.ID, err)
		}
		inv.InvoiceDate = parsed

		if inv.TotalValue, err = decimal.NewFromString(totalValue); err != nil {
			return nil, fmt.Errorf("invoice %d: %w", inv.ID, err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (d *DB) MarkInvoiceReconciled(id, firstLineID int) error {
	result, err := d.conn.Exec(`
UPDATE invoices SET reconciled = 1, linkedPurchaseLineId = ? WHERE id = ?
`, firstLineID, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("invoice not found: id=%d", id)
	}
	return nil
}

// --- mail ---

func (d *DB) UpsertMail(messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.MailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO mail (messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.MailRow{}, err
	}

	row, err := d.GetMailByMessageID(messageID)
	if err != nil {
		return internal.MailRow{}, err
	}
	if row == nil {
		return internal.MailRow{}, errors.New("failed to upsert mail")
	}
	return *row, nil
}

func (d *DB) GetMailByMessageID(messageID string) (*internal.MailRow, error) {
	var row internal.MailRow
	err := d.conn.QueryRow(`
SELECT id, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM mail WHERE messageId = ?
`, messageID).Scan(&row.ID, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListMailByStatus(status string, limit int) ([]internal.MailRow, error) {
	rows, err := d.conn.Query(`
SELECT id, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM mail WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MailRow
	for rows.Next() {
		var row internal.MailRow
		if err := rows.Scan(&row.ID, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateMailStatus(mailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE mail SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, mailID)
	return err
}

// --- sync runs ---

func (d *DB) InsertRun(id string, kind internal.RunKind, startedAt time.Time) error {
	_, err := d.conn.Exec(`
INSERT INTO sync_runs (id, kind, status, startedAt) VALUES (?, ?, ?, ?)
`, id, string(kind), internal.RunStatusRunning, startedAt.UTC().Format(time.RFC3339))
	return err
}

func (d *DB) FinishRun(id, status string, counts map[string]int) error {
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`
UPDATE sync_runs SET status = ?, finishedAt = ?, countsJson = ? WHERE id = ?
`, status, time.Now().UTC().Format(time.RFC3339), string(countsJSON), id)
	return err
}

func (d *DB) ListActiveRuns() ([]internal.SyncRun, error) {
	rows, err := d.conn.Query(`
SELECT id, kind, status, startedAt, finishedAt, countsJson
FROM sync_runs WHERE status = ? ORDER BY startedAt ASC
`, internal.RunStatusRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.SyncRun
	for rows.Next() {
		var run internal.SyncRun
		var kind, startedAt, countsJSON string
		var finishedAt *string
		if err := rows.Scan(&run.ID, &kind, &run.Status, &startedAt, &finishedAt, &countsJSON); err != nil {
			return nil, err
		}
		run.Kind = internal.RunKind(kind)
		if ts, err := time.Parse(time.RFC3339, startedAt); err == nil {
			run.StartedAt = ts
		}
		if finishedAt != nil {
			if ts, err := time.Parse(time.RFC3339, *finishedAt); err == nil {
				run.FinishedAt = &ts
			}
		}
		_ = json.Unmarshal([]byte(countsJSON), &run.Counts)
		out = append(out, run)
	}
	return out, rows.Err()
}

// --- metadata ---

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", raw, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
