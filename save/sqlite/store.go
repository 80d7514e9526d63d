// Copyright 2025 Petr Havelka <petr.havelka.dev@gmail.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite persists rows and aggregated transactions into a
// local SQLite database the dashboard reads from. The transaction
// parent table is keyed by trans_id and upserted; child tables (items,
// tenders, loyalty data, ...) are replaced on each upsert so repeated
// ingestion runs stay idempotent.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"poslogproc/aggregate"
	"poslogproc/record"
)

// Store writes ingestion output into a SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (and if needed creates) the database at dbPath and makes
// sure the schema exists. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS generic_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		combined_ts REAL,
		log_level TEXT,
		raw_line TEXT,
		trans_ids TEXT,
		source_file TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_generic_logs_combined_ts
		ON generic_logs (combined_ts);

	CREATE TABLE IF NOT EXISTS generic_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trans_id TEXT UNIQUE,
		store_id TEXT,
		cashier_id TEXT,
		card_id TEXT,
		first_name TEXT,
		last_name TEXT,
		phone_numbers TEXT,
		promotions TEXT,
		item_count INTEGER,
		total_amount REAL,
		transaction_time TEXT
	);

	CREATE TABLE IF NOT EXISTS generic_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trans_id TEXT,
		plu TEXT,
		name TEXT,
		dep_code TEXT,
		quantity REAL,
		price REAL,
		amount REAL,
		FOREIGN KEY(trans_id) REFERENCES generic_transactions(trans_id)
	);

	CREATE TABLE IF NOT EXISTS generic_documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trans_id TEXT,
		document_type TEXT,
		barcode TEXT,
		confirmation_level TEXT,
		promotion_id TEXT,
		description TEXT,
		FOREIGN KEY(trans_id) REFERENCES generic_transactions(trans_id)
	);

	CREATE TABLE IF NOT EXISTS generic_tenders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trans_id TEXT,
		tender_no TEXT,
		amount REAL,
		tender_type TEXT,
		FOREIGN KEY(trans_id) REFERENCES generic_transactions(trans_id)
	);

	CREATE TABLE IF NOT EXISTS generic_promotions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trans_id TEXT,
		promotion_id TEXT,
		FOREIGN KEY(trans_id) REFERENCES generic_transactions(trans_id)
	);

	CREATE TABLE IF NOT EXISTS generic_msg_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trans_id TEXT,
		msg_type TEXT,
		count INTEGER,
		FOREIGN KEY(trans_id) REFERENCES generic_transactions(trans_id)
	);

	CREATE TABLE IF NOT EXISTS generic_promo_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trans_id TEXT,
		attrs TEXT,
		FOREIGN KEY(trans_id) REFERENCES generic_transactions(trans_id)
	);

	CREATE TABLE IF NOT EXISTS generic_loyalty_balances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trans_id TEXT,
		balance_type TEXT,
		balance_id TEXT,
		name TEXT,
		open_balance TEXT,
		earnings TEXT,
		redemptions TEXT,
		current_balance TEXT,
		FOREIGN KEY(trans_id) REFERENCES generic_transactions(trans_id)
	);

	CREATE TABLE IF NOT EXISTS generic_loyalty_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trans_id TEXT,
		acc_id TEXT,
		earn_value TEXT,
		open_balance TEXT,
		ending_balance TEXT,
		value TEXT,
		FOREIGN KEY(trans_id) REFERENCES generic_transactions(trans_id)
	);

	CREATE TABLE IF NOT EXISTS generic_loyalty_members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trans_id TEXT,
		member_row_id TEXT,
		last_name TEXT,
		first_name TEXT,
		status TEXT,
		member_external_id TEXT,
		FOREIGN KEY(trans_id) REFERENCES generic_transactions(trans_id)
	);

	CREATE TABLE IF NOT EXISTS generic_loyalty_segments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trans_id TEXT,
		member_row_id TEXT,
		attrs TEXT,
		FOREIGN KEY(trans_id) REFERENCES generic_transactions(trans_id)
	);

	CREATE TABLE IF NOT EXISTS generic_loyalty_member_cards (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trans_id TEXT,
		member_row_id TEXT,
		attrs TEXT,
		FOREIGN KEY(trans_id) REFERENCES generic_transactions(trans_id)
	);

	CREATE TABLE IF NOT EXISTS generic_loyalty_member_stores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trans_id TEXT,
		member_row_id TEXT,
		attrs TEXT,
		FOREIGN KEY(trans_id) REFERENCES generic_transactions(trans_id)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertRows writes a batch of rows into generic_logs within a single
// database transaction.
func (s *Store) InsertRows(ctx context.Context, rows []record.Row) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO generic_logs (combined_ts, log_level, raw_line, trans_ids, source_file)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare log insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		var ts sql.NullFloat64
		if v, ok := row.EpochSeconds(); ok {
			ts = sql.NullFloat64{Float64: v, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, ts, row.LogLevel, row.RawLine, row.TransIDList(), row.SourceFile); err != nil {
			return fmt.Errorf("failed to insert log row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit log rows: %w", err)
	}
	log.Debug().Int("numRows", len(rows)).Msg("inserted rows into generic_logs")
	return nil
}

// UpsertTransaction writes one aggregated transaction. The parent
// record is upserted by trans_id; all child rows are deleted and
// re-inserted so the stored state always mirrors the aggregator.
func (s *Store) UpsertTransaction(ctx context.Context, rec *aggregate.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txTime := ""
	if !rec.TransactionTime.IsZero() {
		txTime = rec.TransactionTime.Format(time.RFC3339)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO generic_transactions (
			trans_id, store_id, cashier_id, card_id, first_name, last_name,
			phone_numbers, promotions, item_count, total_amount, transaction_time
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trans_id) DO UPDATE SET
			store_id=excluded.store_id,
			cashier_id=excluded.cashier_id,
			card_id=excluded.card_id,
			first_name=excluded.first_name,
			last_name=excluded.last_name,
			phone_numbers=excluded.phone_numbers,
			promotions=excluded.promotions,
			item_count=excluded.item_count,
			total_amount=excluded.total_amount,
			transaction_time=excluded.transaction_time`,
		rec.TransID, rec.StoreID, rec.CashierID, rec.CardID, rec.FirstName, rec.LastName,
		strings.Join(rec.Phones(), ","), strings.Join(rec.Promotions(), ","),
		len(rec.Items), rec.Total(), txTime,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", rec.TransID, err)
	}

	if err := s.replaceChildren(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction %s: %w", rec.TransID, err)
	}
	return nil
}

var childTables = []string{
	"generic_items", "generic_documents", "generic_tenders",
	"generic_promotions", "generic_msg_types", "generic_promo_items",
	"generic_loyalty_balances", "generic_loyalty_accounts",
	"generic_loyalty_members", "generic_loyalty_segments",
	"generic_loyalty_member_cards", "generic_loyalty_member_stores",
}

func (s *Store) replaceChildren(ctx context.Context, tx *sql.Tx, rec *aggregate.Transaction) error {
	for _, table := range childTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE trans_id = ?", rec.TransID); err != nil {
			return fmt.Errorf("failed to clear %s for %s: %w", table, rec.TransID, err)
		}
	}

	for _, it := range rec.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO generic_items (trans_id, plu, name, dep_code, quantity, price, amount)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.TransID, it.PLU, it.Name, it.DepCode, it.Qty, it.Price, it.Amount)
		if err != nil {
			return fmt.Errorf("failed to insert item for %s: %w", rec.TransID, err)
		}
	}
	for _, doc := range rec.Documents {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO generic_documents (
				trans_id, document_type, barcode, confirmation_level, promotion_id, description
			) VALUES (?, ?, ?, ?, ?, ?)`,
			rec.TransID, doc.DocumentType, doc.Barcode, doc.ConfirmationLevel,
			doc.PromotionID, doc.Description)
		if err != nil {
			return fmt.Errorf("failed to insert document for %s: %w", rec.TransID, err)
		}
	}
	for _, tender := range rec.Tenders {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO generic_tenders (trans_id, tender_no, amount, tender_type)
			VALUES (?, ?, ?, ?)`,
			rec.TransID, tender.TenderNo, tender.Amount, tender.TenderType)
		if err != nil {
			return fmt.Errorf("failed to insert tender for %s: %w", rec.TransID, err)
		}
	}
	for _, promoID := range rec.Promotions() {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO generic_promotions (trans_id, promotion_id) VALUES (?, ?)",
			rec.TransID, promoID)
		if err != nil {
			return fmt.Errorf("failed to insert promotion for %s: %w", rec.TransID, err)
		}
	}
	for msgType, count := range fragmentCounts(rec) {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO generic_msg_types (trans_id, msg_type, count) VALUES (?, ?, ?)",
			rec.TransID, msgType, count)
		if err != nil {
			return fmt.Errorf("failed to insert msg type for %s: %w", rec.TransID, err)
		}
	}
	for _, pi := range rec.PromoItems {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO generic_promo_items (trans_id, attrs) VALUES (?, ?)",
			rec.TransID, attrsJSON(pi))
		if err != nil {
			return fmt.Errorf("failed to insert promo item for %s: %w", rec.TransID, err)
		}
	}
	return s.insertLoyalty(ctx, tx, rec)
}

func (s *Store) insertLoyalty(ctx context.Context, tx *sql.Tx, rec *aggregate.Transaction) error {
	for _, b := range rec.Loyalty.Balances {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO generic_loyalty_balances (
				trans_id, balance_type, balance_id, name,
				open_balance, earnings, redemptions, current_balance
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.TransID, b.Type, b.ID, b.Name,
			b.OpenBalance, b.Earnings, b.Redemptions, b.CurrentBalance)
		if err != nil {
			return fmt.Errorf("failed to insert loyalty balance for %s: %w", rec.TransID, err)
		}
	}
	for _, acc := range rec.Loyalty.Accounts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO generic_loyalty_accounts (
				trans_id, acc_id, earn_value, open_balance, ending_balance, value
			) VALUES (?, ?, ?, ?, ?, ?)`,
			rec.TransID, acc.ID, acc.EarnValue, acc.OpenBalance, acc.EndingBalance, acc.Value)
		if err != nil {
			return fmt.Errorf("failed to insert loyalty account for %s: %w", rec.TransID, err)
		}
	}
	for _, m := range rec.Loyalty.Members {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO generic_loyalty_members (
				trans_id, member_row_id, last_name, first_name, status, member_external_id
			) VALUES (?, ?, ?, ?, ?, ?)`,
			rec.TransID, m.RowID, m.LastName, m.FirstName, m.Status, m.MemberExternalID)
		if err != nil {
			return fmt.Errorf("failed to insert loyalty member for %s: %w", rec.TransID, err)
		}
		if err := insertAttrRows(ctx, tx, "generic_loyalty_segments", rec.TransID, m.RowID, m.Segments); err != nil {
			return err
		}
		if err := insertAttrRows(ctx, tx, "generic_loyalty_member_cards", rec.TransID, m.RowID, m.Cards); err != nil {
			return err
		}
		if err := insertAttrRows(ctx, tx, "generic_loyalty_member_stores", rec.TransID, m.RowID, m.Stores); err != nil {
			return err
		}
	}
	// loyalty-level segments carry no member link
	return insertAttrRows(ctx, tx, "generic_loyalty_segments", rec.TransID, "", rec.Loyalty.Segments)
}

func insertAttrRows(
	ctx context.Context,
	tx *sql.Tx,
	table, transID, memberRowID string,
	attrs []map[string]string,
) error {
	for _, a := range attrs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" (trans_id, member_row_id, attrs) VALUES (?, ?, ?)",
			transID, memberRowID, attrsJSON(a))
		if err != nil {
			return fmt.Errorf("failed to insert into %s for %s: %w", table, transID, err)
		}
	}
	return nil
}

// StoreMetadata inserts or overwrites a key/value pair in the metadata
// table (ingestion run ID, source paths, time range).
func (s *Store) StoreMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to store metadata %s: %w", key, err)
	}
	return nil
}

// GetMetadata reads a metadata value; missing keys yield "".
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read metadata %s: %w", key, err)
	}
	return value, nil
}

// Timestamps returns the epoch timestamps of all stored rows in
// ascending order, optionally limited to [from, to] (zero values mean
// unbounded).
func (s *Store) Timestamps(ctx context.Context, from, to time.Time) ([]float64, error) {
	query := "SELECT combined_ts FROM generic_logs WHERE combined_ts IS NOT NULL"
	var args []any
	if !from.IsZero() {
		query += " AND combined_ts >= ?"
		args = append(args, epoch(from))
	}
	if !to.IsZero() {
		query += " AND combined_ts <= ?"
		args = append(args, epoch(to))
	}
	query += " ORDER BY combined_ts"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query timestamps: %w", err)
	}
	defer rows.Close()

	var timestamps []float64
	for rows.Next() {
		var ts float64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("failed to scan timestamp: %w", err)
		}
		timestamps = append(timestamps, ts)
	}
	return timestamps, rows.Err()
}

// CountRows returns the number of stored log rows.
func (s *Store) CountRows(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM generic_logs").Scan(&count)
	return count, err
}

// CountTransactions returns the number of stored transactions.
func (s *Store) CountTransactions(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM generic_transactions").Scan(&count)
	return count, err
}

func fragmentCounts(rec *aggregate.Transaction) map[string]int {
	counts := make(map[string]int)
	for _, frag := range rec.OtherFragments {
		counts[frag.Method]++
	}
	return counts
}

func attrsJSON(attrs map[string]string) string {
	data, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
