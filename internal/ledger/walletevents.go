package ledger

import (
	"context"
	"database/sql"
)

// WalletEventTable stores notable wallet occurrences, optionally pinned to
// an account (null = wallet-global).
type WalletEventTable struct {
	ctx *DBContext
}

func NewWalletEventTable(ctx *DBContext) *WalletEventTable {
	return &WalletEventTable{ctx: ctx}
}

func (t *WalletEventTable) Create(entries []WalletEventRow, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("walletevents-create", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO WalletEvents (event_id, event_type, account_id,
			event_flags, date_created, date_updated) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			dateCreated := entry.DateCreated
			if dateCreated == 0 {
				dateCreated = timestamp
			}
			_, err = stmt.Exec(entry.EventID, entry.EventType, entry.AccountID,
				entry.EventFlags, dateCreated, timestamp)
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

// Read returns all events, or only those pinned to one of the given
// accounts.
func (t *WalletEventTable) Read(ctx context.Context, accountIDs ...int64) ([]WalletEventRow, error) {
	q := `SELECT event_id, event_type, account_id, event_flags, date_created FROM WalletEvents`
	var args []any

	if len(accountIDs) > 0 {
		q += ` WHERE account_id IN (` + placeholders(len(accountIDs)) + `)`
		args = int64Args(accountIDs)
	}

	rows, err := t.ctx.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WalletEventRow
	for rows.Next() {
		var row WalletEventRow
		var accountID sql.NullInt64
		err = rows.Scan(&row.EventID, &row.EventType, &accountID, &row.EventFlags,
			&row.DateCreated)
		if err != nil {
			return nil, err
		}
		row.AccountID = nullableInt64(accountID)
		result = append(result, row)
	}
	return result, rows.Err()
}

// UpdateFlags merges each entry's flags into the stored bitmask: only bits
// within the mask change.
func (t *WalletEventTable) UpdateFlags(entries []WalletEventFlagsUpdate, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("walletevents-update-flags", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE WalletEvents SET event_flags = ((event_flags & ?) | ?),
			date_updated = ? WHERE event_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			_, err = stmt.Exec(^entry.Mask, entry.Flags&entry.Mask, timestamp, entry.EventID)
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

func (t *WalletEventTable) Delete(eventIDs []int64, callback JobCallback) {
	t.ctx.Writer().Enqueue("walletevents-delete", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`DELETE FROM WalletEvents WHERE event_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, eventID := range eventIDs {
			if _, err = stmt.Exec(eventID); err != nil {
				return err
			}
		}
		return nil
	}, callback)
}
