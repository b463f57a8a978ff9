package ledger

import (
	"context"
	"database/sql"

	"github.com/libsv/go-p2p/chaincfg/chainhash"
)

// TransactionOutputTable stores the outputs the wallet cares about, keyed by
// (tx hash, output index).
type TransactionOutputTable struct {
	ctx *DBContext
}

func NewTransactionOutputTable(ctx *DBContext) *TransactionOutputTable {
	return &TransactionOutputTable{ctx: ctx}
}

func (t *TransactionOutputTable) Create(entries []TransactionOutputRow, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("transactionoutputs-create", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO TransactionOutputs (tx_hash, tx_index, value,
			keyinstance_id, flags, date_created, date_updated) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			_, err = stmt.Exec(entry.Hash[:], entry.Index, entry.Value, entry.KeyInstanceID,
				entry.Flags, timestamp, timestamp)
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

// Read returns outputs matching (stored_flags & mask) == (flags & mask),
// optionally restricted to the given transactions. A zero mask matches all.
func (t *TransactionOutputTable) Read(ctx context.Context, flags, mask TxOutFlags,
	hashes ...*chainhash.Hash) ([]TransactionOutputRow, error) {
	q := `SELECT tx_hash, tx_index, value, keyinstance_id, flags FROM TransactionOutputs
		WHERE (flags & ?) = (? & ?)`
	args := []any{mask, flags, mask}

	if len(hashes) > 0 {
		q += ` AND tx_hash IN (` + placeholders(len(hashes)) + `)`
		for _, hash := range hashes {
			args = append(args, hash[:])
		}
	}

	rows, err := t.ctx.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TransactionOutputRow
	for rows.Next() {
		var row TransactionOutputRow
		var rawHash []byte
		err = rows.Scan(&rawHash, &row.Index, &row.Value, &row.KeyInstanceID, &row.Flags)
		if err != nil {
			return nil, err
		}
		if row.Hash, err = chainhash.NewHash(rawHash); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// UpdateFlags merges each entry's flags into the stored bitmask: only bits
// within the mask change.
func (t *TransactionOutputTable) UpdateFlags(entries []TxOutFlagsUpdate, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("transactionoutputs-update-flags", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE TransactionOutputs SET flags = ((flags & ?) | ?),
			date_updated = ? WHERE tx_hash = ? AND tx_index = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			_, err = stmt.Exec(^entry.Mask, entry.Flags&entry.Mask, timestamp,
				entry.Hash[:], entry.Index)
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

func (t *TransactionOutputTable) Delete(keys []Outpoint, callback JobCallback) {
	t.ctx.Writer().Enqueue("transactionoutputs-delete", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`DELETE FROM TransactionOutputs WHERE tx_hash = ? AND tx_index = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, key := range keys {
			if _, err = stmt.Exec(key.Hash[:], key.Index); err != nil {
				return err
			}
		}
		return nil
	}, callback)
}
