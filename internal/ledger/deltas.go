package ledger

import (
	"context"
	"database/sql"

	"github.com/libsv/go-p2p/chaincfg/chainhash"
)

// TransactionDeltaTable stores each key's net value contribution per
// transaction, so balance impact never has to be re-derived from raw
// inputs and outputs.
type TransactionDeltaTable struct {
	ctx *DBContext
}

func NewTransactionDeltaTable(ctx *DBContext) *TransactionDeltaTable {
	return &TransactionDeltaTable{ctx: ctx}
}

func (t *TransactionDeltaTable) Create(entries []TransactionDeltaRow, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("transactiondeltas-create", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO TransactionDeltas (tx_hash, keyinstance_id,
			value_delta, date_created, date_updated) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			_, err = stmt.Exec(entry.Hash[:], entry.KeyInstanceID, entry.ValueDelta,
				timestamp, timestamp)
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

func (t *TransactionDeltaTable) Read(ctx context.Context,
	hashes ...*chainhash.Hash) ([]TransactionDeltaRow, error) {
	q := `SELECT tx_hash, keyinstance_id, value_delta FROM TransactionDeltas`
	var args []any

	if len(hashes) > 0 {
		q += ` WHERE tx_hash IN (` + placeholders(len(hashes)) + `)`
		for _, hash := range hashes {
			args = append(args, hash[:])
		}
	}

	rows, err := t.ctx.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TransactionDeltaRow
	for rows.Next() {
		var row TransactionDeltaRow
		var rawHash []byte
		if err = rows.Scan(&rawHash, &row.KeyInstanceID, &row.ValueDelta); err != nil {
			return nil, err
		}
		if row.Hash, err = chainhash.NewHash(rawHash); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// ReadDescriptions returns the labelled transactions an account's keys
// participate in.
func (t *TransactionDeltaTable) ReadDescriptions(ctx context.Context,
	accountID int64) ([]TransactionDescriptionRow, error) {
	q := `SELECT DISTINCT T.tx_hash, T.description FROM TransactionDeltas TD
		INNER JOIN Transactions T ON T.tx_hash = TD.tx_hash
		INNER JOIN KeyInstances KI ON KI.keyinstance_id = TD.keyinstance_id
		WHERE T.description IS NOT NULL AND KI.account_id = ?`

	rows, err := t.ctx.DB().QueryContext(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TransactionDescriptionRow
	for rows.Next() {
		var row TransactionDescriptionRow
		var rawHash []byte
		if err = rows.Scan(&rawHash, &row.Description); err != nil {
			return nil, err
		}
		if row.Hash, err = chainhash.NewHash(rawHash); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// UpdateValues replaces stored values outright. For incremental adjustment
// use CreateOrUpdateRelativeValues.
func (t *TransactionDeltaTable) UpdateValues(entries []TransactionDeltaValueUpdate, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("transactiondeltas-update-values", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE TransactionDeltas SET value_delta = ?, date_updated = ?
			WHERE tx_hash = ? AND keyinstance_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			_, err = stmt.Exec(entry.Value, timestamp, entry.Hash[:], entry.KeyInstanceID)
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

// CreateOrUpdateRelativeValues upserts each row: an existing row has the
// delta added to its stored value, a missing row is inserted with the delta
// as its value. The existence check and the merge are one statement inside
// the job's transaction, so no race window exists between them.
func (t *TransactionDeltaTable) CreateOrUpdateRelativeValues(entries []TransactionDeltaRow,
	callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("transactiondeltas-upsert-relative", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO TransactionDeltas (tx_hash, keyinstance_id,
			value_delta, date_created, date_updated) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (tx_hash, keyinstance_id) DO UPDATE SET
			value_delta = value_delta + excluded.value_delta,
			date_updated = excluded.date_updated`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			_, err = stmt.Exec(entry.Hash[:], entry.KeyInstanceID, entry.ValueDelta,
				timestamp, timestamp)
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

func (t *TransactionDeltaTable) Delete(keys []DeltaKey, callback JobCallback) {
	t.ctx.Writer().Enqueue("transactiondeltas-delete", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`DELETE FROM TransactionDeltas WHERE tx_hash = ? AND keyinstance_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, key := range keys {
			if _, err = stmt.Exec(key.Hash[:], key.KeyInstanceID); err != nil {
				return err
			}
		}
		return nil
	}, callback)
}
