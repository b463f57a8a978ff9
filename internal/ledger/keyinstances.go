package ledger

import (
	"context"
	"database/sql"
)

// KeyInstanceTable stores the individual derived or imported keys. The
// derivation data blob is opaque here; only the owning keystore interprets
// it.
type KeyInstanceTable struct {
	ctx *DBContext
}

func NewKeyInstanceTable(ctx *DBContext) *KeyInstanceTable {
	return &KeyInstanceTable{ctx: ctx}
}

func (t *KeyInstanceTable) Create(entries []KeyInstanceRow, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("keyinstances-create", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO KeyInstances (keyinstance_id, account_id,
			masterkey_id, derivation_type, derivation_data, script_type, is_active,
			description, date_created, date_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			_, err = stmt.Exec(entry.KeyInstanceID, entry.AccountID, entry.MasterKeyID,
				entry.DerivationType, entry.DerivationData, entry.ScriptType,
				entry.IsActive, entry.Description, timestamp, timestamp)
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

// Read returns all key instances, or just those named by keyInstanceIDs.
func (t *KeyInstanceTable) Read(ctx context.Context, keyInstanceIDs ...int64) ([]KeyInstanceRow, error) {
	q := `SELECT keyinstance_id, account_id, masterkey_id, derivation_type,
		derivation_data, script_type, is_active, description FROM KeyInstances`

	var args []any
	if len(keyInstanceIDs) > 0 {
		q += ` WHERE keyinstance_id IN (` + placeholders(len(keyInstanceIDs)) + `)`
		args = int64Args(keyInstanceIDs)
	}

	rows, err := t.ctx.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []KeyInstanceRow
	for rows.Next() {
		var row KeyInstanceRow
		var masterKeyID sql.NullInt64
		var description sql.NullString
		err = rows.Scan(&row.KeyInstanceID, &row.AccountID, &masterKeyID,
			&row.DerivationType, &row.DerivationData, &row.ScriptType, &row.IsActive,
			&description)
		if err != nil {
			return nil, err
		}
		if masterKeyID.Valid {
			row.MasterKeyID = &masterKeyID.Int64
		}
		if description.Valid {
			row.Description = &description.String
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (t *KeyInstanceTable) UpdateDerivationData(entries []KeyInstanceDataUpdate, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("keyinstances-update-derivation-data", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`UPDATE KeyInstances SET derivation_data = ?, date_updated = ? WHERE keyinstance_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			if _, err = stmt.Exec(entry.DerivationData, timestamp, entry.KeyInstanceID); err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

func (t *KeyInstanceTable) UpdateActive(entries []KeyInstanceActiveUpdate, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("keyinstances-update-active", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`UPDATE KeyInstances SET is_active = ?, date_updated = ? WHERE keyinstance_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			if _, err = stmt.Exec(entry.IsActive, timestamp, entry.KeyInstanceID); err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

// UpdateDescriptions sets or clears (nil) the user labels of keys.
func (t *KeyInstanceTable) UpdateDescriptions(entries []KeyInstanceDescriptionUpdate, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("keyinstances-update-descriptions", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`UPDATE KeyInstances SET description = ?, date_updated = ? WHERE keyinstance_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			if _, err = stmt.Exec(entry.Description, timestamp, entry.KeyInstanceID); err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

// Delete removes keys along with their transaction-linking rows (deltas and
// outputs referencing the key).
func (t *KeyInstanceTable) Delete(keyInstanceIDs []int64, callback JobCallback) {
	t.ctx.Writer().Enqueue("keyinstances-delete", func(tx *sql.Tx) error {
		if len(keyInstanceIDs) == 0 {
			return nil
		}
		clause := `(` + placeholders(len(keyInstanceIDs)) + `)`
		args := int64Args(keyInstanceIDs)

		if _, err := tx.Exec(
			`DELETE FROM TransactionDeltas WHERE keyinstance_id IN `+clause, args...); err != nil {
			return err
		}
		if _, err := tx.Exec(
			`DELETE FROM TransactionOutputs WHERE keyinstance_id IN `+clause, args...); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM KeyInstances WHERE keyinstance_id IN `+clause, args...)
		return err
	}, callback)
}
