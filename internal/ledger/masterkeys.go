package ledger

import (
	"context"
	"database/sql"
)

// MasterKeyTable stores one row per keystore. Parent references allow
// hierarchical keystores such as multisig cosigners.
type MasterKeyTable struct {
	ctx *DBContext
}

func NewMasterKeyTable(ctx *DBContext) *MasterKeyTable {
	return &MasterKeyTable{ctx: ctx}
}

func (t *MasterKeyTable) Create(entries []MasterKeyRow, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("masterkeys-create", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO MasterKeys (masterkey_id, parent_masterkey_id,
			derivation_type, derivation_data, date_created, date_updated)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			_, err = stmt.Exec(entry.MasterKeyID, entry.ParentKeyID, entry.DerivationType,
				entry.DerivationData, timestamp, timestamp)
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

func (t *MasterKeyTable) Read(ctx context.Context) ([]MasterKeyRow, error) {
	q := `SELECT masterkey_id, parent_masterkey_id, derivation_type, derivation_data
		FROM MasterKeys`

	rows, err := t.ctx.DB().QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MasterKeyRow
	for rows.Next() {
		var row MasterKeyRow
		var parentID sql.NullInt64
		if err = rows.Scan(&row.MasterKeyID, &parentID, &row.DerivationType,
			&row.DerivationData); err != nil {
			return nil, err
		}
		if parentID.Valid {
			row.ParentKeyID = &parentID.Int64
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (t *MasterKeyTable) UpdateDerivationData(entries []MasterKeyDataUpdate, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("masterkeys-update-derivation-data", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`UPDATE MasterKeys SET derivation_data = ?, date_updated = ? WHERE masterkey_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			if _, err = stmt.Exec(entry.DerivationData, timestamp, entry.MasterKeyID); err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

func (t *MasterKeyTable) Delete(masterKeyIDs []int64, callback JobCallback) {
	t.ctx.Writer().Enqueue("masterkeys-delete", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`DELETE FROM MasterKeys WHERE masterkey_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, masterKeyID := range masterKeyIDs {
			if _, err = stmt.Exec(masterKeyID); err != nil {
				return err
			}
		}
		return nil
	}, callback)
}
