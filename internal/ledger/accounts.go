package ledger

import (
	"context"
	"database/sql"
)

// AccountTable stores the wallet's accounts. The masterkey reference is
// nullable: imported-key accounts have no deterministic keystore.
type AccountTable struct {
	ctx *DBContext
}

func NewAccountTable(ctx *DBContext) *AccountTable {
	return &AccountTable{ctx: ctx}
}

func (t *AccountTable) Create(entries []AccountRow, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("accounts-create", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO Accounts (account_id, default_masterkey_id,
			default_script_type, account_name, date_created, date_updated)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			_, err = stmt.Exec(entry.AccountID, entry.MasterKeyID, entry.ScriptType,
				entry.Name, timestamp, timestamp)
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

func (t *AccountTable) Read(ctx context.Context) ([]AccountRow, error) {
	q := `SELECT account_id, default_masterkey_id, default_script_type, account_name
		FROM Accounts`

	rows, err := t.ctx.DB().QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AccountRow
	for rows.Next() {
		var row AccountRow
		var masterKeyID sql.NullInt64
		if err = rows.Scan(&row.AccountID, &masterKeyID, &row.ScriptType, &row.Name); err != nil {
			return nil, err
		}
		if masterKeyID.Valid {
			row.MasterKeyID = &masterKeyID.Int64
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// UpdateMasterKey repoints an account at another keystore, with the script
// type that keystore produces.
func (t *AccountTable) UpdateMasterKey(entries []AccountMasterKeyUpdate, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("accounts-update-masterkey", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE Accounts SET default_masterkey_id = ?,
			default_script_type = ?, date_updated = ? WHERE account_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			_, err = stmt.Exec(entry.MasterKeyID, entry.ScriptType, timestamp, entry.AccountID)
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

func (t *AccountTable) UpdateName(entries []AccountNameUpdate, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("accounts-update-name", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`UPDATE Accounts SET account_name = ?, date_updated = ? WHERE account_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			if _, err = stmt.Exec(entry.Name, timestamp, entry.AccountID); err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

func (t *AccountTable) Delete(accountIDs []int64, callback JobCallback) {
	t.ctx.Writer().Enqueue("accounts-delete", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`DELETE FROM Accounts WHERE account_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, accountID := range accountIDs {
			if _, err = stmt.Exec(accountID); err != nil {
				return err
			}
		}
		return nil
	}, callback)
}
