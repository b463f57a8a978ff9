package ledger

import (
	"context"
	"database/sql"
)

// PaymentRequestTable stores the wallet's issued payment requests, each
// pinned to the key whose script the payer is expected to pay.
type PaymentRequestTable struct {
	ctx *DBContext
}

func NewPaymentRequestTable(ctx *DBContext) *PaymentRequestTable {
	return &PaymentRequestTable{ctx: ctx}
}

func (t *PaymentRequestTable) Create(entries []PaymentRequestRow, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("paymentrequests-create", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO PaymentRequests (paymentrequest_id,
			keyinstance_id, state, value, expiration, description, date_created, date_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			dateCreated := entry.DateCreated
			if dateCreated == 0 {
				dateCreated = timestamp
			}
			_, err = stmt.Exec(entry.PaymentRequestID, entry.KeyInstanceID, entry.State,
				entry.Value, entry.Expiration, entry.Description, dateCreated, timestamp)
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

// Read returns all payment requests, or only those whose key belongs to one
// of the given accounts.
func (t *PaymentRequestTable) Read(ctx context.Context, accountIDs ...int64) ([]PaymentRequestRow, error) {
	q := `SELECT PR.paymentrequest_id, PR.keyinstance_id, PR.state, PR.value, PR.expiration,
		PR.description, PR.date_created FROM PaymentRequests PR`
	var args []any

	if len(accountIDs) > 0 {
		q += ` INNER JOIN KeyInstances KI ON KI.keyinstance_id = PR.keyinstance_id
			WHERE KI.account_id IN (` + placeholders(len(accountIDs)) + `)`
		args = int64Args(accountIDs)
	}

	rows, err := t.ctx.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PaymentRequestRow
	for rows.Next() {
		var row PaymentRequestRow
		var value, expiration sql.NullInt64
		var description sql.NullString
		err = rows.Scan(&row.PaymentRequestID, &row.KeyInstanceID, &row.State, &value,
			&expiration, &description, &row.DateCreated)
		if err != nil {
			return nil, err
		}
		row.Value = nullableInt64(value)
		row.Expiration = nullableInt64(expiration)
		if description.Valid {
			row.Description = &description.String
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (t *PaymentRequestTable) Update(entries []PaymentRequestUpdate, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("paymentrequests-update", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE PaymentRequests SET state = ?, value = ?,
			expiration = ?, description = ?, date_updated = ? WHERE paymentrequest_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			_, err = stmt.Exec(entry.State, entry.Value, entry.Expiration, entry.Description,
				timestamp, entry.PaymentRequestID)
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

func (t *PaymentRequestTable) Delete(paymentRequestIDs []int64, callback JobCallback) {
	t.ctx.Writer().Enqueue("paymentrequests-delete", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`DELETE FROM PaymentRequests WHERE paymentrequest_id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, paymentRequestID := range paymentRequestIDs {
			if _, err = stmt.Exec(paymentRequestID); err != nil {
				return err
			}
		}
		return nil
	}, callback)
}
