package ledger

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"

	"github.com/libsv/go-p2p/chaincfg/chainhash"
)

// TransactionTable stores transactions keyed by hash. Field-presence bits
// are derived from the supplied data on every write, so the flags column
// always agrees with the populated columns.
//
// Byte-data invariants are checked on the caller side before a job is
// enqueued and violations panic: they are caller bugs, not bad input.
type TransactionTable struct {
	ctx *DBContext
}

func NewTransactionTable(ctx *DBContext) *TransactionTable {
	return &TransactionTable{ctx: ctx}
}

func deriveMetadataFlags(data TxData) TxFlags {
	var flags TxFlags
	if data.Fee != nil {
		flags |= TxHasFee
	}
	if data.Height != nil {
		flags |= TxHasHeight
	}
	if data.Position != nil {
		flags |= TxHasPosition
	}
	return flags
}

func (t *TransactionTable) Create(entries []TransactionRow, callback JobCallback) {
	rows := make([]TransactionRow, len(entries))
	for i, entry := range entries {
		if !entry.Flags.IsValidState() {
			panic(fmt.Sprintf("transaction %s created with conflicting state bits %x",
				entry.Hash, uint32(entry.Flags)))
		}
		if bytes.Equal(entry.ByteData, UntouchedByteData) {
			panic("untouched byte data sentinel is not valid on create")
		}
		entry.Flags = entry.Flags.Merge(deriveMetadataFlags(entry.Data), TxMetadataFieldMask)
		if entry.ByteData != nil {
			entry.Flags |= TxHasByteData
		} else {
			entry.Flags &^= TxHasByteData
		}
		rows[i] = entry
	}

	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("transactions-create", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO Transactions (tx_hash, flags, byte_data,
			height, position, fee, description, date_created, date_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, row := range rows {
			dateCreated := row.Data.DateCreated
			if dateCreated == 0 {
				dateCreated = timestamp
			}
			dateUpdated := row.Data.DateUpdated
			if dateUpdated == 0 {
				dateUpdated = timestamp
			}
			_, err = stmt.Exec(row.Hash[:], row.Flags, row.ByteData, row.Data.Height,
				row.Data.Position, row.Data.Fee, row.Description, dateCreated, dateUpdated)
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

// Update replaces a transaction's payload, metadata and flags. The sentinel
// UntouchedByteData leaves the stored payload alone while the rest updates;
// it is only legal with the byte-data bit set.
func (t *TransactionTable) Update(entries []TransactionUpdate, callback JobCallback) {
	type preparedUpdate struct {
		TransactionUpdate
		untouched bool
	}

	updates := make([]preparedUpdate, len(entries))
	for i, entry := range entries {
		if !entry.Flags.IsValidState() {
			panic(fmt.Sprintf("transaction %s updated with conflicting state bits %x",
				entry.Hash, uint32(entry.Flags)))
		}
		entry.Flags = entry.Flags.Merge(deriveMetadataFlags(entry.Data), TxMetadataFieldMask)

		untouched := bytes.Equal(entry.ByteData, UntouchedByteData)
		switch {
		case untouched:
			if entry.Flags&TxHasByteData == 0 {
				panic("untouched byte data sentinel requires the byte data flag to be set")
			}
		case entry.Flags&TxHasByteData != 0:
			if entry.ByteData == nil {
				panic("byte data flag set without a byte data payload")
			}
		default:
			if entry.ByteData != nil {
				panic("byte data payload supplied while the byte data flag is cleared")
			}
		}
		updates[i] = preparedUpdate{TransactionUpdate: entry, untouched: untouched}
	}

	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("transactions-update", func(tx *sql.Tx) error {
		full, err := tx.Prepare(`UPDATE Transactions SET flags = ?, byte_data = ?,
			height = ?, position = ?, fee = ?, date_updated = ? WHERE tx_hash = ?`)
		if err != nil {
			return err
		}
		defer full.Close()

		untouched, err := tx.Prepare(`UPDATE Transactions SET flags = ?, height = ?,
			position = ?, fee = ?, date_updated = ? WHERE tx_hash = ?`)
		if err != nil {
			return err
		}
		defer untouched.Close()

		for _, update := range updates {
			if update.untouched {
				_, err = untouched.Exec(update.Flags, update.Data.Height, update.Data.Position,
					update.Data.Fee, timestamp, update.Hash[:])
			} else {
				_, err = full.Exec(update.Flags, update.ByteData, update.Data.Height,
					update.Data.Position, update.Data.Fee, timestamp, update.Hash[:])
			}
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

// UpdateMetadata rewrites the optional metadata columns, leaving payload,
// proof, description and state untouched.
func (t *TransactionTable) UpdateMetadata(entries []TransactionMetadataUpdate, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("transactions-update-metadata", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE Transactions SET height = ?, position = ?, fee = ?,
			flags = ((flags & ?) | ?), date_updated = ? WHERE tx_hash = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			fieldFlags := deriveMetadataFlags(entry.Data)
			_, err = stmt.Exec(entry.Data.Height, entry.Data.Position, entry.Data.Fee,
				^TxMetadataFieldMask, fieldFlags, timestamp, entry.Hash[:])
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

// UpdateFlags merges each entry's flags into the stored bitmask: only bits
// within the mask change.
func (t *TransactionTable) UpdateFlags(entries []TransactionFlagsUpdate, callback JobCallback) {
	for _, entry := range entries {
		if !entry.Flags.IsValidState() {
			panic(fmt.Sprintf("transaction %s flag update with conflicting state bits %x",
				entry.Hash, uint32(entry.Flags)))
		}
	}

	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("transactions-update-flags", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE Transactions SET flags = ((flags & ?) | ?),
			date_updated = ? WHERE tx_hash = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			_, err = stmt.Exec(^entry.Mask, entry.Flags&entry.Mask, timestamp, entry.Hash[:])
			if err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

func (t *TransactionTable) UpdateDescriptions(entries []TransactionDescriptionUpdate, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("transactions-update-descriptions", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`UPDATE Transactions SET description = ?, date_updated = ? WHERE tx_hash = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			if _, err = stmt.Exec(entry.Description, timestamp, entry.Hash[:]); err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

// UpdateProofs stores encoded merkle proofs and raises the proof-presence
// bit.
func (t *TransactionTable) UpdateProofs(entries []TransactionProofUpdate, callback JobCallback) {
	timestamp := t.ctx.timestamp()
	t.ctx.Writer().Enqueue("transactions-update-proofs", func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE Transactions SET proof_data = ?, flags = (flags | ?),
			date_updated = ? WHERE tx_hash = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range entries {
			if _, err = stmt.Exec(entry.Proof.Bytes(), TxHasProofData, timestamp, entry.Hash[:]); err != nil {
				return err
			}
		}
		return nil
	}, callback)
}

// Read returns rows matching (stored_flags & mask) == (flags & mask),
// optionally restricted to the given hashes. A zero mask matches every row.
func (t *TransactionTable) Read(ctx context.Context, flags, mask TxFlags,
	hashes ...*chainhash.Hash) ([]TransactionRow, error) {
	q := `SELECT tx_hash, byte_data, flags, height, position, fee, description,
		date_created, date_updated FROM Transactions WHERE (flags & ?) = (? & ?)`
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

	var result []TransactionRow
	for rows.Next() {
		row, err := scanTransactionRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *row)
	}
	return result, rows.Err()
}

// ReadMetadata is Read without the byte payload, for callers that only need
// flags and metadata.
func (t *TransactionTable) ReadMetadata(ctx context.Context, flags, mask TxFlags,
	hashes ...*chainhash.Hash) ([]TransactionMetadataRow, error) {
	q := `SELECT tx_hash, flags, height, position, fee, date_created, date_updated
		FROM Transactions WHERE (flags & ?) = (? & ?)`
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

	var result []TransactionMetadataRow
	for rows.Next() {
		var row TransactionMetadataRow
		var rawHash []byte
		var height, position, fee sql.NullInt64
		err = rows.Scan(&rawHash, &row.Flags, &height, &position, &fee,
			&row.Data.DateCreated, &row.Data.DateUpdated)
		if err != nil {
			return nil, err
		}
		if row.Hash, err = chainhash.NewHash(rawHash); err != nil {
			return nil, err
		}
		row.Data.Height = nullableInt64(height)
		row.Data.Position = nullableInt64(position)
		row.Data.Fee = nullableInt64(fee)
		result = append(result, row)
	}
	return result, rows.Err()
}

func (t *TransactionTable) ReadDescriptions(ctx context.Context,
	hashes ...*chainhash.Hash) ([]TransactionDescriptionRow, error) {
	q := `SELECT tx_hash, description FROM Transactions WHERE description IS NOT NULL`
	var args []any

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

func (t *TransactionTable) ReadProofs(ctx context.Context,
	hashes ...*chainhash.Hash) ([]TransactionProofRow, error) {
	q := `SELECT tx_hash, proof_data FROM Transactions WHERE proof_data IS NOT NULL`
	var args []any

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

	var result []TransactionProofRow
	for rows.Next() {
		var row TransactionProofRow
		var rawHash []byte
		var rawProof []byte
		if err = rows.Scan(&rawHash, &rawProof); err != nil {
			return nil, err
		}
		if row.Hash, err = chainhash.NewHash(rawHash); err != nil {
			return nil, err
		}
		if row.Proof, err = NewTxProofFromBytes(rawProof); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// Delete evicts transactions together with their outputs and deltas.
func (t *TransactionTable) Delete(hashes []*chainhash.Hash, callback JobCallback) {
	raw := make([][]byte, len(hashes))
	for i, hash := range hashes {
		raw[i] = hash[:]
	}

	t.ctx.Writer().Enqueue("transactions-delete", func(tx *sql.Tx) error {
		// An empty batch still runs as a job so the callback fires, but
		// renders no IN clause.
		if len(raw) == 0 {
			return nil
		}
		clause := `(` + placeholders(len(raw)) + `)`
		args := hashArgs(raw)

		if _, err := tx.Exec(`DELETE FROM TransactionDeltas WHERE tx_hash IN `+clause, args...); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM TransactionOutputs WHERE tx_hash IN `+clause, args...); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM Transactions WHERE tx_hash IN `+clause, args...)
		return err
	}, callback)
}

func scanTransactionRow(rows *sql.Rows) (*TransactionRow, error) {
	var row TransactionRow
	var rawHash []byte
	var height, position, fee sql.NullInt64
	var description sql.NullString

	err := rows.Scan(&rawHash, &row.ByteData, &row.Flags, &height, &position, &fee,
		&description, &row.Data.DateCreated, &row.Data.DateUpdated)
	if err != nil {
		return nil, err
	}
	if row.Hash, err = chainhash.NewHash(rawHash); err != nil {
		return nil, err
	}
	row.Data.Height = nullableInt64(height)
	row.Data.Position = nullableInt64(position)
	row.Data.Fee = nullableInt64(fee)
	if description.Valid {
		row.Description = &description.String
	}
	return &row, nil
}

func nullableInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
