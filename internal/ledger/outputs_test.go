package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bitcoin-sv/wallet-ledger/internal/ledger/store"
)

func TestTransactionOutputTable_CreateReadUpdateDelete(t *testing.T) {
	dbCtx := newTestContext(t)
	table := NewTransactionOutputTable(dbCtx)
	ctx := context.Background()

	seedAccount(t, dbCtx, 1, nil)
	seedKeyInstance(t, dbCtx, 1, 1)
	hash := testTxHash(t, "txo")
	seedTransaction(t, dbCtx, hash, TxFlagsUnset, []byte("rawtx"))

	err := syncWrite(t, func(callback JobCallback) {
		table.Create([]TransactionOutputRow{
			{Hash: hash, Index: 0, Value: 5000, KeyInstanceID: 1, Flags: TxOutFlagsUnset},
			{Hash: hash, Index: 1, Value: 7000, KeyInstanceID: 1, Flags: TxOutSpent},
		}, callback)
	})
	require.NoError(t, err)

	// Zero mask matches every output.
	rows, err := table.Read(ctx, TxOutFlagsUnset, TxOutFlagsUnset)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Match unspent only.
	rows, err = table.Read(ctx, TxOutFlagsUnset, TxOutSpent)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(0), rows[0].Index)
	require.Equal(t, int64(5000), rows[0].Value)

	// Freeze the unspent output; the spent bit must survive the masked merge.
	err = syncWrite(t, func(callback JobCallback) {
		table.UpdateFlags([]TxOutFlagsUpdate{
			{Hash: hash, Index: 1, Flags: TxOutFrozen, Mask: TxOutFrozen},
		}, callback)
	})
	require.NoError(t, err)

	rows, err = table.Read(ctx, TxOutSpent|TxOutFrozen, TxOutSpent|TxOutFrozen)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].Index)

	err = syncWrite(t, func(callback JobCallback) {
		table.Delete([]Outpoint{{Hash: hash, Index: 0}}, callback)
	})
	require.NoError(t, err)

	rows, err = table.Read(ctx, TxOutFlagsUnset, TxOutFlagsUnset)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].Index)
}

func TestTransactionOutputTable_UnknownReferencesFailWithIntegrityError(t *testing.T) {
	dbCtx := newTestContext(t)
	table := NewTransactionOutputTable(dbCtx)
	ctx := context.Background()

	seedAccount(t, dbCtx, 1, nil)
	seedKeyInstance(t, dbCtx, 1, 1)
	hash := testTxHash(t, "txo-missing")

	// No such transaction.
	err := syncWrite(t, func(callback JobCallback) {
		table.Create([]TransactionOutputRow{
			{Hash: hash, Index: 0, Value: 5000, KeyInstanceID: 1},
		}, callback)
	})
	require.ErrorIs(t, err, store.ErrIntegrity)

	seedTransaction(t, dbCtx, hash, TxFlagsUnset, []byte("rawtx"))

	// No such key instance.
	err = syncWrite(t, func(callback JobCallback) {
		table.Create([]TransactionOutputRow{
			{Hash: hash, Index: 0, Value: 5000, KeyInstanceID: 404},
		}, callback)
	})
	require.ErrorIs(t, err, store.ErrIntegrity)

	rows, err := table.Read(ctx, TxOutFlagsUnset, TxOutFlagsUnset)
	require.NoError(t, err)
	require.Empty(t, rows)
}
