package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/libsv/go-p2p/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

func TestTransactionTable_CreateDerivesFieldFlags(t *testing.T) {
	dbCtx := newTestContext(t)
	table := NewTransactionTable(dbCtx)
	hash := testTxHash(t, "tx-derive")

	err := syncWrite(t, func(callback JobCallback) {
		table.Create([]TransactionRow{
			{
				Hash:     hash,
				Data:     TxData{Height: int64Ptr(700001), Fee: int64Ptr(250)},
				ByteData: []byte("rawtx"),
				Flags:    TxFlagsUnset.WithState(TxStateCleared),
			},
		}, callback)
	})
	require.NoError(t, err)

	rows, err := table.Read(context.Background(), TxFlagsUnset, TxFlagsUnset)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	require.Equal(t, hash, row.Hash)
	require.Equal(t, []byte("rawtx"), row.ByteData)
	require.Equal(t, TxStateCleared, row.Flags.State())
	require.NotZero(t, row.Flags&TxHasHeight)
	require.NotZero(t, row.Flags&TxHasFee)
	require.NotZero(t, row.Flags&TxHasByteData)
	require.Zero(t, row.Flags&TxHasPosition)
	require.Equal(t, int64(700001), *row.Data.Height)
	require.Equal(t, int64(250), *row.Data.Fee)
	require.Nil(t, row.Data.Position)
}

func TestTransactionTable_CreatePanics(t *testing.T) {
	dbCtx := newTestContext(t)
	table := NewTransactionTable(dbCtx)
	hash := testTxHash(t, "tx-panics")

	conflicting := TxFlagsUnset.WithState(TxStateCleared) | TxFlagsUnset.WithState(TxStateSettled)
	require.Panics(t, func() {
		table.Create([]TransactionRow{
			{Hash: hash, ByteData: []byte("rawtx"), Flags: conflicting},
		}, nil)
	})

	require.Panics(t, func() {
		table.Create([]TransactionRow{
			{Hash: hash, ByteData: UntouchedByteData},
		}, nil)
	})
}

func TestTransactionTable_UpdateByteDataContract(t *testing.T) {
	dbCtx := newTestContext(t)
	table := NewTransactionTable(dbCtx)
	ctx := context.Background()
	hash := testTxHash(t, "tx-update")
	seedTransaction(t, dbCtx, hash, TxFlagsUnset, []byte("original"))

	// The sentinel leaves the stored payload alone while metadata updates.
	err := syncWrite(t, func(callback JobCallback) {
		table.Update([]TransactionUpdate{
			{
				Hash:     hash,
				Data:     TxData{Height: int64Ptr(800000)},
				ByteData: UntouchedByteData,
				Flags:    TxHasByteData,
			},
		}, callback)
	})
	require.NoError(t, err)

	rows, err := table.Read(ctx, TxFlagsUnset, TxFlagsUnset)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, []byte("original"), rows[0].ByteData)
	require.Equal(t, int64(800000), *rows[0].Data.Height)

	// A real payload replaces the stored one.
	err = syncWrite(t, func(callback JobCallback) {
		table.Update([]TransactionUpdate{
			{Hash: hash, ByteData: []byte("replacement"), Flags: TxHasByteData},
		}, callback)
	})
	require.NoError(t, err)

	rows, err = table.Read(ctx, TxFlagsUnset, TxFlagsUnset)
	require.NoError(t, err)
	require.Equal(t, []byte("replacement"), rows[0].ByteData)
}

func TestTransactionTable_UpdatePanics(t *testing.T) {
	dbCtx := newTestContext(t)
	table := NewTransactionTable(dbCtx)
	hash := testTxHash(t, "tx-update-panics")

	tt := []struct {
		name  string
		entry TransactionUpdate
	}{
		{
			name:  "sentinel without byte data flag",
			entry: TransactionUpdate{Hash: hash, ByteData: UntouchedByteData},
		},
		{
			name:  "byte data flag without payload",
			entry: TransactionUpdate{Hash: hash, Flags: TxHasByteData},
		},
		{
			name:  "payload with byte data flag cleared",
			entry: TransactionUpdate{Hash: hash, ByteData: []byte("rawtx")},
		},
		{
			name: "conflicting state bits",
			entry: TransactionUpdate{
				Hash:     hash,
				ByteData: []byte("rawtx"),
				Flags: TxHasByteData | TxFlagsUnset.WithState(TxStateDispatched) |
					TxFlagsUnset.WithState(TxStateReceived),
			},
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			require.Panics(t, func() {
				table.Update([]TransactionUpdate{tc.entry}, nil)
			})
		})
	}
}

func TestTransactionTable_UpdateFlagsOnlyTouchesMaskedBits(t *testing.T) {
	dbCtx := newTestContext(t)
	table := NewTransactionTable(dbCtx)
	ctx := context.Background()
	hash := testTxHash(t, "tx-flags")
	seedTransaction(t, dbCtx, hash, TxFlagsUnset.WithState(TxStateReceived), []byte("rawtx"))

	err := syncWrite(t, func(callback JobCallback) {
		table.UpdateFlags([]TransactionFlagsUpdate{
			{Hash: hash, Flags: TxFlagsUnset.WithState(TxStateSettled), Mask: TxStateMask},
		}, callback)
	})
	require.NoError(t, err)

	rows, err := table.Read(ctx, TxFlagsUnset, TxFlagsUnset)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, TxStateSettled, rows[0].Flags.State())
	// Bits outside the mask survive.
	require.NotZero(t, rows[0].Flags&TxHasByteData)
}

func TestTransactionTable_ReadFiltersByFlagsAndHashes(t *testing.T) {
	dbCtx := newTestContext(t)
	table := NewTransactionTable(dbCtx)
	ctx := context.Background()

	settled := testTxHash(t, "tx-settled")
	cleared := testTxHash(t, "tx-cleared")
	dispatched := testTxHash(t, "tx-dispatched")
	seedTransaction(t, dbCtx, settled, TxFlagsUnset.WithState(TxStateSettled), []byte("a"))
	seedTransaction(t, dbCtx, cleared, TxFlagsUnset.WithState(TxStateCleared), []byte("b"))
	seedTransaction(t, dbCtx, dispatched, TxFlagsUnset.WithState(TxStateDispatched), []byte("c"))

	// A zero mask matches everything.
	rows, err := table.Read(ctx, TxFlagsUnset, TxFlagsUnset)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Match the full state zone against a single state.
	rows, err = table.Read(ctx, TxFlagsUnset.WithState(TxStateSettled), TxStateMask)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, settled, rows[0].Hash)

	// Hash restriction composes with the flag filter.
	rows, err = table.Read(ctx, TxFlagsUnset.WithState(TxStateSettled), TxStateMask, cleared, dispatched)
	require.NoError(t, err)
	require.Empty(t, rows)

	metadata, err := table.ReadMetadata(ctx, TxFlagsUnset, TxFlagsUnset, cleared)
	require.NoError(t, err)
	require.Len(t, metadata, 1)
	require.Equal(t, cleared, metadata[0].Hash)
	require.Equal(t, TxStateCleared, metadata[0].Flags.State())
}

func TestTransactionTable_Descriptions(t *testing.T) {
	dbCtx := newTestContext(t)
	table := NewTransactionTable(dbCtx)
	ctx := context.Background()

	labelled := testTxHash(t, "tx-labelled")
	unlabelled := testTxHash(t, "tx-unlabelled")
	seedTransaction(t, dbCtx, labelled, TxFlagsUnset, []byte("a"))
	seedTransaction(t, dbCtx, unlabelled, TxFlagsUnset, []byte("b"))

	err := syncWrite(t, func(callback JobCallback) {
		table.UpdateDescriptions([]TransactionDescriptionUpdate{
			{Hash: labelled, Description: strPtr("rent")},
		}, callback)
	})
	require.NoError(t, err)

	rows, err := table.ReadDescriptions(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, labelled, rows[0].Hash)
	require.Equal(t, "rent", rows[0].Description)

	// Clearing the label removes the row from the result.
	err = syncWrite(t, func(callback JobCallback) {
		table.UpdateDescriptions([]TransactionDescriptionUpdate{
			{Hash: labelled, Description: nil},
		}, callback)
	})
	require.NoError(t, err)

	rows, err = table.ReadDescriptions(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestTransactionTable_ProofRoundTrip(t *testing.T) {
	dbCtx := newTestContext(t)
	table := NewTransactionTable(dbCtx)
	ctx := context.Background()
	hash := testTxHash(t, "tx-proof")
	seedTransaction(t, dbCtx, hash, TxFlagsUnset, []byte("rawtx"))

	branch := []*chainhash.Hash{testTxHash(t, "branch-0"), testTxHash(t, "branch-1")}
	proof := &TxProof{Position: 11, Branch: branch}

	err := syncWrite(t, func(callback JobCallback) {
		table.UpdateProofs([]TransactionProofUpdate{
			{Hash: hash, Proof: proof},
		}, callback)
	})
	require.NoError(t, err)

	rows, err := table.ReadProofs(ctx, hash)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, proof, rows[0].Proof)

	// Storing a proof raises the presence bit.
	withProof, err := table.Read(ctx, TxHasProofData, TxHasProofData)
	require.NoError(t, err)
	require.Len(t, withProof, 1)
	require.Equal(t, hash, withProof[0].Hash)
}

func TestTransactionTable_DeleteCascades(t *testing.T) {
	dbCtx := newTestContext(t)
	table := NewTransactionTable(dbCtx)
	ctx := context.Background()

	seedAccount(t, dbCtx, 1, nil)
	seedKeyInstance(t, dbCtx, 1, 1)

	doomed := testTxHash(t, "tx-doomed")
	kept := testTxHash(t, "tx-kept")
	seedTransaction(t, dbCtx, doomed, TxFlagsUnset, []byte("a"))
	seedTransaction(t, dbCtx, kept, TxFlagsUnset, []byte("b"))

	err := syncWrite(t, func(callback JobCallback) {
		NewTransactionOutputTable(dbCtx).Create([]TransactionOutputRow{
			{Hash: doomed, Index: 0, Value: 100, KeyInstanceID: 1},
			{Hash: kept, Index: 0, Value: 200, KeyInstanceID: 1},
		}, callback)
	})
	require.NoError(t, err)

	err = syncWrite(t, func(callback JobCallback) {
		NewTransactionDeltaTable(dbCtx).Create([]TransactionDeltaRow{
			{Hash: doomed, KeyInstanceID: 1, ValueDelta: 100},
			{Hash: kept, KeyInstanceID: 1, ValueDelta: 200},
		}, callback)
	})
	require.NoError(t, err)

	err = syncWrite(t, func(callback JobCallback) {
		table.Delete([]*chainhash.Hash{doomed}, callback)
	})
	require.NoError(t, err)

	rows, err := table.Read(ctx, TxFlagsUnset, TxFlagsUnset)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, kept, rows[0].Hash)

	outputs, err := NewTransactionOutputTable(dbCtx).Read(ctx, TxOutFlagsUnset, TxOutFlagsUnset)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.Equal(t, kept, outputs[0].Hash)

	deltas, err := NewTransactionDeltaTable(dbCtx).Read(ctx)
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	require.Equal(t, kept, deltas[0].Hash)
}

func TestTransactionTable_DeleteEmptyBatchIsNoOp(t *testing.T) {
	dbCtx := newTestContext(t)
	table := NewTransactionTable(dbCtx)
	hash := testTxHash(t, "tx-empty-delete")
	seedTransaction(t, dbCtx, hash, TxFlagsUnset, []byte("rawtx"))

	err := syncWrite(t, func(callback JobCallback) {
		table.Delete(nil, callback)
	})
	require.NoError(t, err)

	rows, err := table.Read(context.Background(), TxFlagsUnset, TxFlagsUnset)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestTransactionTable_InjectedClockStampsRows(t *testing.T) {
	fixed := time.Date(2023, 5, 17, 10, 0, 0, 0, time.UTC)
	dbCtx := newTestContext(t, WithNow(func() time.Time { return fixed }))
	table := NewTransactionTable(dbCtx)
	hash := testTxHash(t, "tx-clock")
	seedTransaction(t, dbCtx, hash, TxFlagsUnset, []byte("rawtx"))

	rows, err := table.Read(context.Background(), TxFlagsUnset, TxFlagsUnset)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, fixed.Unix(), rows[0].Data.DateCreated)
	require.Equal(t, fixed.Unix(), rows[0].Data.DateUpdated)
}
