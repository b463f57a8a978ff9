package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/libsv/go-p2p/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/bitcoin-sv/wallet-ledger/internal/ledger/store"
)

func newTestContext(t *testing.T, opts ...func(*DBContext)) *DBContext {
	t.Helper()

	s, err := store.NewInMemory()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dbCtx := NewDBContext(s, logger, opts...)
	t.Cleanup(func() {
		require.NoError(t, dbCtx.Close())
	})
	return dbCtx
}

// syncWrite enqueues one write through the given table operation and blocks
// until its commit or rollback completes.
func syncWrite(t *testing.T, enqueue func(callback JobCallback)) error {
	t.Helper()

	writer := NewSynchronousWriter()
	enqueue(writer.Callback())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return writer.Wait(ctx)
}

func testTxHash(t *testing.T, seed string) *chainhash.Hash {
	t.Helper()

	hash := chainhash.DoubleHashH([]byte(seed))
	return &hash
}

func int64Ptr(v int64) *int64 {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func seedMasterKey(t *testing.T, dbCtx *DBContext, masterKeyID int64) {
	t.Helper()

	err := syncWrite(t, func(callback JobCallback) {
		NewMasterKeyTable(dbCtx).Create([]MasterKeyRow{
			{MasterKeyID: masterKeyID, DerivationType: DerivationBIP32, DerivationData: []byte(`{"seed":"sufficient"}`)},
		}, callback)
	})
	require.NoError(t, err)
}

func seedAccount(t *testing.T, dbCtx *DBContext, accountID int64, masterKeyID *int64) {
	t.Helper()

	err := syncWrite(t, func(callback JobCallback) {
		NewAccountTable(dbCtx).Create([]AccountRow{
			{AccountID: accountID, MasterKeyID: masterKeyID, ScriptType: ScriptTypeP2PKH, Name: "Savings"},
		}, callback)
	})
	require.NoError(t, err)
}

func seedKeyInstance(t *testing.T, dbCtx *DBContext, keyInstanceID int64, accountID int64) {
	t.Helper()

	err := syncWrite(t, func(callback JobCallback) {
		NewKeyInstanceTable(dbCtx).Create([]KeyInstanceRow{
			{
				KeyInstanceID:  keyInstanceID,
				AccountID:      accountID,
				DerivationType: DerivationBIP32,
				DerivationData: []byte(`{"subpath":[0,0]}`),
				ScriptType:     ScriptTypeP2PKH,
				IsActive:       true,
			},
		}, callback)
	})
	require.NoError(t, err)
}

func seedTransaction(t *testing.T, dbCtx *DBContext, hash *chainhash.Hash, flags TxFlags, byteData []byte) {
	t.Helper()

	err := syncWrite(t, func(callback JobCallback) {
		NewTransactionTable(dbCtx).Create([]TransactionRow{
			{Hash: hash, Flags: flags, ByteData: byteData},
		}, callback)
	})
	require.NoError(t, err)
}
