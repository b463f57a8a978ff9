package bip270

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bitcoin-sv/wallet-ledger/internal/ledger"
)

func newTestInvoiceStore(t *testing.T, path string, opts ...func(*InvoiceStore)) *InvoiceStore {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := NewInvoiceStore(path, logger, opts...)
	require.NoError(t, err)
	return store
}

func testInvoiceRequest(expiration *int64) *PaymentRequest {
	return &PaymentRequest{
		Outputs:             []*Output{},
		CreationTimestamp:   1684000000,
		ExpirationTimestamp: expiration,
	}
}

func TestInvoiceStore_AddGetRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoices.json")
	store := newTestInvoiceStore(t, path)

	requestID, err := store.Add(testInvoiceRequest(nil), testStrPtr("merchant.example"))
	require.NoError(t, err)
	require.NotEmpty(t, requestID)

	invoice, err := store.Get(requestID)
	require.NoError(t, err)
	require.Equal(t, "merchant.example", *invoice.Requestor)
	require.Empty(t, invoice.TxID)

	_, err = store.Get("no-such-id")
	require.ErrorIs(t, err, ErrUnknownInvoice)

	require.NoError(t, store.Remove(requestID))
	_, err = store.Get(requestID)
	require.ErrorIs(t, err, ErrUnknownInvoice)

	require.ErrorIs(t, store.Remove(requestID), ErrUnknownInvoice)
}

func TestInvoiceStore_SetPaidMaintainsReverseIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoices.json")
	store := newTestInvoiceStore(t, path)

	requestID, err := store.Add(testInvoiceRequest(nil), nil)
	require.NoError(t, err)

	require.NoError(t, store.SetPaid(requestID, "tx-abc"))

	resolved, found := store.RequestIDForTx("tx-abc")
	require.True(t, found)
	require.Equal(t, requestID, resolved)

	// Removing the invoice clears the reverse entry too.
	require.NoError(t, store.Remove(requestID))
	_, found = store.RequestIDForTx("tx-abc")
	require.False(t, found)
}

func TestInvoiceStore_StatusDerivation(t *testing.T) {
	now := time.Date(2023, 5, 13, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "invoices.json")
	store := newTestInvoiceStore(t, path, WithStoreNow(func() time.Time { return now }))

	require.Equal(t, ledger.PaymentStateUnknown, store.Status("no-such-id"))

	expiration := now.Add(time.Hour).Unix()
	requestID, err := store.Add(testInvoiceRequest(&expiration), nil)
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentStateUnpaid, store.Status(requestID))

	// Past the expiration with no settlement the invoice expires.
	now = now.Add(2 * time.Hour)
	require.Equal(t, ledger.PaymentStateExpired, store.Status(requestID))

	// A settled invoice is PAID regardless of expiration.
	require.NoError(t, store.SetPaid(requestID, "tx-abc"))
	require.Equal(t, ledger.PaymentStatePaid, store.Status(requestID))
}

func TestInvoiceStore_PersistsAcrossReopen(t *testing.T) {
	now := time.Date(2023, 5, 13, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "invoices.json")
	store := newTestInvoiceStore(t, path)

	expiration := now.Add(time.Hour).Unix()
	expiredID, err := store.Add(testInvoiceRequest(&expiration), testStrPtr("merchant.example"))
	require.NoError(t, err)
	paidID, err := store.Add(testInvoiceRequest(nil), nil)
	require.NoError(t, err)
	require.NoError(t, store.SetPaid(paidID, "tx-abc"))

	// A fresh store over the same file sees the same invoices, including the
	// expiry of unsettled ones.
	later := now.Add(2 * time.Hour)
	reopened := newTestInvoiceStore(t, path, WithStoreNow(func() time.Time { return later }))

	invoice, err := reopened.Get(expiredID)
	require.NoError(t, err)
	require.Equal(t, "merchant.example", *invoice.Requestor)
	require.Equal(t, ledger.PaymentStateExpired, reopened.Status(expiredID))
	require.Equal(t, ledger.PaymentStatePaid, reopened.Status(paidID))

	resolved, found := reopened.RequestIDForTx("tx-abc")
	require.True(t, found)
	require.Equal(t, paidID, resolved)
}

func TestInvoiceStore_SkipsMalformedEntriesOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoices.json")
	content := map[string]any{
		"good": map[string]any{
			"requestor": "merchant.example",
			"txid":      "tx-abc",
		},
		"corrupt": map[string]any{
			"requestor": nil,
			"payload":   json.RawMessage(`{"network": "dogecoin"}`),
		},
	}
	data, err := json.Marshal(content)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	store := newTestInvoiceStore(t, path)
	require.Len(t, store.List(), 1)

	invoice, err := store.Get("good")
	require.NoError(t, err)
	require.Equal(t, "tx-abc", invoice.TxID)

	_, err = store.Get("corrupt")
	require.ErrorIs(t, err, ErrUnknownInvoice)
}

func TestInvoiceStore_RejectsUnparseableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoices.json")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewInvoiceStore(path, logger)
	require.ErrorIs(t, err, ErrImportFailed)
}

func TestInvoiceStore_ImportFileMerges(t *testing.T) {
	dir := t.TempDir()
	store := newTestInvoiceStore(t, filepath.Join(dir, "invoices.json"))

	existingID, err := store.Add(testInvoiceRequest(nil), nil)
	require.NoError(t, err)

	importPath := filepath.Join(dir, "import.json")
	content := map[string]any{
		"imported": map[string]any{
			"requestor": "other.example",
			"txid":      "tx-imported",
		},
	}
	data, err := json.Marshal(content)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(importPath, data, 0o644))

	require.NoError(t, store.ImportFile(importPath))
	require.Len(t, store.List(), 2)

	_, err = store.Get(existingID)
	require.NoError(t, err)
	resolved, found := store.RequestIDForTx("tx-imported")
	require.True(t, found)
	require.Equal(t, "imported", resolved)

	require.ErrorIs(t, store.ImportFile(filepath.Join(dir, "missing.json")), ErrImportFailed)
}

func TestInvoiceStore_UnpaidInvoices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoices.json")
	store := newTestInvoiceStore(t, path)

	unpaidID, err := store.Add(testInvoiceRequest(nil), nil)
	require.NoError(t, err)
	paidID, err := store.Add(testInvoiceRequest(nil), nil)
	require.NoError(t, err)
	require.NoError(t, store.SetPaid(paidID, "tx-abc"))

	unpaid := store.UnpaidInvoices()
	require.Len(t, unpaid, 1)
	require.Equal(t, unpaidID, unpaid[0].RequestID)
}
