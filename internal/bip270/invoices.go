package bip270

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libsv/go-bt/v2/bscript"

	"github.com/bitcoin-sv/wallet-ledger/internal/ledger"
)

var (
	ErrUnknownInvoice  = errors.New("no invoice with that request id")
	ErrImportFailed    = errors.New("invoice file could not be imported")
	ErrInvoiceSaveFail = errors.New("invoice file could not be written")
)

// PaymentRequestFromRow builds the wire form of a stored payment request.
// The stored expiration is an offset in seconds from creation; the wire form
// carries the absolute timestamp.
func PaymentRequestFromRow(row ledger.PaymentRequestRow, script *bscript.Script) *PaymentRequest {
	var expiration *int64
	if row.Expiration != nil {
		absolute := row.DateCreated + *row.Expiration
		expiration = &absolute
	}
	return &PaymentRequest{
		Network:             NetworkBitcoin,
		Outputs:             []*Output{{Script: script, Amount: row.Value}},
		CreationTimestamp:   row.DateCreated,
		ExpirationTimestamp: expiration,
		Memo:                row.Description,
	}
}

// Invoice ties a payment request to its settlement: the requestor identity
// and, once paid, the settling transaction id.
type Invoice struct {
	RequestID string
	Requestor *string
	TxID      string
	Request   *PaymentRequest
}

type invoiceFileEntry struct {
	Requestor *string         `json:"requestor"`
	TxID      *string         `json:"txid"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// InvoiceStore is the persistent invoice index: a JSON file mapping request
// id to its entry, rewritten in full on every mutation, plus a reverse index
// from settling transaction id to request id rebuilt on load. Entries that
// fail to load individually are skipped so one corrupt entry does not block
// the rest.
type InvoiceStore struct {
	mu       sync.Mutex
	path     string
	logger   *slog.Logger
	now      func() time.Time
	invoices map[string]*Invoice
	paid     map[string]string
}

func WithStoreNow(nowFunc func() time.Time) func(*InvoiceStore) {
	return func(s *InvoiceStore) {
		s.now = nowFunc
	}
}

// NewInvoiceStore loads the invoice file at path, which need not exist yet.
func NewInvoiceStore(path string, logger *slog.Logger, opts ...func(*InvoiceStore)) (*InvoiceStore, error) {
	s := &InvoiceStore{
		path:     path,
		logger:   logger.With(slog.String("module", "invoice-store")),
		now:      time.Now,
		invoices: map[string]*Invoice{},
		paid:     map[string]string{},
	}

	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read invoice file: %w", err)
	}

	var entries map[string]invoiceFileEntry
	if err = json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Join(ErrImportFailed, err)
	}
	s.loadEntries(entries)

	return s, nil
}

func (s *InvoiceStore) loadEntries(entries map[string]invoiceFileEntry) {
	for requestID, entry := range entries {
		invoice := &Invoice{RequestID: requestID, Requestor: entry.Requestor}
		if entry.TxID != nil {
			invoice.TxID = *entry.TxID
		}
		if entry.Payload != nil {
			request, err := ParsePaymentRequest(entry.Payload)
			if err != nil {
				s.logger.Warn("Skipping malformed invoice entry",
					slog.String("request_id", requestID),
					slog.String("err", err.Error()))
				continue
			}
			invoice.Request = request
		}

		s.invoices[requestID] = invoice
		if invoice.TxID != "" {
			s.paid[invoice.TxID] = requestID
		}
	}
}

// Add stores a new invoice for the payment request and returns its freshly
// assigned request id.
func (s *InvoiceStore) Add(request *PaymentRequest, requestor *string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requestID := uuid.NewString()
	s.invoices[requestID] = &Invoice{
		RequestID: requestID,
		Requestor: requestor,
		Request:   request,
	}

	if err := s.save(); err != nil {
		delete(s.invoices, requestID)
		return "", err
	}
	return requestID, nil
}

// Get returns the invoice for a request id, or ErrUnknownInvoice.
func (s *InvoiceStore) Get(requestID string) (*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, found := s.invoices[requestID]
	if !found {
		return nil, errors.Join(ErrUnknownInvoice, fmt.Errorf("request id %q", requestID))
	}
	return invoice, nil
}

// SetPaid records the settling transaction for an invoice and indexes it in
// the reverse map.
func (s *InvoiceStore) SetPaid(requestID string, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, found := s.invoices[requestID]
	if !found {
		return errors.Join(ErrUnknownInvoice, fmt.Errorf("request id %q", requestID))
	}

	invoice.TxID = txID
	s.paid[txID] = requestID
	return s.save()
}

// Remove deletes an invoice along with any reverse-index entry pointing at
// it.
func (s *InvoiceStore) Remove(requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.invoices[requestID]; !found {
		return errors.Join(ErrUnknownInvoice, fmt.Errorf("request id %q", requestID))
	}

	for txID, paidRequestID := range s.paid {
		if paidRequestID == requestID {
			delete(s.paid, txID)
			break
		}
	}
	delete(s.invoices, requestID)
	return s.save()
}

// RequestIDForTx resolves a settling transaction id back to its request id.
func (s *InvoiceStore) RequestIDForTx(txID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requestID, found := s.paid[txID]
	return requestID, found
}

// Status derives the lifecycle state of an invoice from its stored fields:
// unknown id, settled, expired, unpaid, checked in that order. A settled
// invoice stays PAID even past its expiration.
func (s *InvoiceStore) Status(requestID string) ledger.PaymentState {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, found := s.invoices[requestID]
	if !found {
		return ledger.PaymentStateUnknown
	}
	if invoice.TxID != "" {
		return ledger.PaymentStatePaid
	}
	if invoice.Request != nil && invoice.Request.HasExpired(s.now().Unix()) {
		return ledger.PaymentStateExpired
	}
	return ledger.PaymentStateUnpaid
}

// List returns all invoices in no particular order.
func (s *InvoiceStore) List() []*Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoices := make([]*Invoice, 0, len(s.invoices))
	for _, invoice := range s.invoices {
		invoices = append(invoices, invoice)
	}
	return invoices
}

// UnpaidInvoices returns the invoices not yet settled, expired ones
// included.
func (s *InvoiceStore) UnpaidInvoices() []*Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()

	var invoices []*Invoice
	for _, invoice := range s.invoices {
		if invoice.TxID == "" {
			invoices = append(invoices, invoice)
		}
	}
	return invoices
}

// ImportFile merges the entries of another invoice file into the store.
// Individually malformed entries are skipped; a file that is not a JSON
// object at all fails the import.
func (s *InvoiceStore) ImportFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Join(ErrImportFailed, err)
	}

	var entries map[string]invoiceFileEntry
	if err = json.Unmarshal(data, &entries); err != nil {
		return errors.Join(ErrImportFailed, err)
	}

	s.loadEntries(entries)
	return s.save()
}

// save rewrites the whole invoice file. Callers hold the lock.
func (s *InvoiceStore) save() error {
	entries := make(map[string]invoiceFileEntry, len(s.invoices))
	for requestID, invoice := range s.invoices {
		entry := invoiceFileEntry{Requestor: invoice.Requestor}
		if invoice.TxID != "" {
			txID := invoice.TxID
			entry.TxID = &txID
		}
		if invoice.Request != nil {
			payload, err := json.Marshal(invoice.Request)
			if err != nil {
				return errors.Join(ErrInvoiceSaveFail, err)
			}
			entry.Payload = payload
		}
		entries[requestID] = entry
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return errors.Join(ErrInvoiceSaveFail, err)
	}
	if err = os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Join(ErrInvoiceSaveFail, err)
	}
	return nil
}
