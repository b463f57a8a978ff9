package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bitcoin-sv/wallet-ledger/config"
	"github.com/bitcoin-sv/wallet-ledger/internal/bip270"
	"github.com/bitcoin-sv/wallet-ledger/internal/ledger"
	"github.com/bitcoin-sv/wallet-ledger/internal/ledger/store"
	"github.com/bitcoin-sv/wallet-ledger/internal/logger"
)

// ledgertool prints a summary of a wallet ledger: row counts per entity,
// unread wallet events and unpaid invoices.
func main() {
	configDir := flag.String("config", "", "path to the directory containing the config file")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		slog.Error("Failed to load config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		slog.Error("Failed to create logger", slog.String("err", err.Error()))
		os.Exit(1)
	}

	if err = run(cfg, log); err != nil {
		log.Error("Ledger summary failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.LedgerConfig, log *slog.Logger) error {
	folder := filepath.Dir(cfg.Db.Sqlite.Path)
	filename := filepath.Base(cfg.Db.Sqlite.Path)
	s, err := store.New(folder, filename,
		store.WithMaxConns(cfg.Db.Sqlite.MaxIdleConns, cfg.Db.Sqlite.MaxOpenConns))
	if err != nil {
		return err
	}

	dbCtx := ledger.NewDBContext(s, log)
	defer dbCtx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err = summarizeTables(ctx, dbCtx, log); err != nil {
		return err
	}
	if err = summarizeEvents(ctx, dbCtx, log); err != nil {
		return err
	}
	return summarizeInvoices(cfg, log)
}

func summarizeTables(ctx context.Context, dbCtx *ledger.DBContext, log *slog.Logger) error {
	masterKeys, err := ledger.NewMasterKeyTable(dbCtx).Read(ctx)
	if err != nil {
		return err
	}
	accounts, err := ledger.NewAccountTable(dbCtx).Read(ctx)
	if err != nil {
		return err
	}
	keyInstances, err := ledger.NewKeyInstanceTable(dbCtx).Read(ctx)
	if err != nil {
		return err
	}
	transactions, err := ledger.NewTransactionTable(dbCtx).ReadMetadata(ctx,
		ledger.TxFlagsUnset, ledger.TxFlagsUnset)
	if err != nil {
		return err
	}
	outputs, err := ledger.NewTransactionOutputTable(dbCtx).Read(ctx,
		ledger.TxOutFlagsUnset, ledger.TxOutFlagsUnset)
	if err != nil {
		return err
	}
	deltas, err := ledger.NewTransactionDeltaTable(dbCtx).Read(ctx)
	if err != nil {
		return err
	}
	paymentRequests, err := ledger.NewPaymentRequestTable(dbCtx).Read(ctx)
	if err != nil {
		return err
	}

	log.Info("Ledger contents",
		slog.Int("master_keys", len(masterKeys)),
		slog.Int("accounts", len(accounts)),
		slog.Int("key_instances", len(keyInstances)),
		slog.Int("transactions", len(transactions)),
		slog.Int("outputs", len(outputs)),
		slog.Int("deltas", len(deltas)),
		slog.Int("payment_requests", len(paymentRequests)))
	return nil
}

func summarizeEvents(ctx context.Context, dbCtx *ledger.DBContext, log *slog.Logger) error {
	events, err := ledger.NewWalletEventTable(dbCtx).Read(ctx)
	if err != nil {
		return err
	}

	for _, event := range events {
		if event.EventFlags&ledger.EventUnread == 0 {
			continue
		}
		log.Info("Unread wallet event",
			slog.Int64("event_id", event.EventID),
			slog.Int("event_type", int(event.EventType)))
	}
	return nil
}

func summarizeInvoices(cfg *config.LedgerConfig, log *slog.Logger) error {
	invoices, err := bip270.NewInvoiceStore(cfg.Invoices.FilePath, log)
	if err != nil {
		return err
	}

	for _, invoice := range invoices.UnpaidInvoices() {
		log.Info("Unpaid invoice",
			slog.String("request_id", invoice.RequestID),
			slog.String("status", invoices.Status(invoice.RequestID).String()))
	}
	return nil
}
