// Package store owns the sqlite file backing a wallet ledger: opening it
// with the right pragmas, creating the schema and classifying the errors
// the driver hands back.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

var (
	ErrNotFound  = errors.New("key could not be found")
	ErrIntegrity = errors.New("integrity constraint violated")
)

type Store struct {
	db   *sql.DB
	path string
}

func WithMaxConns(idle int, open int) func(*Store) {
	return func(s *Store) {
		s.db.SetMaxIdleConns(idle)
		s.db.SetMaxOpenConns(open)
	}
}

// New opens (creating it if needed) the wallet database file in the given
// folder. The schema is created on first open.
func New(folder string, filename string, opts ...func(*Store)) (*Store, error) {
	dbPath, err := filepath.Abs(path.Join(folder, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for sqlite DB: %w", err)
	}

	dsn := fmt.Sprintf(
		"%s?cache=shared&_pragma=busy_timeout=10000&_pragma=journal_mode=WAL&_pragma=foreign_keys(1)",
		dbPath)
	return open(dsn, dbPath, opts...)
}

// NewInMemory opens a throwaway in-memory database, used by tests.
func NewInMemory(opts ...func(*Store)) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	return open(dsn, dsn, opts...)
}

// Foreign-key enforcement rides in the DSN rather than a one-shot PRAGMA:
// the setting is per-connection and database/sql pools connections, so only
// the DSN guarantees every pooled connection enforces it.
func open(dsn string, dbPath string, opts ...func(*Store)) (*Store, error) {
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite DB: %w", err)
	}

	if err = createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WrapError converts driver constraint failures into ErrIntegrity so callers
// can classify them with errors.Is without knowing the driver.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// Primary and extended constraint codes share the low byte.
		if liteErr.Code()&0xff == 19 {
			return errors.Join(ErrIntegrity, err)
		}
	}
	return err
}

func createSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS MasterKeys (
			masterkey_id INTEGER PRIMARY KEY,
			parent_masterkey_id INTEGER DEFAULT NULL REFERENCES MasterKeys (masterkey_id),
			derivation_type INTEGER NOT NULL,
			derivation_data BLOB NOT NULL,
			date_created INTEGER NOT NULL,
			date_updated INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS Accounts (
			account_id INTEGER PRIMARY KEY,
			default_masterkey_id INTEGER DEFAULT NULL REFERENCES MasterKeys (masterkey_id),
			default_script_type INTEGER NOT NULL,
			account_name TEXT NOT NULL,
			date_created INTEGER NOT NULL,
			date_updated INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS KeyInstances (
			keyinstance_id INTEGER PRIMARY KEY,
			account_id INTEGER NOT NULL REFERENCES Accounts (account_id),
			masterkey_id INTEGER DEFAULT NULL REFERENCES MasterKeys (masterkey_id),
			derivation_type INTEGER NOT NULL,
			derivation_data BLOB NOT NULL,
			script_type INTEGER NOT NULL,
			is_active INTEGER NOT NULL,
			description TEXT DEFAULT NULL,
			date_created INTEGER NOT NULL,
			date_updated INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS Transactions (
			tx_hash BLOB PRIMARY KEY,
			flags INTEGER NOT NULL DEFAULT 0,
			byte_data BLOB DEFAULT NULL,
			height INTEGER DEFAULT NULL,
			position INTEGER DEFAULT NULL,
			fee INTEGER DEFAULT NULL,
			proof_data BLOB DEFAULT NULL,
			description TEXT DEFAULT NULL,
			date_created INTEGER NOT NULL,
			date_updated INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS TransactionOutputs (
			tx_hash BLOB NOT NULL REFERENCES Transactions (tx_hash),
			tx_index INTEGER NOT NULL,
			value INTEGER NOT NULL,
			keyinstance_id INTEGER NOT NULL REFERENCES KeyInstances (keyinstance_id),
			flags INTEGER NOT NULL,
			date_created INTEGER NOT NULL,
			date_updated INTEGER NOT NULL,
			PRIMARY KEY (tx_hash, tx_index)
		);`,
		`CREATE TABLE IF NOT EXISTS TransactionDeltas (
			tx_hash BLOB NOT NULL REFERENCES Transactions (tx_hash),
			keyinstance_id INTEGER NOT NULL REFERENCES KeyInstances (keyinstance_id),
			value_delta INTEGER NOT NULL,
			date_created INTEGER NOT NULL,
			date_updated INTEGER NOT NULL,
			PRIMARY KEY (tx_hash, keyinstance_id)
		);`,
		`CREATE TABLE IF NOT EXISTS PaymentRequests (
			paymentrequest_id INTEGER PRIMARY KEY,
			keyinstance_id INTEGER NOT NULL REFERENCES KeyInstances (keyinstance_id),
			state INTEGER NOT NULL,
			value INTEGER DEFAULT NULL,
			expiration INTEGER DEFAULT NULL,
			description TEXT DEFAULT NULL,
			date_created INTEGER NOT NULL,
			date_updated INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS WalletEvents (
			event_id INTEGER PRIMARY KEY,
			event_type INTEGER NOT NULL,
			account_id INTEGER DEFAULT NULL REFERENCES Accounts (account_id),
			event_flags INTEGER NOT NULL,
			date_created INTEGER NOT NULL,
			date_updated INTEGER NOT NULL
		);`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("could not create schema table: %w", err)
		}
	}

	return nil
}
