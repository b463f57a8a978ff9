package ledger

import (
	"github.com/libsv/go-p2p/chaincfg/chainhash"
)

// UntouchedByteData is the sentinel payload for transaction updates meaning
// "leave the stored byte data as it is". It is only legal alongside a set
// TxHasByteData bit.
var UntouchedByteData = []byte("magic-untouched-bytedata")

type MasterKeyRow struct {
	MasterKeyID    int64
	ParentKeyID    *int64
	DerivationType DerivationType
	DerivationData []byte
}

type AccountRow struct {
	AccountID   int64
	MasterKeyID *int64
	ScriptType  ScriptType
	Name        string
}

type KeyInstanceRow struct {
	KeyInstanceID  int64
	AccountID      int64
	MasterKeyID    *int64
	DerivationType DerivationType
	DerivationData []byte
	ScriptType     ScriptType
	IsActive       bool
	Description    *string
}

// TxData carries the optional metadata of a transaction. A nil field means
// the column is unpopulated; the matching TxHas* bit is derived from it.
type TxData struct {
	Height      *int64
	Position    *int64
	Fee         *int64
	DateCreated int64
	DateUpdated int64
}

type TransactionRow struct {
	Hash        *chainhash.Hash
	Data        TxData
	ByteData    []byte
	Flags       TxFlags
	Description *string
}

type TransactionMetadataRow struct {
	Hash  *chainhash.Hash
	Flags TxFlags
	Data  TxData
}

type TransactionDescriptionRow struct {
	Hash        *chainhash.Hash
	Description string
}

type TransactionProofRow struct {
	Hash  *chainhash.Hash
	Proof *TxProof
}

type TransactionOutputRow struct {
	Hash          *chainhash.Hash
	Index         int64
	Value         int64
	KeyInstanceID int64
	Flags         TxOutFlags
}

// Outpoint addresses one transaction output.
type Outpoint struct {
	Hash  *chainhash.Hash
	Index int64
}

type TransactionDeltaRow struct {
	Hash          *chainhash.Hash
	KeyInstanceID int64
	ValueDelta    int64
}

// DeltaKey addresses one transaction delta row.
type DeltaKey struct {
	Hash          *chainhash.Hash
	KeyInstanceID int64
}

type PaymentRequestRow struct {
	PaymentRequestID int64
	KeyInstanceID    int64
	State            PaymentState
	Value            *int64
	Expiration       *int64
	Description      *string
	DateCreated      int64
}

type WalletEventRow struct {
	EventID     int64
	EventType   WalletEventType
	AccountID   *int64
	EventFlags  WalletEventFlags
	DateCreated int64
}

// Targeted update shapes. Every mutating operation takes one of these
// instead of a whole row, so unrelated columns are never overwritten.

type MasterKeyDataUpdate struct {
	MasterKeyID    int64
	DerivationData []byte
}

type AccountMasterKeyUpdate struct {
	AccountID   int64
	MasterKeyID int64
	ScriptType  ScriptType
}

type AccountNameUpdate struct {
	AccountID int64
	Name      string
}

type KeyInstanceDataUpdate struct {
	KeyInstanceID  int64
	DerivationData []byte
}

type KeyInstanceActiveUpdate struct {
	KeyInstanceID int64
	IsActive      bool
}

type KeyInstanceDescriptionUpdate struct {
	KeyInstanceID int64
	Description   *string
}

type TransactionUpdate struct {
	Hash     *chainhash.Hash
	Data     TxData
	ByteData []byte
	Flags    TxFlags
}

type TransactionMetadataUpdate struct {
	Hash *chainhash.Hash
	Data TxData
}

type TransactionFlagsUpdate struct {
	Hash  *chainhash.Hash
	Flags TxFlags
	Mask  TxFlags
}

type TransactionDescriptionUpdate struct {
	Hash        *chainhash.Hash
	Description *string
}

type TransactionProofUpdate struct {
	Hash  *chainhash.Hash
	Proof *TxProof
}

type TxOutFlagsUpdate struct {
	Hash  *chainhash.Hash
	Index int64
	Flags TxOutFlags
	Mask  TxOutFlags
}

type TransactionDeltaValueUpdate struct {
	Hash          *chainhash.Hash
	KeyInstanceID int64
	Value         int64
}

type PaymentRequestUpdate struct {
	PaymentRequestID int64
	State            PaymentState
	Value            *int64
	Expiration       *int64
	Description      *string
}

type WalletEventFlagsUpdate struct {
	EventID int64
	Flags   WalletEventFlags
	Mask    WalletEventFlags
}
