package ledger

// TxState is the mutually exclusive lifecycle position of a transaction.
// It occupies a reserved zone of the stored TxFlags bitmask; at most one
// state bit may be active in a row at any time.
type TxState uint8

const (
	TxStateNone TxState = iota
	TxStateDispatched
	TxStateReceived
	TxStateCleared
	TxStateSettled
)

func (s TxState) String() string {
	switch s {
	case TxStateNone:
		return "NONE"
	case TxStateDispatched:
		return "DISPATCHED"
	case TxStateReceived:
		return "RECEIVED"
	case TxStateCleared:
		return "CLEARED"
	case TxStateSettled:
		return "SETTLED"
	}
	return "UNRECOGNIZED"
}

// TxFlags combines the independent field-presence bits with the reserved
// state zone. Field bits record which optional columns are populated.
type TxFlags uint32

const (
	TxFlagsUnset TxFlags = 0

	TxHasFee       TxFlags = 1 << 12
	TxHasHeight    TxFlags = 1 << 13
	TxHasPosition  TxFlags = 1 << 14
	TxHasByteData  TxFlags = 1 << 15
	TxHasProofData TxFlags = 1 << 16

	txStateCleared    TxFlags = 1 << 20
	txStateDispatched TxFlags = 1 << 21
	txStateReceived   TxFlags = 1 << 22
	txStateSettled    TxFlags = 1 << 23

	// TxMetadataFieldMask covers the field bits derived from TxData.
	TxMetadataFieldMask = TxHasFee | TxHasHeight | TxHasPosition

	// TxStateMask isolates the reserved state zone.
	TxStateMask = txStateCleared | txStateDispatched | txStateReceived | txStateSettled
)

// State extracts the lifecycle state from the reserved zone. A row with no
// state bit set is in TxStateNone.
func (f TxFlags) State() TxState {
	switch f & TxStateMask {
	case txStateDispatched:
		return TxStateDispatched
	case txStateReceived:
		return TxStateReceived
	case txStateCleared:
		return TxStateCleared
	case txStateSettled:
		return TxStateSettled
	}
	return TxStateNone
}

// WithState replaces the reserved state zone with the single bit for s,
// leaving all field bits alone.
func (f TxFlags) WithState(s TxState) TxFlags {
	f &^= TxStateMask
	switch s {
	case TxStateDispatched:
		f |= txStateDispatched
	case TxStateReceived:
		f |= txStateReceived
	case TxStateCleared:
		f |= txStateCleared
	case TxStateSettled:
		f |= txStateSettled
	}
	return f
}

// IsValidState reports whether the reserved zone holds at most one bit.
func (f TxFlags) IsValidState() bool {
	state := f & TxStateMask
	return state&(state-1) == 0
}

// Merge applies the (flags, mask) partial update contract: only bits within
// mask change, taking their value from flags.
func (f TxFlags) Merge(flags, mask TxFlags) TxFlags {
	return f&^mask | flags&mask
}

// Matches applies the (flags, mask) partial match contract.
func (f TxFlags) Matches(flags, mask TxFlags) bool {
	return f&mask == flags&mask
}

// TxOutFlags is the independent state bitmask of a transaction output.
type TxOutFlags uint32

const (
	TxOutFlagsUnset TxOutFlags = 0
	TxOutSpent      TxOutFlags = 1 << 0
	TxOutAllocated  TxOutFlags = 1 << 1
	TxOutFrozen     TxOutFlags = 1 << 2
)

func (f TxOutFlags) Merge(flags, mask TxOutFlags) TxOutFlags {
	return f&^mask | flags&mask
}

func (f TxOutFlags) Matches(flags, mask TxOutFlags) bool {
	return f&mask == flags&mask
}

// WalletEventFlags qualify a wallet event row.
type WalletEventFlags uint32

const (
	EventFlagsUnset WalletEventFlags = 0
	EventFeatured   WalletEventFlags = 1 << 0
	EventUnread     WalletEventFlags = 1 << 1
)

func (f WalletEventFlags) Merge(flags, mask WalletEventFlags) WalletEventFlags {
	return f&^mask | flags&mask
}

type WalletEventType uint32

const (
	EventTypeSeedBackupReminder WalletEventType = iota + 1
	EventTypeIncompleteTransaction
	EventTypeWalletUpdateAvailable
)

// DerivationType identifies how a key instance's derivation data is to be
// interpreted. The data itself is an opaque blob owned by the keystore.
type DerivationType uint32

const (
	DerivationNone DerivationType = iota
	DerivationBIP32
	DerivationHardware
	DerivationImported
	DerivationElectrumOld
	DerivationElectrumMultisig
)

type ScriptType uint32

const (
	ScriptTypeNone ScriptType = iota
	ScriptTypeCoinbase
	ScriptTypeP2PKH
	ScriptTypeP2PK
	ScriptTypeMultisigP2SH
	ScriptTypeMultisigBare
)

// PaymentState is the lifecycle state of a payment request.
type PaymentState uint32

const (
	PaymentStateUnknown PaymentState = iota
	PaymentStateUnpaid
	PaymentStateExpired
	PaymentStatePaid
)

func (s PaymentState) String() string {
	switch s {
	case PaymentStateUnknown:
		return "UNKNOWN"
	case PaymentStateUnpaid:
		return "UNPAID"
	case PaymentStateExpired:
		return "EXPIRED"
	case PaymentStatePaid:
		return "PAID"
	}
	return "UNRECOGNIZED"
}
