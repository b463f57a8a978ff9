package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/libsv/go-p2p/chaincfg/chainhash"
)

var ErrProofTruncated = errors.New("merkle proof data truncated")

// TxProof is a merkle inclusion proof: the transaction's position within its
// block plus the ordered sibling hashes up the tree.
type TxProof struct {
	Position uint32
	Branch   []*chainhash.Hash
}

// Bytes encodes the proof as a fixed-width big-endian position followed by
// the concatenated sibling hashes.
func (p *TxProof) Bytes() []byte {
	raw := make([]byte, 4, 4+len(p.Branch)*chainhash.HashSize)
	binary.BigEndian.PutUint32(raw, p.Position)
	for _, sibling := range p.Branch {
		raw = append(raw, sibling[:]...)
	}
	return raw
}

// NewTxProofFromBytes decodes proof data produced by Bytes. Truncated input
// is rejected: the position field must be complete and the remainder must
// hold whole 32-byte hashes.
func NewTxProofFromBytes(raw []byte) (*TxProof, error) {
	if len(raw) < 4 {
		return nil, errors.Join(ErrProofTruncated,
			fmt.Errorf("%d bytes is too short for the position field", len(raw)))
	}
	rest := raw[4:]
	if len(rest)%chainhash.HashSize != 0 {
		return nil, errors.Join(ErrProofTruncated,
			fmt.Errorf("branch data of %d bytes is not whole hashes", len(rest)))
	}

	proof := &TxProof{
		Position: binary.BigEndian.Uint32(raw),
		Branch:   make([]*chainhash.Hash, 0, len(rest)/chainhash.HashSize),
	}
	for i := 0; i < len(rest); i += chainhash.HashSize {
		sibling, err := chainhash.NewHash(rest[i : i+chainhash.HashSize])
		if err != nil {
			return nil, err
		}
		proof.Branch = append(proof.Branch, sibling)
	}
	return proof, nil
}
